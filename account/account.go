// Package account maps community member ids to their linked Twitch identity.
// Records are written by the OAuth linking service (or cmd/import-json) and
// read by verification.
package account

import (
	"context"
	"fmt"
	"strings"

	"github.com/onnwee/hundy-bot/crypto"
	"github.com/onnwee/hundy-bot/store"
)

// Account is a linked Twitch identity. AccessToken is sealed at rest.
type Account struct {
	TwitchID    string `json:"twitchId"`
	TwitchName  string `json:"twitchName"`
	AccessToken string `json:"twitchAccessToken,omitempty"`
}

// Document is the verifiedUsers document keyed by member id.
type Document map[string]Account

// Linker reads and writes linked accounts.
type Linker struct {
	store *store.Store
	enc   crypto.Encryptor
}

// NewLinker returns a Linker. enc may be nil, in which case tokens are stored as given.
func NewLinker(s *store.Store, enc crypto.Encryptor) *Linker {
	return &Linker{store: s, enc: enc}
}

// Lookup returns the linked account for userID with the token opened.
// ok is false when the member never linked an account.
func (l *Linker) Lookup(ctx context.Context, userID string) (Account, bool, error) {
	doc, err := store.Read[Document](ctx, l.store, store.DocVerified)
	if err != nil {
		return Account{}, false, err
	}
	acct, ok := doc[userID]
	if !ok {
		return Account{}, false, nil
	}
	acct.AccessToken, err = crypto.Open(l.enc, acct.AccessToken)
	if err != nil {
		return Account{}, false, fmt.Errorf("open token for %s: %w", userID, err)
	}
	return acct, true, nil
}

// Link records acct for userID, sealing its token.
func (l *Linker) Link(ctx context.Context, userID string, acct Account) error {
	if strings.TrimSpace(userID) == "" || acct.TwitchID == "" {
		return fmt.Errorf("link: user id and twitch id are required")
	}
	sealed, err := crypto.Seal(l.enc, acct.AccessToken)
	if err != nil {
		return fmt.Errorf("seal token: %w", err)
	}
	acct.AccessToken = sealed
	_, err = store.Update(ctx, l.store, store.DocVerified, func(doc *Document) error {
		if *doc == nil {
			*doc = Document{}
		}
		(*doc)[userID] = acct
		return nil
	})
	return err
}

// Unlink removes the record for userID. Unknown ids are ignored.
func (l *Linker) Unlink(ctx context.Context, userID string) error {
	_, err := store.Update(ctx, l.store, store.DocVerified, func(doc *Document) error {
		delete(*doc, userID)
		return nil
	})
	return err
}

// SealAll seals every plaintext token in doc in place and reports how many changed.
func SealAll(enc crypto.Encryptor, doc Document) (int, error) {
	if enc == nil {
		return 0, nil
	}
	n := 0
	for id, acct := range doc {
		if acct.AccessToken == "" || crypto.IsSealed(acct.AccessToken) {
			continue
		}
		sealed, err := crypto.Seal(enc, acct.AccessToken)
		if err != nil {
			return n, fmt.Errorf("seal token for %s: %w", id, err)
		}
		acct.AccessToken = sealed
		doc[id] = acct
		n++
	}
	return n, nil
}
