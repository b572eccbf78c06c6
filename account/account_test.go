package account

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/hundy-bot/crypto"
	"github.com/onnwee/hundy-bot/store"
)

func testEncryptor(t *testing.T) crypto.Encryptor {
	t.Helper()
	enc, err := crypto.NewAESEncryptor(base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32))))
	require.NoError(t, err)
	return enc
}

func TestLookupMissing(t *testing.T) {
	l := NewLinker(store.New(store.NewMemoryBackend()), nil)
	_, ok, err := l.Lookup(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLinkSealsAndLookupOpens(t *testing.T) {
	ctx := context.Background()
	s := store.New(store.NewMemoryBackend())
	l := NewLinker(s, testEncryptor(t))

	require.NoError(t, l.Link(ctx, "u1", Account{TwitchID: "42", TwitchName: "viewer", AccessToken: "secret-token"}))

	raw, err := s.Raw(ctx, store.DocVerified)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-token")
	assert.Contains(t, string(raw), crypto.SealedPrefix)

	acct, ok, err := l.Lookup(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Account{TwitchID: "42", TwitchName: "viewer", AccessToken: "secret-token"}, acct)
}

func TestLookupLegacyPlaintext(t *testing.T) {
	ctx := context.Background()
	s := store.New(store.NewMemoryBackend())
	require.NoError(t, s.Replace(ctx, store.DocVerified,
		[]byte(`{"u1":{"twitchId":"42","twitchName":"viewer","twitchAccessToken":"plain"}}`)))

	acct, ok, err := NewLinker(s, testEncryptor(t)).Lookup(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "plain", acct.AccessToken)
}

func TestLinkRequiresIDs(t *testing.T) {
	l := NewLinker(store.New(store.NewMemoryBackend()), nil)
	assert.Error(t, l.Link(context.Background(), "", Account{TwitchID: "1"}))
	assert.Error(t, l.Link(context.Background(), "u1", Account{}))
}

func TestUnlink(t *testing.T) {
	ctx := context.Background()
	l := NewLinker(store.New(store.NewMemoryBackend()), nil)
	require.NoError(t, l.Link(ctx, "u1", Account{TwitchID: "42"}))
	require.NoError(t, l.Unlink(ctx, "u1"))
	require.NoError(t, l.Unlink(ctx, "nobody"))

	_, ok, err := l.Lookup(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSealAll(t *testing.T) {
	enc := testEncryptor(t)
	doc := Document{
		"a": {TwitchID: "1", AccessToken: "plain"},
		"b": {TwitchID: "2"},
	}
	n, err := SealAll(enc, doc)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, crypto.IsSealed(doc["a"].AccessToken))

	n, err = SealAll(enc, doc)
	require.NoError(t, err)
	assert.Zero(t, n, "already sealed tokens are left alone")

	n, err = SealAll(nil, Document{"c": {AccessToken: "x"}})
	require.NoError(t, err)
	assert.Zero(t, n)
}
