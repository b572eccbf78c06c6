// Package verify checks a member's linked Twitch account against the
// broadcaster's subscribers and followers and grants the matching roles.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/onnwee/hundy-bot/account"
	"github.com/onnwee/hundy-bot/apperr"
	"github.com/onnwee/hundy-bot/twitchapi"
)

// Accounts resolves linked accounts.
type Accounts interface {
	Lookup(ctx context.Context, userID string) (account.Account, bool, error)
}

// Twitch is the Helix surface verification needs. An empty token selects
// the app token.
type Twitch interface {
	GetUser(ctx context.Context, token, id string) (twitchapi.User, error)
	IsSubscribed(ctx context.Context, token, broadcasterID, userID string) (bool, error)
	IsFollower(ctx context.Context, token, broadcasterID, userID string) (bool, error)
}

// Gateway grants roles.
type Gateway interface {
	RoleByName(ctx context.Context, guildID, name string) (string, error)
	MemberHasRole(ctx context.Context, guildID, userID, roleID string) (bool, error)
	AddRole(ctx context.Context, guildID, userID, roleID string) error
}

// Options configures a Verifier.
type Options struct {
	BroadcasterID    string
	SubscriberRoleID string
	FollowerRoleName string
	// LinkBaseURL is where members link their Twitch account.
	LinkBaseURL string
}

// Verifier runs the verify command.
type Verifier struct {
	accounts Accounts
	twitch   Twitch
	gw       Gateway
	opts     Options
}

// New returns a Verifier.
func New(accounts Accounts, twitch Twitch, gw Gateway, opts Options) *Verifier {
	if opts.FollowerRoleName == "" {
		opts.FollowerRoleName = "KingJim"
	}
	return &Verifier{accounts: accounts, twitch: twitch, gw: gw, opts: opts}
}

// Result is the outcome of a verification.
type Result struct {
	// LinkURL is set when the member has no linked account yet.
	LinkURL    string
	TwitchName string
	Subscribed bool
	Follower   bool

	followerRole string
}

// Message is the private reply for r.
func (r Result) Message() string {
	switch {
	case r.LinkURL != "":
		return "Click here to link your Twitch account: " + r.LinkURL
	case r.Subscribed && r.Follower:
		return fmt.Sprintf("✅ You are subscribed! Role added. You are also a follower and have been granted the %s role.", r.followerRole)
	case r.Subscribed:
		return "✅ You are subscribed! Role added."
	case r.Follower:
		return fmt.Sprintf("✅ You are not subscribed, but you follow the channel. You have been granted the %s role.", r.followerRole)
	default:
		return "❌ You are not subscribed or following the Twitch channel."
	}
}

// Verify checks userID's linked account and grants the subscriber and
// follower roles it qualifies for.
func (v *Verifier) Verify(ctx context.Context, guildID, userID string) (Result, error) {
	const op = "verify"
	acct, ok, err := v.accounts.Lookup(ctx, userID)
	if err != nil {
		return Result{}, apperr.Failed(op, "Verification failed (internal error).", err)
	}
	if !ok || acct.TwitchID == "" {
		return Result{LinkURL: v.linkURL(userID)}, nil
	}

	user, err := v.twitch.GetUser(ctx, acct.AccessToken, acct.TwitchID)
	if errors.Is(err, twitchapi.ErrNotFound) {
		return Result{}, apperr.New(apperr.KindNotFound, op, "Could not find Twitch account.")
	}
	if err != nil {
		return Result{}, apperr.Failed(op, "Verification failed (internal error).", err)
	}

	res := Result{TwitchName: user.Login, followerRole: v.opts.FollowerRoleName}
	if res.Subscribed, err = v.twitch.IsSubscribed(ctx, acct.AccessToken, v.opts.BroadcasterID, user.ID); err != nil {
		return Result{}, apperr.Failed(op, "Verification failed (internal error).", err)
	}
	if res.Follower, err = v.twitch.IsFollower(ctx, acct.AccessToken, v.opts.BroadcasterID, user.ID); err != nil {
		return Result{}, apperr.Failed(op, "Verification failed (internal error).", err)
	}

	if res.Subscribed && v.opts.SubscriberRoleID != "" {
		v.grant(ctx, guildID, userID, v.opts.SubscriberRoleID)
	}
	if res.Follower {
		roleID, err := v.gw.RoleByName(ctx, guildID, v.opts.FollowerRoleName)
		switch {
		case err != nil:
			slog.Warn("follower role lookup failed", slog.Any("err", err))
		case roleID != "":
			v.grant(ctx, guildID, userID, roleID)
		}
	}
	return res, nil
}

func (v *Verifier) grant(ctx context.Context, guildID, userID, roleID string) {
	has, err := v.gw.MemberHasRole(ctx, guildID, userID, roleID)
	if err == nil && has {
		return
	}
	if err := v.gw.AddRole(ctx, guildID, userID, roleID); err != nil {
		slog.Warn("verification role grant failed", slog.String("user", userID), slog.String("role", roleID), slog.Any("err", err))
	}
}

func (v *Verifier) linkURL(userID string) string {
	return v.opts.LinkBaseURL + "/authorize?discordId=" + url.QueryEscape(userID)
}
