// Package apperr defines the error taxonomy shared by every handler and the
// mapping from low-level failures (gateway REST errors, HTTP statuses,
// timeouts) onto it. The dispatcher turns any returned error into a short
// private reply via UserMessage.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Kind is the category of a failure.
type Kind int

const (
	// KindUnknown is used when nothing more specific is known.
	KindUnknown Kind = iota
	// KindExternalAPI covers chat gateway, Twitch and YouTube failures.
	KindExternalAPI
	// KindPermissionDenied means the actor lacks the level, ownership or capability.
	KindPermissionDenied
	// KindNotFound means the ticket, session, user or channel is missing.
	KindNotFound
	// KindValidation means the input could not be parsed or is not acceptable.
	KindValidation
	// KindAlreadyExists means the user already has a live ticket or voice session.
	KindAlreadyExists
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindExternalAPI:
		return "external_api"
	case KindPermissionDenied:
		return "permission_denied"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindAlreadyExists:
		return "already_exists"
	default:
		return "unknown"
	}
}

// Error carries a Kind, the operation that failed and an optional message
// safe to show to the user.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Msg != "" {
		b.WriteString(e.Msg)
	} else {
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an error of the given kind with a user-facing message.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Newf is New with formatting.
func Newf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to err. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// External wraps err as an external API failure, keeping a more specific
// kind when the underlying failure already maps to one (e.g. a 404).
func External(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := Classify(err)
	if kind == KindUnknown {
		kind = KindExternalAPI
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Failed is External with a user-facing message.
func Failed(op, msg string, err error) error {
	if err == nil {
		return nil
	}
	e := External(op, err).(*Error)
	e.Msg = msg
	return e
}

// KindOf returns the kind of the outermost *Error in err's chain, falling
// back to Classify.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Classify(err)
}

// Is reports whether err is of the given kind.
func Is(err error, kind Kind) bool { return err != nil && KindOf(err) == kind }

// Warning prefixes messages that UserMessage returns as-is.
const Warning = "⚠️"

type httpStatuser interface {
	HTTPStatus() int
}

// Classify maps raw failures onto the taxonomy: gateway REST errors and
// anything exposing an HTTP status by code, network errors and timeouts as
// external failures.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		return classifyStatus(rest.Response.StatusCode)
	}
	var hs httpStatuser
	if errors.As(err, &hs) {
		return classifyStatus(hs.HTTPStatus())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindExternalAPI
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindExternalAPI
	}
	return KindUnknown
}

func classifyStatus(code int) Kind {
	switch {
	case code == http.StatusForbidden || code == http.StatusUnauthorized:
		return KindPermissionDenied
	case code == http.StatusNotFound:
		return KindNotFound
	case code == http.StatusBadRequest:
		return KindValidation
	case code == http.StatusConflict:
		return KindAlreadyExists
	default:
		return KindExternalAPI
	}
}

// UserMessage returns the short text shown privately to the user that
// triggered the failing operation.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		if strings.HasPrefix(e.Msg, Warning) {
			return e.Msg
		}
		return "❌ " + e.Msg
	}
	switch KindOf(err) {
	case KindPermissionDenied:
		return "❌ You do not have permission to do that."
	case KindNotFound:
		return "❌ That no longer exists."
	case KindValidation:
		return "❌ That input is not valid."
	case KindAlreadyExists:
		return "❌ You already have one of those."
	case KindExternalAPI:
		return "❌ Something went wrong talking to an external service. Please try again later."
	default:
		return "❌ Something went wrong."
	}
}
