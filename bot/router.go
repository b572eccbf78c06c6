package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/onnwee/hundy-bot/apperr"
	"github.com/onnwee/hundy-bot/gateway"
	"github.com/onnwee/hundy-bot/telemetry"
)

// HandlerFunc handles one event.
type HandlerFunc func(ctx context.Context, ev Event) error

// InternalErrorReply is shown when a handler fails without a user-facing
// message.
const InternalErrorReply = apperr.Warning + " Internal error occurred."

var errPanic = errors.New("handler panic")

type prefixRoute struct {
	prefix string
	h      HandlerFunc
}

// Router is the dispatch table: exact keys win over prefixes, and among
// prefixes the longest match wins.
type Router struct {
	exact    map[Kind]map[string]HandlerFunc
	prefixes map[Kind][]prefixRoute
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{
		exact:    map[Kind]map[string]HandlerFunc{},
		prefixes: map[Kind][]prefixRoute{},
	}
}

// On routes events of kind with exactly key to h.
func (r *Router) On(kind Kind, key string, h HandlerFunc) {
	if r.exact[kind] == nil {
		r.exact[kind] = map[string]HandlerFunc{}
	}
	r.exact[kind][key] = h
}

// OnPrefix routes events of kind whose key starts with prefix to h.
func (r *Router) OnPrefix(kind Kind, prefix string, h HandlerFunc) {
	routes := append(r.prefixes[kind], prefixRoute{prefix: prefix, h: h})
	sort.SliceStable(routes, func(i, j int) bool { return len(routes[i].prefix) > len(routes[j].prefix) })
	r.prefixes[kind] = routes
}

// Match returns the handler for an event and the route it matched.
func (r *Router) Match(kind Kind, key string) (HandlerFunc, string, bool) {
	if h, ok := r.exact[kind][key]; ok {
		return h, key, true
	}
	for _, p := range r.prefixes[kind] {
		if strings.HasPrefix(key, p.prefix) {
			return p.h, p.prefix + "*", true
		}
	}
	return nil, "", false
}

// Dispatch runs the handler for ev. Errors and panics stop here: they are
// logged, counted and turned into a private reply when the event came from
// an interaction that has not been answered yet.
func (r *Router) Dispatch(ctx context.Context, ev Event) {
	h, route, ok := r.Match(ev.Kind, ev.Key)
	if !ok {
		slog.Debug("no handler for event", slog.String("kind", string(ev.Kind)), slog.String("key", ev.Key))
		return
	}

	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	ctx, span := telemetry.StartSpan(ctx, "dispatch "+string(ev.Kind), telemetry.EventAttrs(string(ev.Kind), route, ev.GuildID, ev.UserID)...)
	defer span.End()

	var err error
	elapsed := telemetry.TimeFunc(telemetry.HandlerObserver(string(ev.Kind)+":"+route), func() {
		err = invoke(ctx, h, ev)
	})
	log := telemetry.LoggerWithCorr(ctx).With(
		slog.String("component", "dispatch"),
		slog.String("kind", string(ev.Kind)),
		slog.String("route", route),
		slog.String("user", ev.UserID),
		slog.Duration("elapsed", elapsed),
	)
	if err == nil {
		telemetry.SetSpanSuccess(span)
		log.Debug("event handled")
		return
	}

	telemetry.RecordError(span, err)
	kind := apperr.KindOf(err)
	telemetry.CountHandlerError(kind.String())
	if userFacing(err) {
		log.Info("event rejected", slog.String("kind_of_error", kind.String()), slog.Any("err", err))
	} else {
		log.Error("event handler failed", slog.String("kind_of_error", kind.String()), slog.Any("err", err))
	}

	if ev.Responder == nil || ev.Responder.Replied() {
		return
	}
	if rerr := ev.Responder.Reply(ctx, gateway.Text(replyFor(err)), true); rerr != nil {
		log.Warn("error reply failed", slog.Any("err", rerr))
	}
}

func invoke(ctx context.Context, h HandlerFunc, ev Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("handler panic", slog.Any("panic", rec), slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("%w: %v", errPanic, rec)
		}
	}()
	return h(ctx, ev)
}

// userFacing reports whether err carries a message meant for the actor.
func userFacing(err error) bool {
	var e *apperr.Error
	return errors.As(err, &e) && e.Msg != ""
}

func replyFor(err error) string {
	if errors.Is(err, errPanic) || apperr.KindOf(err) == apperr.KindUnknown && !userFacing(err) {
		return InternalErrorReply
	}
	return apperr.UserMessage(err)
}
