// Package store persists the bot's named JSON documents (experience ledger,
// voice sessions, tickets, linked accounts, banned words) behind a pluggable
// Backend. Every read-modify-write of a document runs under that document's
// mutex, and backends reject writes whose version moved underneath them, so
// concurrent handlers never lose each other's updates.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/onnwee/hundy-bot/telemetry"
)

// Document names.
const (
	DocXP          = "xp"
	DocVoice       = "vcChannels"
	DocTickets     = "tickets"
	DocVerified    = "verifiedUsers"
	DocBannedWords = "bannedWords"
)

// Documents lists every document the bot owns, with its initial content.
var Documents = []struct {
	Name    string
	Initial string
}{
	{DocXP, "{}"},
	{DocVoice, "{}"},
	{DocTickets, "{}"},
	{DocVerified, "{}"},
	{DocBannedWords, `{"words": []}`},
}

// ErrConflict is returned by Backend.Swap when the stored version no longer
// matches the expected one.
var ErrConflict = errors.New("store: version conflict")

const defaultMaxAttempts = 5

// Backend loads and conditionally replaces raw documents.
//
// Load returns nil data and version 0 for an absent document. Swap writes data
// only if the current version equals expect and returns the new version.
type Backend interface {
	Load(ctx context.Context, name string) ([]byte, int64, error)
	Swap(ctx context.Context, name string, data []byte, expect int64) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// Store serializes access to documents held by a Backend.
type Store struct {
	backend     Backend
	maxAttempts int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New wraps b.
func New(b Backend) *Store {
	return &Store{backend: b, maxAttempts: defaultMaxAttempts, locks: make(map[string]*sync.Mutex)}
}

func (s *Store) lock(name string) func() {
	s.mu.Lock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Ping checks the backend is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.backend.Ping(ctx) }

// Close releases the backend.
func (s *Store) Close() error { return s.backend.Close() }

// Seed writes initial for every listed document that does not exist yet.
func (s *Store) Seed(ctx context.Context) error {
	for _, d := range Documents {
		if err := s.seed(ctx, d.Name, []byte(d.Initial)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) seed(ctx context.Context, name string, initial []byte) error {
	unlock := s.lock(name)
	defer unlock()
	data, version, err := s.backend.Load(ctx, name)
	if err != nil {
		return fmt.Errorf("store: seed %s: %w", name, err)
	}
	if data != nil || version != 0 {
		return nil
	}
	if _, err := s.backend.Swap(ctx, name, initial, 0); err != nil && !errors.Is(err, ErrConflict) {
		return fmt.Errorf("store: seed %s: %w", name, err)
	}
	return nil
}

// Raw returns the stored bytes of a document (nil when absent).
func (s *Store) Raw(ctx context.Context, name string) ([]byte, error) {
	data, _, err := s.backend.Load(ctx, name)
	return data, err
}

// Replace overwrites a document with data, which must be valid JSON.
func (s *Store) Replace(ctx context.Context, name string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("store: replace %s: invalid json", name)
	}
	unlock := s.lock(name)
	defer unlock()
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		_, version, err := s.backend.Load(ctx, name)
		if err != nil {
			return fmt.Errorf("store: replace %s: %w", name, err)
		}
		if _, err := s.backend.Swap(ctx, name, data, version); err != nil {
			if errors.Is(err, ErrConflict) {
				telemetry.CountStoreConflict()
				continue
			}
			return fmt.Errorf("store: replace %s: %w", name, err)
		}
		return nil
	}
	return fmt.Errorf("store: replace %s: %w", name, ErrConflict)
}

// Read decodes the current content of a document into a T. An absent or
// empty document yields the zero T.
func Read[T any](ctx context.Context, s *Store, name string) (T, error) {
	var v T
	data, _, err := s.backend.Load(ctx, name)
	if err != nil {
		return v, fmt.Errorf("store: read %s: %w", name, err)
	}
	if err := decode(data, &v); err != nil {
		return v, fmt.Errorf("store: decode %s: %w", name, err)
	}
	return v, nil
}

// Update runs fn on the current content of a document and writes the result
// back. fn runs while the document's mutex is held; when it returns an error
// nothing is written and the error is returned unchanged. On a version
// conflict fn is re-run on the fresh content.
func Update[T any](ctx context.Context, s *Store, name string, fn func(*T) error) (T, error) {
	unlock := s.lock(name)
	defer unlock()

	var zero T
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		data, version, err := s.backend.Load(ctx, name)
		if err != nil {
			return zero, fmt.Errorf("store: read %s: %w", name, err)
		}
		var v T
		if err := decode(data, &v); err != nil {
			return zero, fmt.Errorf("store: decode %s: %w", name, err)
		}
		if err := fn(&v); err != nil {
			return zero, err
		}
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return zero, fmt.Errorf("store: encode %s: %w", name, err)
		}
		if _, err := s.backend.Swap(ctx, name, out, version); err != nil {
			if errors.Is(err, ErrConflict) {
				telemetry.CountStoreConflict()
				continue
			}
			return zero, fmt.Errorf("store: write %s: %w", name, err)
		}
		return v, nil
	}
	return zero, fmt.Errorf("store: update %s: %w", name, ErrConflict)
}

func decode(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
