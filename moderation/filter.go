// Package moderation classifies incoming guild messages and applies the
// escalating sanction policy: warn on the first offense, then a five minute
// and a one hour timeout. Spam (messages closer together than the spam
// interval) takes priority over content checks.
package moderation

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/hundy-bot/store"
)

// Verdict is the outcome of classifying a message.
type Verdict int

const (
	Allow Verdict = iota
	Spam
	Violation
)

func (v Verdict) String() string {
	switch v {
	case Spam:
		return "spam"
	case Violation:
		return "violation"
	default:
		return "allow"
	}
}

// Reason names the content rule a Violation broke.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonRate       Reason = "rate"
	ReasonBannedWord Reason = "banned_word"
	ReasonLink       Reason = "link"
	ReasonAttachment Reason = "attachment"
)

var linkPattern = regexp.MustCompile(`https?://[^\s]+`)

// Message is the part of a guild message the filter looks at.
type Message struct {
	ID            string
	GuildID       string
	ChannelID     string
	AuthorID      string
	Content       string
	HasAttachment bool
	Timestamp     time.Time
}

// Filter holds the banned word list and per-user rate and offense state.
// The word list is fixed at construction. Offense counts are never reset
// while the process runs.
type Filter struct {
	spamInterval time.Duration
	words        []string

	mu       sync.Mutex
	offenses map[string]int
	lastSeen map[string]time.Time
}

// NewFilter returns a filter with the given banned words. Blank entries are
// dropped.
func NewFilter(words []string, spamInterval time.Duration) *Filter {
	if spamInterval <= 0 {
		spamInterval = time.Second
	}
	clean := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			clean = append(clean, w)
		}
	}
	return &Filter{
		spamInterval: spamInterval,
		words:        clean,
		offenses:     make(map[string]int),
		lastSeen:     make(map[string]time.Time),
	}
}

// Classify decides the verdict for m and records m's timestamp as the
// author's latest message in the same critical section. Handlers run
// concurrently, so messages may arrive out of order: the stored timestamp
// only moves forward and the spam gap is measured in either direction.
func (f *Filter) Classify(m Message) (Verdict, Reason) {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	f.mu.Lock()
	last, seen := f.lastSeen[m.AuthorID]
	if !seen || ts.After(last) {
		f.lastSeen[m.AuthorID] = ts
	}
	f.mu.Unlock()

	if seen && absDuration(ts.Sub(last)) < f.spamInterval {
		return Spam, ReasonRate
	}
	lower := strings.ToLower(m.Content)
	if linkPattern.MatchString(lower) {
		return Violation, ReasonLink
	}
	if m.HasAttachment {
		return Violation, ReasonAttachment
	}
	if containsAny(lower, f.words) {
		return Violation, ReasonBannedWord
	}
	return Allow, ReasonNone
}

// ContainsBanned reports whether text contains a banned word, case-insensitively.
func (f *Filter) ContainsBanned(text string) bool {
	return containsAny(strings.ToLower(text), f.words)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func containsAny(lower string, words []string) bool {
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// Strike increments userID's offense count and returns the new value.
func (f *Filter) Strike(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offenses[userID]++
	return f.offenses[userID]
}

// Offenses returns userID's current offense count.
func (f *Filter) Offenses(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offenses[userID]
}

// BannedWords is the bannedWords document.
type BannedWords struct {
	Words []string `json:"words"`
}

// LoadBannedWords reads the banned word list from the store.
func LoadBannedWords(ctx context.Context, s *store.Store) ([]string, error) {
	doc, err := store.Read[BannedWords](ctx, s, store.DocBannedWords)
	if err != nil {
		return nil, err
	}
	return doc.Words, nil
}
