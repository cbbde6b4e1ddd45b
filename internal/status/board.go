// Package status holds short-lived user-facing notes such as "Session
// ended." that a front end shows for a couple of seconds and then drops.
package status

import (
	"sync"
	"time"
)

// DefaultTTL is how long a note stays visible when Set is given no TTL.
const DefaultTTL = 2200 * time.Millisecond

// Note is a single status message.
type Note struct {
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Board keeps the most recent note. A newer note replaces the previous one
// regardless of the previous note's remaining lifetime.
//
// All methods are safe for concurrent use.
type Board struct {
	now func() time.Time

	mu   sync.Mutex
	note Note
}

// Option configures a [Board].
type Option func(*Board)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Board) { b.now = now }
}

// NewBoard returns an empty board.
func NewBoard(opts ...Option) *Board {
	b := &Board{now: time.Now}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Set shows msg for ttl. A non-positive ttl means [DefaultTTL]; an empty msg
// clears the board.
func (b *Board) Set(msg string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if msg == "" {
		b.note = Note{}
		return
	}
	b.note = Note{Message: msg, ExpiresAt: b.now().Add(ttl)}
}

// Current returns the visible note, if any.
func (b *Board) Current() (Note, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.note.Message == "" || !b.now().Before(b.note.ExpiresAt) {
		return Note{}, false
	}
	return b.note, true
}
