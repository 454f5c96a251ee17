// Package store provides the single-slot mailbox that hands readings from a
// sampling task to the HTTP exporter.
package store

import (
	"sync"

	"github.com/power-warden/powa/internal/power"
)

// Latest holds at most one unread reading. Publishing over an unread value
// replaces it; taking a value clears the slot so each reading is delivered
// at most once.
type Latest struct {
	mu      sync.Mutex
	reading power.Reading
	full    bool
}

func NewLatest() *Latest {
	return &Latest{}
}

// Publish stores r, discarding any unread reading. It never blocks on a
// consumer and reports whether an unread reading was overwritten.
func (l *Latest) Publish(r power.Reading) (overwritten bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	overwritten = l.full
	l.reading = r
	l.full = true
	return overwritten
}

// TakeIfPresent returns and clears the held reading. ok is false when nothing
// was published since the previous take.
func (l *Latest) TakeIfPresent() (r power.Reading, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.full {
		return power.Reading{}, false
	}
	r = l.reading
	l.reading = power.Reading{}
	l.full = false
	return r, true
}

// Pending reports whether an unread reading is held, without draining it.
func (l *Latest) Pending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.full
}

// Set is the per-domain collection of stores owned by the daemon.
type Set map[power.Domain]*Latest

// NewSet allocates one empty store for every domain given.
func NewSet(domains []power.Domain) Set {
	s := make(Set, len(domains))
	for _, d := range domains {
		s[d] = NewLatest()
	}
	return s
}
