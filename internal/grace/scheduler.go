package grace

import (
	"sync"
	"time"
)

// Key is the stable identity a grace timer is bound to. Connection IDs
// change on reconnect, so timers are keyed by room and username instead.
type Key struct {
	RoomID   string
	Username string
}

// Entry describes one pending grace period.
type Entry struct {
	Key          Key
	ConnectionID string
	Token        uint64
	ExpiresAt    time.Time
}

// ExpireFunc is invoked on the timer goroutine when a grace period elapses.
// It must not touch room state directly; it should hand key and token back
// to the owning event loop, which then calls Claim.
type ExpireFunc func(key Key, token uint64)

type pending struct {
	entry Entry
	timer *time.Timer
}

// Scheduler holds at most one grace timer per identity.
type Scheduler struct {
	mu        sync.Mutex
	period    time.Duration
	entries   map[Key]*pending
	nextToken uint64
	stopped   bool
	now       func() time.Time
}

// NewScheduler creates a scheduler whose timers last period.
func NewScheduler(period time.Duration) *Scheduler {
	return &Scheduler{
		period:  period,
		entries: make(map[Key]*pending),
		now:     time.Now,
	}
}

// Period returns the configured grace period.
func (s *Scheduler) Period() time.Duration {
	return s.period
}

// Arm starts a grace timer for key. An identity that already has a timer
// keeps it and ErrTimerExists is returned.
func (s *Scheduler) Arm(key Key, connectionID string, onExpire ExpireFunc) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return Entry{}, ErrStopped
	}
	if existing, ok := s.entries[key]; ok {
		return existing.entry, ErrTimerExists
	}

	s.nextToken++
	token := s.nextToken
	entry := Entry{
		Key:          key,
		ConnectionID: connectionID,
		Token:        token,
		ExpiresAt:    s.now().Add(s.period),
	}
	p := &pending{entry: entry}
	p.timer = time.AfterFunc(s.period, func() {
		onExpire(key, token)
	})
	s.entries[key] = p

	return entry, nil
}

// Cancel stops and forgets the timer for key. It reports false when no
// timer was pending, including when it already fired and was claimed.
func (s *Scheduler) Cancel(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.entries[key]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(s.entries, key)
	return true
}

// Claim consumes the entry for key if it is still the one identified by
// token. An expiry that lost a race with Cancel, or with a later Arm for
// the same identity, is rejected here.
func (s *Scheduler) Claim(key Key, token uint64) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.entries[key]
	if !ok || p.entry.Token != token {
		return Entry{}, false
	}
	delete(s.entries, key)
	return p.entry, true
}

// Pending returns the entry for key, if any.
func (s *Scheduler) Pending(key Key) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	return p.entry, true
}

// CancelRoom drops every timer belonging to roomID and returns how many were cancelled.
func (s *Scheduler) CancelRoom(roomID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, p := range s.entries {
		if key.RoomID == roomID {
			p.timer.Stop()
			delete(s.entries, key)
			n++
		}
	}
	return n
}

// Len returns the number of pending timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop cancels all timers and refuses further Arm calls.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, p := range s.entries {
		p.timer.Stop()
		delete(s.entries, key)
	}
	s.stopped = true
}
