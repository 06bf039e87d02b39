// Package notice holds the single user-facing message slot. A new notice
// replaces the current one; each notice expires after a fixed TTL unless it is
// replaced first.
package notice

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long a notice stays visible.
const DefaultTTL = 5 * time.Second

// Kind classifies where a notice came from.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindConnection    Kind = "connection"
	KindCommand       Kind = "command"
	KindTransport     Kind = "transport"
)

// Notice is an immutable user-facing message.
type Notice struct {
	ID       string    `json:"id"`
	Kind     Kind      `json:"kind"`
	Message  string    `json:"message"`
	ShownAt  time.Time `json:"shown_at"`
	Deadline time.Time `json:"deadline"`
}

type Option func(*Slot)

func WithClock(now func() time.Time) Option {
	return func(s *Slot) {
		if now != nil {
			s.now = now
		}
	}
}

// Slot holds at most one notice. onExpire runs on a timer goroutine with the
// id of the notice whose deadline passed; the owner decides whether to call
// Expire with it.
type Slot struct {
	ttl      time.Duration
	onExpire func(id string)
	now      func() time.Time

	mu      sync.Mutex
	current *Notice
	timer   *time.Timer
	stopped bool
}

func NewSlot(ttl time.Duration, onExpire func(id string), opts ...Option) *Slot {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Slot{ttl: ttl, onExpire: onExpire, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Show replaces the current notice and restarts the expiry timer.
func (s *Slot) Show(kind Kind, message string) Notice {
	s.mu.Lock()
	defer s.mu.Unlock()

	shownAt := s.now()
	n := &Notice{
		ID:       uuid.NewString(),
		Kind:     kind,
		Message:  message,
		ShownAt:  shownAt,
		Deadline: shownAt.Add(s.ttl),
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.current = n
	if !s.stopped {
		id := n.ID
		s.timer = time.AfterFunc(s.ttl, func() {
			if s.onExpire != nil {
				s.onExpire(id)
			} else {
				s.Expire(id)
			}
		})
	}
	return *n
}

// Expire clears the slot if id is still the current notice.
func (s *Slot) Expire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.ID != id {
		return false
	}
	s.current = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return true
}

// Current returns a copy of the visible notice, or nil.
func (s *Slot) Current() *Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	n := *s.current
	return &n
}

// Stop cancels the pending timer and clears the slot. Show keeps working
// afterwards but no longer schedules expiry.
func (s *Slot) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.current = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
