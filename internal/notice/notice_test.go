package notice

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSlotExpiresAfterTTL(t *testing.T) {
	s := NewSlot(10*time.Millisecond, nil)
	defer s.Stop()

	n := s.Show(KindConnection, "could not reach bot")
	if n.Deadline.Sub(n.ShownAt) != 10*time.Millisecond {
		t.Fatalf("deadline offset = %v, want 10ms", n.Deadline.Sub(n.ShownAt))
	}
	if cur := s.Current(); cur == nil || cur.ID != n.ID {
		t.Fatalf("Current() = %+v, want %s", cur, n.ID)
	}

	require.Eventually(t, func() bool { return s.Current() == nil }, time.Second, time.Millisecond)
}

func TestSlotReplacementRestartsDeadline(t *testing.T) {
	var mu sync.Mutex
	var expired []string
	var s *Slot
	s = NewSlot(100*time.Millisecond, func(id string) {
		mu.Lock()
		expired = append(expired, id)
		mu.Unlock()
		s.Expire(id)
	})
	defer s.Stop()

	first := s.Show(KindCommand, "mic toggle failed")
	time.Sleep(20 * time.Millisecond)
	second := s.Show(KindTransport, "bot crashed")

	if s.Expire(first.ID) {
		t.Fatalf("Expire(first) = true after replacement")
	}
	if cur := s.Current(); cur == nil || cur.ID != second.ID {
		t.Fatalf("Current() = %+v, want second notice", cur)
	}

	require.Eventually(t, func() bool { return s.Current() == nil }, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, id := range expired {
		if id == first.ID {
			t.Fatalf("replaced notice %s fired its expiry", first.ID)
		}
	}
}

func TestSlotStopClears(t *testing.T) {
	s := NewSlot(time.Hour, nil)
	s.Show(KindConfiguration, "missing api key")
	s.Stop()
	if s.Current() != nil {
		t.Fatalf("Current() != nil after Stop")
	}
}
