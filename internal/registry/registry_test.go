package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"salonhub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSender struct {
	id string

	mu       sync.Mutex
	received []*models.NotificationEvent
	full     bool
	closed   bool
}

func newStubSender(id string) *stubSender {
	return &stubSender{id: id}
}

func (s *stubSender) ID() string { return s.id }

func (s *stubSender) Send(ev *models.NotificationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.full {
		return errors.New("send buffer full")
	}
	s.received = append(s.received, ev)
	return nil
}

func (s *stubSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func (s *stubSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.received)
}

func event(userID string) *models.NotificationEvent {
	return &models.NotificationEvent{
		ID:           "ev1",
		Type:         models.EventBookingNotification,
		TargetUserID: userID,
		CreatedAt:    time.Now(),
	}
}

func TestRegisterAndSend(t *testing.T) {
	t.Parallel()

	reg := New()
	s := newStubSender("c1")

	assert.False(t, reg.IsOnline("u1"))

	reg.Register("u1", s)
	assert.True(t, reg.IsOnline("u1"))

	n := reg.Send("u1", event("u1"))
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, s.count())
}

func TestMultiDeviceFanOut(t *testing.T) {
	t.Parallel()

	reg := New()
	phone := newStubSender("c1")
	tablet := newStubSender("c2")

	reg.Register("u1", phone)
	reg.Register("u1", tablet)
	assert.Equal(t, 2, reg.Connections("u1"))

	n := reg.Send("u1", event("u1"))
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, phone.count())
	assert.Equal(t, 1, tablet.count())

	// second device registration must not displace the first
	reg.Unregister("c2")
	assert.True(t, reg.IsOnline("u1"))

	n = reg.Send("u1", event("u1"))
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, phone.count())
}

func TestSendOffline(t *testing.T) {
	t.Parallel()

	reg := New()

	n := reg.Send("ghost", event("ghost"))
	assert.Equal(t, 0, n)
}

func TestSendSkipsFullBuffers(t *testing.T) {
	t.Parallel()

	reg := New()
	ok := newStubSender("c1")
	stuck := newStubSender("c2")
	stuck.full = true

	reg.Register("u1", ok)
	reg.Register("u1", stuck)

	n := reg.Send("u1", event("u1"))
	assert.Equal(t, 1, n)
}

func TestUnregisterUnknownIsNoOp(t *testing.T) {
	t.Parallel()

	reg := New()
	s := newStubSender("c1")
	reg.Register("u1", s)

	assert.NotPanics(t, func() {
		reg.Unregister("never-registered")
	})
	assert.True(t, reg.IsOnline("u1"))
}

func TestUnregisterLastConnection(t *testing.T) {
	t.Parallel()

	reg := New()
	reg.Register("u1", newStubSender("c1"))

	reg.Unregister("c1")
	assert.False(t, reg.IsOnline("u1"))
	assert.Equal(t, 0, reg.Send("u1", event("u1")))

	// idempotent
	assert.NotPanics(t, func() { reg.Unregister("c1") })
}

func TestIsOnlineHasNoSideEffects(t *testing.T) {
	t.Parallel()

	reg := New()
	s := newStubSender("c1")
	reg.Register("u1", s)

	for i := 0; i < 10; i++ {
		assert.True(t, reg.IsOnline("u1"))
	}
	assert.Equal(t, 0, s.count())
}

func TestIdleSenders(t *testing.T) {
	t.Parallel()

	reg := New()
	fresh := newStubSender("c1")
	stale := newStubSender("c2")

	reg.Register("u1", fresh)
	reg.Register("u2", stale)

	time.Sleep(50 * time.Millisecond)
	reg.Touch("c1")

	idle := reg.IdleSenders(25 * time.Millisecond)
	require.Len(t, idle, 1)
	assert.Equal(t, "c2", idle[0].ID())
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	reg := New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()

			connID := fmt.Sprintf("c%d", i)
			userID := fmt.Sprintf("u%d", i%5)

			reg.Register(userID, newStubSender(connID))
			reg.Send(userID, event(userID))
			reg.Touch(connID)
			reg.IsOnline(userID)
			reg.Unregister(connID)
		}()
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		assert.False(t, reg.IsOnline(fmt.Sprintf("u%d", i)))
	}
}
