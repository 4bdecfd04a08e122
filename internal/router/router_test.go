package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"salonhub/internal/lib/logger/handlers/slogdiscard"
	"salonhub/internal/models"
	"salonhub/internal/storage/bookings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDelivery struct {
	mu     sync.Mutex
	online map[string]bool
	sent   map[string][]*models.NotificationEvent
}

func newFakeDelivery() *fakeDelivery {
	return &fakeDelivery{
		online: make(map[string]bool),
		sent:   make(map[string][]*models.NotificationEvent),
	}
}

func (d *fakeDelivery) Send(userID string, ev *models.NotificationEvent) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.online[userID] {
		return 0
	}
	d.sent[userID] = append(d.sent[userID], ev)
	return 1
}

func (d *fakeDelivery) setOnline(userID string, online bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.online[userID] = online
}

func (d *fakeDelivery) events(userID string) []*models.NotificationEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]*models.NotificationEvent, len(d.sent[userID]))
	copy(out, d.sent[userID])
	return out
}

type stubDirectory struct {
	name string
	err  error
}

func (d *stubDirectory) OwnerName(_ context.Context, _ string) (string, error) {
	return d.name, d.err
}

type failingConversations struct{}

func (failingConversations) EnsureConversation(_ context.Context, _, _ string) (string, error) {
	return "", errors.New("provisioning unavailable")
}

func newTestBooking(t *testing.T, store *bookings.Store) *models.Booking {
	t.Helper()

	b, err := store.Create(context.Background(), bookings.CreateRequest{
		UserID:       "u1",
		SalonID:      "s1",
		SalonOwnerID: "o1",
		ClientName:   "Alice",
		RequestedAt:  time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return b
}

func TestOnBookingCreatedDeliversToOwner(t *testing.T) {
	t.Parallel()

	log := slogdiscard.NewDiscardLogger()
	store := bookings.New(log, nil)
	delivery := newFakeDelivery()
	delivery.setOnline("o1", true)

	r := New(log, delivery, store, NewLocalConversations(), nil, 0)

	b := newTestBooking(t, store)
	r.OnBookingCreated(b)

	got := delivery.events("o1")
	require.Len(t, got, 1)
	assert.Equal(t, models.EventBookingNotification, got[0].Type)
	assert.True(t, got[0].Delivered)

	payload, ok := got[0].Payload.(*models.Booking)
	require.True(t, ok)
	assert.Equal(t, b.ID, payload.ID)
	assert.Equal(t, models.BookingPending, payload.Status)
}

func TestOnBookingCreatedQueuesWhenOwnerOffline(t *testing.T) {
	t.Parallel()

	log := slogdiscard.NewDiscardLogger()
	store := bookings.New(log, nil)
	delivery := newFakeDelivery()

	r := New(log, delivery, store, NewLocalConversations(), nil, 0)

	r.OnBookingCreated(newTestBooking(t, store))

	assert.Empty(t, delivery.events("o1"))
	assert.Equal(t, 1, r.PendingCount("o1"))

	delivery.setOnline("o1", true)
	r.FlushPending("o1")

	require.Len(t, delivery.events("o1"), 1)
	assert.Equal(t, 0, r.PendingCount("o1"))
}

func TestFlushPreservesEmissionOrder(t *testing.T) {
	t.Parallel()

	log := slogdiscard.NewDiscardLogger()
	store := bookings.New(log, nil)
	delivery := newFakeDelivery()

	r := New(log, delivery, store, NewLocalConversations(), nil, 0)

	var ids []string
	for i := 0; i < 5; i++ {
		b := newTestBooking(t, store)
		ids = append(ids, b.ID)
		r.OnBookingCreated(b)
	}

	delivery.setOnline("o1", true)
	r.FlushPending("o1")

	got := delivery.events("o1")
	require.Len(t, got, 5)
	for i, ev := range got {
		payload := ev.Payload.(*models.Booking)
		assert.Equal(t, ids[i], payload.ID, "event %d out of order", i)
	}
}

func TestEmissionDuringReconnectPreservesOrder(t *testing.T) {
	t.Parallel()

	log := slogdiscard.NewDiscardLogger()
	store := bookings.New(log, nil)
	delivery := newFakeDelivery()

	r := New(log, delivery, store, NewLocalConversations(), nil, 0)

	first := newTestBooking(t, store)
	r.OnBookingCreated(first)
	require.Equal(t, 1, r.PendingCount("o1"))

	// the owner comes online before the flush runs; the next emission must
	// not overtake the queued event
	delivery.setOnline("o1", true)

	second := newTestBooking(t, store)
	r.OnBookingCreated(second)

	r.FlushPending("o1")

	got := delivery.events("o1")
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].Payload.(*models.Booking).ID,
		"event created first must be delivered first")
	assert.Equal(t, second.ID, got[1].Payload.(*models.Booking).ID)
	assert.Equal(t, 0, r.PendingCount("o1"))
}

func TestQueueOverflowDropsOldest(t *testing.T) {
	t.Parallel()

	log := slogdiscard.NewDiscardLogger()
	store := bookings.New(log, nil)
	delivery := newFakeDelivery()

	// default capacity of 50
	r := New(log, delivery, store, NewLocalConversations(), nil, 0)

	var ids []string
	for i := 0; i < 60; i++ {
		b := newTestBooking(t, store)
		ids = append(ids, b.ID)
		r.OnBookingCreated(b)
	}

	assert.Equal(t, 50, r.PendingCount("o1"))

	delivery.setOnline("o1", true)
	r.FlushPending("o1")

	got := delivery.events("o1")
	require.Len(t, got, 50)

	// the first 10 were dropped; the newest 50 survive in order
	for i, ev := range got {
		payload := ev.Payload.(*models.Booking)
		assert.Equal(t, ids[i+10], payload.ID)
	}
}

func TestAcceptedEmitsStatusUpdateThenChatRoom(t *testing.T) {
	t.Parallel()

	log := slogdiscard.NewDiscardLogger()
	store := bookings.New(log, nil)
	delivery := newFakeDelivery()
	delivery.setOnline("u1", true)

	r := New(log, delivery, store, NewLocalConversations(), &stubDirectory{name: "Glow Studio"}, 0)

	b := newTestBooking(t, store)
	accepted, err := store.Transition(context.Background(), b.ID, models.BookingAccepted, "o1")
	require.NoError(t, err)

	r.OnBookingTransitioned(context.Background(), accepted, models.BookingPending)

	got := delivery.events("u1")
	require.Len(t, got, 2)

	require.Equal(t, models.EventBookingStatusUpdate, got[0].Type)
	update := got[0].Payload.(*models.BookingStatusUpdate)
	assert.Equal(t, b.ID, update.BookingID)
	assert.Equal(t, models.BookingAccepted, update.Status)
	assert.NotEmpty(t, update.ConversationID)

	require.Equal(t, models.EventChatRoomCreated, got[1].Type)
	chat := got[1].Payload.(*models.ChatRoomCreated)
	assert.Equal(t, update.ConversationID, chat.ConversationID)
	assert.Equal(t, b.ID, chat.BookingID)
	assert.Equal(t, "o1", chat.SalonOwnerID)
	assert.Equal(t, "Glow Studio", chat.SalonOwnerName)

	// the conversation is stamped on the stored booking too
	stored, err := store.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, update.ConversationID, stored.ConversationID)
}

func TestAcceptedWhileOfflineFlushedInOrder(t *testing.T) {
	t.Parallel()

	log := slogdiscard.NewDiscardLogger()
	store := bookings.New(log, nil)
	delivery := newFakeDelivery()

	r := New(log, delivery, store, NewLocalConversations(), nil, 0)

	b := newTestBooking(t, store)
	accepted, err := store.Transition(context.Background(), b.ID, models.BookingAccepted, "o1")
	require.NoError(t, err)

	r.OnBookingTransitioned(context.Background(), accepted, models.BookingPending)

	assert.Equal(t, 2, r.PendingCount("u1"))
	assert.Empty(t, delivery.events("u1"))

	delivery.setOnline("u1", true)
	r.FlushPending("u1")

	got := delivery.events("u1")
	require.Len(t, got, 2)
	assert.Equal(t, models.EventBookingStatusUpdate, got[0].Type)
	assert.Equal(t, models.EventChatRoomCreated, got[1].Type)
	assert.Equal(t, 0, r.PendingCount("u1"))
}

func TestRejectedEmitsNoChatRoom(t *testing.T) {
	t.Parallel()

	log := slogdiscard.NewDiscardLogger()
	store := bookings.New(log, nil)
	delivery := newFakeDelivery()
	delivery.setOnline("u1", true)

	r := New(log, delivery, store, NewLocalConversations(), nil, 0)

	b := newTestBooking(t, store)
	rejected, err := store.Transition(context.Background(), b.ID, models.BookingRejected, "o1")
	require.NoError(t, err)

	r.OnBookingTransitioned(context.Background(), rejected, models.BookingPending)

	got := delivery.events("u1")
	require.Len(t, got, 1)
	assert.Equal(t, models.EventBookingStatusUpdate, got[0].Type)

	update := got[0].Payload.(*models.BookingStatusUpdate)
	assert.Equal(t, models.BookingRejected, update.Status)
	assert.Empty(t, update.ConversationID)
}

func TestConversationProvisioningFailure(t *testing.T) {
	t.Parallel()

	log := slogdiscard.NewDiscardLogger()
	store := bookings.New(log, nil)
	delivery := newFakeDelivery()
	delivery.setOnline("u1", true)

	r := New(log, delivery, store, failingConversations{}, nil, 0)

	b := newTestBooking(t, store)
	accepted, err := store.Transition(context.Background(), b.ID, models.BookingAccepted, "o1")
	require.NoError(t, err)

	r.OnBookingTransitioned(context.Background(), accepted, models.BookingPending)

	// the status update still goes out; the chat event is skipped
	got := delivery.events("u1")
	require.Len(t, got, 1)
	assert.Equal(t, models.EventBookingStatusUpdate, got[0].Type)
	assert.Empty(t, got[0].Payload.(*models.BookingStatusUpdate).ConversationID)
}

func TestFlushStopsWhenUserDropsMidFlush(t *testing.T) {
	t.Parallel()

	log := slogdiscard.NewDiscardLogger()
	store := bookings.New(log, nil)
	delivery := newFakeDelivery()

	r := New(log, delivery, store, NewLocalConversations(), nil, 0)

	for i := 0; i < 3; i++ {
		r.OnBookingCreated(newTestBooking(t, store))
	}

	// user never came online: nothing delivered, nothing lost
	r.FlushPending("o1")
	assert.Empty(t, delivery.events("o1"))
	assert.Equal(t, 3, r.PendingCount("o1"))
}

func TestLocalConversationsStablePerPair(t *testing.T) {
	t.Parallel()

	convos := NewLocalConversations()

	first, err := convos.EnsureConversation(context.Background(), "u1", "o1")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	again, err := convos.EnsureConversation(context.Background(), "u1", "o1")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	other, err := convos.EnsureConversation(context.Background(), "u1", "o2")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestPerUserOrderingUnderConcurrentEmission(t *testing.T) {
	t.Parallel()

	log := slogdiscard.NewDiscardLogger()
	store := bookings.New(log, nil)
	delivery := newFakeDelivery()
	delivery.setOnline("o1", true)

	r := New(log, delivery, store, NewLocalConversations(), nil, 0)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.OnBookingCreated(newTestBooking(t, store))
		}()
	}
	wg.Wait()

	got := delivery.events("o1")
	assert.Len(t, got, 10)
	for _, ev := range got {
		assert.True(t, ev.Delivered, fmt.Sprintf("event %s not marked delivered", ev.ID))
	}
}
