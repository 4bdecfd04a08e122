package router

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"salonhub/internal/lib/logger/sl"
	"salonhub/internal/models"

	"github.com/google/uuid"
)

const defaultPendingCap = 50

// Deliverer is the connection-registry side the router talks to. Send is a
// non-blocking fan-out returning how many connections took the event.
type Deliverer interface {
	Send(userID string, ev *models.NotificationEvent) int
}

// ConversationProvider provisions (or returns the existing) chat conversation
// for a client/owner pair.
type ConversationProvider interface {
	EnsureConversation(ctx context.Context, userID, salonOwnerID string) (string, error)
}

// OwnerDirectory resolves a salon owner's display name for chat payloads.
// May be nil; names are then left empty.
type OwnerDirectory interface {
	OwnerName(ctx context.Context, salonOwnerID string) (string, error)
}

// ConversationStamper stores a provisioned conversation ID on a booking.
type ConversationStamper interface {
	SetConversationID(ctx context.Context, bookingID, conversationID string) (*models.Booking, error)
}

// Router decides who must hear about each booking event and delivers through
// the registry. Events for offline users land in a bounded per-user FIFO
// queue (oldest dropped on overflow) and are flushed on reconnect.
//
// Delivery attempts and queue mutation happen under one mutex, and an
// emission always drains the user's queue before sending directly, so a new
// event can never overtake older queued ones.
type Router struct {
	log       *slog.Logger
	delivery  Deliverer
	store     ConversationStamper
	convos    ConversationProvider
	directory OwnerDirectory
	cap       int

	mu      sync.Mutex
	pending map[string][]*models.NotificationEvent
}

func New(
	log *slog.Logger,
	delivery Deliverer,
	store ConversationStamper,
	convos ConversationProvider,
	directory OwnerDirectory,
	pendingCap int,
) *Router {
	if pendingCap <= 0 {
		pendingCap = defaultPendingCap
	}

	return &Router{
		log:       log,
		delivery:  delivery,
		store:     store,
		convos:    convos,
		directory: directory,
		cap:       pendingCap,
		pending:   make(map[string][]*models.NotificationEvent),
	}
}

// OnBookingCreated notifies the salon owner of a new booking request.
func (r *Router) OnBookingCreated(b *models.Booking) {
	const op = "router.OnBookingCreated"

	ev := newEvent(models.EventBookingNotification, b.SalonOwnerID, b)
	r.deliverOrQueue(ev)

	r.log.Info("booking notification routed",
		slog.String("op", op),
		slog.String("booking_id", b.ID),
		slog.String("target_user_id", b.SalonOwnerID),
	)
}

// OnBookingTransitioned notifies the booking's client of the status change.
// On acceptance a conversation is provisioned first so both the status
// update and the chat_room_created event carry its ID; the chat event is
// always emitted after the status update, through the same queue.
func (r *Router) OnBookingTransitioned(ctx context.Context, b *models.Booking, previous models.BookingStatus) {
	const op = "router.OnBookingTransitioned"

	log := r.log.With(
		slog.String("op", op),
		slog.String("booking_id", b.ID),
		slog.String("previous_status", string(previous)),
		slog.String("status", string(b.Status)),
	)

	if b.Status == models.BookingAccepted && b.ConversationID == "" {
		convID, err := r.convos.EnsureConversation(ctx, b.UserID, b.SalonOwnerID)
		if err != nil {
			log.Error("failed to provision conversation", sl.Err(err))
		} else {
			stamped, err := r.store.SetConversationID(ctx, b.ID, convID)
			if err != nil {
				log.Error("failed to stamp conversation id", sl.Err(err))
			} else {
				b = stamped
			}
		}
	}

	r.deliverOrQueue(newEvent(models.EventBookingStatusUpdate, b.UserID, &models.BookingStatusUpdate{
		BookingID:      b.ID,
		Status:         b.Status,
		Booking:        b,
		ConversationID: b.ConversationID,
	}))

	if b.Status == models.BookingAccepted && b.ConversationID != "" {
		name := ""
		if r.directory != nil {
			var err error
			name, err = r.directory.OwnerName(ctx, b.SalonOwnerID)
			if err != nil {
				log.Error("failed to resolve salon owner name", sl.Err(err))
				name = ""
			}
		}

		r.deliverOrQueue(newEvent(models.EventChatRoomCreated, b.UserID, &models.ChatRoomCreated{
			ConversationID: b.ConversationID,
			BookingID:      b.ID,
			SalonOwnerID:   b.SalonOwnerID,
			SalonOwnerName: name,
		}))
	}

	log.Info("status update routed", slog.String("target_user_id", b.UserID))
}

// FlushPending delivers queued events for userID in original emission order,
// dropping only the entries that were actually handed to a connection. Called
// by the gateway right after a user registers.
func (r *Router) FlushPending(userID string) {
	const op = "router.FlushPending"

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pending[userID]) == 0 {
		return
	}

	delivered := r.flushLocked(userID)

	r.log.Info("pending events flushed",
		slog.String("op", op),
		slog.String("user_id", userID),
		slog.Int("delivered", delivered),
		slog.Int("remaining", len(r.pending[userID])),
	)
}

// flushLocked delivers queued events for userID in order, stopping at the
// first event no connection takes, and returns how many went out. Caller
// holds r.mu.
func (r *Router) flushLocked(userID string) int {
	q := r.pending[userID]

	var i int
	for i = 0; i < len(q); i++ {
		if r.delivery.Send(userID, q[i]) == 0 {
			break
		}
		q[i].Delivered = true
	}

	if i == len(q) {
		delete(r.pending, userID)
	} else {
		r.pending[userID] = q[i:]
	}

	return i
}

// PendingCount reports how many events are queued for userID.
func (r *Router) PendingCount(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.pending[userID])
}

func (r *Router) deliverOrQueue(ev *models.NotificationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// older queued events go out first; sending directly past a non-empty
	// queue would let this event overtake them
	r.flushLocked(ev.TargetUserID)

	if len(r.pending[ev.TargetUserID]) == 0 {
		if n := r.delivery.Send(ev.TargetUserID, ev); n > 0 {
			ev.Delivered = true
			return
		}
	}

	q := append(r.pending[ev.TargetUserID], ev)
	if len(q) > r.cap {
		dropped := len(q) - r.cap
		q = q[dropped:]
		r.log.Warn("pending queue overflow, oldest events dropped",
			slog.String("user_id", ev.TargetUserID),
			slog.Int("dropped", dropped),
		)
	}
	r.pending[ev.TargetUserID] = q
}

func newEvent(t models.EventType, targetUserID string, payload any) *models.NotificationEvent {
	return &models.NotificationEvent{
		ID:           uuid.New().String(),
		Type:         t,
		TargetUserID: targetUserID,
		Payload:      payload,
		CreatedAt:    time.Now().UTC(),
	}
}
