package bookings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"salonhub/internal/lib/logger/sl"
	"salonhub/internal/models"

	"github.com/google/uuid"
)

const defaultDurationMinutes = 60

var (
	ErrNotFound          = errors.New("booking not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrValidation        = errors.New("invalid booking request")
)

// Persister is the external durable store for booking records. The core is
// fully functional without one; persistence failures are logged and never
// propagated to callers.
type Persister interface {
	SaveBooking(ctx context.Context, b *models.Booking) error
}

// Store is the in-process source of truth for booking state. All mutation of
// a booking happens under the store mutex, so concurrent transitions on the
// same booking are serialized and exactly one of a racing accept/reject pair
// wins.
type Store struct {
	log     *slog.Logger
	persist Persister

	mu       sync.Mutex
	bookings map[string]*models.Booking
}

func New(log *slog.Logger, persist Persister) *Store {
	return &Store{
		log:      log,
		persist:  persist,
		bookings: make(map[string]*models.Booking),
	}
}

type CreateRequest struct {
	UserID          string
	SalonID         string
	SalonOwnerID    string
	ClientName      string
	RequestedAt     time.Time
	DurationMinutes int
	Age             int
	WeightKg        float64
}

func (r CreateRequest) validate() error {
	switch {
	case r.UserID == "":
		return fmt.Errorf("%w: user_id is required", ErrValidation)
	case r.SalonID == "":
		return fmt.Errorf("%w: salon_id is required", ErrValidation)
	case r.SalonOwnerID == "":
		return fmt.Errorf("%w: salon_owner_id is required", ErrValidation)
	case r.RequestedAt.IsZero():
		return fmt.Errorf("%w: requested_date_time is required", ErrValidation)
	}
	return nil
}

// Create validates the request and records a new booking in status pending.
func (s *Store) Create(ctx context.Context, req CreateRequest) (*models.Booking, error) {
	const op = "storage.bookings.Create"

	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	duration := req.DurationMinutes
	if duration <= 0 {
		duration = defaultDurationMinutes
	}

	b := &models.Booking{
		ID:              uuid.New().String(),
		UserID:          req.UserID,
		SalonID:         req.SalonID,
		SalonOwnerID:    req.SalonOwnerID,
		ClientName:      req.ClientName,
		RequestedAt:     req.RequestedAt,
		DurationMinutes: duration,
		Status:          models.BookingPending,
		CreatedAt:       time.Now().UTC(),
		Age:             req.Age,
		WeightKg:        req.WeightKg,
	}

	s.mu.Lock()
	s.bookings[b.ID] = b
	snapshot := *b
	s.mu.Unlock()

	s.save(ctx, &snapshot)

	s.log.Info("booking created",
		slog.String("op", op),
		slog.String("booking_id", b.ID),
		slog.String("user_id", b.UserID),
		slog.String("salon_id", b.SalonID),
	)

	return &snapshot, nil
}

// Transition moves a booking to next. It fails with ErrNotFound for an
// unknown bookingID and ErrInvalidTransition when next is not reachable from
// the current status. The check and the write happen under one lock, so the
// loser of a concurrent accept/reject race always gets ErrInvalidTransition
// instead of silently overwriting the winner.
func (s *Store) Transition(ctx context.Context, bookingID string, next models.BookingStatus, actorID string) (*models.Booking, error) {
	const op = "storage.bookings.Transition"

	if !next.Valid() {
		return nil, fmt.Errorf("%s: %w: unknown status %q", op, ErrInvalidTransition, next)
	}

	s.mu.Lock()
	b, ok := s.bookings[bookingID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if !b.Status.CanTransitionTo(next) {
		prev := b.Status
		s.mu.Unlock()
		return nil, fmt.Errorf("%s: %w: %s -> %s", op, ErrInvalidTransition, prev, next)
	}
	b.Status = next
	snapshot := *b
	s.mu.Unlock()

	s.save(ctx, &snapshot)

	s.log.Info("booking transitioned",
		slog.String("op", op),
		slog.String("booking_id", bookingID),
		slog.String("status", string(next)),
		slog.String("actor_id", actorID),
	)

	return &snapshot, nil
}

// SetConversationID stamps the provisioned conversation onto a booking.
func (s *Store) SetConversationID(ctx context.Context, bookingID, conversationID string) (*models.Booking, error) {
	const op = "storage.bookings.SetConversationID"

	s.mu.Lock()
	b, ok := s.bookings[bookingID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	b.ConversationID = conversationID
	snapshot := *b
	s.mu.Unlock()

	s.save(ctx, &snapshot)

	return &snapshot, nil
}

func (s *Store) Get(bookingID string) (*models.Booking, error) {
	const op = "storage.bookings.Get"

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	snapshot := *b
	return &snapshot, nil
}

// ListByUser returns the user's bookings ordered by creation time.
func (s *Store) ListByUser(userID string) []models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Booking
	for _, b := range s.bookings {
		if b.UserID == userID {
			out = append(out, *b)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out
}

// Seed loads previously persisted bookings into the store on startup.
// Existing entries are not overwritten.
func (s *Store) Seed(bs []models.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range bs {
		b := bs[i]
		if _, ok := s.bookings[b.ID]; ok {
			continue
		}
		s.bookings[b.ID] = &b
	}
}

func (s *Store) save(ctx context.Context, b *models.Booking) {
	if s.persist == nil {
		return
	}
	if err := s.persist.SaveBooking(ctx, b); err != nil {
		s.log.Error("failed to persist booking",
			sl.Err(err),
			slog.String("booking_id", b.ID),
		)
	}
}
