package models

import "time"

type BookingStatus string

const (
	BookingPending  BookingStatus = "pending"
	BookingAccepted BookingStatus = "accepted"
	BookingRejected BookingStatus = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingAccepted, BookingRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is permitted from s.
func (s BookingStatus) Terminal() bool {
	return s == BookingAccepted || s == BookingRejected
}

// CanTransitionTo reports whether the move from s to next is allowed.
// The only legal moves are pending -> accepted and pending -> rejected.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	if s != BookingPending {
		return false
	}
	return next == BookingAccepted || next == BookingRejected
}

type Booking struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	SalonID         string        `json:"salon_id"`
	SalonOwnerID    string        `json:"salon_owner_id"`
	ClientName      string        `json:"name"`
	RequestedAt     time.Time     `json:"requested_date_time"`
	DurationMinutes int           `json:"duration_minutes"`
	Status          BookingStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	ConversationID  string        `json:"conversation_id,omitempty"`
	Age             int           `json:"age,omitempty"`
	WeightKg        float64       `json:"weight_kg,omitempty"`
}
