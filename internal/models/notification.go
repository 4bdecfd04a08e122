package models

import "time"

// EventType names a server->client notification. The strings are part of the
// wire protocol and must stay stable.
type EventType string

const (
	EventBookingNotification EventType = "booking_notification"
	EventBookingStatusUpdate EventType = "booking_status_update"
	EventChatRoomCreated     EventType = "chat_room_created"
)

// NotificationEvent is a routed, possibly-queued message destined for a
// single user. Payload holds one of the payload structs below (or a *Booking
// for booking_notification) and is serialized as the "data" field of the
// websocket envelope.
type NotificationEvent struct {
	ID           string
	Type         EventType
	TargetUserID string
	Payload      any
	CreatedAt    time.Time
	Delivered    bool
}

type BookingStatusUpdate struct {
	BookingID      string        `json:"bookingId"`
	Status         BookingStatus `json:"status"`
	Booking        *Booking      `json:"booking"`
	ConversationID string        `json:"conversationId,omitempty"`
}

type ChatRoomCreated struct {
	ConversationID string `json:"conversationId"`
	BookingID      string `json:"bookingId"`
	SalonOwnerID   string `json:"salonOwnerId"`
	SalonOwnerName string `json:"salonOwnerName"`
}
