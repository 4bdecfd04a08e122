package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"salonhub/internal/lib/api/response"
	"salonhub/internal/lib/logger/sl"
	"salonhub/internal/models"
	"salonhub/internal/registry"
	"salonhub/internal/storage/bookings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Stable machine-readable codes carried by server->client error events.
const (
	CodeValidationError   = "validation_error"
	CodeNotFound          = "not_found"
	CodeInvalidTransition = "invalid_transition"
	CodeUnknownEvent      = "unknown_event"
	CodeNotIdentified     = "not_identified"
	CodeInternalError     = "internal_error"
)

// Client->server event names.
const (
	eventUserConnected = "user_connected"
	eventBookingAction = "booking_action"
)

type BookingTransitioner interface {
	Transition(ctx context.Context, bookingID string, next models.BookingStatus, actorID string) (*models.Booking, error)
}

type Notifier interface {
	OnBookingTransitioned(ctx context.Context, b *models.Booking, previous models.BookingStatus)
	FlushPending(userID string)
}

// Gateway is the transport-facing edge of the hub. It upgrades websocket
// connections, runs one read and one write goroutine per connection, and
// translates validated client events into store and router calls. All
// failures are answered with a structured error event on the originating
// connection; nothing is silently dropped.
type Gateway struct {
	log      *slog.Logger
	registry *registry.Registry
	store    BookingTransitioner
	notifier Notifier
	validate *validator.Validate
	upgrader websocket.Upgrader

	idleTimeout time.Duration
	sendBuffer  int
}

func New(
	log *slog.Logger,
	reg *registry.Registry,
	store BookingTransitioner,
	notifier Notifier,
	idleTimeout time.Duration,
	sendBuffer int,
) *Gateway {
	if idleTimeout <= 0 {
		idleTimeout = 60 * time.Second
	}
	if sendBuffer <= 0 {
		sendBuffer = 16
	}

	return &Gateway{
		log:      log,
		registry: reg,
		store:    store,
		notifier: notifier,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// clients are native apps, not browsers
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		idleTimeout: idleTimeout,
		sendBuffer:  sendBuffer,
	}
}

// ServeWS upgrades the request and starts the connection's pumps.
func (g *Gateway) ServeWS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "gateway.ServeWS"

		log := g.log.With(slog.String("op", op))

		conn, err := g.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("failed to upgrade connection", sl.Err(err))
			return
		}

		c := &client{
			id:   uuid.New().String(),
			gw:   g,
			conn: conn,
			send: make(chan serverEvent, g.sendBuffer),
		}

		log.Info("connection opened",
			slog.String("connection_id", c.id),
			slog.String("remote_addr", r.RemoteAddr),
		)

		go c.writePump()
		go c.readPump()
	}
}

// clientEvent is the inbound wire envelope.
type clientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type userConnectedData struct {
	UserID string `json:"userId" validate:"required"`
}

type bookingActionData struct {
	BookingID string `json:"bookingId" validate:"required"`
	Action    string `json:"action" validate:"required,oneof=accept reject"`
}

func (g *Gateway) handleEvent(c *client, raw []byte) {
	const op = "gateway.handleEvent"

	log := g.log.With(
		slog.String("op", op),
		slog.String("connection_id", c.id),
	)

	var ev clientEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		log.Error("malformed event frame", sl.Err(err))
		c.sendError(CodeValidationError, "malformed event frame")
		return
	}

	switch ev.Event {
	case eventUserConnected:
		g.onUserConnected(c, ev.Data)
	case eventBookingAction:
		g.onBookingAction(c, ev.Data)
	default:
		log.Warn("unknown event", slog.String("event", ev.Event))
		c.sendError(CodeUnknownEvent, fmt.Sprintf("unknown event %q", ev.Event))
	}
}

func (g *Gateway) onUserConnected(c *client, data json.RawMessage) {
	const op = "gateway.onUserConnected"

	log := g.log.With(
		slog.String("op", op),
		slog.String("connection_id", c.id),
	)

	var req userConnectedData
	if err := json.Unmarshal(data, &req); err != nil {
		log.Error("failed to decode user_connected", sl.Err(err))
		c.sendError(CodeValidationError, "failed to decode user_connected")
		return
	}

	if err := g.validate.Struct(req); err != nil {
		var validateErr validator.ValidationErrors
		if errors.As(err, &validateErr) {
			log.Error("invalid user_connected", sl.Err(err))
			c.sendError(CodeValidationError, response.ValidationError(validateErr).Error)
			return
		}
		c.sendError(CodeValidationError, "invalid user_connected")
		return
	}

	if c.userID != "" {
		if c.userID == req.UserID {
			// client re-announced itself; re-run the flush, nothing else
			g.notifier.FlushPending(c.userID)
			return
		}
		c.sendError(CodeValidationError, "connection already identified")
		return
	}

	c.userID = req.UserID
	g.registry.Register(req.UserID, c)
	g.notifier.FlushPending(req.UserID)

	log.Info("user connected", slog.String("user_id", req.UserID))
}

func (g *Gateway) onBookingAction(c *client, data json.RawMessage) {
	const op = "gateway.onBookingAction"

	log := g.log.With(
		slog.String("op", op),
		slog.String("connection_id", c.id),
		slog.String("user_id", c.userID),
	)

	if c.userID == "" {
		c.sendError(CodeNotIdentified, "send user_connected before booking actions")
		return
	}

	var req bookingActionData
	if err := json.Unmarshal(data, &req); err != nil {
		log.Error("failed to decode booking_action", sl.Err(err))
		c.sendError(CodeValidationError, "failed to decode booking_action")
		return
	}

	if err := g.validate.Struct(req); err != nil {
		var validateErr validator.ValidationErrors
		if errors.As(err, &validateErr) {
			log.Error("invalid booking_action", sl.Err(err))
			c.sendError(CodeValidationError, response.ValidationError(validateErr).Error)
			return
		}
		c.sendError(CodeValidationError, "invalid booking_action")
		return
	}

	next := models.BookingAccepted
	if req.Action == "reject" {
		next = models.BookingRejected
	}

	// detached from the connection: an accepted transition completes and is
	// routed even if this connection drops mid-call
	ctx := context.Background()

	b, err := g.store.Transition(ctx, req.BookingID, next, c.userID)
	if err != nil {
		log.Error("failed to transition booking", sl.Err(err))

		switch {
		case errors.Is(err, bookings.ErrNotFound):
			c.sendError(CodeNotFound, "booking not found")
		case errors.Is(err, bookings.ErrInvalidTransition):
			c.sendError(CodeInvalidTransition, "booking is not pending")
		default:
			c.sendError(CodeInternalError, "failed to apply booking action")
		}
		return
	}

	g.notifier.OnBookingTransitioned(ctx, b, models.BookingPending)

	log.Info("booking action applied",
		slog.String("booking_id", req.BookingID),
		slog.String("action", req.Action),
	)
}

func (g *Gateway) disconnect(c *client) {
	const op = "gateway.disconnect"

	// booking state and pending queues survive for reconnection; only the
	// connection itself goes away
	g.registry.Unregister(c.id)

	g.log.Info("connection closed",
		slog.String("op", op),
		slog.String("connection_id", c.id),
		slog.String("user_id", c.userID),
	)
}
