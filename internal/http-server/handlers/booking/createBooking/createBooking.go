package createBooking

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"salonhub/internal/lib/api/response"
	"salonhub/internal/lib/logger/sl"
	"salonhub/internal/models"
	"salonhub/internal/storage/bookings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type BookingRequest struct {
	UserID          string  `json:"user_id"`
	FirebaseUID     string  `json:"firebase_uid"`
	SalonID         string  `json:"salon_id" validate:"required"`
	SalonOwnerID    string  `json:"salon_owner_id" validate:"required"`
	Name            string  `json:"name" validate:"required"`
	RequestedAt     string  `json:"requested_date_time" validate:"required"`
	DurationMinutes int     `json:"duration_minutes"`
	Age             int     `json:"age"`
	WeightKg        float64 `json:"weight_kg"`
}

type BookingResponse struct {
	response.Response
	Booking *models.Booking `json:"booking,omitempty"`
}

//go:generate go run github.com/vektra/mockery/v2@v2.51.1 --name=BookingCreator
type BookingCreator interface {
	Create(ctx context.Context, req bookings.CreateRequest) (*models.Booking, error)
}

//go:generate go run github.com/vektra/mockery/v2@v2.51.1 --name=BookingNotifier
type BookingNotifier interface {
	OnBookingCreated(b *models.Booking)
}

func New(log *slog.Logger, creator BookingCreator, notifier BookingNotifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.booking.createBooking.New"

		log = log.With(slog.String("op", op))

		var req BookingRequest

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("failed to decode request body", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("failed to decode request"))
			return
		}

		log.Info("request body decoded", slog.Any("request", req))

		if err = validator.New().Struct(req); err != nil {
			var validateErr validator.ValidationErrors
			if errors.As(err, &validateErr) {
				log.Error("invalid request", sl.Err(err))
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.ValidationError(validateErr))
				return
			}
		}

		// firebase_uid is a legacy alias resolved here; the core only ever
		// sees user_id
		userID := req.UserID
		if userID == "" {
			userID = req.FirebaseUID
		}
		if userID == "" {
			log.Error("user id is required")
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("field user_id or firebase_uid is required"))
			return
		}

		requestedAt, err := time.Parse(time.RFC3339, req.RequestedAt)
		if err != nil {
			log.Error("invalid requested_date_time format", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid requested_date_time format"))
			return
		}

		booking, err := creator.Create(r.Context(), bookings.CreateRequest{
			UserID:          userID,
			SalonID:         req.SalonID,
			SalonOwnerID:    req.SalonOwnerID,
			ClientName:      req.Name,
			RequestedAt:     requestedAt,
			DurationMinutes: req.DurationMinutes,
			Age:             req.Age,
			WeightKg:        req.WeightKg,
		})
		if err != nil {
			log.Error("failed to create booking", sl.Err(err))

			if errors.Is(err, bookings.ErrValidation) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.Error("invalid booking request"))
				return
			}

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to create booking"))
			return
		}

		notifier.OnBookingCreated(booking)

		log.Info("booking created successfully",
			slog.String("booking_id", booking.ID),
			slog.String("user_id", booking.UserID),
		)

		responseOK(w, r, booking)
	}
}

func responseOK(w http.ResponseWriter, r *http.Request, booking *models.Booking) {
	render.JSON(w, r, BookingResponse{
		Response: response.OK(),
		Booking:  booking,
	})
}
