package listBookings

import (
	"log/slog"
	"net/http"

	"salonhub/internal/lib/api/response"
	"salonhub/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type BookingsResponse struct {
	response.Response
	Bookings []models.Booking `json:"bookings"`
}

//go:generate go run github.com/vektra/mockery/v2@v2.51.1 --name=BookingLister
type BookingLister interface {
	ListByUser(userID string) []models.Booking
}

func New(log *slog.Logger, lister BookingLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.booking.listBookings.New"

		log = log.With(slog.String("op", op))

		userID := chi.URLParam(r, "userID")
		if userID == "" {
			log.Error("user id is required")
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("user id is required"))
			return
		}

		bookings := lister.ListByUser(userID)

		log.Info("bookings listed",
			slog.String("user_id", userID),
			slog.Int("count", len(bookings)),
		)

		responseOK(w, r, bookings)
	}
}

func responseOK(w http.ResponseWriter, r *http.Request, bookings []models.Booking) {
	if bookings == nil {
		bookings = []models.Booking{}
	}

	render.JSON(w, r, BookingsResponse{
		Response: response.OK(),
		Bookings: bookings,
	})
}
