package getBooking

import (
	"errors"
	"log/slog"
	"net/http"

	"salonhub/internal/lib/api/response"
	"salonhub/internal/lib/logger/sl"
	"salonhub/internal/models"
	"salonhub/internal/storage/bookings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type BookingInfoResponse struct {
	response.Response
	Booking *models.Booking `json:"booking"`
}

//go:generate go run github.com/vektra/mockery/v2@v2.51.1 --name=BookingGetter
type BookingGetter interface {
	Get(bookingID string) (*models.Booking, error)
}

func New(log *slog.Logger, getter BookingGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.booking.getBooking.New"

		log = log.With(slog.String("op", op))

		bookingID := chi.URLParam(r, "id")
		if bookingID == "" {
			log.Error("booking id is required")
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("booking id is required"))
			return
		}

		log = log.With(slog.String("booking_id", bookingID))

		booking, err := getter.Get(bookingID)
		if err != nil {
			log.Error("failed to get booking", sl.Err(err))

			if errors.Is(err, bookings.ErrNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.Error("booking not found"))
				return
			}

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to get booking"))
			return
		}

		log.Info("booking info successfully received")

		responseOK(w, r, booking)
	}
}

func responseOK(w http.ResponseWriter, r *http.Request, booking *models.Booking) {
	render.JSON(w, r, BookingInfoResponse{
		Response: response.OK(),
		Booking:  booking,
	})
}
