package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"salonhub/internal/config"
	"salonhub/internal/models"

	_ "github.com/lib/pq"
)

// Storage is the durable side of the hub: bookings survive process restarts
// here, and salon owner profiles are looked up for chat payload enrichment.
// The in-memory store stays the source of truth; every method here is a
// plain get/set by key.
type Storage struct {
	DB *sql.DB
}

func InitDB(dbCfg *config.Database) (*Storage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbCfg.Host,
		dbCfg.Port,
		dbCfg.User,
		dbCfg.Password,
		dbCfg.DBName,
		dbCfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}

	return &Storage{DB: db}, nil
}

func (s *Storage) Close() error {
	return s.DB.Close()
}

// SaveBooking upserts the full booking record keyed by its ID.
func (s *Storage) SaveBooking(ctx context.Context, b *models.Booking) error {
	query := `
		INSERT INTO bookings (
			id, user_id, salon_id, salon_owner_id, client_name,
			requested_at, duration_minutes, status, created_at,
			conversation_id, age, weight_kg
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    conversation_id = EXCLUDED.conversation_id`

	_, err := s.DB.ExecContext(ctx, query,
		b.ID,
		b.UserID,
		b.SalonID,
		b.SalonOwnerID,
		b.ClientName,
		b.RequestedAt,
		b.DurationMinutes,
		string(b.Status),
		b.CreatedAt,
		sql.NullString{String: b.ConversationID, Valid: b.ConversationID != ""},
		b.Age,
		b.WeightKg,
	)
	if err != nil {
		return fmt.Errorf("failed to save booking: %w", err)
	}

	return nil
}

// LoadBookings returns the full booking snapshot for warm-starting the
// in-memory store.
func (s *Storage) LoadBookings(ctx context.Context) ([]models.Booking, error) {
	query := `
		SELECT id, user_id, salon_id, salon_owner_id, client_name,
		       requested_at, duration_minutes, status, created_at,
		       conversation_id, age, weight_kg
		FROM bookings
		ORDER BY created_at`

	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		var (
			b      models.Booking
			status string
			convID sql.NullString
		)

		err = rows.Scan(
			&b.ID,
			&b.UserID,
			&b.SalonID,
			&b.SalonOwnerID,
			&b.ClientName,
			&b.RequestedAt,
			&b.DurationMinutes,
			&status,
			&b.CreatedAt,
			&convID,
			&b.Age,
			&b.WeightKg,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}

		b.Status = models.BookingStatus(status)
		b.ConversationID = convID.String

		bookings = append(bookings, b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load bookings: %w", err)
	}

	return bookings, nil
}

// OwnerName looks up the display name of a salon owner. An unknown owner is
// not an error; chat payloads carry an empty name instead.
func (s *Storage) OwnerName(ctx context.Context, salonOwnerID string) (string, error) {
	query := `
		SELECT name
		FROM salon_owners
		WHERE id = $1`

	var name string
	err := s.DB.QueryRowContext(ctx, query, salonOwnerID).Scan(&name)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to get salon owner name: %w", err)
	}

	return name, nil
}
