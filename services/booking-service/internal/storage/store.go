package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/jdtheefirst/creator-hq-sub000/libs/db"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/availability"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

// TokenSealer encrypts calendar tokens at rest.
type TokenSealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

type plainSealer struct{}

func (plainSealer) Seal(s string) (string, error) { return s, nil }
func (plainSealer) Open(s string) (string, error) { return s, nil }

type Store struct {
	pool   *db.Pool
	sealer TokenSealer
}

func NewStore(pool *db.Pool, sealer TokenSealer) *Store {
	if sealer == nil {
		sealer = plainSealer{}
	}
	return &Store{pool: pool, sealer: sealer}
}

// Migrate applies the embedded schema files in name order. Every statement is idempotent.
func Migrate(ctx context.Context, pool *db.Pool) error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		sql, err := migrations.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}

const bookingColumns = `id::text, creator_id::text, client_name, client_email, phone, service_type,
	booking_date, duration_minutes, price::text, currency, status, payment_status,
	payment_id, payment_link, meeting_link, notes, cancel_reason, created_at, updated_at`

func scanBooking(row pgx.Row) (model.Booking, error) {
	var (
		b                     model.Booking
		serviceType, price    string
		status, paymentStatus string
	)
	err := row.Scan(
		&b.ID,
		&b.CreatorID,
		&b.ClientName,
		&b.ClientEmail,
		&b.Phone,
		&serviceType,
		&b.BookingDate,
		&b.DurationMinutes,
		&price,
		&b.Currency,
		&status,
		&paymentStatus,
		&b.PaymentID,
		&b.PaymentLink,
		&b.MeetingLink,
		&b.Notes,
		&b.CancelReason,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return model.Booking{}, err
	}
	if b.ServiceType, err = model.ParseServiceType(serviceType); err != nil {
		return model.Booking{}, err
	}
	if b.Status, err = model.ParseStatus(status); err != nil {
		return model.Booking{}, err
	}
	if b.PaymentStatus, err = model.ParsePaymentStatus(paymentStatus); err != nil {
		return model.Booking{}, err
	}
	if b.Price, err = decimal.NewFromString(price); err != nil {
		return model.Booking{}, fmt.Errorf("booking %s price: %w", b.ID, err)
	}
	return b, nil
}

func collectBookings(rows pgx.Rows) ([]model.Booking, error) {
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (s *Store) GetCreator(ctx context.Context, id string) (model.Creator, error) {
	var c model.Creator
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, display_name, email, timezone
		FROM creators
		WHERE id = $1
	`, id).Scan(&c.ID, &c.DisplayName, &c.Email, &c.Timezone)
	if err != nil {
		return model.Creator{}, classify(err, "creator "+id)
	}
	return c, nil
}

// CreateBooking inserts b if its slot is free. Overlap check and insert run under a
// per-creator advisory lock; the bookings_no_overlap constraint backs it up.
func (s *Store) CreateBooking(ctx context.Context, b model.Booking) (model.Booking, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Booking{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockCreator(ctx, tx, b.CreatorID); err != nil {
		return model.Booking{}, err
	}
	start, end := b.Slot()
	conflicts, err := findConflicting(ctx, tx, b.CreatorID, start, end, "")
	if err != nil {
		return model.Booking{}, err
	}
	if len(conflicts) > 0 {
		return model.Booking{}, model.ErrSlotConflict
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO bookings
			(id, creator_id, client_name, client_email, phone, service_type, booking_date, duration_minutes,
			 ends_at, price, currency, status, payment_status, payment_id, payment_link, meeting_link, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::numeric, $11, $12, $13, $14, $15, $16, $17)
		RETURNING created_at, updated_at
	`, b.ID, b.CreatorID, b.ClientName, b.ClientEmail, b.Phone, string(b.ServiceType), b.BookingDate,
		b.DurationMinutes, end, b.Price.StringFixed(2), b.Currency, string(b.Status), string(b.PaymentStatus),
		b.PaymentID, b.PaymentLink, b.MeetingLink, b.Notes).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return model.Booking{}, classify(err, "booking "+b.ID)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, classify(err, "booking "+b.ID)
	}
	return b, nil
}

func (s *Store) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	b, err := scanBooking(s.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if err != nil {
		return model.Booking{}, classify(err, "booking "+id)
	}
	return b, nil
}

// FindConflicting returns the creator's active bookings overlapping [start, end).
func (s *Store) FindConflicting(ctx context.Context, creatorID string, start, end time.Time, excludeID string) ([]model.Booking, error) {
	return findConflicting(ctx, s.pool, creatorID, start, end, excludeID)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func findConflicting(ctx context.Context, q querier, creatorID string, start, end time.Time, excludeID string) ([]model.Booking, error) {
	rows, err := q.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE creator_id = $1
			AND status <> 'cancelled'
			AND booking_date < $3
			AND ends_at > $2
			AND ($4 = '' OR id::text <> $4)
		ORDER BY booking_date ASC
	`, creatorID, start, end, excludeID)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

// UpdateBooking locks the row, applies mutate to a copy, and writes it back. When the
// slot moves on an active booking the overlap check is repeated excluding the row itself.
// A mutate error aborts without writing.
func (s *Store) UpdateBooking(ctx context.Context, id string, mutate func(*model.Booking) error) (model.Booking, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Booking{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return model.Booking{}, classify(err, "booking "+id)
	}
	next := cur
	if err := mutate(&next); err != nil {
		return model.Booking{}, err
	}

	moved := !next.BookingDate.Equal(cur.BookingDate) || next.DurationMinutes != cur.DurationMinutes
	if moved && next.Status.Active() {
		if err := lockCreator(ctx, tx, next.CreatorID); err != nil {
			return model.Booking{}, err
		}
		start, end := next.Slot()
		conflicts, err := findConflicting(ctx, tx, next.CreatorID, start, end, id)
		if err != nil {
			return model.Booking{}, err
		}
		if len(conflicts) > 0 {
			return model.Booking{}, model.ErrSlotConflict
		}
	}

	err = tx.QueryRow(ctx, `
		UPDATE bookings
		SET booking_date = $2,
			duration_minutes = $3,
			ends_at = $4,
			price = $5::numeric,
			status = $6,
			payment_status = $7,
			payment_id = $8,
			payment_link = $9,
			meeting_link = $10,
			notes = $11,
			cancel_reason = $12,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, id, next.BookingDate, next.DurationMinutes, next.End(), next.Price.StringFixed(2),
		string(next.Status), string(next.PaymentStatus), next.PaymentID, next.PaymentLink,
		next.MeetingLink, next.Notes, next.CancelReason).Scan(&next.UpdatedAt)
	if err != nil {
		return model.Booking{}, classify(err, "booking "+id)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, classify(err, "booking "+id)
	}
	return next, nil
}

func (s *Store) ListByCreator(ctx context.Context, creatorID string, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE creator_id = $1
		ORDER BY booking_date DESC
		LIMIT $2
	`, creatorID, limit)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

// ListActiveIntervals returns the slots held by active bookings overlapping [from, to).
func (s *Store) ListActiveIntervals(ctx context.Context, creatorID string, from, to time.Time) ([]availability.Interval, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT booking_date, ends_at
		FROM bookings
		WHERE creator_id = $1
			AND status <> 'cancelled'
			AND booking_date < $3
			AND ends_at > $2
		ORDER BY booking_date ASC
	`, creatorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func lockCreator(ctx context.Context, tx pgx.Tx, creatorID string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, creatorID)
	if err != nil {
		return fmt.Errorf("lock creator %s: %w", creatorID, err)
	}
	return nil
}

// IsConflict reports an exclusion-constraint violation.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func classify(err error, what string) error {
	switch {
	case IsNotFound(err):
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	case IsConflict(err):
		return model.ErrSlotConflict
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}
