package repository

import (
	"context"
	"errors"
	"fmt"

	"venue-ledger/internal/model"
	apperrors "venue-ledger/pkg/app_errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type POSSessionRepository interface {
	// OpenIfAbsent 每筆訂位最多一個 open/billing session；第二個回傳值表示是否為這次新開的
	OpenIfAbsent(ctx context.Context, venueID, bookingID uuid.UUID, operatorID string) (*model.POSSession, bool, error)
	FindActiveByBooking(ctx context.Context, bookingID uuid.UUID) (*model.POSSession, error)
}

type POSSessionRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewPOSSessionRepository(pool *pgxpool.Pool) POSSessionRepository {
	return &POSSessionRepositoryImpl{
		pool: pool,
	}
}

const posSessionColumns = `id, venue_id, booking_id, status, opened_by, opened_at, closed_at`

func scanPOSSession(row pgx.Row) (*model.POSSession, error) {
	var s model.POSSession
	err := row.Scan(
		&s.ID,
		&s.VenueID,
		&s.BookingID,
		&s.Status,
		&s.OpenedBy,
		&s.OpenedAt,
		&s.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// OpenIfAbsent 以 partial unique index 擋住並發重複開單，衝突時讀回既有的 session
func (r *POSSessionRepositoryImpl) OpenIfAbsent(ctx context.Context, venueID, bookingID uuid.UUID, operatorID string) (*model.POSSession, bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	insert := `
		INSERT INTO pos_sessions (venue_id, booking_id, status, opened_by)
		VALUES ($1, $2, 'open', $3)
		ON CONFLICT (booking_id) WHERE status IN ('open', 'billing') DO NOTHING
		RETURNING ` + posSessionColumns

	created := true
	session, err := scanPOSSession(tx.QueryRow(ctx, insert, venueID, bookingID, operatorID))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, fmt.Errorf("open pos session: %w", err)
		}
		created = false
		session, err = scanPOSSession(tx.QueryRow(ctx,
			`SELECT `+posSessionColumns+` FROM pos_sessions WHERE booking_id = $1 AND status IN ('open', 'billing')`,
			bookingID,
		))
		if err != nil {
			return nil, false, fmt.Errorf("load existing pos session: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE bookings SET pos_session_id = $2, updated_at = NOW() WHERE id = $1 AND pos_session_id IS DISTINCT FROM $2`,
		bookingID, session.ID,
	)
	if err != nil {
		return nil, false, fmt.Errorf("link pos session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}

	return session, created, nil
}

func (r *POSSessionRepositoryImpl) FindActiveByBooking(ctx context.Context, bookingID uuid.UUID) (*model.POSSession, error) {
	query := `SELECT ` + posSessionColumns + ` FROM pos_sessions WHERE booking_id = $1 AND status IN ('open', 'billing')`

	session, err := scanPOSSession(r.pool.QueryRow(ctx, query, bookingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("pos session", bookingID.String())
		}
		return nil, err
	}
	return session, nil
}
