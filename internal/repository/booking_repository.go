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

type BookingRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	// FindByReference 不分大小寫；多個場館同碼時優先回傳 venueID 的那筆
	FindByReference(ctx context.Context, venueID uuid.UUID, reference string) (*model.Booking, error)
	FindGuestByID(ctx context.Context, id uuid.UUID) (*model.BookingGuest, error)
	FindGuestByScanCode(ctx context.Context, code string) (*model.BookingGuest, error)
	ListGuests(ctx context.Context, bookingID uuid.UUID) ([]*model.BookingGuest, error)

	// Conditional updates：來源狀態不符時回傳 apperrors.ErrConditionFailed
	TransitionGuest(ctx context.Context, guestID uuid.UUID, t model.AdmissionTransition) (*model.BookingGuest, error)
	TransitionBooking(ctx context.Context, bookingID uuid.UUID, t model.AdmissionTransition) (*model.Booking, error)

	EnsurePrimaryGuest(ctx context.Context, bookingID uuid.UUID, identity model.GuestIdentity, scanCode string) (*model.BookingGuest, bool, error)
	AddGuest(ctx context.Context, bookingID uuid.UUID, identity model.GuestIdentity, scanCode string) (*model.BookingGuest, error)
	RemoveGuest(ctx context.Context, guestID uuid.UUID) error
}

type BookingRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewBookingRepository(pool *pgxpool.Pool) BookingRepository {
	return &BookingRepositoryImpl{
		pool: pool,
	}
}

const bookingColumns = `
	b.id, b.venue_id, b.reference_code, b.booking_date, b.party_size, b.status,
	b.check_in_status, b.checked_in_at, b.no_show_at, b.spend::float8, b.pos_session_id,
	b.created_at, b.updated_at`

const guestColumns = `
	g.id, g.booking_id, b.venue_id, g.guest_number, g.scan_code,
	g.user_id, g.name, g.phone, g.email, g.is_primary,
	g.check_in_status, g.checked_in_at, g.no_show_at, g.spend::float8,
	g.created_at, g.updated_at`

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var b model.Booking
	err := row.Scan(
		&b.ID,
		&b.VenueID,
		&b.ReferenceCode,
		&b.BookingDate,
		&b.PartySize,
		&b.Status,
		&b.CheckInStatus,
		&b.CheckedInAt,
		&b.NoShowAt,
		&b.Spend,
		&b.POSSessionID,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func scanBookingGuest(row pgx.Row) (*model.BookingGuest, error) {
	var g model.BookingGuest
	err := row.Scan(
		&g.ID,
		&g.BookingID,
		&g.VenueID,
		&g.GuestNumber,
		&g.ScanCode,
		&g.Identity.UserID,
		&g.Identity.Name,
		&g.Identity.Phone,
		&g.Identity.Email,
		&g.IsPrimary,
		&g.CheckInStatus,
		&g.CheckedInAt,
		&g.NoShowAt,
		&g.Spend,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *BookingRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings b WHERE b.id = $1`

	booking, err := scanBooking(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("booking", id.String())
		}
		return nil, err
	}
	return booking, nil
}

func (r *BookingRepositoryImpl) FindByReference(ctx context.Context, venueID uuid.UUID, reference string) (*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings b
		WHERE LOWER(b.reference_code) = LOWER(TRIM($2))
		ORDER BY (b.venue_id = $1) DESC, b.created_at DESC
		LIMIT 1
	`

	booking, err := scanBooking(r.pool.QueryRow(ctx, query, venueID, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("booking", reference)
		}
		return nil, err
	}
	return booking, nil
}

func (r *BookingRepositoryImpl) FindGuestByID(ctx context.Context, id uuid.UUID) (*model.BookingGuest, error) {
	query := `
		SELECT ` + guestColumns + `
		FROM booking_guests g
		JOIN bookings b ON b.id = g.booking_id
		WHERE g.id = $1
	`

	guest, err := scanBookingGuest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("booking guest", id.String())
		}
		return nil, err
	}
	return guest, nil
}

func (r *BookingRepositoryImpl) FindGuestByScanCode(ctx context.Context, code string) (*model.BookingGuest, error) {
	query := `
		SELECT ` + guestColumns + `
		FROM booking_guests g
		JOIN bookings b ON b.id = g.booking_id
		WHERE g.scan_code = $1
	`

	guest, err := scanBookingGuest(r.pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("booking guest", code)
		}
		return nil, err
	}
	return guest, nil
}

func (r *BookingRepositoryImpl) ListGuests(ctx context.Context, bookingID uuid.UUID) ([]*model.BookingGuest, error) {
	query := `
		SELECT ` + guestColumns + `
		FROM booking_guests g
		JOIN bookings b ON b.id = g.booking_id
		WHERE g.booking_id = $1
		ORDER BY g.guest_number
	`

	rows, err := r.pool.Query(ctx, query, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	guests := make([]*model.BookingGuest, 0)
	for rows.Next() {
		guest, err := scanBookingGuest(rows)
		if err != nil {
			return nil, err
		}
		guests = append(guests, guest)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return guests, nil
}

// TransitionGuest 只有 guest 仍在 t.From 時才更新；checked_in 之後 spend 與時間戳不會再被覆寫
func (r *BookingRepositoryImpl) TransitionGuest(ctx context.Context, guestID uuid.UUID, t model.AdmissionTransition) (*model.BookingGuest, error) {
	query := `
		WITH updated AS (
			UPDATE booking_guests g
			SET check_in_status = $2::text,
				checked_in_at = CASE WHEN $2::text = 'checked_in' THEN $3 ELSE g.checked_in_at END,
				no_show_at = CASE
					WHEN $2::text = 'no_show' THEN $3
					WHEN $2::text = 'pending' THEN NULL
					ELSE g.no_show_at END,
				spend = CASE WHEN $2::text = 'checked_in' THEN COALESCE($4, g.spend) ELSE g.spend END,
				updated_at = $3
			FROM bookings b
			WHERE g.id = $1
			  AND b.id = g.booking_id
			  AND b.venue_id = $5
			  AND g.check_in_status = $6::text
			  AND ($7::timestamptz IS NULL OR g.no_show_at > $7::timestamptz)
			RETURNING g.*
		)
		SELECT ` + guestColumns + `
		FROM updated g
		JOIN bookings b ON b.id = g.booking_id
	`

	guest, err := scanBookingGuest(r.pool.QueryRow(ctx, query,
		guestID, string(t.To), t.At, t.Spend, t.VenueID, string(t.From), t.NoShowAfter,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrConditionFailed
		}
		return nil, fmt.Errorf("transition guest: %w", err)
	}
	return guest, nil
}

// TransitionBooking 沒有 guest 的訂位才走訂位層級的狀態；有 guest 時條件不成立
func (r *BookingRepositoryImpl) TransitionBooking(ctx context.Context, bookingID uuid.UUID, t model.AdmissionTransition) (*model.Booking, error) {
	query := `
		UPDATE bookings b
		SET check_in_status = $2::text,
			checked_in_at = CASE WHEN $2::text = 'checked_in' THEN $3 ELSE b.checked_in_at END,
			no_show_at = CASE
				WHEN $2::text = 'no_show' THEN $3
				WHEN $2::text = 'pending' THEN NULL
				ELSE b.no_show_at END,
			spend = CASE WHEN $2::text = 'checked_in' THEN COALESCE($4, b.spend) ELSE b.spend END,
			updated_at = $3
		WHERE b.id = $1
		  AND b.venue_id = $5
		  AND b.check_in_status = $6::text
		  AND ($7::timestamptz IS NULL OR b.no_show_at > $7::timestamptz)
		  AND NOT EXISTS (SELECT 1 FROM booking_guests g WHERE g.booking_id = b.id)
		RETURNING ` + bookingColumns

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// 先取得與 AddGuest 相同的列鎖，UPDATE 才看得到鎖等待期間新增的 guest
	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM bookings WHERE id = $1 FOR UPDATE`, bookingID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrConditionFailed
		}
		return nil, fmt.Errorf("lock booking: %w", err)
	}

	booking, err := scanBooking(tx.QueryRow(ctx, query,
		bookingID, string(t.To), t.At, t.Spend, t.VenueID, string(t.From), t.NoShowAfter,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrConditionFailed
		}
		return nil, fmt.Errorf("transition booking: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return booking, nil
}

// EnsurePrimaryGuest 建立 guest #1；已存在時回傳既有的 primary，第二個回傳值表示是否新建
func (r *BookingRepositoryImpl) EnsurePrimaryGuest(ctx context.Context, bookingID uuid.UUID, identity model.GuestIdentity, scanCode string) (*model.BookingGuest, bool, error) {
	insert := `
		INSERT INTO booking_guests (booking_id, guest_number, scan_code, user_id, name, phone, email, is_primary)
		SELECT b.id, 1, $2, $3, $4, $5, $6, TRUE
		FROM bookings b
		WHERE b.id = $1
		ON CONFLICT DO NOTHING
		RETURNING id
	`

	var id uuid.UUID
	err := r.pool.QueryRow(ctx, insert,
		bookingID, scanCode, identity.UserID, identity.Name, identity.Phone, identity.Email,
	).Scan(&id)
	if err == nil {
		guest, err := r.FindGuestByID(ctx, id)
		return guest, true, err
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("insert primary guest: %w", err)
	}

	// 沒插入：訂位不存在、primary 已存在，或 scan code 撞碼
	query := `
		SELECT ` + guestColumns + `
		FROM booking_guests g
		JOIN bookings b ON b.id = g.booking_id
		WHERE g.booking_id = $1 AND g.is_primary
	`
	guest, err := scanBookingGuest(r.pool.QueryRow(ctx, query, bookingID))
	if err == nil {
		return guest, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}
	if _, err := r.FindByID(ctx, bookingID); err != nil {
		return nil, false, err
	}
	return nil, false, ErrScanCodeConflict
}

// AddGuest 在訂位列鎖內取下一個 guest_number，不超過 party_size；訂位本身須仍為 pending
func (r *BookingRepositoryImpl) AddGuest(ctx context.Context, bookingID uuid.UUID, identity model.GuestIdentity, scanCode string) (*model.BookingGuest, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// 狀態在列鎖內判斷，與訂位層級的入場互斥
	var partySize int
	var status model.CheckInStatus
	err = tx.QueryRow(ctx,
		`SELECT party_size, check_in_status FROM bookings WHERE id = $1 FOR UPDATE`,
		bookingID,
	).Scan(&partySize, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("booking", bookingID.String())
		}
		return nil, err
	}
	if status != model.CheckInStatusPending {
		return nil, apperrors.NewValidationError("booking", fmt.Sprintf("booking is already %s at booking level", status))
	}

	var count, maxNumber int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(MAX(guest_number), 0) FROM booking_guests WHERE booking_id = $1`,
		bookingID,
	).Scan(&count, &maxNumber)
	if err != nil {
		return nil, err
	}
	if count >= partySize {
		return nil, apperrors.NewValidationError("guests", fmt.Sprintf("booking already has %d of %d guests", count, partySize))
	}

	var id uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO booking_guests (booking_id, guest_number, scan_code, user_id, name, phone, email, is_primary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, bookingID, maxNumber+1, scanCode, identity.UserID, identity.Name, identity.Phone, identity.Email, count == 0,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrScanCodeConflict
		}
		return nil, fmt.Errorf("insert guest: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return r.FindGuestByID(ctx, id)
}

// RemoveGuest primary 與已入場或 no-show 的 guest 不能刪
func (r *BookingRepositoryImpl) RemoveGuest(ctx context.Context, guestID uuid.UUID) error {
	query := `
		DELETE FROM booking_guests
		WHERE id = $1 AND NOT is_primary AND check_in_status = 'pending'
	`

	result, err := r.pool.Exec(ctx, query, guestID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrConditionFailed
	}
	return nil
}
