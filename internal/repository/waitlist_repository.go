package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"venue-ledger/internal/model"
	apperrors "venue-ledger/pkg/app_errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WaitlistTransition 條件更新參數；At 依 action 寫入 notified_at / seated_at / removed_at
type WaitlistTransition struct {
	VenueID   uuid.UUID
	Action    model.WaitlistAction
	At        time.Time
	ExpiresAt *time.Time
}

type WaitlistRepository interface {
	Create(ctx context.Context, entry *model.WaitlistEntry) (*model.WaitlistEntry, error)
	// FindByID position 在讀取時由 waiting 列即時計算
	FindByID(ctx context.Context, id uuid.UUID) (*model.WaitlistEntry, error)
	List(ctx context.Context, venueID uuid.UUID, statuses []model.WaitlistStatus) ([]*model.WaitlistEntry, error)
	CountWaiting(ctx context.Context, venueID uuid.UUID) (int, error)
	Transition(ctx context.Context, id uuid.UUID, t WaitlistTransition) (*model.WaitlistEntry, error)
	// RecentSeated 最近入座的 limit 筆，seated_at 由新到舊
	RecentSeated(ctx context.Context, venueID uuid.UUID, limit int) ([]*model.WaitlistEntry, error)
	ListStaleNotified(ctx context.Context, venueID uuid.UUID, now time.Time) ([]*model.WaitlistEntry, error)
}

type WaitlistRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewWaitlistRepository(pool *pgxpool.Pool) WaitlistRepository {
	return &WaitlistRepositoryImpl{
		pool: pool,
	}
}

const waitlistColumns = `
	w.id, w.venue_id, w.user_id, w.name, w.party_size, w.phone, w.email, w.notes, w.status,
	w.created_at, w.notified_at, w.expires_at, w.seated_at, w.removed_at`

// waitlistPosition 1 + 同場館更早建立的 waiting 筆數；非 waiting 為 NULL
const waitlistPosition = `
	CASE WHEN w.status = 'waiting' THEN (
		SELECT COUNT(*) + 1 FROM waitlist_entries e
		WHERE e.venue_id = w.venue_id AND e.status = 'waiting' AND e.created_at < w.created_at
	) END`

func scanWaitlistEntry(row pgx.Row) (*model.WaitlistEntry, error) {
	var e model.WaitlistEntry
	var position *int64
	err := row.Scan(
		&e.ID,
		&e.VenueID,
		&e.UserID,
		&e.Name,
		&e.PartySize,
		&e.Phone,
		&e.Email,
		&e.Notes,
		&e.Status,
		&e.CreatedAt,
		&e.NotifiedAt,
		&e.ExpiresAt,
		&e.SeatedAt,
		&e.RemovedAt,
		&position,
	)
	if err != nil {
		return nil, err
	}
	if position != nil {
		p := int(*position)
		e.Position = &p
	}
	return &e, nil
}

func (r *WaitlistRepositoryImpl) collect(rows pgx.Rows) ([]*model.WaitlistEntry, error) {
	defer rows.Close()

	entries := make([]*model.WaitlistEntry, 0)
	for rows.Next() {
		entry, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

func (r *WaitlistRepositoryImpl) Create(ctx context.Context, entry *model.WaitlistEntry) (*model.WaitlistEntry, error) {
	query := `
		WITH w AS (
			INSERT INTO waitlist_entries (venue_id, user_id, name, party_size, phone, email, notes, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'waiting', $8)
			RETURNING *
		)
		SELECT ` + waitlistColumns + `, (
			SELECT COUNT(*) + 1 FROM waitlist_entries e
			WHERE e.venue_id = w.venue_id AND e.status = 'waiting' AND e.created_at < w.created_at
		)
		FROM w
	`

	created, err := scanWaitlistEntry(r.pool.QueryRow(ctx, query,
		entry.VenueID, entry.UserID, entry.Name, entry.PartySize,
		entry.Phone, entry.Email, entry.Notes, entry.CreatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("create waitlist entry: %w", err)
	}
	return created, nil
}

func (r *WaitlistRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*model.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + `, ` + waitlistPosition + ` FROM waitlist_entries w WHERE w.id = $1`

	entry, err := scanWaitlistEntry(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("waitlist entry", id.String())
		}
		return nil, err
	}
	return entry, nil
}

// List waiting 列以 RANK() 計算名次，同一時間建立的並列
func (r *WaitlistRepositoryImpl) List(ctx context.Context, venueID uuid.UUID, statuses []model.WaitlistStatus) ([]*model.WaitlistEntry, error) {
	query := `
		WITH ranked AS (
			SELECT id, RANK() OVER (ORDER BY created_at) AS position
			FROM waitlist_entries
			WHERE venue_id = $1 AND status = 'waiting'
		)
		SELECT ` + waitlistColumns + `, ranked.position
		FROM waitlist_entries w
		LEFT JOIN ranked ON ranked.id = w.id
		WHERE w.venue_id = $1 AND (cardinality($2::text[]) = 0 OR w.status = ANY($2::text[]))
		ORDER BY w.created_at, w.id
	`

	rows, err := r.pool.Query(ctx, query, venueID, statusStrings(statuses))
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *WaitlistRepositoryImpl) CountWaiting(ctx context.Context, venueID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM waitlist_entries WHERE venue_id = $1 AND status = 'waiting'`,
		venueID,
	).Scan(&count)
	return count, err
}

func (r *WaitlistRepositoryImpl) Transition(ctx context.Context, id uuid.UUID, t WaitlistTransition) (*model.WaitlistEntry, error) {
	target := t.Action.Target()
	if target == "" {
		return nil, apperrors.NewValidationError("action", fmt.Sprintf("unknown waitlist action %q", t.Action))
	}

	query := `
		WITH w AS (
			UPDATE waitlist_entries
			SET status = $2::text,
				notified_at = CASE WHEN $2::text = 'notified' THEN $3::timestamptz ELSE notified_at END,
				expires_at = CASE WHEN $2::text = 'notified' THEN $4::timestamptz ELSE expires_at END,
				seated_at = CASE WHEN $2::text = 'seated' THEN $3::timestamptz ELSE seated_at END,
				removed_at = CASE WHEN $2::text = 'removed' THEN $3::timestamptz ELSE removed_at END
			WHERE id = $1 AND venue_id = $5 AND status = ANY($6::text[])
			RETURNING *
		)
		SELECT ` + waitlistColumns + `, NULL::bigint
		FROM w
	`

	entry, err := scanWaitlistEntry(r.pool.QueryRow(ctx, query,
		id, string(target), t.At, t.ExpiresAt, t.VenueID, statusStrings(t.Action.AllowedFrom()),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrConditionFailed
		}
		return nil, fmt.Errorf("transition waitlist entry: %w", err)
	}
	return entry, nil
}

func (r *WaitlistRepositoryImpl) RecentSeated(ctx context.Context, venueID uuid.UUID, limit int) ([]*model.WaitlistEntry, error) {
	query := `
		SELECT ` + waitlistColumns + `, NULL::bigint
		FROM waitlist_entries w
		WHERE w.venue_id = $1 AND w.status = 'seated' AND w.seated_at IS NOT NULL
		ORDER BY w.seated_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, venueID, limit)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *WaitlistRepositoryImpl) ListStaleNotified(ctx context.Context, venueID uuid.UUID, now time.Time) ([]*model.WaitlistEntry, error) {
	query := `
		SELECT ` + waitlistColumns + `, NULL::bigint
		FROM waitlist_entries w
		WHERE w.venue_id = $1 AND w.status = 'notified' AND w.expires_at < $2
		ORDER BY w.expires_at
	`

	rows, err := r.pool.Query(ctx, query, venueID, now)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}
