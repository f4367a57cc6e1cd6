package repository

import (
	"context"
	"errors"

	"venue-ledger/internal/model"
	apperrors "venue-ledger/pkg/app_errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PromoRepository interface {
	// FindByCode 只回傳 active 的 promo；優先回傳 venueID 的那筆
	FindByCode(ctx context.Context, venueID uuid.UUID, code string) (*model.PromoCode, error)
}

type PromoRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewPromoRepository(pool *pgxpool.Pool) PromoRepository {
	return &PromoRepositoryImpl{
		pool: pool,
	}
}

func (r *PromoRepositoryImpl) FindByCode(ctx context.Context, venueID uuid.UUID, code string) (*model.PromoCode, error) {
	query := `
		SELECT id, venue_id, code, description, active
		FROM promo_codes
		WHERE LOWER(code) = LOWER(TRIM($2)) AND active
		ORDER BY (venue_id = $1) DESC
		LIMIT 1
	`

	var promo model.PromoCode
	err := r.pool.QueryRow(ctx, query, venueID, code).Scan(
		&promo.ID,
		&promo.VenueID,
		&promo.Code,
		&promo.Description,
		&promo.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("promo code", code)
		}
		return nil, err
	}

	return &promo, nil
}
