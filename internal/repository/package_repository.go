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

// PurchaseLedgerTx 持有購買列鎖期間可用的操作；fn 回傳 error 時整批 rollback
type PurchaseLedgerTx interface {
	Purchase() *model.PackagePurchase
	Items(ctx context.Context) ([]*model.PackageItem, error)
	RedeemedTotals(ctx context.Context) (map[uuid.UUID]int, error)
	GuestRedeemedTotals(ctx context.Context, guestID uuid.UUID) (map[uuid.UUID]int, error)
	InsertRedemption(ctx context.Context, redemption *model.PackageRedemption) error
	UpdatePurchaseStatus(ctx context.Context, status model.PurchaseStatus) error
	UpdateGuestStatus(ctx context.Context, guestID uuid.UUID, status model.GuestRedemptionStatus) error
}

type PackageRepository interface {
	FindPurchaseByID(ctx context.Context, id uuid.UUID) (*model.PackagePurchase, error)
	// FindPurchaseByScanCode 不分大小寫；優先回傳 venueID 的那筆
	FindPurchaseByScanCode(ctx context.Context, venueID uuid.UUID, code string) (*model.PackagePurchase, error)
	FindGuestByID(ctx context.Context, id uuid.UUID) (*model.PackageGuest, error)
	FindGuestByScanCode(ctx context.Context, code string) (*model.PackageGuest, error)
	ListGuests(ctx context.Context, purchaseID uuid.UUID) ([]*model.PackageGuest, error)
	ListItems(ctx context.Context, packageID uuid.UUID) ([]*model.PackageItem, error)
	RedeemedTotals(ctx context.Context, purchaseID uuid.UUID) (map[uuid.UUID]int, error)
	ListRedemptions(ctx context.Context, purchaseID uuid.UUID) ([]*model.PackageRedemption, error)

	EnsurePrimaryGuest(ctx context.Context, purchaseID uuid.UUID, identity model.GuestIdentity, scanCode string) (*model.PackageGuest, bool, error)
	AddGuest(ctx context.Context, purchaseID uuid.UUID, identity model.GuestIdentity, scanCode string) (*model.PackageGuest, error)

	// WithPurchaseLock SELECT ... FOR UPDATE 鎖住購買列，同一購買的兌換因此序列化
	WithPurchaseLock(ctx context.Context, purchaseID uuid.UUID, fn func(ctx context.Context, tx PurchaseLedgerTx) error) error
}

type PackageRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewPackageRepository(pool *pgxpool.Pool) PackageRepository {
	return &PackageRepositoryImpl{
		pool: pool,
	}
}

const purchaseColumns = `
	id, package_id, venue_id, scan_code, purchaser_user_id, purchaser_name,
	guest_count, status, amount_paid::float8, purchased_at, updated_at`

const packageGuestColumns = `
	g.id, g.purchase_id, p.venue_id, g.guest_number, g.scan_code,
	g.user_id, g.name, g.phone, g.email, g.is_primary, g.redemption_status,
	g.created_at, g.updated_at`

const redemptionColumns = `
	id, purchase_id, package_item_id, package_guest_id, quantity, operator_id, redeemed_at`

func scanPurchase(row pgx.Row) (*model.PackagePurchase, error) {
	var p model.PackagePurchase
	err := row.Scan(
		&p.ID,
		&p.PackageID,
		&p.VenueID,
		&p.ScanCode,
		&p.PurchaserUserID,
		&p.PurchaserName,
		&p.GuestCount,
		&p.Status,
		&p.AmountPaid,
		&p.PurchasedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPackageGuest(row pgx.Row) (*model.PackageGuest, error) {
	var g model.PackageGuest
	err := row.Scan(
		&g.ID,
		&g.PurchaseID,
		&g.VenueID,
		&g.GuestNumber,
		&g.ScanCode,
		&g.Identity.UserID,
		&g.Identity.Name,
		&g.Identity.Phone,
		&g.Identity.Email,
		&g.IsPrimary,
		&g.RedemptionStatus,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func scanRedemption(row pgx.Row) (*model.PackageRedemption, error) {
	var r model.PackageRedemption
	err := row.Scan(
		&r.ID,
		&r.PurchaseID,
		&r.PackageItemID,
		&r.PackageGuestID,
		&r.Quantity,
		&r.OperatorID,
		&r.RedeemedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *PackageRepositoryImpl) FindPurchaseByID(ctx context.Context, id uuid.UUID) (*model.PackagePurchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM package_purchases WHERE id = $1`

	purchase, err := scanPurchase(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("package purchase", id.String())
		}
		return nil, err
	}
	return purchase, nil
}

func (r *PackageRepositoryImpl) FindPurchaseByScanCode(ctx context.Context, venueID uuid.UUID, code string) (*model.PackagePurchase, error) {
	query := `
		SELECT ` + purchaseColumns + `
		FROM package_purchases
		WHERE LOWER(scan_code) = LOWER(TRIM($2))
		ORDER BY (venue_id = $1) DESC
		LIMIT 1
	`

	purchase, err := scanPurchase(r.pool.QueryRow(ctx, query, venueID, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("package purchase", code)
		}
		return nil, err
	}
	return purchase, nil
}

func (r *PackageRepositoryImpl) FindGuestByID(ctx context.Context, id uuid.UUID) (*model.PackageGuest, error) {
	query := `
		SELECT ` + packageGuestColumns + `
		FROM package_guests g
		JOIN package_purchases p ON p.id = g.purchase_id
		WHERE g.id = $1
	`

	guest, err := scanPackageGuest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("package guest", id.String())
		}
		return nil, err
	}
	return guest, nil
}

func (r *PackageRepositoryImpl) FindGuestByScanCode(ctx context.Context, code string) (*model.PackageGuest, error) {
	query := `
		SELECT ` + packageGuestColumns + `
		FROM package_guests g
		JOIN package_purchases p ON p.id = g.purchase_id
		WHERE g.scan_code = $1
	`

	guest, err := scanPackageGuest(r.pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("package guest", code)
		}
		return nil, err
	}
	return guest, nil
}

func (r *PackageRepositoryImpl) ListGuests(ctx context.Context, purchaseID uuid.UUID) ([]*model.PackageGuest, error) {
	query := `
		SELECT ` + packageGuestColumns + `
		FROM package_guests g
		JOIN package_purchases p ON p.id = g.purchase_id
		WHERE g.purchase_id = $1
		ORDER BY g.guest_number
	`

	rows, err := r.pool.Query(ctx, query, purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	guests := make([]*model.PackageGuest, 0)
	for rows.Next() {
		guest, err := scanPackageGuest(rows)
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

func (r *PackageRepositoryImpl) ListItems(ctx context.Context, packageID uuid.UUID) ([]*model.PackageItem, error) {
	return listItems(ctx, r.pool, packageID)
}

func (r *PackageRepositoryImpl) RedeemedTotals(ctx context.Context, purchaseID uuid.UUID) (map[uuid.UUID]int, error) {
	return redeemedTotals(ctx, r.pool, purchaseID, nil)
}

func (r *PackageRepositoryImpl) ListRedemptions(ctx context.Context, purchaseID uuid.UUID) ([]*model.PackageRedemption, error) {
	query := `
		SELECT ` + redemptionColumns + `
		FROM package_redemptions
		WHERE purchase_id = $1
		ORDER BY redeemed_at DESC, id
	`

	rows, err := r.pool.Query(ctx, query, purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	redemptions := make([]*model.PackageRedemption, 0)
	for rows.Next() {
		redemption, err := scanRedemption(rows)
		if err != nil {
			return nil, err
		}
		redemptions = append(redemptions, redemption)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return redemptions, nil
}

func (r *PackageRepositoryImpl) EnsurePrimaryGuest(ctx context.Context, purchaseID uuid.UUID, identity model.GuestIdentity, scanCode string) (*model.PackageGuest, bool, error) {
	insert := `
		INSERT INTO package_guests (purchase_id, guest_number, scan_code, user_id, name, phone, email, is_primary)
		SELECT p.id, 1, $2, $3, $4, $5, $6, TRUE
		FROM package_purchases p
		WHERE p.id = $1
		ON CONFLICT DO NOTHING
		RETURNING id
	`

	var id uuid.UUID
	err := r.pool.QueryRow(ctx, insert,
		purchaseID, scanCode, identity.UserID, identity.Name, identity.Phone, identity.Email,
	).Scan(&id)
	if err == nil {
		guest, err := r.FindGuestByID(ctx, id)
		return guest, true, err
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("insert primary package guest: %w", err)
	}

	query := `
		SELECT ` + packageGuestColumns + `
		FROM package_guests g
		JOIN package_purchases p ON p.id = g.purchase_id
		WHERE g.purchase_id = $1 AND g.is_primary
	`
	guest, err := scanPackageGuest(r.pool.QueryRow(ctx, query, purchaseID))
	if err == nil {
		return guest, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}
	if _, err := r.FindPurchaseByID(ctx, purchaseID); err != nil {
		return nil, false, err
	}
	return nil, false, ErrScanCodeConflict
}

// AddGuest 在購買列鎖內取下一個 guest_number，不超過 guest_count
func (r *PackageRepositoryImpl) AddGuest(ctx context.Context, purchaseID uuid.UUID, identity model.GuestIdentity, scanCode string) (*model.PackageGuest, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var guestCount int
	err = tx.QueryRow(ctx, `SELECT guest_count FROM package_purchases WHERE id = $1 FOR UPDATE`, purchaseID).Scan(&guestCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("package purchase", purchaseID.String())
		}
		return nil, err
	}

	var count, maxNumber int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(MAX(guest_number), 0) FROM package_guests WHERE purchase_id = $1`,
		purchaseID,
	).Scan(&count, &maxNumber)
	if err != nil {
		return nil, err
	}
	if count >= guestCount {
		return nil, apperrors.NewValidationError("guests", fmt.Sprintf("purchase already has %d of %d guests", count, guestCount))
	}

	var id uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO package_guests (purchase_id, guest_number, scan_code, user_id, name, phone, email, is_primary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, purchaseID, maxNumber+1, scanCode, identity.UserID, identity.Name, identity.Phone, identity.Email, count == 0,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrScanCodeConflict
		}
		return nil, fmt.Errorf("insert package guest: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return r.FindGuestByID(ctx, id)
}

func (r *PackageRepositoryImpl) WithPurchaseLock(ctx context.Context, purchaseID uuid.UUID, fn func(ctx context.Context, tx PurchaseLedgerTx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + purchaseColumns + ` FROM package_purchases WHERE id = $1 FOR UPDATE`
	purchase, err := scanPurchase(tx.QueryRow(ctx, query, purchaseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFoundError("package purchase", purchaseID.String())
		}
		return fmt.Errorf("lock purchase: %w", err)
	}

	if err := fn(ctx, &purchaseLedgerTx{tx: tx, purchase: purchase}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

type purchaseLedgerTx struct {
	tx       pgx.Tx
	purchase *model.PackagePurchase
}

func (t *purchaseLedgerTx) Purchase() *model.PackagePurchase {
	return t.purchase
}

func (t *purchaseLedgerTx) Items(ctx context.Context) ([]*model.PackageItem, error) {
	return listItems(ctx, t.tx, t.purchase.PackageID)
}

func (t *purchaseLedgerTx) RedeemedTotals(ctx context.Context) (map[uuid.UUID]int, error) {
	return redeemedTotals(ctx, t.tx, t.purchase.ID, nil)
}

func (t *purchaseLedgerTx) GuestRedeemedTotals(ctx context.Context, guestID uuid.UUID) (map[uuid.UUID]int, error) {
	return redeemedTotals(ctx, t.tx, t.purchase.ID, &guestID)
}

func (t *purchaseLedgerTx) InsertRedemption(ctx context.Context, redemption *model.PackageRedemption) error {
	query := `
		INSERT INTO package_redemptions (purchase_id, package_item_id, package_guest_id, quantity, operator_id, redeemed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := t.tx.QueryRow(ctx, query,
		t.purchase.ID, redemption.PackageItemID, redemption.PackageGuestID,
		redemption.Quantity, redemption.OperatorID, redemption.RedeemedAt,
	).Scan(&redemption.ID)
	if err != nil {
		return fmt.Errorf("insert redemption: %w", err)
	}
	redemption.PurchaseID = t.purchase.ID
	return nil
}

func (t *purchaseLedgerTx) UpdatePurchaseStatus(ctx context.Context, status model.PurchaseStatus) error {
	if status == t.purchase.Status {
		return nil
	}

	_, err := t.tx.Exec(ctx,
		`UPDATE package_purchases SET status = $2, updated_at = NOW() WHERE id = $1`,
		t.purchase.ID, string(status),
	)
	if err != nil {
		return fmt.Errorf("update purchase status: %w", err)
	}
	t.purchase.Status = status
	return nil
}

func (t *purchaseLedgerTx) UpdateGuestStatus(ctx context.Context, guestID uuid.UUID, status model.GuestRedemptionStatus) error {
	result, err := t.tx.Exec(ctx,
		`UPDATE package_guests SET redemption_status = $3, updated_at = NOW() WHERE id = $1 AND purchase_id = $2`,
		guestID, t.purchase.ID, string(status),
	)
	if err != nil {
		return fmt.Errorf("update guest status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("package guest", guestID.String())
	}
	return nil
}

// querier pool 與 tx 共用的查詢介面
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listItems(ctx context.Context, q querier, packageID uuid.UUID) ([]*model.PackageItem, error) {
	query := `
		SELECT id, package_id, name, kind, quantity, redemption_rule
		FROM package_items
		WHERE package_id = $1
		ORDER BY sort_order, name
	`

	rows, err := q.Query(ctx, query, packageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*model.PackageItem, 0)
	for rows.Next() {
		var item model.PackageItem
		err := rows.Scan(
			&item.ID,
			&item.PackageID,
			&item.Name,
			&item.Kind,
			&item.Quantity,
			&item.RedemptionRule,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, &item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

// redeemedTotals 每個項目的累計兌換數；guestID 非 nil 時只算該 guest 的
func redeemedTotals(ctx context.Context, q querier, purchaseID uuid.UUID, guestID *uuid.UUID) (map[uuid.UUID]int, error) {
	query := `
		SELECT package_item_id, SUM(quantity)::int
		FROM package_redemptions
		WHERE purchase_id = $1 AND ($2::uuid IS NULL OR package_guest_id = $2::uuid)
		GROUP BY package_item_id
	`

	rows, err := q.Query(ctx, query, purchaseID, guestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[uuid.UUID]int)
	for rows.Next() {
		var itemID uuid.UUID
		var sum int
		if err := rows.Scan(&itemID, &sum); err != nil {
			return nil, err
		}
		totals[itemID] = sum
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return totals, nil
}
