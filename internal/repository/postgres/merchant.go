package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
)

const merchantColumns = `id, name, email, business_type, address, latitude, longitude, COALESCE(phone, ''), COALESCE(description, ''), is_active, created_at`

const merchantCouponColumns = `id, merchant_id, code, title, description, discount_type, discount_value, max_discount, min_purchase, radius_km, min_rides_required, min_fare_spent, usage_limit, usage_count, valid_until, is_active, created_at`

// MerchantRepository is a PostgreSQL implementation of
// repository.MerchantRepository.
type MerchantRepository struct {
	db *sql.DB
}

// NewMerchantRepository creates a new PostgreSQL merchant repository.
func NewMerchantRepository(db *sql.DB) *MerchantRepository {
	return &MerchantRepository{db: db}
}

// CreateMerchant persists a new merchant.
func (r *MerchantRepository) CreateMerchant(ctx context.Context, merchant *domain.Merchant) error {
	query := `
		INSERT INTO merchants (id, name, email, business_type, address, latitude, longitude, phone, description, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		merchant.ID,
		merchant.Name,
		merchant.Email,
		merchant.BusinessType,
		merchant.Address,
		merchant.Lat,
		merchant.Lng,
		nullString(merchant.Phone),
		nullString(merchant.Description),
		merchant.IsActive,
		merchant.CreatedAt,
	)
	return err
}

// GetMerchantByID retrieves a merchant by ID.
func (r *MerchantRepository) GetMerchantByID(ctx context.Context, id string) (*domain.Merchant, error) {
	query := `SELECT ` + merchantColumns + ` FROM merchants WHERE id = $1`
	return scanMerchant(r.db.QueryRowContext(ctx, query, id))
}

// GetMerchantByEmail retrieves a merchant by email.
func (r *MerchantRepository) GetMerchantByEmail(ctx context.Context, email string) (*domain.Merchant, error) {
	query := `SELECT ` + merchantColumns + ` FROM merchants WHERE email = $1`
	return scanMerchant(r.db.QueryRowContext(ctx, query, email))
}

// CreateCoupon persists a new merchant coupon.
func (r *MerchantRepository) CreateCoupon(ctx context.Context, coupon *domain.MerchantCoupon) error {
	query := `
		INSERT INTO merchant_coupons (` + merchantCouponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := r.db.ExecContext(ctx, query,
		coupon.ID,
		coupon.MerchantID,
		coupon.Code,
		coupon.Title,
		coupon.Description,
		coupon.DiscountType,
		coupon.DiscountValue,
		nullFloat(coupon.MaxDiscount),
		coupon.MinPurchase,
		coupon.RadiusKm,
		coupon.MinRidesRequired,
		coupon.MinFareSpent,
		nullInt(coupon.UsageLimit),
		coupon.UsageCount,
		coupon.ValidUntil,
		coupon.IsActive,
		coupon.CreatedAt,
	)
	return err
}

// GetCouponByID retrieves a merchant coupon by ID.
func (r *MerchantRepository) GetCouponByID(ctx context.Context, id string) (*domain.MerchantCoupon, error) {
	query := `SELECT ` + merchantCouponColumns + ` FROM merchant_coupons WHERE id = $1`
	coupon, err := scanMerchantCouponFrom(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return coupon, nil
}

// ListCouponsByMerchant retrieves all of a merchant's coupons.
func (r *MerchantRepository) ListCouponsByMerchant(ctx context.Context, merchantID string) ([]*domain.MerchantCoupon, error) {
	query := `SELECT ` + merchantCouponColumns + ` FROM merchant_coupons WHERE merchant_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var coupons []*domain.MerchantCoupon
	for rows.Next() {
		coupon, err := scanMerchantCouponFrom(rows)
		if err != nil {
			return nil, err
		}
		coupons = append(coupons, coupon)
	}
	return coupons, rows.Err()
}

// ListActiveOffers retrieves every active coupon joined with its merchant.
func (r *MerchantRepository) ListActiveOffers(ctx context.Context) ([]repository.MerchantOffer, error) {
	query := `
		SELECT c.id, c.merchant_id, c.code, c.title, c.description, c.discount_type, c.discount_value,
		       c.max_discount, c.min_purchase, c.radius_km, c.min_rides_required, c.min_fare_spent,
		       c.usage_limit, c.usage_count, c.valid_until, c.is_active, c.created_at,
		       m.id, m.name, m.email, m.business_type, m.address, m.latitude, m.longitude,
		       COALESCE(m.phone, ''), COALESCE(m.description, ''), m.is_active, m.created_at
		FROM merchant_coupons c
		JOIN merchants m ON m.id = c.merchant_id
		WHERE c.is_active = TRUE AND m.is_active = TRUE
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offers []repository.MerchantOffer
	for rows.Next() {
		var coupon domain.MerchantCoupon
		var merchant domain.Merchant
		var maxDiscount sql.NullFloat64
		var usageLimit sql.NullInt64

		if err := rows.Scan(
			&coupon.ID, &coupon.MerchantID, &coupon.Code, &coupon.Title, &coupon.Description,
			&coupon.DiscountType, &coupon.DiscountValue, &maxDiscount, &coupon.MinPurchase,
			&coupon.RadiusKm, &coupon.MinRidesRequired, &coupon.MinFareSpent,
			&usageLimit, &coupon.UsageCount, &coupon.ValidUntil, &coupon.IsActive, &coupon.CreatedAt,
			&merchant.ID, &merchant.Name, &merchant.Email, &merchant.BusinessType, &merchant.Address,
			&merchant.Lat, &merchant.Lng, &merchant.Phone, &merchant.Description,
			&merchant.IsActive, &merchant.CreatedAt,
		); err != nil {
			return nil, err
		}

		if maxDiscount.Valid {
			coupon.MaxDiscount = maxDiscount.Float64
		}
		if usageLimit.Valid {
			coupon.UsageLimit = int(usageLimit.Int64)
		}
		offers = append(offers, repository.MerchantOffer{Coupon: &coupon, Merchant: &merchant})
	}
	return offers, rows.Err()
}

// SetCouponActive flips a coupon's active flag.
func (r *MerchantRepository) SetCouponActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE merchant_coupons SET is_active = $1 WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, active, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Redeem atomically increments the coupon's usage counter and appends the
// redemption record. The unique (coupon, rider, ride) index enforces dedupe;
// the conditional update enforces the usage limit.
func (r *MerchantRepository) Redeem(ctx context.Context, redemption *domain.Redemption) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE merchant_coupons
		SET usage_count = usage_count + 1
		WHERE id = $1 AND (usage_limit IS NULL OR usage_count < usage_limit)
	`, redemption.CouponID)
	if err != nil {
		return err
	}

	updated, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if updated == 0 {
		err = repository.ErrCouponLimitReached
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO coupon_redemptions (id, coupon_id, rider_id, ride_id, amount, redeemed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, redemption.ID, redemption.CouponID, redemption.RiderID, redemption.RideID, redemption.Amount, redemption.RedeemedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			err = repository.ErrAlreadyRedeemed
		}
		return err
	}

	return tx.Commit()
}

// ListRedemptionsByMerchant retrieves redemptions of the merchant's coupons,
// newest first.
func (r *MerchantRepository) ListRedemptionsByMerchant(ctx context.Context, merchantID string) ([]*domain.Redemption, error) {
	query := `
		SELECT r.id, r.coupon_id, r.rider_id, r.ride_id, r.amount, r.redeemed_at
		FROM coupon_redemptions r
		JOIN merchant_coupons c ON c.id = r.coupon_id
		WHERE c.merchant_id = $1
		ORDER BY r.redeemed_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var redemptions []*domain.Redemption
	for rows.Next() {
		var redemption domain.Redemption
		if err := rows.Scan(
			&redemption.ID,
			&redemption.CouponID,
			&redemption.RiderID,
			&redemption.RideID,
			&redemption.Amount,
			&redemption.RedeemedAt,
		); err != nil {
			return nil, err
		}
		redemptions = append(redemptions, &redemption)
	}
	return redemptions, rows.Err()
}

func scanMerchant(row *sql.Row) (*domain.Merchant, error) {
	var merchant domain.Merchant
	err := row.Scan(
		&merchant.ID,
		&merchant.Name,
		&merchant.Email,
		&merchant.BusinessType,
		&merchant.Address,
		&merchant.Lat,
		&merchant.Lng,
		&merchant.Phone,
		&merchant.Description,
		&merchant.IsActive,
		&merchant.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &merchant, nil
}

func scanMerchantCouponFrom(s couponScanner) (*domain.MerchantCoupon, error) {
	var coupon domain.MerchantCoupon
	var maxDiscount sql.NullFloat64
	var usageLimit sql.NullInt64

	if err := s.Scan(
		&coupon.ID,
		&coupon.MerchantID,
		&coupon.Code,
		&coupon.Title,
		&coupon.Description,
		&coupon.DiscountType,
		&coupon.DiscountValue,
		&maxDiscount,
		&coupon.MinPurchase,
		&coupon.RadiusKm,
		&coupon.MinRidesRequired,
		&coupon.MinFareSpent,
		&usageLimit,
		&coupon.UsageCount,
		&coupon.ValidUntil,
		&coupon.IsActive,
		&coupon.CreatedAt,
	); err != nil {
		return nil, err
	}

	if maxDiscount.Valid {
		coupon.MaxDiscount = maxDiscount.Float64
	}
	if usageLimit.Valid {
		coupon.UsageLimit = int(usageLimit.Int64)
	}
	return &coupon, nil
}
