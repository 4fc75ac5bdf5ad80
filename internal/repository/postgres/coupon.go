package postgres

import (
	"context"
	"database/sql"
	"errors"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
)

const couponColumns = `id, code, discount_type, discount_value, max_discount, min_fare, valid_from, valid_until, total_usage_limit, per_user_limit, usage_count, zone, is_active, created_at`

// CouponRepository is a PostgreSQL implementation of repository.CouponRepository.
type CouponRepository struct {
	db *sql.DB
}

// NewCouponRepository creates a new PostgreSQL coupon repository.
func NewCouponRepository(db *sql.DB) *CouponRepository {
	return &CouponRepository{db: db}
}

// Create persists a new coupon.
func (r *CouponRepository) Create(ctx context.Context, coupon *domain.Coupon) error {
	query := `
		INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.ExecContext(ctx, query,
		coupon.ID,
		coupon.Code,
		coupon.DiscountType,
		coupon.DiscountValue,
		nullFloat(coupon.MaxDiscount),
		coupon.MinFare,
		coupon.ValidFrom,
		coupon.ValidUntil,
		nullInt(coupon.TotalUsageLimit),
		coupon.PerUserLimit,
		coupon.UsageCount,
		nullString(coupon.Zone),
		coupon.IsActive,
		coupon.CreatedAt,
	)
	return err
}

// GetByCode retrieves an active coupon by code.
func (r *CouponRepository) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1 AND is_active = TRUE`
	return scanCoupon(r.db.QueryRowContext(ctx, query, code))
}

// ListActive retrieves all active coupons.
func (r *CouponRepository) ListActive(ctx context.Context) ([]*domain.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE is_active = TRUE ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var coupons []*domain.Coupon
	for rows.Next() {
		coupon, err := scanCouponRows(rows)
		if err != nil {
			return nil, err
		}
		coupons = append(coupons, coupon)
	}
	return coupons, rows.Err()
}

// UsageForRider returns how many times the rider has used the coupon.
func (r *CouponRepository) UsageForRider(ctx context.Context, couponID, riderID string) (int, error) {
	query := `SELECT COUNT(*) FROM coupon_commits WHERE coupon_id = $1 AND rider_id = $2`

	var count int
	err := r.db.QueryRowContext(ctx, query, couponID, riderID).Scan(&count)
	return count, err
}

// CommitUsage atomically increments the coupon's total and per-rider usage
// counters. The commit ledger row doubles as the idempotency key: a retried
// booking for the same ride inserts nothing and leaves the counters alone.
func (r *CouponRepository) CommitUsage(ctx context.Context, couponID, riderID, rideID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Serialize commits per coupon on the row lock first. The ledger count
	// below runs in a statement started after the lock wait, so it sees
	// every commit that beat us here; counting inside the guarded UPDATE
	// would reuse that statement's snapshot and miss them.
	var usageCount int
	err = tx.QueryRowContext(ctx,
		`SELECT usage_count FROM coupons WHERE id = $1 FOR UPDATE`, couponID,
	).Scan(&usageCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = repository.ErrNotFound
		}
		return err
	}

	// Idempotency: one ledger row per (coupon, ride).
	result, err := tx.ExecContext(ctx, `
		INSERT INTO coupon_commits (coupon_id, rider_id, ride_id, committed_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (coupon_id, ride_id) DO NOTHING
	`, couponID, riderID, rideID)
	if err != nil {
		return err
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if inserted == 0 {
		// Already committed for this ride.
		return tx.Commit()
	}

	var riderUses int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM coupon_commits WHERE coupon_id = $1 AND rider_id = $2`,
		couponID, riderID,
	).Scan(&riderUses)
	if err != nil {
		return err
	}

	// riderUses includes the row inserted above. A failed guard rolls the
	// whole transaction back, ledger row included.
	result, err = tx.ExecContext(ctx, `
		UPDATE coupons
		SET usage_count = usage_count + 1
		WHERE id = $1
		  AND (total_usage_limit IS NULL OR usage_count < total_usage_limit)
		  AND per_user_limit >= $2
	`, couponID, riderUses)
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

	return tx.Commit()
}

type couponScanner interface {
	Scan(dest ...any) error
}

func scanCoupon(row *sql.Row) (*domain.Coupon, error) {
	coupon, err := scanCouponFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return coupon, nil
}

func scanCouponRows(rows *sql.Rows) (*domain.Coupon, error) {
	return scanCouponFrom(rows)
}

func scanCouponFrom(s couponScanner) (*domain.Coupon, error) {
	var coupon domain.Coupon
	var maxDiscount sql.NullFloat64
	var totalLimit sql.NullInt64
	var zone sql.NullString

	if err := s.Scan(
		&coupon.ID,
		&coupon.Code,
		&coupon.DiscountType,
		&coupon.DiscountValue,
		&maxDiscount,
		&coupon.MinFare,
		&coupon.ValidFrom,
		&coupon.ValidUntil,
		&totalLimit,
		&coupon.PerUserLimit,
		&coupon.UsageCount,
		&zone,
		&coupon.IsActive,
		&coupon.CreatedAt,
	); err != nil {
		return nil, err
	}

	if maxDiscount.Valid {
		coupon.MaxDiscount = maxDiscount.Float64
	}
	if totalLimit.Valid {
		coupon.TotalUsageLimit = int(totalLimit.Int64)
	}
	if zone.Valid {
		coupon.Zone = zone.String
	}
	return &coupon, nil
}

func nullFloat(v float64) sql.NullFloat64 {
	if v == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func nullInt(v int) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(v), Valid: true}
}
