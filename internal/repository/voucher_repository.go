package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/praekelt/airtime-voucher-service/internal/model"
	"github.com/praekelt/airtime-voucher-service/internal/service"
	"github.com/praekelt/airtime-voucher-service/pkg/database"
)

// PoolInterface defines the database operations needed by repositories.
// This allows for easier testing with mocks.
type PoolInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// VoucherRepository provides data access for vouchers using pgx.
type VoucherRepository struct {
	pool PoolInterface
}

// NewVoucherRepository creates a new VoucherRepository with the given pool.
func NewVoucherRepository(pool *pgxpool.Pool) *VoucherRepository {
	return &VoucherRepository{pool: pool}
}

// NewVoucherRepositoryWithPool creates a new VoucherRepository with a custom
// pool interface. This is primarily used for testing.
func NewVoucherRepositoryWithPool(pool PoolInterface) *VoucherRepository {
	return &VoucherRepository{pool: pool}
}

// EnsurePool registers a pool, creating it if it does not exist yet.
// Pools are created implicitly by the first successful import.
func (r *VoucherRepository) EnsurePool(ctx context.Context, tx database.TxQuerier, pool string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO voucher_pools (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`,
		pool)
	if err != nil {
		return fmt.Errorf("ensure pool %s: %w", pool, err)
	}
	return nil
}

// PoolExists reports whether the pool has been imported into at least once.
func (r *VoucherRepository) PoolExists(ctx context.Context, tx database.TxQuerier, pool string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM voucher_pools WHERE name = $1)`,
		pool).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pool %s: %w", pool, err)
	}
	return exists, nil
}

// InsertVouchers bulk-inserts voucher rows within a transaction.
// Returns service.ErrDuplicateVoucher if any row collides with an existing
// (pool, operator, denomination, voucher) tuple; the transaction must then
// be rolled back so partial imports are never persisted.
func (r *VoucherRepository) InsertVouchers(ctx context.Context, tx database.TxQuerier, pool string, rows []model.VoucherInput) error {
	if len(rows) == 0 {
		return nil
	}

	operators := make([]string, len(rows))
	denominations := make([]string, len(rows))
	vouchers := make([]string, len(rows))
	for i, row := range rows {
		operators[i] = row.Operator
		denominations[i] = row.Denomination
		vouchers[i] = row.Voucher
	}

	query := `
		INSERT INTO vouchers (pool, operator, denomination, voucher)
		SELECT $1, unnest($2::text[]), unnest($3::text[]), unnest($4::text[])`

	_, err := tx.Exec(ctx, query, pool, operators, denominations, vouchers)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return service.ErrDuplicateVoucher
		}
		return fmt.Errorf("insert vouchers: %w", err)
	}
	return nil
}

// ClaimVoucher atomically marks one unused voucher matching (operator,
// denomination) as used and returns it. SKIP LOCKED guarantees two
// concurrent claims never return the same row.
// Returns service.ErrNoVoucherAvailable when no unused voucher matches.
func (r *VoucherRepository) ClaimVoucher(ctx context.Context, tx database.TxQuerier, pool, operator, denomination string) (*model.Voucher, error) {
	query := `
		UPDATE vouchers
		SET used = TRUE, reason = $4, modified_at = now()
		WHERE id = (
			SELECT id FROM vouchers
			WHERE pool = $1 AND operator = $2 AND denomination = $3 AND NOT used
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, pool, operator, denomination, voucher, used, reason, created_at, modified_at`

	var v model.Voucher
	err := tx.QueryRow(ctx, query, pool, operator, denomination, model.ReasonIssued).Scan(
		&v.ID,
		&v.Pool,
		&v.Operator,
		&v.Denomination,
		&v.Voucher,
		&v.Used,
		&v.Reason,
		&v.CreatedAt,
		&v.ModifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrNoVoucherAvailable
		}
		return nil, fmt.Errorf("claim voucher %s/%s in %s: %w", operator, denomination, pool, err)
	}
	return &v, nil
}

// ClaimBatch atomically marks up to limit unused vouchers matching
// (operator, denomination) as used and returns them. A limit below zero
// claims every matching voucher.
func (r *VoucherRepository) ClaimBatch(ctx context.Context, tx database.TxQuerier, pool, operator, denomination string, limit int) ([]model.Voucher, error) {
	query := `
		UPDATE vouchers
		SET used = TRUE, reason = $4, modified_at = now()
		WHERE id IN (
			SELECT id FROM vouchers
			WHERE pool = $1 AND operator = $2 AND denomination = $3 AND NOT used
			ORDER BY created_at
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, pool, operator, denomination, voucher, used, reason, created_at, modified_at`

	// NULL LIMIT means no limit in PostgreSQL.
	var limitArg any
	if limit >= 0 {
		limitArg = limit
	}

	rows, err := tx.Query(ctx, query, pool, operator, denomination, model.ReasonExported, limitArg)
	if err != nil {
		return nil, fmt.Errorf("claim batch %s/%s in %s: %w", operator, denomination, pool, err)
	}
	defer rows.Close()

	var claimed []model.Voucher
	for rows.Next() {
		var v model.Voucher
		if err := rows.Scan(
			&v.ID,
			&v.Pool,
			&v.Operator,
			&v.Denomination,
			&v.Voucher,
			&v.Used,
			&v.Reason,
			&v.CreatedAt,
			&v.ModifiedAt,
		); err != nil {
			return nil, fmt.Errorf("scan claimed voucher: %w", err)
		}
		claimed = append(claimed, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claimed vouchers: %w", err)
	}
	return claimed, nil
}

// DistinctOperators returns the operators present among unused vouchers.
func (r *VoucherRepository) DistinctOperators(ctx context.Context, tx database.TxQuerier, pool string) ([]string, error) {
	return r.distinctColumn(ctx, tx, pool, "operator")
}

// DistinctDenominations returns the denominations present among unused vouchers.
func (r *VoucherRepository) DistinctDenominations(ctx context.Context, tx database.TxQuerier, pool string) ([]string, error) {
	return r.distinctColumn(ctx, tx, pool, "denomination")
}

func (r *VoucherRepository) distinctColumn(ctx context.Context, tx database.TxQuerier, pool, column string) ([]string, error) {
	// column is one of two compile-time constants, never caller input.
	query := fmt.Sprintf(
		`SELECT DISTINCT %s FROM vouchers WHERE pool = $1 AND NOT used ORDER BY %s`,
		column, column)

	rows, err := tx.Query(ctx, query, pool)
	if err != nil {
		return nil, fmt.Errorf("distinct %s for %s: %w", column, pool, err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", column, err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", column, err)
	}
	return values, nil
}

// CountVouchers returns the (operator, denomination, used) inventory buckets
// for a pool. Returns an empty slice for an empty pool.
func (r *VoucherRepository) CountVouchers(ctx context.Context, pool string) ([]model.VoucherCount, error) {
	query := `
		SELECT operator, denomination, used, count(voucher)
		FROM vouchers
		WHERE pool = $1
		GROUP BY operator, denomination, used
		ORDER BY operator, denomination, used`

	rows, err := r.pool.Query(ctx, query, pool)
	if err != nil {
		return nil, fmt.Errorf("count vouchers for %s: %w", pool, err)
	}
	defer rows.Close()

	counts := []model.VoucherCount{}
	for rows.Next() {
		var c model.VoucherCount
		if err := rows.Scan(&c.Operator, &c.Denomination, &c.Used, &c.Count); err != nil {
			return nil, fmt.Errorf("scan voucher count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate voucher counts: %w", err)
	}
	return counts, nil
}

// PoolExistsDirect checks pool existence outside any transaction.
// Used by the read-only operations.
func (r *VoucherRepository) PoolExistsDirect(ctx context.Context, pool string) (bool, error) {
	return r.PoolExists(ctx, r.pool, pool)
}
