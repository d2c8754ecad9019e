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

// auditQueryFields whitelists the columns an audit query may filter on.
var auditQueryFields = map[string]bool{
	"request_id":     true,
	"transaction_id": true,
	"user_id":        true,
}

// AuditRepository provides data access for audit records using pgx.
type AuditRepository struct {
	pool PoolInterface
}

// NewAuditRepository creates a new AuditRepository with the given pool.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// NewAuditRepositoryWithPool creates a new AuditRepository with a custom
// pool interface. This is primarily used for testing.
func NewAuditRepositoryWithPool(pool PoolInterface) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Insert creates a new audit record within a transaction.
// Returns service.ErrDuplicateRequest if the request_id has already been
// used for this pool; the caller then inspects the existing record to
// distinguish a replay from a conflict.
func (r *AuditRepository) Insert(ctx context.Context, tx database.TxQuerier, pool string, params model.AuditParams, requestData string) error {
	query := `
		INSERT INTO voucher_audit (pool, request_id, transaction_id, user_id, request_data)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := tx.Exec(ctx, query, pool, params.RequestID, params.TransactionID, params.UserID, requestData)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return service.ErrDuplicateRequest
		}
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// SetOutcome records the result of the audited operation. It runs in the
// same transaction as the operation itself, so a committed audit record
// always carries its final outcome and is immutable afterwards.
func (r *AuditRepository) SetOutcome(ctx context.Context, tx database.TxQuerier, pool, requestID, responseData, errorToken string) error {
	query := `
		UPDATE voucher_audit
		SET response_data = $3, error = $4
		WHERE pool = $1 AND request_id = $2`

	_, err := tx.Exec(ctx, query, pool, requestID, responseData, errorToken)
	if err != nil {
		return fmt.Errorf("set audit outcome for %s: %w", requestID, err)
	}
	return nil
}

// GetByRequestID fetches the audit record for a request id.
// Returns nil, nil when no record exists.
func (r *AuditRepository) GetByRequestID(ctx context.Context, pool, requestID string) (*model.AuditRecord, error) {
	query := `
		SELECT pool, request_id, transaction_id, user_id, request_data, response_data, error, created_at
		FROM voucher_audit
		WHERE pool = $1 AND request_id = $2`

	var rec model.AuditRecord
	err := r.pool.QueryRow(ctx, query, pool, requestID).Scan(
		&rec.Pool,
		&rec.RequestID,
		&rec.TransactionID,
		&rec.UserID,
		&rec.RequestData,
		&rec.ResponseData,
		&rec.Error,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found - let service handle
		}
		return nil, fmt.Errorf("get audit record %s: %w", requestID, err)
	}
	return &rec, nil
}

// QueryByField returns all audit records where the named column equals
// value, oldest first. field must be request_id, transaction_id or user_id;
// anything else returns service.ErrInvalidAuditField.
func (r *AuditRepository) QueryByField(ctx context.Context, pool, field, value string) ([]model.AuditRecord, error) {
	if !auditQueryFields[field] {
		return nil, service.ErrInvalidAuditField
	}

	// field is whitelisted above, never raw caller input.
	query := fmt.Sprintf(`
		SELECT pool, request_id, transaction_id, user_id, request_data, response_data, error, created_at
		FROM voucher_audit
		WHERE pool = $1 AND %s = $2
		ORDER BY created_at, id`, field)

	rows, err := r.pool.Query(ctx, query, pool, value)
	if err != nil {
		return nil, fmt.Errorf("query audit by %s: %w", field, err)
	}
	defer rows.Close()

	records := []model.AuditRecord{}
	for rows.Next() {
		var rec model.AuditRecord
		if err := rows.Scan(
			&rec.Pool,
			&rec.RequestID,
			&rec.TransactionID,
			&rec.UserID,
			&rec.RequestData,
			&rec.ResponseData,
			&rec.Error,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}
