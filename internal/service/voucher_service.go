package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/praekelt/airtime-voucher-service/internal/model"
	"github.com/praekelt/airtime-voucher-service/pkg/database"
)

// noVoucherErrToken is the error token recorded in the audit log when an
// issue request finds no matching voucher. The audit row still commits so a
// replay returns the same answer.
const noVoucherErrToken = "no_voucher_available"

// VoucherRepositoryInterface defines the interface for voucher data access.
type VoucherRepositoryInterface interface {
	EnsurePool(ctx context.Context, tx database.TxQuerier, pool string) error
	PoolExists(ctx context.Context, tx database.TxQuerier, pool string) (bool, error)
	PoolExistsDirect(ctx context.Context, pool string) (bool, error)
	InsertVouchers(ctx context.Context, tx database.TxQuerier, pool string, rows []model.VoucherInput) error
	ClaimVoucher(ctx context.Context, tx database.TxQuerier, pool, operator, denomination string) (*model.Voucher, error)
	ClaimBatch(ctx context.Context, tx database.TxQuerier, pool, operator, denomination string, limit int) ([]model.Voucher, error)
	DistinctOperators(ctx context.Context, tx database.TxQuerier, pool string) ([]string, error)
	DistinctDenominations(ctx context.Context, tx database.TxQuerier, pool string) ([]string, error)
	CountVouchers(ctx context.Context, pool string) ([]model.VoucherCount, error)
}

// AuditRepositoryInterface defines the interface for audit record data access.
type AuditRepositoryInterface interface {
	Insert(ctx context.Context, tx database.TxQuerier, pool string, params model.AuditParams, requestData string) error
	SetOutcome(ctx context.Context, tx database.TxQuerier, pool, requestID, responseData, errorToken string) error
	GetByRequestID(ctx context.Context, pool, requestID string) (*model.AuditRecord, error)
	QueryByField(ctx context.Context, pool, field, value string) ([]model.AuditRecord, error)
}

// TxBeginner defines the interface for beginning transactions.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// VoucherService provides the pool operations: issue, import, export,
// counts and audit queries. Every mutating operation runs inside a single
// transaction spanning the audit insert, the state mutation and the audit
// outcome update.
type VoucherService struct {
	pool        TxBeginner
	voucherRepo VoucherRepositoryInterface
	auditRepo   AuditRepositoryInterface
}

// NewVoucherService creates a new VoucherService with the given pool and repositories.
func NewVoucherService(pool *pgxpool.Pool, voucherRepo VoucherRepositoryInterface, auditRepo AuditRepositoryInterface) *VoucherService {
	return &VoucherService{
		pool:        pool,
		voucherRepo: voucherRepo,
		auditRepo:   auditRepo,
	}
}

// NewVoucherServiceWithTxBeginner creates a VoucherService with a custom TxBeginner.
// Primarily used for testing.
func NewVoucherServiceWithTxBeginner(pool TxBeginner, voucherRepo VoucherRepositoryInterface, auditRepo AuditRepositoryInterface) *VoucherService {
	return &VoucherService{
		pool:        pool,
		voucherRepo: voucherRepo,
		auditRepo:   auditRepo,
	}
}

// IssueVoucher atomically issues one unused voucher matching (operator,
// denomination) and returns its voucher string.
// Returns:
//   - ErrNoVoucherPool if the pool has never been imported into
//   - ErrNoVoucherAvailable if no matching unused voucher exists (the audit
//     row is still committed, so a replay returns the same answer)
//   - ErrAuditMismatch if the request id was used with different parameters
func (s *VoucherService) IssueVoucher(ctx context.Context, pool, operator, denomination string, params model.AuditParams) (string, error) {
	fingerprint := issueFingerprint(operator, denomination)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	exists, err := s.voucherRepo.PoolExists(ctx, tx, pool)
	if err != nil {
		return "", fmt.Errorf("check pool: %w", err)
	}
	if !exists {
		return "", ErrNoVoucherPool
	}

	if err := s.auditRepo.Insert(ctx, tx, pool, params, fingerprint); err != nil {
		if errors.Is(err, ErrDuplicateRequest) {
			return s.replayIssue(ctx, pool, params.RequestID, fingerprint)
		}
		return "", fmt.Errorf("insert audit: %w", err)
	}

	voucher, err := s.voucherRepo.ClaimVoucher(ctx, tx, pool, operator, denomination)
	if err != nil {
		if errors.Is(err, ErrNoVoucherAvailable) {
			// Normal condition: commit the audit row with the sentinel token.
			if err := s.auditRepo.SetOutcome(ctx, tx, pool, params.RequestID, "", noVoucherErrToken); err != nil {
				return "", fmt.Errorf("set audit outcome: %w", err)
			}
			if err := tx.Commit(ctx); err != nil {
				return "", fmt.Errorf("commit tx: %w", err)
			}
			return "", ErrNoVoucherAvailable
		}
		return "", fmt.Errorf("claim voucher: %w", err)
	}

	responseData := mustMarshal(map[string]any{"voucher": voucher.Voucher})
	if err := s.auditRepo.SetOutcome(ctx, tx, pool, params.RequestID, responseData, ""); err != nil {
		return "", fmt.Errorf("set audit outcome: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit tx: %w", err)
	}
	return voucher.Voucher, nil
}

// replayIssue resolves a request_id collision for an issue request by
// inspecting the committed audit record.
func (s *VoucherService) replayIssue(ctx context.Context, pool, requestID, fingerprint string) (string, error) {
	rec, err := s.auditRepo.GetByRequestID(ctx, pool, requestID)
	if err != nil {
		return "", fmt.Errorf("read prior audit record: %w", err)
	}
	if rec == nil {
		// The conflicting transaction rolled back between our insert
		// failing and this read. Treat as retryable.
		return "", fmt.Errorf("audit record for %s vanished: %w", requestID, ErrDuplicateRequest)
	}
	if rec.RequestData != fingerprint {
		return "", ErrAuditMismatch
	}
	if rec.Error == noVoucherErrToken {
		return "", ErrNoVoucherAvailable
	}

	var prior struct {
		Voucher string `json:"voucher"`
	}
	if err := json.Unmarshal([]byte(rec.ResponseData), &prior); err != nil {
		return "", fmt.Errorf("decode prior response for %s: %w", requestID, err)
	}
	return prior.Voucher, nil
}

// ImportVouchers bulk-imports voucher rows into a pool, creating the pool on
// first import. The whole import commits as one transaction; any duplicate
// voucher aborts it so partial imports are never persisted.
// Returns:
//   - ErrDuplicateVoucher if any row already exists in the pool
//   - ErrAuditMismatch if the request id was used with a different content MD5
func (s *VoucherService) ImportVouchers(ctx context.Context, pool, requestID, contentMD5 string, rows []model.VoucherInput) error {
	fingerprint := importFingerprint(contentMD5)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.voucherRepo.EnsurePool(ctx, tx, pool); err != nil {
		return fmt.Errorf("ensure pool: %w", err)
	}

	params := model.AuditParams{RequestID: requestID}
	if err := s.auditRepo.Insert(ctx, tx, pool, params, fingerprint); err != nil {
		if errors.Is(err, ErrDuplicateRequest) {
			return s.replayImport(ctx, pool, requestID, fingerprint)
		}
		return fmt.Errorf("insert audit: %w", err)
	}

	if err := s.voucherRepo.InsertVouchers(ctx, tx, pool, rows); err != nil {
		if errors.Is(err, ErrDuplicateVoucher) {
			return ErrDuplicateVoucher
		}
		return fmt.Errorf("insert vouchers: %w", err)
	}

	responseData := mustMarshal(map[string]any{"imported": true})
	if err := s.auditRepo.SetOutcome(ctx, tx, pool, requestID, responseData, ""); err != nil {
		return fmt.Errorf("set audit outcome: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *VoucherService) replayImport(ctx context.Context, pool, requestID, fingerprint string) error {
	rec, err := s.auditRepo.GetByRequestID(ctx, pool, requestID)
	if err != nil {
		return fmt.Errorf("read prior audit record: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("audit record for %s vanished: %w", requestID, ErrDuplicateRequest)
	}
	if rec.RequestData != fingerprint {
		return ErrAuditMismatch
	}
	// Failed imports roll back their audit row, so a surviving record with a
	// matching fingerprint is always a prior success.
	return nil
}

// ExportVouchers claims up to count unused vouchers for every (operator,
// denomination) combination of the requested cross product and marks them
// used in the same transaction. An absent operator or denomination list
// defaults to the distinct values present among unused vouchers; a nil
// count claims all available. Shortfalls are reported as warnings, not
// errors.
func (s *VoucherService) ExportVouchers(ctx context.Context, pool, requestID string, count *int, operators, denominations []string) (*model.ExportResult, error) {
	fingerprint := exportFingerprint(count, operators, denominations)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	exists, err := s.voucherRepo.PoolExists(ctx, tx, pool)
	if err != nil {
		return nil, fmt.Errorf("check pool: %w", err)
	}
	if !exists {
		return nil, ErrNoVoucherPool
	}

	params := model.AuditParams{RequestID: requestID}
	if err := s.auditRepo.Insert(ctx, tx, pool, params, fingerprint); err != nil {
		if errors.Is(err, ErrDuplicateRequest) {
			return s.replayExport(ctx, pool, requestID, fingerprint)
		}
		return nil, fmt.Errorf("insert audit: %w", err)
	}

	if len(operators) == 0 {
		if operators, err = s.voucherRepo.DistinctOperators(ctx, tx, pool); err != nil {
			return nil, fmt.Errorf("resolve operators: %w", err)
		}
	}
	if len(denominations) == 0 {
		if denominations, err = s.voucherRepo.DistinctDenominations(ctx, tx, pool); err != nil {
			return nil, fmt.Errorf("resolve denominations: %w", err)
		}
	}

	limit := -1 // claim all
	if count != nil {
		limit = *count
	}

	result := &model.ExportResult{
		Vouchers: []model.ExportedVoucher{},
		Warnings: []string{},
	}
	for _, operator := range operators {
		for _, denomination := range denominations {
			claimed, err := s.voucherRepo.ClaimBatch(ctx, tx, pool, operator, denomination, limit)
			if err != nil {
				return nil, fmt.Errorf("claim batch: %w", err)
			}
			for _, v := range claimed {
				result.Vouchers = append(result.Vouchers, model.ExportedVoucher{
					Operator:     v.Operator,
					Denomination: v.Denomination,
					Voucher:      v.Voucher,
				})
			}
			if count != nil && len(claimed) < *count {
				result.Warnings = append(result.Warnings, fmt.Sprintf(
					"Insufficient vouchers available for operator '%s', denomination '%s': requested %d, got %d.",
					operator, denomination, *count, len(claimed)))
			}
		}
	}

	responseData, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal export result: %w", err)
	}
	if err := s.auditRepo.SetOutcome(ctx, tx, pool, requestID, string(responseData), ""); err != nil {
		return nil, fmt.Errorf("set audit outcome: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return result, nil
}

func (s *VoucherService) replayExport(ctx context.Context, pool, requestID, fingerprint string) (*model.ExportResult, error) {
	rec, err := s.auditRepo.GetByRequestID(ctx, pool, requestID)
	if err != nil {
		return nil, fmt.Errorf("read prior audit record: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("audit record for %s vanished: %w", requestID, ErrDuplicateRequest)
	}
	if rec.RequestData != fingerprint {
		return nil, ErrAuditMismatch
	}

	var prior model.ExportResult
	if err := json.Unmarshal([]byte(rec.ResponseData), &prior); err != nil {
		return nil, fmt.Errorf("decode prior response for %s: %w", requestID, err)
	}
	return &prior, nil
}

// CountVouchers returns the inventory buckets for a pool.
// Returns ErrNoVoucherPool if the pool has never been imported into and an
// empty slice if it exists but holds no vouchers.
func (s *VoucherService) CountVouchers(ctx context.Context, pool string) ([]model.VoucherCount, error) {
	exists, err := s.voucherRepo.PoolExistsDirect(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("check pool: %w", err)
	}
	if !exists {
		return nil, ErrNoVoucherPool
	}
	return s.voucherRepo.CountVouchers(ctx, pool)
}

// QueryAudit returns all audit records where field equals value.
// field must be request_id, transaction_id or user_id.
func (s *VoucherService) QueryAudit(ctx context.Context, pool, field, value string) ([]model.AuditRecordResponse, error) {
	exists, err := s.voucherRepo.PoolExistsDirect(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("check pool: %w", err)
	}
	if !exists {
		return nil, ErrNoVoucherPool
	}

	records, err := s.auditRepo.QueryByField(ctx, pool, field, value)
	if err != nil {
		return nil, err
	}

	results := make([]model.AuditRecordResponse, 0, len(records))
	for i := range records {
		results = append(results, records[i].ToResponse())
	}
	return results, nil
}
