package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praekelt/airtime-voucher-service/internal/model"
	"github.com/praekelt/airtime-voucher-service/internal/service"
)

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFn func(dest ...any) error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.scanFn != nil {
		return m.scanFn(dest...)
	}
	return nil
}

// mockRows implements pgx.Rows for testing; each entry in scanFns produces
// one row.
type mockRows struct {
	scanFns   []func(dest ...any) error
	index     int
	errOnRows error
}

func (m *mockRows) Close()     {}
func (m *mockRows) Err() error { return m.errOnRows }

func (m *mockRows) Next() bool {
	if m.index < len(m.scanFns) {
		m.index++
		return true
	}
	return false
}

func (m *mockRows) Scan(dest ...any) error {
	return m.scanFns[m.index-1](dest...)
}

func (m *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (m *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (m *mockRows) RawValues() [][]byte                          { return nil }
func (m *mockRows) Values() ([]any, error)                       { return nil, nil }
func (m *mockRows) Conn() *pgx.Conn                              { return nil }

// mockPool implements PoolInterface for testing.
type mockPool struct {
	execFn     func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	queryRowFn func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFn    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (m *mockPool) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	if m.execFn != nil {
		return m.execFn(ctx, sql, arguments...)
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (m *mockPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFn != nil {
		return m.queryRowFn(ctx, sql, args...)
	}
	return &mockRow{}
}

func (m *mockPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, sql, args...)
	}
	return &mockRows{}, nil
}

// scanVoucherRow fills the nine voucher columns in Scan order.
func scanVoucherRow(v model.Voucher) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*int64)) = v.ID
		*(dest[1].(*string)) = v.Pool
		*(dest[2].(*string)) = v.Operator
		*(dest[3].(*string)) = v.Denomination
		*(dest[4].(*string)) = v.Voucher
		*(dest[5].(*bool)) = v.Used
		*(dest[6].(*string)) = v.Reason
		*(dest[7].(*time.Time)) = v.CreatedAt
		*(dest[8].(*time.Time)) = v.ModifiedAt
		return nil
	}
}

func TestVoucherRepository_InsertVouchers_Success(t *testing.T) {
	var capturedSQL string
	var capturedArgs []any

	mock := &mockPool{
		execFn: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			capturedSQL = sql
			capturedArgs = arguments
			return pgconn.NewCommandTag("INSERT 0 2"), nil
		},
	}

	repo := NewVoucherRepositoryWithPool(mock)
	err := repo.InsertVouchers(context.Background(), mock, "testpool", []model.VoucherInput{
		{Operator: "Tank", Denomination: "red", Voucher: "Tank-red-0"},
		{Operator: "Link", Denomination: "blue", Voucher: "Link-blue-0"},
	})

	require.NoError(t, err)
	assert.Contains(t, capturedSQL, "INSERT INTO vouchers")
	assert.Contains(t, capturedSQL, "unnest")
	require.Len(t, capturedArgs, 4)
	assert.Equal(t, "testpool", capturedArgs[0])
	assert.Equal(t, []string{"Tank", "Link"}, capturedArgs[1])
	assert.Equal(t, []string{"red", "blue"}, capturedArgs[2])
	assert.Equal(t, []string{"Tank-red-0", "Link-blue-0"}, capturedArgs[3])
}

func TestVoucherRepository_InsertVouchers_Duplicate(t *testing.T) {
	mock := &mockPool{
		execFn: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"}
		},
	}

	repo := NewVoucherRepositoryWithPool(mock)
	err := repo.InsertVouchers(context.Background(), mock, "testpool", []model.VoucherInput{
		{Operator: "Tank", Denomination: "red", Voucher: "Tank-red-0"},
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrDuplicateVoucher), "23505 should map to ErrDuplicateVoucher")
}

func TestVoucherRepository_InsertVouchers_Empty(t *testing.T) {
	execCalled := false
	mock := &mockPool{
		execFn: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			execCalled = true
			return pgconn.CommandTag{}, nil
		},
	}

	repo := NewVoucherRepositoryWithPool(mock)
	err := repo.InsertVouchers(context.Background(), mock, "testpool", nil)

	require.NoError(t, err)
	assert.False(t, execCalled, "no statement for an empty batch")
}

func TestVoucherRepository_ClaimVoucher_Success(t *testing.T) {
	var capturedSQL string
	claimed := model.Voucher{
		ID:           1,
		Pool:         "testpool",
		Operator:     "Tank",
		Denomination: "red",
		Voucher:      "Tank-red-0",
		Used:         true,
		Reason:       model.ReasonIssued,
	}
	mock := &mockPool{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			capturedSQL = sql
			return &mockRow{scanFn: scanVoucherRow(claimed)}
		},
	}

	repo := NewVoucherRepositoryWithPool(mock)
	voucher, err := repo.ClaimVoucher(context.Background(), mock, "testpool", "Tank", "red")

	require.NoError(t, err)
	assert.Equal(t, "Tank-red-0", voucher.Voucher)
	assert.True(t, voucher.Used)
	assert.Contains(t, capturedSQL, "FOR UPDATE SKIP LOCKED", "claims must never double-issue")
	assert.Contains(t, capturedSQL, "NOT used")
}

func TestVoucherRepository_ClaimVoucher_NoneAvailable(t *testing.T) {
	mock := &mockPool{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return &mockRow{scanFn: func(dest ...any) error { return pgx.ErrNoRows }}
		},
	}

	repo := NewVoucherRepositoryWithPool(mock)
	voucher, err := repo.ClaimVoucher(context.Background(), mock, "testpool", "Tank", "blue")

	require.Error(t, err)
	assert.Nil(t, voucher)
	assert.True(t, errors.Is(err, service.ErrNoVoucherAvailable), "empty predicate set maps to ErrNoVoucherAvailable")
}

func TestVoucherRepository_ClaimBatch_Limit(t *testing.T) {
	var capturedArgs []any
	mock := &mockPool{
		queryFn: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			capturedArgs = args
			return &mockRows{scanFns: []func(dest ...any) error{
				scanVoucherRow(model.Voucher{Voucher: "Tank-red-0", Operator: "Tank", Denomination: "red"}),
				scanVoucherRow(model.Voucher{Voucher: "Tank-red-1", Operator: "Tank", Denomination: "red"}),
			}}, nil
		},
	}

	repo := NewVoucherRepositoryWithPool(mock)
	claimed, err := repo.ClaimBatch(context.Background(), mock, "testpool", "Tank", "red", 2)

	require.NoError(t, err)
	assert.Len(t, claimed, 2)
	require.Len(t, capturedArgs, 5)
	assert.Equal(t, 2, capturedArgs[4])
}

func TestVoucherRepository_ClaimBatch_NoLimit(t *testing.T) {
	var capturedArgs []any
	mock := &mockPool{
		queryFn: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			capturedArgs = args
			return &mockRows{}, nil
		},
	}

	repo := NewVoucherRepositoryWithPool(mock)
	claimed, err := repo.ClaimBatch(context.Background(), mock, "testpool", "Tank", "red", -1)

	require.NoError(t, err)
	assert.Empty(t, claimed)
	require.Len(t, capturedArgs, 5)
	assert.Nil(t, capturedArgs[4], "negative limit becomes a NULL LIMIT, claiming everything")
}

func TestVoucherRepository_CountVouchers(t *testing.T) {
	mock := &mockPool{
		queryFn: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			assert.Contains(t, sql, "GROUP BY operator, denomination, used")
			return &mockRows{scanFns: []func(dest ...any) error{
				func(dest ...any) error {
					*(dest[0].(*string)) = "Tank"
					*(dest[1].(*string)) = "red"
					*(dest[2].(*bool)) = false
					*(dest[3].(*int64)) = 2
					return nil
				},
				func(dest ...any) error {
					*(dest[0].(*string)) = "Tank"
					*(dest[1].(*string)) = "red"
					*(dest[2].(*bool)) = true
					*(dest[3].(*int64)) = 1
					return nil
				},
			}}, nil
		},
	}

	repo := NewVoucherRepositoryWithPool(mock)
	counts, err := repo.CountVouchers(context.Background(), "testpool")

	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, model.VoucherCount{Operator: "Tank", Denomination: "red", Used: false, Count: 2}, counts[0])
	assert.Equal(t, model.VoucherCount{Operator: "Tank", Denomination: "red", Used: true, Count: 1}, counts[1])
}

func TestVoucherRepository_CountVouchers_EmptyPool(t *testing.T) {
	mock := &mockPool{
		queryFn: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			return &mockRows{}, nil
		},
	}

	repo := NewVoucherRepositoryWithPool(mock)
	counts, err := repo.CountVouchers(context.Background(), "testpool")

	require.NoError(t, err)
	require.NotNil(t, counts, "should return empty slice, not nil")
	assert.Len(t, counts, 0)
}

func TestVoucherRepository_PoolExists(t *testing.T) {
	mock := &mockPool{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return &mockRow{scanFn: func(dest ...any) error {
				*(dest[0].(*bool)) = true
				return nil
			}}
		},
	}

	repo := NewVoucherRepositoryWithPool(mock)
	exists, err := repo.PoolExists(context.Background(), mock, "testpool")

	require.NoError(t, err)
	assert.True(t, exists)
}

func TestVoucherRepository_EnsurePool_Idempotent(t *testing.T) {
	var capturedSQL string
	mock := &mockPool{
		execFn: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			capturedSQL = sql
			return pgconn.NewCommandTag("INSERT 0 0"), nil
		},
	}

	repo := NewVoucherRepositoryWithPool(mock)
	err := repo.EnsurePool(context.Background(), mock, "testpool")

	require.NoError(t, err)
	assert.Contains(t, capturedSQL, "ON CONFLICT (name) DO NOTHING")
}

func TestVoucherRepository_DistinctOperators(t *testing.T) {
	mock := &mockPool{
		queryFn: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			assert.Contains(t, sql, "DISTINCT operator")
			assert.Contains(t, sql, "NOT used")
			return &mockRows{scanFns: []func(dest ...any) error{
				func(dest ...any) error { *(dest[0].(*string)) = "Link"; return nil },
				func(dest ...any) error { *(dest[0].(*string)) = "Tank"; return nil },
			}}, nil
		},
	}

	repo := NewVoucherRepositoryWithPool(mock)
	operators, err := repo.DistinctOperators(context.Background(), mock, "testpool")

	require.NoError(t, err)
	assert.Equal(t, []string{"Link", "Tank"}, operators)
}
