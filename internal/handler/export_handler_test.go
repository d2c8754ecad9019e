package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praekelt/airtime-voucher-service/internal/model"
	"github.com/praekelt/airtime-voucher-service/internal/service"
	appvalidator "github.com/praekelt/airtime-voucher-service/internal/validator"
)

// mockExportService is a mock implementation of ExportServiceInterface.
type mockExportService struct {
	exportFn func(ctx context.Context, pool, requestID string, count *int, operators, denominations []string) (*model.ExportResult, error)
}

func (m *mockExportService) ExportVouchers(ctx context.Context, pool, requestID string, count *int, operators, denominations []string) (*model.ExportResult, error) {
	if m.exportFn != nil {
		return m.exportFn(ctx, pool, requestID, count, operators, denominations)
	}
	return &model.ExportResult{Vouchers: []model.ExportedVoucher{}, Warnings: []string{}}, nil
}

func setupExportApp(mockSvc *mockExportService) *fiber.App {
	app := fiber.New()
	h := NewExportHandler(mockSvc, appvalidator.New())
	app.Put("/:pool/export/:request_id", h.ExportVouchers)
	return app
}

func exportRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPut, "/testpool/export/req-0", bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func TestExportVouchers_Success(t *testing.T) {
	var gotCount *int
	var gotOperators, gotDenominations []string
	mockSvc := &mockExportService{
		exportFn: func(ctx context.Context, pool, requestID string, count *int, operators, denominations []string) (*model.ExportResult, error) {
			gotCount = count
			gotOperators, gotDenominations = operators, denominations
			return &model.ExportResult{
				Vouchers: []model.ExportedVoucher{
					{Operator: "Tank", Denomination: "red", Voucher: "Tank-red-0"},
					{Operator: "Tank", Denomination: "red", Voucher: "Tank-red-1"},
				},
				Warnings: []string{},
			}, nil
		},
	}
	app := setupExportApp(mockSvc)

	body := `{"count": 2, "operators": ["Tank"], "denominations": ["red"]}`
	resp, err := app.Test(exportRequest(body))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var result struct {
		RequestID string                  `json:"request_id"`
		Vouchers  []model.ExportedVoucher `json:"vouchers"`
		Warnings  []string                `json:"warnings"`
	}
	err = json.NewDecoder(resp.Body).Decode(&result)
	require.NoError(t, err)
	assert.Equal(t, "req-0", result.RequestID)
	assert.Len(t, result.Vouchers, 2)
	assert.NotNil(t, result.Warnings, "Warnings should be empty array, not null")
	assert.Len(t, result.Warnings, 0)

	require.NotNil(t, gotCount)
	assert.Equal(t, 2, *gotCount)
	assert.Equal(t, []string{"Tank"}, gotOperators)
	assert.Equal(t, []string{"red"}, gotDenominations)
}

func TestExportVouchers_EmptyBody(t *testing.T) {
	var gotCount *int
	captured := false
	mockSvc := &mockExportService{
		exportFn: func(ctx context.Context, pool, requestID string, count *int, operators, denominations []string) (*model.ExportResult, error) {
			gotCount = count
			captured = true
			assert.Nil(t, operators)
			assert.Nil(t, denominations)
			return &model.ExportResult{Vouchers: []model.ExportedVoucher{}, Warnings: []string{}}, nil
		},
	}
	app := setupExportApp(mockSvc)

	resp, err := app.Test(exportRequest(""))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode, "No body means export everything")
	assert.True(t, captured)
	assert.Nil(t, gotCount)
}

func TestExportVouchers_WithWarnings(t *testing.T) {
	mockSvc := &mockExportService{
		exportFn: func(ctx context.Context, pool, requestID string, count *int, operators, denominations []string) (*model.ExportResult, error) {
			return &model.ExportResult{
				Vouchers: []model.ExportedVoucher{
					{Operator: "Tank", Denomination: "red", Voucher: "Tank-red-0"},
				},
				Warnings: []string{
					"Insufficient vouchers available for operator 'Tank', denomination 'red': requested 2, got 1.",
				},
			}, nil
		},
	}
	app := setupExportApp(mockSvc)

	body := `{"count": 2, "operators": ["Tank"], "denominations": ["red"]}`
	resp, err := app.Test(exportRequest(body))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode, "Shortfall is a warning, not an error")

	var result struct {
		Vouchers []model.ExportedVoucher `json:"vouchers"`
		Warnings []string                `json:"warnings"`
	}
	err = json.NewDecoder(resp.Body).Decode(&result)
	require.NoError(t, err)
	assert.Len(t, result.Vouchers, 1)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "requested 2, got 1")
}

func TestExportVouchers_MissingPool(t *testing.T) {
	mockSvc := &mockExportService{
		exportFn: func(ctx context.Context, pool, requestID string, count *int, operators, denominations []string) (*model.ExportResult, error) {
			return nil, service.ErrNoVoucherPool
		},
	}
	app := setupExportApp(mockSvc)

	resp, err := app.Test(exportRequest(`{}`))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	var result map[string]any
	err = json.NewDecoder(resp.Body).Decode(&result)
	require.NoError(t, err)
	assert.Equal(t, "Voucher pool does not exist.", result["error"])
}

func TestExportVouchers_UnexpectedParameters(t *testing.T) {
	mockSvc := &mockExportService{}
	app := setupExportApp(mockSvc)

	resp, err := app.Test(exportRequest(`{"count": 1, "limit": 5}`))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var result map[string]any
	err = json.NewDecoder(resp.Body).Decode(&result)
	require.NoError(t, err)
	assert.Equal(t, "Unexpected request parameters: 'limit'", result["error"])
}

func TestExportVouchers_CountZero(t *testing.T) {
	mockSvc := &mockExportService{}
	app := setupExportApp(mockSvc)

	resp, err := app.Test(exportRequest(`{"count": 0}`))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var result map[string]any
	err = json.NewDecoder(resp.Body).Decode(&result)
	require.NoError(t, err)
	assert.Equal(t, "Invalid request parameter: 'count' must be at least 1", result["error"])
}

func TestExportVouchers_AuditMismatch(t *testing.T) {
	mockSvc := &mockExportService{
		exportFn: func(ctx context.Context, pool, requestID string, count *int, operators, denominations []string) (*model.ExportResult, error) {
			return nil, service.ErrAuditMismatch
		},
	}
	app := setupExportApp(mockSvc)

	resp, err := app.Test(exportRequest(`{"count": 3}`))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var result map[string]any
	err = json.NewDecoder(resp.Body).Decode(&result)
	require.NoError(t, err)
	assert.Equal(t, "This request has already been performed with different parameters.", result["error"])
}
