package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/praekelt/airtime-voucher-service/internal/model"
)

// QueryServiceInterface defines the interface for the read-only pool queries.
type QueryServiceInterface interface {
	CountVouchers(ctx context.Context, pool string) ([]model.VoucherCount, error)
	QueryAudit(ctx context.Context, pool, field, value string) ([]model.AuditRecordResponse, error)
}

// QueryHandler handles the read-only endpoints: audit queries and inventory counts.
type QueryHandler struct {
	service QueryServiceInterface
}

// NewQueryHandler creates a new QueryHandler with the given service.
func NewQueryHandler(svc QueryServiceInterface) *QueryHandler {
	return &QueryHandler{service: svc}
}

// AuditQuery handles GET /:pool/audit_query?field=&value=&request_id= requests.
func (h *QueryHandler) AuditQuery(c *fiber.Ctx) error {
	pool := c.Params("pool")
	params := c.Queries()
	requestID := params["request_id"]

	if err := queryParams(params, []string{"field", "value"}, []string{"request_id"}); err != nil {
		return respondError(c, fiber.StatusBadRequest, requestID, err.Error())
	}

	results, err := h.service.QueryAudit(c.Context(), pool, params["field"], params["value"])
	if err != nil {
		return respondServiceError(c, requestID, err)
	}
	return respond(c, fiber.StatusOK, requestID, fiber.Map{"results": results})
}

// VoucherCounts handles GET /:pool/voucher_counts?request_id= requests.
func (h *QueryHandler) VoucherCounts(c *fiber.Ctx) error {
	pool := c.Params("pool")
	params := c.Queries()
	requestID := params["request_id"]

	if err := queryParams(params, nil, []string{"request_id"}); err != nil {
		return respondError(c, fiber.StatusBadRequest, requestID, err.Error())
	}

	counts, err := h.service.CountVouchers(c.Context(), pool)
	if err != nil {
		return respondServiceError(c, requestID, err)
	}
	return respond(c, fiber.StatusOK, requestID, fiber.Map{"voucher_counts": counts})
}
