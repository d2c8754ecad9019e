package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/praekelt/airtime-voucher-service/internal/model"
)

// ExportServiceInterface defines the interface for voucher export logic.
type ExportServiceInterface interface {
	ExportVouchers(ctx context.Context, pool, requestID string, count *int, operators, denominations []string) (*model.ExportResult, error)
}

// ExportHandler handles HTTP requests for bulk voucher export.
type ExportHandler struct {
	service   ExportServiceInterface
	validator *validator.Validate
}

// NewExportHandler creates a new ExportHandler with the given service and validator.
func NewExportHandler(svc ExportServiceInterface, v *validator.Validate) *ExportHandler {
	return &ExportHandler{service: svc, validator: v}
}

// ExportVouchers handles PUT /:pool/export/:request_id requests.
// All body fields are optional: a missing count exports everything the
// requested combinations can supply.
func (h *ExportHandler) ExportVouchers(c *fiber.Ctx) error {
	pool := c.Params("pool")
	requestID := c.Params("request_id")

	body := c.Body()
	if len(body) == 0 {
		body = []byte("{}")
	}
	if err := jsonParams(body, nil, []string{"count", "operators", "denominations"}); err != nil {
		return respondError(c, fiber.StatusBadRequest, requestID, err.Error())
	}

	var req model.ExportVouchersRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return respondError(c, fiber.StatusBadRequest, requestID, "Invalid JSON request body.")
		}
	}
	if err := h.validator.Struct(req); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			return respondError(c, fiber.StatusBadRequest, requestID,
				"Invalid request parameter: 'count' must be at least 1")
		}
		return respondError(c, fiber.StatusBadRequest, requestID, "Invalid request parameters.")
	}

	result, err := h.service.ExportVouchers(
		c.Context(), pool, requestID, req.Count, req.Operators, req.Denominations)
	if err != nil {
		return respondServiceError(c, requestID, err)
	}

	log.Info().
		Str("request_id", requestID).
		Str("pool", pool).
		Int("vouchers", len(result.Vouchers)).
		Int("warnings", len(result.Warnings)).
		Msg("vouchers exported")

	return respond(c, fiber.StatusOK, requestID, fiber.Map{
		"vouchers": result.Vouchers,
		"warnings": result.Warnings,
	})
}
