package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/praekelt/airtime-voucher-service/internal/model"
)

// IssueServiceInterface defines the interface for voucher issuance logic.
type IssueServiceInterface interface {
	IssueVoucher(ctx context.Context, pool, operator, denomination string, params model.AuditParams) (string, error)
}

// IssueHandler handles HTTP requests for voucher issuance.
type IssueHandler struct {
	service   IssueServiceInterface
	validator *validator.Validate
}

// NewIssueHandler creates a new IssueHandler with the given service and validator.
func NewIssueHandler(svc IssueServiceInterface, v *validator.Validate) *IssueHandler {
	return &IssueHandler{service: svc, validator: v}
}

// formatIssueValidationError converts validator errors to boundary messages.
func formatIssueValidationError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			name := issueFieldName(fe.Field())
			switch fe.Tag() {
			case "required", "notblank":
				return "Invalid request parameter: '" + name + "' must not be blank"
			case "max":
				return "Invalid request parameter: '" + name + "' exceeds maximum length of 255"
			default:
				return "Invalid request parameter: '" + name + "'"
			}
		}
	}
	return "Invalid request parameters."
}

func issueFieldName(field string) string {
	switch field {
	case "TransactionID":
		return "transaction_id"
	case "UserID":
		return "user_id"
	case "Denomination":
		return "denomination"
	}
	return field
}

// IssueVoucher handles PUT /:pool/issue/:operator/:request_id requests.
// NoVoucherAvailable comes back as 200 with an error-shaped body; it is a
// normal operational condition, not a fault.
func (h *IssueHandler) IssueVoucher(c *fiber.Ctx) error {
	pool := c.Params("pool")
	operator := c.Params("operator")
	requestID := c.Params("request_id")

	if err := jsonParams(c.Body(), []string{"transaction_id", "user_id", "denomination"}, nil); err != nil {
		return respondError(c, fiber.StatusBadRequest, requestID, err.Error())
	}

	var req model.IssueVoucherRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, requestID, "Invalid JSON request body.")
	}
	if err := h.validator.Struct(req); err != nil {
		return respondError(c, fiber.StatusBadRequest, requestID, formatIssueValidationError(err))
	}

	auditParams := model.AuditParams{
		RequestID:     requestID,
		TransactionID: req.TransactionID,
		UserID:        req.UserID,
	}
	voucher, err := h.service.IssueVoucher(c.Context(), pool, operator, req.Denomination, auditParams)
	if err != nil {
		return respondServiceError(c, requestID, err)
	}

	log.Info().
		Str("request_id", requestID).
		Str("pool", pool).
		Str("operator", operator).
		Str("denomination", req.Denomination).
		Msg("voucher issued")

	return respond(c, fiber.StatusOK, requestID, fiber.Map{"voucher": voucher})
}
