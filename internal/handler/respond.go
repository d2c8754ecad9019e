package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/praekelt/airtime-voucher-service/internal/service"
)

// Response envelope: every JSON body carries request_id (null when the
// caller supplied none) plus either the payload fields or an error message.

func respond(c *fiber.Ctx, status int, requestID string, payload fiber.Map) error {
	body := fiber.Map{"request_id": requestIDValue(requestID)}
	for k, v := range payload {
		body[k] = v
	}
	return c.Status(status).JSON(body)
}

func respondError(c *fiber.Ctx, status int, requestID, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"request_id": requestIDValue(requestID),
		"error":      message,
	})
}

func requestIDValue(requestID string) any {
	if requestID == "" {
		return nil
	}
	return requestID
}

// respondServiceError maps domain errors to their HTTP shapes, once, at the
// boundary. NoVoucherAvailable is an expected outcome and keeps status 200.
func respondServiceError(c *fiber.Ctx, requestID string, err error) error {
	switch {
	case errors.Is(err, service.ErrNoVoucherPool):
		return respondError(c, fiber.StatusNotFound, requestID, "Voucher pool does not exist.")
	case errors.Is(err, service.ErrNoVoucherAvailable):
		return respondError(c, fiber.StatusOK, requestID, "No voucher available.")
	case errors.Is(err, service.ErrAuditMismatch):
		return respondError(c, fiber.StatusBadRequest, requestID,
			"This request has already been performed with different parameters.")
	case errors.Is(err, service.ErrDuplicateVoucher):
		return respondError(c, fiber.StatusBadRequest, requestID, "Duplicate voucher in import.")
	case errors.Is(err, service.ErrInvalidAuditField):
		return respondError(c, fiber.StatusBadRequest, requestID, "Invalid audit field.")
	}

	log.Error().
		Err(err).
		Str("request_id", requestID).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Msg("unhandled service error")
	return respondError(c, fiber.StatusInternalServerError, requestID, "Internal server error.")
}
