package handler

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/praekelt/airtime-voucher-service/internal/csvio"
	"github.com/praekelt/airtime-voucher-service/internal/model"
)

// ImportServiceInterface defines the interface for voucher import logic.
type ImportServiceInterface interface {
	ImportVouchers(ctx context.Context, pool, requestID, contentMD5 string, rows []model.VoucherInput) error
}

// ImportHandler handles HTTP requests for bulk voucher import.
type ImportHandler struct {
	service ImportServiceInterface
}

// NewImportHandler creates a new ImportHandler with the given service.
func NewImportHandler(svc ImportServiceInterface) *ImportHandler {
	return &ImportHandler{service: svc}
}

// ImportVouchers handles PUT /:pool/import/:request_id requests.
// The CSV body must be accompanied by a Content-MD5 header whose lowercase
// hex value matches the MD5 of the exact body bytes.
func (h *ImportHandler) ImportVouchers(c *fiber.Ctx) error {
	pool := c.Params("pool")
	requestID := c.Params("request_id")

	contentMD5 := c.Get("Content-MD5")
	if contentMD5 == "" {
		return respondError(c, fiber.StatusBadRequest, requestID, "Missing Content-MD5 header.")
	}
	contentMD5 = strings.ToLower(contentMD5)

	body := c.Body()
	sum := md5.Sum(body)
	if contentMD5 != hex.EncodeToString(sum[:]) {
		return respondError(c, fiber.StatusBadRequest, requestID, "Content-MD5 header does not match content.")
	}

	reader, err := csvio.NewReader(bytes.NewReader(body))
	if err != nil {
		if errors.Is(err, csvio.ErrMissingHeader) || errors.Is(err, csvio.ErrMissingColumns) {
			return respondError(c, fiber.StatusBadRequest, requestID, "Invalid CSV header: "+err.Error())
		}
		return respondError(c, fiber.StatusBadRequest, requestID, "Invalid CSV body.")
	}
	rows, err := reader.ReadAll()
	if err != nil {
		return respondError(c, fiber.StatusBadRequest, requestID, "Invalid CSV body.")
	}

	if err := h.service.ImportVouchers(c.Context(), pool, requestID, contentMD5, rows); err != nil {
		return respondServiceError(c, requestID, err)
	}

	log.Info().
		Str("request_id", requestID).
		Str("pool", pool).
		Int("rows", len(rows)).
		Msg("vouchers imported")

	return respond(c, fiber.StatusCreated, requestID, fiber.Map{"imported": true})
}
