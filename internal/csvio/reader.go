// Package csvio parses voucher import payloads. The format is a headed CSV
// whose column names are case-insensitive and must include operator,
// denomination and voucher; extra columns are ignored.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/praekelt/airtime-voucher-service/internal/model"
)

// DefaultBatchSize is how many rows a Reader yields per batch.
const DefaultBatchSize = 1000

var (
	// ErrMissingHeader is returned when the payload has no header row.
	ErrMissingHeader = errors.New("missing CSV header row")

	// ErrMissingColumns is returned when the header lacks a required column.
	ErrMissingColumns = errors.New("missing required CSV columns")
)

// Reader streams voucher rows out of a CSV payload in batches, so large
// imports never buffer the whole file in memory at once.
type Reader struct {
	csv       *csv.Reader
	batchSize int

	operatorIdx     int
	denominationIdx int
	voucherIdx      int
}

// NewReader wraps r and validates the header row.
func NewReader(r io.Reader) (*Reader, error) {
	return NewReaderSize(r, DefaultBatchSize)
}

// NewReaderSize is NewReader with a caller-chosen batch size.
func NewReaderSize(r io.Reader, batchSize int) (*Reader, error) {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // header defines the shape; extra columns allowed

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrMissingHeader
		}
		return nil, fmt.Errorf("read CSV header: %w", err)
	}

	rd := &Reader{
		csv:             cr,
		batchSize:       batchSize,
		operatorIdx:     -1,
		denominationIdx: -1,
		voucherIdx:      -1,
	}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "operator":
			rd.operatorIdx = i
		case "denomination":
			rd.denominationIdx = i
		case "voucher":
			rd.voucherIdx = i
		}
	}

	var missing []string
	if rd.operatorIdx < 0 {
		missing = append(missing, "operator")
	}
	if rd.denominationIdx < 0 {
		missing = append(missing, "denomination")
	}
	if rd.voucherIdx < 0 {
		missing = append(missing, "voucher")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return rd, nil
}

// Next returns the next batch of rows. It returns io.EOF once the payload
// is exhausted; the final batch may be returned alongside a nil error with
// io.EOF following on the next call.
func (r *Reader) Next() ([]model.VoucherInput, error) {
	batch := make([]model.VoucherInput, 0, r.batchSize)
	for len(batch) < r.batchSize {
		record, err := r.csv.Read()
		if errors.Is(err, io.EOF) {
			if len(batch) == 0 {
				return nil, io.EOF
			}
			return batch, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV row: %w", err)
		}

		max := r.operatorIdx
		if r.denominationIdx > max {
			max = r.denominationIdx
		}
		if r.voucherIdx > max {
			max = r.voucherIdx
		}
		if len(record) <= max {
			return nil, fmt.Errorf("read CSV row: expected at least %d fields, got %d", max+1, len(record))
		}

		batch = append(batch, model.VoucherInput{
			Operator:     record[r.operatorIdx],
			Denomination: record[r.denominationIdx],
			Voucher:      record[r.voucherIdx],
		})
	}
	return batch, nil
}

// ReadAll drains the reader into a single slice.
func (r *Reader) ReadAll() ([]model.VoucherInput, error) {
	var rows []model.VoucherInput
	for {
		batch, err := r.Next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, batch...)
	}
}
