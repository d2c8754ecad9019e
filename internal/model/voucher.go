package model

import "time"

// Voucher is one pre-minted voucher string held in a pool.
type Voucher struct {
	ID           int64     `json:"-"`
	Pool         string    `json:"-"`
	Operator     string    `json:"operator"`
	Denomination string    `json:"denomination"`
	Voucher      string    `json:"voucher"`
	Used         bool      `json:"-"`
	Reason       string    `json:"-"` // why it was consumed: "issued" or "exported"
	CreatedAt    time.Time `json:"-"`
	ModifiedAt   time.Time `json:"-"`
}

// Consumption reasons recorded on claimed vouchers.
const (
	ReasonIssued   = "issued"
	ReasonExported = "exported"
)

// VoucherInput is one row of an import payload.
type VoucherInput struct {
	Operator     string
	Denomination string
	Voucher      string
}

// VoucherCount is one (operator, denomination, used) inventory bucket.
type VoucherCount struct {
	Operator     string `json:"operator"`
	Denomination string `json:"denomination"`
	Used         bool   `json:"used"`
	Count        int64  `json:"count"`
}

// AuditParams identifies a mutating request for the audit log.
type AuditParams struct {
	RequestID     string
	TransactionID string
	UserID        string
}

// AuditRecord is the persisted evidence that a request id was processed.
// Once committed a record is immutable.
type AuditRecord struct {
	Pool          string
	RequestID     string
	TransactionID string
	UserID        string
	RequestData   string
	ResponseData  string
	Error         string
	CreatedAt     time.Time
}

// AuditRecordResponse is the external form of an audit record.
// CreatedAt is rendered as RFC 3339 so replays serialize identically.
type AuditRecordResponse struct {
	RequestID     string `json:"request_id"`
	TransactionID string `json:"transaction_id"`
	UserID        string `json:"user_id"`
	RequestData   string `json:"request_data"`
	ResponseData  string `json:"response_data"`
	Error         string `json:"error"`
	CreatedAt     string `json:"created_at"`
}

// ToResponse converts a stored audit record to its external form.
func (r *AuditRecord) ToResponse() AuditRecordResponse {
	return AuditRecordResponse{
		RequestID:     r.RequestID,
		TransactionID: r.TransactionID,
		UserID:        r.UserID,
		RequestData:   r.RequestData,
		ResponseData:  r.ResponseData,
		Error:         r.Error,
		CreatedAt:     r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// IssueVoucherRequest is the JSON body for PUT /:pool/issue/:operator/:request_id.
type IssueVoucherRequest struct {
	TransactionID string `json:"transaction_id" validate:"required,notblank,max=255"`
	UserID        string `json:"user_id" validate:"required,notblank,max=255"`
	Denomination  string `json:"denomination" validate:"required,notblank,max=255"`
}

// ExportVouchersRequest is the JSON body for PUT /:pool/export/:request_id.
// All fields are optional; a nil Count means "all available".
type ExportVouchersRequest struct {
	Count         *int     `json:"count" validate:"omitempty,gte=1"`
	Operators     []string `json:"operators"`
	Denominations []string `json:"denominations"`
}

// ExportedVoucher is one voucher returned by an export.
type ExportedVoucher struct {
	Operator     string `json:"operator"`
	Denomination string `json:"denomination"`
	Voucher      string `json:"voucher"`
}

// ExportResult is the outcome of an export: the claimed vouchers plus one
// warning per (operator, denomination) combination that came up short.
type ExportResult struct {
	Vouchers []ExportedVoucher `json:"vouchers"`
	Warnings []string          `json:"warnings"`
}
