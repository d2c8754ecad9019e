package service

import "errors"

var (
	// ErrNoVoucherPool is returned when the named pool has never received an import
	ErrNoVoucherPool = errors.New("voucher pool does not exist")

	// ErrNoVoucherAvailable is returned when no unused voucher matches the
	// requested operator and denomination. This is a normal operational
	// condition, not a fault.
	ErrNoVoucherAvailable = errors.New("no voucher available")

	// ErrAuditMismatch is returned when a request id is reused with different parameters
	ErrAuditMismatch = errors.New("request already performed with different parameters")

	// ErrDuplicateRequest is returned by the store when an audit insert collides
	// on request_id; the service inspects the existing record to distinguish a
	// replay from a conflict
	ErrDuplicateRequest = errors.New("duplicate request id")

	// ErrDuplicateVoucher is returned when an import contains a voucher that already exists
	ErrDuplicateVoucher = errors.New("duplicate voucher")

	// ErrInvalidAuditField is returned when an audit query names an unknown field
	ErrInvalidAuditField = errors.New("invalid audit field")

	// ErrInvalidRequest is returned when request data is invalid or incomplete
	ErrInvalidRequest = errors.New("invalid request")
)
