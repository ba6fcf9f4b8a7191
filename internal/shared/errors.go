package shared

import "errors"

// Sentinel errors classifying engine failures. Services wrap these with
// %w plus the offending IMEI or amounts so handlers can map them to a
// transport status without losing the cause.
var (
	// ErrInvalidInput indicates missing or malformed fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound indicates a client, unit, sale or line is absent.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates an entity does not permit the operation,
	// e.g. selling a unit that is not active.
	ErrInvalidState = errors.New("invalid state")
	// ErrPricingViolation indicates a sale price below cost or non-positive.
	ErrPricingViolation = errors.New("pricing violation")
	// ErrConflict indicates the request clashes with recorded state, e.g.
	// re-cancelling a terminal line or paying more than the total.
	ErrConflict = errors.New("conflict")
)
