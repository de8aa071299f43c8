package service

import "errors"

var (
	// ErrValidation marks malformed input. Nothing is written.
	ErrValidation = errors.New("invalid input")
	// ErrStateConflict marks an operation that is legal in general but not
	// for the record's current state, e.g. refunding an unpaid order.
	ErrStateConflict = errors.New("state conflict")
	// ErrDuplicateRefund marks a second active refund request for an order.
	ErrDuplicateRefund = errors.New("refund request already exists for this order")
)
