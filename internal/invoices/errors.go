package invoices

import "errors"

// Domain errors for invoices.
var (
	// ErrNotFound indicates the requested invoice was not found.
	ErrNotFound = errors.New("invoice not found")

	// ErrOrderNotFound indicates the referenced order does not exist.
	ErrOrderNotFound = errors.New("order not found for invoice")

	// ErrFinalExists indicates a non-voided final invoice already exists for
	// the order.
	ErrFinalExists = errors.New("final invoice already exists for order")

	// ErrNotDelivered indicates a final invoice was requested before the
	// order reached delivery.
	ErrNotDelivered = errors.New("final invoice requires a delivered order")

	// ErrAlreadyVoided indicates the invoice was voided previously.
	ErrAlreadyVoided = errors.New("invoice already voided")

	// ErrEmptyLines indicates an invoice without lines was requested.
	ErrEmptyLines = errors.New("at least one invoice line is required")

	// ErrTotalsMismatch indicates the document totals do not reconcile with
	// the line breakups. Such a document must never be persisted.
	ErrTotalsMismatch = errors.New("invoice totals do not reconcile")
)
