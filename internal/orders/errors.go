package orders

import "errors"

// Domain errors for orders.
var (
	// ErrNotFound indicates the requested order was not found.
	ErrNotFound = errors.New("order not found")

	// Status transition errors.
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrTerminalStatus    = errors.New("order is in a terminal status")
	ErrCannotCancel      = errors.New("cannot cancel order in current status")

	// Validation errors.
	ErrEmptyItems              = errors.New("at least one item is required")
	ErrInvalidQuantity         = errors.New("quantity must be greater than zero")
	ErrShippingDetailsRequired = errors.New("shipping details required for shipped transition")
	ErrAmountMismatch          = errors.New("order amounts do not reconcile")
	ErrUnknownProduct          = errors.New("unknown or inactive product")

	// Payment errors.
	ErrPaymentAmountMismatch = errors.New("payment amount does not match order total")
	ErrAlreadyPaid           = errors.New("order already marked paid by a different payment")
	ErrNotOnlineOrder        = errors.New("payment confirmation applies only to online orders")
)
