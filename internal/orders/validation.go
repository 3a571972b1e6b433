package orders

import (
	"fmt"
	"math"
	"strings"

	"github.com/kirana-commerce/kirana-commerce/internal/tax"
)

// ValidateCreateRequest validates a checkout confirmation.
func ValidateCreateRequest(req CreateRequest) error {
	if len(req.Items) == 0 {
		return ErrEmptyItems
	}
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("item %d: %w", i+1, ErrInvalidQuantity)
		}
	}
	if !req.PaymentMethod.IsValid() {
		return fmt.Errorf("invalid payment method: %s", req.PaymentMethod)
	}
	if strings.TrimSpace(req.ShipState) == "" {
		return fmt.Errorf("shipping state is required")
	}
	return nil
}

// ValidateShippingDetails checks the payload required by the SHIPPED
// transition.
func ValidateShippingDetails(details *ShippingDetails) error {
	if details == nil {
		return ErrShippingDetailsRequired
	}
	if strings.TrimSpace(details.CourierName) == "" || strings.TrimSpace(details.TrackingID) == "" {
		return ErrShippingDetailsRequired
	}
	return nil
}

// ValidateAmounts enforces the order amount invariant:
// total == subtotal + shipping + tax, and line totals sum to subtotal.
func ValidateAmounts(o *Order) error {
	var itemSum float64
	for _, item := range o.Items {
		itemSum += item.TaxableValue
	}
	if math.Abs(itemSum-o.Subtotal) > tax.Epsilon {
		return fmt.Errorf("%w: items sum %.2f, subtotal %.2f", ErrAmountMismatch, itemSum, o.Subtotal)
	}
	expected := o.Subtotal + o.ShippingAmount + o.TaxAmount
	if math.Abs(expected-o.TotalAmount) > tax.Epsilon {
		return fmt.Errorf("%w: expected total %.2f, got %.2f", ErrAmountMismatch, expected, o.TotalAmount)
	}
	return nil
}
