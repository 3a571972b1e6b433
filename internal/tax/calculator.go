// Package tax computes GST splits for invoice lines. All functions are pure;
// rounding reconciliation happens here so that proforma and final documents
// for the same order can never disagree.
package tax

import (
	"math"
	"strings"
)

const (
	// DefaultGSTRate applies when a product does not carry its own rate.
	DefaultGSTRate = 18.0
	// Epsilon is the reconciliation tolerance: one paisa.
	Epsilon = 0.01
)

// Breakup holds the GST components of a single taxable value.
type Breakup struct {
	CGST float64 `json:"cgst"`
	SGST float64 `json:"sgst"`
	IGST float64 `json:"igst"`
}

// Total returns the summed tax amount.
func (b Breakup) Total() float64 {
	return b.CGST + b.SGST + b.IGST
}

// Line is the tax computation result for one invoice line.
type Line struct {
	TaxableValue float64 `json:"taxable_value"`
	RatePercent  float64 `json:"rate_percent"`
	Breakup      Breakup `json:"breakup"`
	LineTotal    float64 `json:"line_total"`
}

// Totals aggregates per-line results. Components are summed independently;
// tax is never recomputed from the aggregate taxable value, which would lose
// per-line rate differences.
type Totals struct {
	Subtotal   float64 `json:"subtotal"`
	CGSTTotal  float64 `json:"cgst_total"`
	SGSTTotal  float64 `json:"sgst_total"`
	IGSTTotal  float64 `json:"igst_total"`
	TaxTotal   float64 `json:"tax_total"`
	GrandTotal float64 `json:"grand_total"`
}

// NormalizeState canonicalises a state name for jurisdiction comparison.
func NormalizeState(state string) string {
	return strings.ToLower(strings.Join(strings.Fields(state), " "))
}

// IsInterState reports whether buyer and seller are in different states.
// Comparison is case and whitespace insensitive.
func IsInterState(buyerState, sellerState string) bool {
	return NormalizeState(buyerState) != NormalizeState(sellerState)
}

// Round2 rounds to two decimals, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// EffectiveRate resolves an optional product rate to the rate actually
// charged. Both order creation and final invoicing must go through this so
// the two documents agree.
func EffectiveRate(ratePercent *float64) float64 {
	if ratePercent == nil || *ratePercent <= 0 {
		return DefaultGSTRate
	}
	return *ratePercent
}

// Split divides the GST on a taxable value into components. Inter-state
// transactions charge IGST at the full rate; intra-state charges CGST and
// SGST at half the rate each, rounded half away from zero to the paisa.
func Split(taxableValue, ratePercent float64, interState bool) Breakup {
	gst := taxableValue * ratePercent / 100
	if interState {
		return Breakup{IGST: Round2(gst)}
	}
	half := Round2(gst / 2)
	return Breakup{CGST: half, SGST: half}
}

// ComputeLine computes the full tax result for one line.
func ComputeLine(taxableValue, ratePercent float64, buyerState, sellerState string) Line {
	breakup := Split(taxableValue, ratePercent, IsInterState(buyerState, sellerState))
	return Line{
		TaxableValue: Round2(taxableValue),
		RatePercent:  ratePercent,
		Breakup:      breakup,
		LineTotal:    Round2(taxableValue + breakup.Total()),
	}
}

// Aggregate sums per-line results and reconciles rounding drift. When the
// grand total differs from subtotal plus tax components by more than
// Epsilon/2, the remainder is absorbed into the last line (SGST for
// intra-state lines, IGST for inter-state ones). The possibly-adjusted
// lines are returned alongside the totals.
func Aggregate(lines []Line) (Totals, []Line) {
	var t Totals
	for _, l := range lines {
		t.Subtotal += l.TaxableValue
		t.CGSTTotal += l.Breakup.CGST
		t.SGSTTotal += l.Breakup.SGST
		t.IGSTTotal += l.Breakup.IGST
		t.GrandTotal += l.LineTotal
	}
	t.Subtotal = Round2(t.Subtotal)
	t.CGSTTotal = Round2(t.CGSTTotal)
	t.SGSTTotal = Round2(t.SGSTTotal)
	t.IGSTTotal = Round2(t.IGSTTotal)
	t.GrandTotal = Round2(t.GrandTotal)

	drift := t.GrandTotal - (t.Subtotal + t.CGSTTotal + t.SGSTTotal + t.IGSTTotal)
	if math.Abs(drift) > Epsilon/2 && len(lines) > 0 {
		adjusted := Round2(drift)
		last := &lines[len(lines)-1]
		if last.Breakup.IGST != 0 {
			last.Breakup.IGST = Round2(last.Breakup.IGST + adjusted)
			t.IGSTTotal = Round2(t.IGSTTotal + adjusted)
		} else {
			last.Breakup.SGST = Round2(last.Breakup.SGST + adjusted)
			t.SGSTTotal = Round2(t.SGSTTotal + adjusted)
		}
		last.LineTotal = Round2(last.TaxableValue + last.Breakup.Total())
	}
	t.TaxTotal = Round2(t.CGSTTotal + t.SGSTTotal + t.IGSTTotal)
	return t, lines
}

// Reconciled reports whether totals satisfy the grand-total invariant within
// tolerance.
func Reconciled(t Totals) bool {
	return math.Abs(t.GrandTotal-(t.Subtotal+t.CGSTTotal+t.SGSTTotal+t.IGSTTotal)) <= Epsilon
}
