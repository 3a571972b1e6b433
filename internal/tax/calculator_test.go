package tax

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsInterState(t *testing.T) {
	assert.False(t, IsInterState("Maharashtra", "Maharashtra"))
	assert.False(t, IsInterState("  maharashtra ", "MAHARASHTRA"))
	assert.False(t, IsInterState("Tamil  Nadu", "tamil nadu"))
	assert.True(t, IsInterState("Karnataka", "Maharashtra"))
	assert.True(t, IsInterState("", "Maharashtra"))
}

func TestSplitIntraState(t *testing.T) {
	b := Split(1000, 18, false)
	assert.Equal(t, 90.0, b.CGST)
	assert.Equal(t, 90.0, b.SGST)
	assert.Equal(t, 0.0, b.IGST)
	assert.Equal(t, 180.0, b.Total())
}

func TestSplitInterState(t *testing.T) {
	b := Split(1000, 18, true)
	assert.Equal(t, 0.0, b.CGST)
	assert.Equal(t, 0.0, b.SGST)
	assert.Equal(t, 180.0, b.IGST)
}

func TestComputeLineSameState(t *testing.T) {
	// ₹1,000 at 18% with buyer and seller both in Maharashtra.
	line := ComputeLine(1000, 18, "Maharashtra", "Maharashtra")
	assert.Equal(t, 90.0, line.Breakup.CGST)
	assert.Equal(t, 90.0, line.Breakup.SGST)
	assert.Equal(t, 0.0, line.Breakup.IGST)
	assert.Equal(t, 1180.0, line.LineTotal)
}

func TestComputeLineInterState(t *testing.T) {
	// Same order with a Karnataka buyer flips the full tax into IGST.
	line := ComputeLine(1000, 18, "Karnataka", "Maharashtra")
	assert.Equal(t, 0.0, line.Breakup.CGST)
	assert.Equal(t, 0.0, line.Breakup.SGST)
	assert.Equal(t, 180.0, line.Breakup.IGST)
	assert.Equal(t, 1180.0, line.LineTotal)
}

func TestEffectiveRate(t *testing.T) {
	assert.Equal(t, DefaultGSTRate, EffectiveRate(nil))
	zero := 0.0
	assert.Equal(t, DefaultGSTRate, EffectiveRate(&zero))
	five := 5.0
	assert.Equal(t, 5.0, EffectiveRate(&five))
}

func TestAggregateSumsComponentsIndependently(t *testing.T) {
	lines := []Line{
		ComputeLine(1000, 18, "Maharashtra", "Maharashtra"),
		ComputeLine(500, 5, "Maharashtra", "Maharashtra"),
	}
	totals, _ := Aggregate(lines)
	assert.Equal(t, 1500.0, totals.Subtotal)
	assert.Equal(t, 102.5, totals.CGSTTotal)
	assert.Equal(t, 102.5, totals.SGSTTotal)
	assert.Equal(t, 0.0, totals.IGSTTotal)
	assert.Equal(t, 205.0, totals.TaxTotal)
	assert.Equal(t, 1705.0, totals.GrandTotal)
	assert.True(t, Reconciled(totals))
}

func TestAggregateReconcilesRoundingDrift(t *testing.T) {
	// Odd-paise taxable values force half-paisa rounding on the split.
	lines := []Line{
		ComputeLine(33.33, 18, "Maharashtra", "Maharashtra"),
		ComputeLine(66.67, 18, "Maharashtra", "Maharashtra"),
		ComputeLine(99.99, 18, "Maharashtra", "Maharashtra"),
	}
	totals, adjusted := Aggregate(lines)
	require.True(t, Reconciled(totals))
	sum := totals.Subtotal + totals.CGSTTotal + totals.SGSTTotal + totals.IGSTTotal
	assert.InDelta(t, totals.GrandTotal, sum, Epsilon)
	// Any adjustment lands on the last line only.
	for _, l := range adjusted[:len(adjusted)-1] {
		assert.InDelta(t, l.TaxableValue+l.Breakup.Total(), l.LineTotal, 1e-9)
	}
}

func TestAggregateInterStateExclusivity(t *testing.T) {
	lines := []Line{
		ComputeLine(1234.56, 12, "Karnataka", "Maharashtra"),
		ComputeLine(789.01, 28, "Karnataka", "Maharashtra"),
	}
	totals, _ := Aggregate(lines)
	assert.Equal(t, 0.0, totals.CGSTTotal)
	assert.Equal(t, 0.0, totals.SGSTTotal)
	assert.True(t, totals.IGSTTotal > 0)
	assert.True(t, Reconciled(totals))
}

func TestRound2HalfAwayFromZero(t *testing.T) {
	assert.Equal(t, 0.13, Round2(0.125))
	assert.Equal(t, -0.13, Round2(-0.125))
	assert.Equal(t, 1.0, Round2(0.999999999))
}

func TestAggregateEmpty(t *testing.T) {
	totals, lines := Aggregate(nil)
	assert.Empty(t, lines)
	assert.Equal(t, Totals{}, totals)
	assert.True(t, math.Abs(totals.GrandTotal) < Epsilon)
}
