package accounting

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// inr prints amounts with Indian digit grouping (1,23,456.78).
var inr = message.NewPrinter(language.MustParse("en-IN"))

// FormatINR renders an amount as a rupee string for report views.
func FormatINR(amount float64) string {
	return inr.Sprintf("₹%.2f", amount)
}

// SalesSummaryVM is the display form of the sales report.
type SalesSummaryVM struct {
	SalesSummary
	OnlineRevenueDisplay string `json:"online_revenue_display"`
	CODRevenueDisplay    string `json:"cod_revenue_display"`
	TotalRevenueDisplay  string `json:"total_revenue_display"`
}

// NewSalesSummaryVM decorates the summary with formatted amounts.
func NewSalesSummaryVM(s SalesSummary) SalesSummaryVM {
	return SalesSummaryVM{
		SalesSummary:         s,
		OnlineRevenueDisplay: FormatINR(s.OnlineRevenue),
		CODRevenueDisplay:    FormatINR(s.CODRevenue),
		TotalRevenueDisplay:  FormatINR(s.TotalRevenue),
	}
}

// ProfitSummaryVM is the display form of the profit report.
type ProfitSummaryVM struct {
	ProfitSummary
	RevenueDisplay string `json:"revenue_display"`
	CostDisplay    string `json:"cost_display"`
	ProfitDisplay  string `json:"profit_display"`
}

// NewProfitSummaryVM decorates the summary with formatted amounts.
func NewProfitSummaryVM(s ProfitSummary) ProfitSummaryVM {
	return ProfitSummaryVM{
		ProfitSummary:  s,
		RevenueDisplay: FormatINR(s.Revenue),
		CostDisplay:    FormatINR(s.Cost),
		ProfitDisplay:  FormatINR(s.Profit),
	}
}

// CollectionSummaryVM is the display form of the collection report.
type CollectionSummaryVM struct {
	CollectionSummary
	RecognisedRevenueDisplay string `json:"recognised_revenue_display"`
	UnsettledCODDisplay      string `json:"unsettled_cod_display"`
	UnpaidOnlineDisplay      string `json:"unpaid_online_display"`
}

// NewCollectionSummaryVM decorates the summary with formatted amounts.
func NewCollectionSummaryVM(c CollectionSummary) CollectionSummaryVM {
	return CollectionSummaryVM{
		CollectionSummary:        c,
		RecognisedRevenueDisplay: FormatINR(c.RecognisedRevenue),
		UnsettledCODDisplay:      FormatINR(c.UnsettledCOD),
		UnpaidOnlineDisplay:      FormatINR(c.UnpaidOnline),
	}
}

// CODExposureVM is the display form of the settlement exposure report.
type CODExposureVM struct {
	CODExposure
	OutstandingDisplay string `json:"outstanding_display"`
}

// NewCODExposureVM decorates the exposure with formatted amounts.
func NewCODExposureVM(e CODExposure) CODExposureVM {
	return CODExposureVM{
		CODExposure:        e,
		OutstandingDisplay: FormatINR(e.Outstanding),
	}
}
