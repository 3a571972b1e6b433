// Package export serialises accounting reports for download.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/kirana-commerce/kirana-commerce/internal/accounting"
)

// WriteSalesCSV serialises the sales summary to CSV.
func WriteSalesCSV(w io.Writer, summary accounting.SalesSummary) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Metric", "Value"}); err != nil {
		return err
	}
	records := [][]string{
		{"From", summary.From.Format("2006-01-02")},
		{"To", summary.To.Format("2006-01-02")},
		{"Online Orders", strconv.Itoa(summary.OnlineOrders)},
		{"Online Revenue", formatFloat(summary.OnlineRevenue)},
		{"COD Orders", strconv.Itoa(summary.CODOrders)},
		{"COD Revenue", formatFloat(summary.CODRevenue)},
		{"Total Orders", strconv.Itoa(summary.TotalOrders)},
		{"Total Revenue", formatFloat(summary.TotalRevenue)},
	}
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteTaxCSV serialises the GST summary, one row per rate bucket.
func WriteTaxCSV(w io.Writer, summary accounting.TaxSummary) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Rate %", "Taxable Value", "CGST", "SGST", "IGST"}); err != nil {
		return err
	}
	for _, row := range summary.Rows {
		if err := writer.Write([]string{
			formatFloat(row.RatePercent),
			formatFloat(row.TaxableValue),
			formatFloat(row.CGST),
			formatFloat(row.SGST),
			formatFloat(row.IGST),
		}); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{
		"Total",
		formatFloat(summary.TaxableTotal),
		formatFloat(summary.CGSTTotal),
		formatFloat(summary.SGSTTotal),
		formatFloat(summary.IGSTTotal),
	}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// WriteTrendCSV serialises daily recognised sales.
func WriteTrendCSV(w io.Writer, points []accounting.TrendPoint) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Date", "Orders", "Revenue"}); err != nil {
		return err
	}
	for _, p := range points {
		if err := writer.Write([]string{p.Date, strconv.Itoa(p.Orders), formatFloat(p.Revenue)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
