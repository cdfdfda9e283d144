// Package export renders report rows as spreadsheet-ready CSV and as
// printable HTML pages.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"pharmacy-report-service/internal/aging"
	"pharmacy-report-service/internal/ledger"
	"pharmacy-report-service/internal/movement"
)

// Format is an output format accepted by the report endpoints.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
)

// ParseFormat maps a query value to a Format. Empty means JSON.
func ParseFormat(value string) (Format, error) {
	switch Format(value) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV, FormatHTML:
		return Format(value), nil
	default:
		return "", fmt.Errorf("unsupported format %q", value)
	}
}

const dateLayout = "2006-01-02"

var (
	LedgerColumns = []string{"Date", "Type", "Reference", "Received", "Issued", "Balance"}
	AgingColumns  = []string{"Supplier", "Invoice", "Due Date", "Days Overdue", "Bucket", "Outstanding"}
	SalesColumns  = []string{"Item", "Opening", "Issued", "Received", "Closing", "Current Stock", "Discrepancy"}
)

// WriteLedgerCSV writes ledger rows, including any opening pseudo-entry,
// followed by a Total row carrying the closing balance.
func WriteLedgerCSV(w io.Writer, rows []ledger.Transaction) error {
	records := make([][]string, 0, len(rows)+2)
	records = append(records, LedgerColumns)

	for _, r := range rows {
		received, issued := ledgerQuantities(r)
		records = append(records, []string{
			r.Date.Format(dateLayout),
			TypeLabel(r.Direction),
			r.Reference,
			received,
			issued,
			itoa(r.RunningBalance),
		})
	}

	totals := ledger.Sum(rows)
	closing := ""
	if len(rows) > 0 {
		closing = itoa(rows[len(rows)-1].RunningBalance)
	}
	records = append(records, []string{"Total", "", "", itoa(totals.Received), itoa(totals.Issued), closing})

	return writeAll(w, records)
}

// WriteAgingCSV writes one row per aged invoice and the outstanding total.
func WriteAgingCSV(w io.Writer, classified []aging.Classified) error {
	records := make([][]string, 0, len(classified)+2)
	records = append(records, AgingColumns)

	total := decimal.Zero
	for _, c := range classified {
		total = total.Add(c.Outstanding)
		records = append(records, []string{
			c.SupplierName,
			c.InvoiceNumber,
			c.DueDate.Format(dateLayout),
			strconv.Itoa(c.DaysOverdue),
			string(c.Bucket),
			Money(c.Outstanding),
		})
	}
	records = append(records, []string{"Total", "", "", "", "", Money(total)})

	return writeAll(w, records)
}

// WriteSalesCSV writes one row per item and the column totals.
func WriteSalesCSV(w io.Writer, rows []movement.Row) error {
	records := make([][]string, 0, len(rows)+2)
	records = append(records, SalesColumns)

	for _, r := range rows {
		records = append(records, salesRecord(r.Name, r))
	}
	records = append(records, salesRecord("Total", movement.Sum(rows)))

	return writeAll(w, records)
}

func salesRecord(label string, r movement.Row) []string {
	return []string{
		label,
		itoa(r.Opening),
		itoa(r.Issued),
		itoa(r.Received),
		itoa(r.Closing),
		itoa(r.CurrentStock),
		itoa(r.Discrepancy),
	}
}

func writeAll(w io.Writer, records [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

// TypeLabel is the display name of a ledger entry kind.
func TypeLabel(d ledger.Direction) string {
	switch d {
	case ledger.Opening:
		return "Opening"
	case ledger.In:
		return "Receipt"
	case ledger.Out:
		return "Issue"
	default:
		return string(d)
	}
}

func ledgerQuantities(t ledger.Transaction) (received, issued string) {
	switch t.Direction {
	case ledger.In:
		return itoa(t.Quantity), ""
	case ledger.Out:
		return "", itoa(t.Quantity)
	default:
		return "", ""
	}
}

// Money formats an amount with two decimals.
func Money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

// Filename builds an attachment name such as sales_2024-05-01_2024-05-31.csv.
func Filename(report string, from, to time.Time, format Format) string {
	name := report
	if !from.IsZero() {
		name += "_" + from.Format(dateLayout)
	}
	if !to.IsZero() {
		name += "_" + to.Format(dateLayout)
	}
	return name + "." + string(format)
}
