// Package aging classifies outstanding supplier payables into day-range buckets.
package aging

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// BucketName identifies an aging bucket.
type BucketName string

const (
	BucketCurrent BucketName = "current"
	Bucket1To30   BucketName = "1-30"
	Bucket31To60  BucketName = "31-60"
	Bucket61To90  BucketName = "61-90"
	Bucket91To120 BucketName = "91-120"
	BucketOver120 BucketName = "120+"
)

// Buckets lists every bucket in display order.
var Buckets = []BucketName{
	BucketCurrent,
	Bucket1To30,
	Bucket31To60,
	Bucket61To90,
	Bucket91To120,
	BucketOver120,
}

// Obligation is an unpaid amount due on a date.
type Obligation struct {
	SupplierID    int64           `json:"supplier_id"`
	SupplierName  string          `json:"supplier_name"`
	InvoiceNumber string          `json:"invoice_number"`
	DueDate       time.Time       `json:"due_date"`
	Outstanding   decimal.Decimal `json:"outstanding"`
}

// NewObligation derives the outstanding amount from total and paid. ok is
// false when nothing is left to pay; such obligations are not aged.
func NewObligation(dueDate time.Time, total, paid decimal.Decimal) (Obligation, bool) {
	outstanding := total.Sub(paid)
	if !outstanding.IsPositive() {
		return Obligation{}, false
	}
	return Obligation{DueDate: dueDate, Outstanding: outstanding}, true
}

// Classified is an obligation with its bucket. DaysOverdue is clamped at zero
// for display; classification uses the signed value.
type Classified struct {
	Obligation
	DaysOverdue int        `json:"days_overdue"`
	Bucket      BucketName `json:"bucket"`
}

// Report is the result of Bucket.
type Report struct {
	AsOf       time.Time                      `json:"as_of"`
	Buckets    map[BucketName]decimal.Decimal `json:"buckets"`
	Total      decimal.Decimal                `json:"total"`
	Classified []Classified                   `json:"classified"`
}

// SupplierAging is one supplier's share of a Report.
type SupplierAging struct {
	SupplierID   int64                          `json:"supplier_id"`
	SupplierName string                         `json:"supplier_name"`
	Buckets      map[BucketName]decimal.Decimal `json:"buckets"`
	Total        decimal.Decimal                `json:"total"`
}

// DaysOverdue returns whole days elapsed from due to asOf, rounded down.
// Negative means not yet due.
func DaysOverdue(asOf, due time.Time) int {
	return int(math.Floor(asOf.Sub(due).Hours() / 24))
}

// BucketFor maps a signed days-overdue value to its bucket.
func BucketFor(days int) BucketName {
	switch {
	case days <= 0:
		return BucketCurrent
	case days <= 30:
		return Bucket1To30
	case days <= 60:
		return Bucket31To60
	case days <= 90:
		return Bucket61To90
	case days <= 120:
		return Bucket91To120
	default:
		return BucketOver120
	}
}

func emptyBuckets() map[BucketName]decimal.Decimal {
	m := make(map[BucketName]decimal.Decimal, len(Buckets))
	for _, b := range Buckets {
		m[b] = decimal.Zero
	}
	return m
}

// Bucket classifies obligations as of asOf and totals each bucket.
// Obligations without a positive outstanding amount are skipped.
func Bucket(obligations []Obligation, asOf time.Time) Report {
	report := Report{
		AsOf:       asOf,
		Buckets:    emptyBuckets(),
		Total:      decimal.Zero,
		Classified: make([]Classified, 0, len(obligations)),
	}

	for _, o := range obligations {
		if !o.Outstanding.IsPositive() {
			continue
		}

		days := DaysOverdue(asOf, o.DueDate)
		bucket := BucketFor(days)

		shown := days
		if shown < 0 {
			shown = 0
		}

		report.Buckets[bucket] = report.Buckets[bucket].Add(o.Outstanding)
		report.Total = report.Total.Add(o.Outstanding)
		report.Classified = append(report.Classified, Classified{
			Obligation:  o,
			DaysOverdue: shown,
			Bucket:      bucket,
		})
	}

	return report
}

// BySupplier splits the report per supplier, ordered by supplier name.
func (r Report) BySupplier() []SupplierAging {
	index := make(map[int64]int)
	var out []SupplierAging

	for _, c := range r.Classified {
		i, ok := index[c.SupplierID]
		if !ok {
			i = len(out)
			index[c.SupplierID] = i
			out = append(out, SupplierAging{
				SupplierID:   c.SupplierID,
				SupplierName: c.SupplierName,
				Buckets:      emptyBuckets(),
				Total:        decimal.Zero,
			})
		}
		out[i].Buckets[c.Bucket] = out[i].Buckets[c.Bucket].Add(c.Outstanding)
		out[i].Total = out[i].Total.Add(c.Outstanding)
	}

	sort.SliceStable(out, func(a, b int) bool {
		if out[a].SupplierName != out[b].SupplierName {
			return out[a].SupplierName < out[b].SupplierName
		}
		return out[a].SupplierID < out[b].SupplierID
	})
	return out
}
