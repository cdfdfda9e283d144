// Package movement builds the opening/issued/received/closing stock report
// and flags rows whose computed closing stock disagrees with recorded stock.
package movement

import (
	"sort"
)

// Row is one item's stock movement over a reporting window.
type Row struct {
	EntityKey    string `json:"entity_key"`
	Name         string `json:"name"`
	Opening      int64  `json:"opening"`
	Issued       int64  `json:"issued"`
	Received     int64  `json:"received"`
	Closing      int64  `json:"closing"`
	CurrentStock int64  `json:"current_stock"`
	Discrepancy  int64  `json:"discrepancy"`
}

// HasDiscrepancy reports whether the computed closing stock differs from the
// recorded current stock.
func (r Row) HasDiscrepancy() bool {
	return r.Discrepancy != 0
}

// Active reports whether the row had stock at the start or moved during the
// window.
func (r Row) Active() bool {
	return r.Opening != 0 || r.Issued != 0 || r.Received != 0
}

// Aggregate merges the four maps into one row per key, sorted by key. Keys
// missing from a map count as zero.
func Aggregate(opening, issued, received, current map[string]int64) []Row {
	keys := make(map[string]struct{})
	for _, m := range []map[string]int64{opening, issued, received, current} {
		for k := range m {
			keys[k] = struct{}{}
		}
	}

	rows := make([]Row, 0, len(keys))
	for k := range keys {
		rows = append(rows, NewRow(k, opening[k], issued[k], received[k], current[k]))
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].EntityKey < rows[j].EntityKey
	})
	return rows
}

// NewRow computes closing stock and discrepancy for one item.
func NewRow(key string, opening, issued, received, current int64) Row {
	closing := opening + received - issued
	return Row{
		EntityKey:    key,
		Opening:      opening,
		Issued:       issued,
		Received:     received,
		Closing:      closing,
		CurrentStock: current,
		Discrepancy:  closing - current,
	}
}

// ActiveOnly drops rows with no opening stock and no movement.
func ActiveOnly(rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r.Active() {
			out = append(out, r)
		}
	}
	return out
}

// Sum adds every numeric column, for the totals line of an export.
func Sum(rows []Row) Row {
	var total Row
	for _, r := range rows {
		total.Opening += r.Opening
		total.Issued += r.Issued
		total.Received += r.Received
		total.Closing += r.Closing
		total.CurrentStock += r.CurrentStock
		total.Discrepancy += r.Discrepancy
	}
	return total
}

// Discrepancies returns the rows that need attention.
func Discrepancies(rows []Row) []Row {
	var out []Row
	for _, r := range rows {
		if r.HasDiscrepancy() {
			out = append(out, r)
		}
	}
	return out
}
