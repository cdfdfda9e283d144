// Package ledger rebuilds a stock ledger for a window from the quantity on
// hand now and the movements recorded since the window started.
package ledger

import (
	"sort"
	"time"
)

// Direction of a stock movement.
type Direction string

const (
	In  Direction = "in"
	Out Direction = "out"
	// Opening tags the synthetic row that carries the derived opening balance.
	// It counts as In for balance purposes but never for totals.
	Opening Direction = "opening"
)

// Transaction is a single ledger entry. RunningBalance is derived by
// ApplyForward and is ignored on input.
type Transaction struct {
	Date           time.Time `json:"date"`
	Direction      Direction `json:"direction"`
	Quantity       int64     `json:"quantity"`
	RunningBalance int64     `json:"running_balance"`
	Reference      string    `json:"reference,omitempty"`
	Source         string    `json:"source,omitempty"`
}

// signed returns the quantity as it affects the balance.
func (t Transaction) signed() int64 {
	q := t.Quantity
	if q < 0 {
		q = 0
	}
	if t.Direction == Out {
		return -q
	}
	return q
}

// Ledger is the result of Reconcile. OpeningBalance is nil when there were no
// transactions in the window.
type Ledger struct {
	OpeningBalance *int64        `json:"opening_balance,omitempty"`
	Entries        []Transaction `json:"entries"`
}

// Totals sums received and issued quantities.
type Totals struct {
	Received int64 `json:"received"`
	Issued   int64 `json:"issued"`
}

// Less orders transactions by date, receipts before issues on the same date.
func Less(a, b Transaction) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	return rank(a.Direction) < rank(b.Direction)
}

func rank(d Direction) int {
	switch d {
	case Opening:
		return 0
	case Out:
		return 2
	default:
		return 1
	}
}

// SortTransactions returns a sorted copy. Entries that compare equal keep
// their input order.
func SortTransactions(txns []Transaction) []Transaction {
	sorted := make([]Transaction, len(txns))
	copy(sorted, txns)
	sort.SliceStable(sorted, func(i, j int) bool {
		return Less(sorted[i], sorted[j])
	})
	return sorted
}

// DeriveOpeningBalance walks sorted backward from current, undoing each
// movement.
func DeriveOpeningBalance(current int64, sorted []Transaction) int64 {
	balance := current
	for i := len(sorted) - 1; i >= 0; i-- {
		balance -= sorted[i].signed()
	}
	return balance
}

// ApplyForward walks sorted forward from opening and records the balance after
// each movement. The input slice is not modified.
func ApplyForward(opening int64, sorted []Transaction) []Transaction {
	out := make([]Transaction, len(sorted))
	balance := opening
	for i, t := range sorted {
		if t.Quantity < 0 {
			t.Quantity = 0
		}
		balance += t.signed()
		t.RunningBalance = balance
		out[i] = t
	}
	return out
}

// Reconcile derives the opening balance of the window and the running balance
// of every movement in it.
func Reconcile(current int64, txns []Transaction) Ledger {
	if len(txns) == 0 {
		return Ledger{Entries: []Transaction{}}
	}

	sorted := SortTransactions(txns)
	opening := DeriveOpeningBalance(current, sorted)

	return Ledger{
		OpeningBalance: &opening,
		Entries:        ApplyForward(opening, sorted),
	}
}

// Rows returns the entries with the opening pseudo-entry, dated at
// windowStart, in front. With no entries it returns an empty slice.
func (l Ledger) Rows(windowStart time.Time) []Transaction {
	if l.OpeningBalance == nil {
		return []Transaction{}
	}
	rows := make([]Transaction, 0, len(l.Entries)+1)
	rows = append(rows, Transaction{
		Date:           windowStart,
		Direction:      Opening,
		Quantity:       *l.OpeningBalance,
		RunningBalance: *l.OpeningBalance,
		Reference:      "Opening Balance",
	})
	return append(rows, l.Entries...)
}

// Totals sums receipts and issues. Opening pseudo-entries are skipped so Rows
// output can be passed in directly.
func (l Ledger) Totals() Totals {
	return Sum(l.Entries)
}

// Sum totals receipts and issues in rows, skipping opening pseudo-entries.
func Sum(rows []Transaction) Totals {
	var t Totals
	for _, r := range rows {
		switch r.Direction {
		case In:
			t.Received += r.Quantity
		case Out:
			t.Issued += r.Quantity
		}
	}
	return t
}

// ClosingBalance is the balance after the last entry, or the opening balance
// when entries is empty.
func (l Ledger) ClosingBalance() (int64, bool) {
	if l.OpeningBalance == nil {
		return 0, false
	}
	if len(l.Entries) == 0 {
		return *l.OpeningBalance, true
	}
	return l.Entries[len(l.Entries)-1].RunningBalance, true
}

// Until returns a copy of l keeping only entries dated on or before end.
// Running balances are unchanged.
func (l Ledger) Until(end time.Time) Ledger {
	kept := make([]Transaction, 0, len(l.Entries))
	for _, e := range l.Entries {
		if e.Date.After(end) {
			break
		}
		kept = append(kept, e)
	}
	return Ledger{OpeningBalance: l.OpeningBalance, Entries: kept}
}
