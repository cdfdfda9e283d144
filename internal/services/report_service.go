package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"pharmacy-report-service/internal/aging"
	"pharmacy-report-service/internal/ledger"
	"pharmacy-report-service/internal/models"
	"pharmacy-report-service/internal/movement"
	"pharmacy-report-service/internal/repositories"
)

type ReportService struct {
	stockRepo    repositories.StockRepository
	supplierRepo repositories.SupplierRepository
	log          *zap.Logger
	loc          *time.Location
	now          func() time.Time
}

func NewReportService(
	stockRepo repositories.StockRepository,
	supplierRepo repositories.SupplierRepository,
	log *zap.Logger,
	loc *time.Location,
) *ReportService {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportService{
		stockRepo:    stockRepo,
		supplierRepo: supplierRepo,
		log:          log.Named("reports"),
		loc:          loc,
		now:          time.Now,
	}
}

// Today returns the current calendar date in the report timezone.
func (s *ReportService) Today() time.Time {
	return calendarDate(s.now(), s.loc)
}

type StockLedgerReport struct {
	Medicine       *models.Medicine     `json:"medicine"`
	From           time.Time            `json:"from"`
	To             time.Time            `json:"to"`
	CurrentBalance int64                `json:"current_balance"`
	OpeningBalance *int64               `json:"opening_balance,omitempty"`
	ClosingBalance *int64               `json:"closing_balance,omitempty"`
	Rows           []ledger.Transaction `json:"rows"`
	Totals         ledger.Totals        `json:"totals"`
}

// StockLedger rebuilds the ledger of one medicine between from and to. All
// movements since from are reversed out of the current stock so that a
// window ending in the past still gets correct balances; entries after to
// are then dropped from the view. A zero to means today.
func (s *ReportService) StockLedger(ctx context.Context, medicineID int64, from, to time.Time) (*StockLedgerReport, error) {
	if to.IsZero() {
		to = s.Today()
	}
	if to.Before(from) {
		return nil, invalid("to", "must not be before from")
	}

	medicine, err := s.stockRepo.GetMedicine(ctx, medicineID)
	if err != nil {
		return nil, fmt.Errorf("failed to get medicine: %w", err)
	}

	movements, err := s.stockRepo.ListMovementsSince(ctx, medicine, from)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock movements: %w", err)
	}

	txns := make([]ledger.Transaction, 0, len(movements))
	for _, mv := range movements {
		txns = append(txns, toTransaction(mv))
	}

	l := ledger.Reconcile(medicine.CurrentStock, txns).Until(endOfDay(to))

	report := &StockLedgerReport{
		Medicine:       medicine,
		From:           from,
		To:             to,
		CurrentBalance: medicine.CurrentStock,
		OpeningBalance: l.OpeningBalance,
		Rows:           l.Rows(from),
		Totals:         l.Totals(),
	}
	if closing, ok := l.ClosingBalance(); ok {
		report.ClosingBalance = &closing
	}

	s.log.Debug("stock ledger built",
		zap.Int64("medicine_id", medicineID),
		zap.Int("movements", len(movements)),
		zap.Int("rows", len(report.Rows)),
	)
	return report, nil
}

func toTransaction(mv *models.StockMovement) ledger.Transaction {
	dir := ledger.In
	if mv.Direction == models.DirectionOut {
		dir = ledger.Out
	}
	return ledger.Transaction{
		Date:      mv.Date,
		Direction: dir,
		Quantity:  mv.Quantity,
		Reference: mv.Reference,
		Source:    mv.Source,
	}
}

type SupplierAgingReport struct {
	aging.Report
	Suppliers []aging.SupplierAging `json:"suppliers"`
}

// SupplierAging ages every unpaid supplier invoice as of asOf (today when
// zero), optionally for a single supplier.
func (s *ReportService) SupplierAging(ctx context.Context, asOf time.Time, supplierID *int64) (*SupplierAgingReport, error) {
	if asOf.IsZero() {
		asOf = s.Today()
	} else {
		asOf = calendarDate(asOf, time.UTC)
	}

	invoices, err := s.supplierRepo.ListOutstandingInvoices(ctx, supplierID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outstanding invoices: %w", err)
	}

	obligations := make([]aging.Obligation, 0, len(invoices))
	for _, inv := range invoices {
		o, ok := aging.NewObligation(calendarDate(inv.DueDate, time.UTC), inv.TotalAmount, inv.PaidAmount)
		if !ok {
			continue
		}
		o.SupplierID = inv.SupplierID
		o.SupplierName = inv.SupplierName
		o.InvoiceNumber = inv.InvoiceNumber
		obligations = append(obligations, o)
	}

	report := aging.Bucket(obligations, asOf)
	s.log.Debug("supplier aging built",
		zap.Time("as_of", asOf),
		zap.Int("invoices", len(report.Classified)),
		zap.String("total", report.Total.String()),
	)

	return &SupplierAgingReport{
		Report:    report,
		Suppliers: report.BySupplier(),
	}, nil
}

type SaleReport struct {
	From          time.Time      `json:"from"`
	To            time.Time      `json:"to"`
	Rows          []movement.Row `json:"rows"`
	Totals        movement.Row   `json:"totals"`
	Discrepancies int            `json:"discrepancies"`
}

// openEnded bounds movement sums that run up to the present.
var openEnded = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// SaleReport builds per-item opening, issued, received and closing stock for
// the window and compares closing stock with the recorded current stock.
// Sales recorded by name and receipts recorded by id are merged per item.
// Opening stock comes from the latest snapshot rolled forward to from; a
// medicine without one is reversed from its current stock instead.
func (s *ReportService) SaleReport(ctx context.Context, from, to time.Time, activeOnly bool) (*SaleReport, error) {
	if to.Before(from) {
		return nil, invalid("to", "must not be before from")
	}

	var (
		wg                         sync.WaitGroup
		issued, received           []*models.MovementTotal
		issuedSince, receivedSince []*models.MovementTotal
		sumErrs                    [4]error
	)
	sum := func(dst *[]*models.MovementTotal, errp *error, fn func(context.Context, time.Time, time.Time) ([]*models.MovementTotal, error), until time.Time) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			*dst, *errp = fn(ctx, from, until)
		}()
	}
	sum(&issued, &sumErrs[0], s.stockRepo.SumIssued, endOfDay(to))
	sum(&received, &sumErrs[1], s.stockRepo.SumReceived, endOfDay(to))
	sum(&issuedSince, &sumErrs[2], s.stockRepo.SumIssued, openEnded)
	sum(&receivedSince, &sumErrs[3], s.stockRepo.SumReceived, openEnded)

	medicines, err := s.stockRepo.ListMedicines(ctx)
	if err != nil {
		wg.Wait()
		return nil, fmt.Errorf("failed to list medicines: %w", err)
	}
	opening, err := s.stockRepo.OpeningStock(ctx, from)
	if err != nil {
		wg.Wait()
		return nil, fmt.Errorf("failed to get opening stock: %w", err)
	}

	wg.Wait()
	if err := errors.Join(sumErrs[:]...); err != nil {
		return nil, fmt.Errorf("failed to sum stock movements: %w", err)
	}

	catalog := make(map[int64]string, len(medicines))
	currentMap := make(map[string]int64, len(medicines))
	for _, m := range medicines {
		catalog[m.ID] = m.Name
		currentMap[movement.IDKey(m.ID)] = m.CurrentStock
	}
	resolver := movement.NewKeyResolver(catalog)

	issuedMap := resolveTotals(resolver, issued)
	receivedMap := resolveTotals(resolver, received)
	issuedSinceMap := resolveTotals(resolver, issuedSince)
	receivedSinceMap := resolveTotals(resolver, receivedSince)

	openingMap := make(map[string]int64, len(medicines))
	for id, qty := range opening {
		openingMap[movement.IDKey(id)] = qty
	}
	for _, m := range medicines {
		key := movement.IDKey(m.ID)
		if _, ok := openingMap[key]; ok {
			continue
		}
		openingMap[key] = m.CurrentStock - receivedSinceMap[key] + issuedSinceMap[key]
	}

	rows := resolver.Label(movement.Aggregate(openingMap, issuedMap, receivedMap, currentMap))
	if activeOnly {
		rows = movement.ActiveOnly(rows)
	}

	report := &SaleReport{
		From:          from,
		To:            to,
		Rows:          rows,
		Totals:        movement.Sum(rows),
		Discrepancies: len(movement.Discrepancies(rows)),
	}

	if report.Discrepancies > 0 {
		s.log.Warn("stock discrepancies found",
			zap.Time("from", from),
			zap.Time("to", to),
			zap.Int("items", report.Discrepancies),
		)
	}
	return report, nil
}

func resolveTotals(resolver *movement.KeyResolver, totals []*models.MovementTotal) map[string]int64 {
	out := make(map[string]int64)
	for _, t := range totals {
		resolver.Add(out, t.MedicineID.Int64, t.MedicineID.Valid, t.MedicineName, t.Quantity)
	}
	return out
}
