package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pharmacy-report-service/internal/database"
	"pharmacy-report-service/internal/models"
	"pharmacy-report-service/internal/repositories"
)

type IngestionService struct {
	db           *sql.DB
	stockRepo    repositories.StockRepository
	supplierRepo repositories.SupplierRepository
	auditRepo    repositories.AuditRepository
	log          *zap.Logger
	loc          *time.Location
	now          func() time.Time
}

func NewIngestionService(
	db *sql.DB,
	stockRepo repositories.StockRepository,
	supplierRepo repositories.SupplierRepository,
	auditRepo repositories.AuditRepository,
	log *zap.Logger,
	loc *time.Location,
) *IngestionService {
	if loc == nil {
		loc = time.UTC
	}
	return &IngestionService{
		db:           db,
		stockRepo:    stockRepo,
		supplierRepo: supplierRepo,
		auditRepo:    auditRepo,
		log:          log.Named("ingestion"),
		loc:          loc,
		now:          time.Now,
	}
}

// MovementInput is a goods receipt (in) or a dispensed sale (out). Receipts
// must name a catalog medicine; sales may carry only the medicine name.
type MovementInput struct {
	Direction    string `json:"direction" validate:"required,oneof=in out"`
	Reference    string `json:"reference" validate:"required"`
	MedicineID   int64  `json:"medicine_id" validate:"gte=0,required_if=Direction in"`
	MedicineName string `json:"medicine_name" validate:"required_without=MedicineID"`
	Quantity     int64  `json:"quantity" validate:"gt=0"`
	Date         string `json:"date" validate:"required,datetime=2006-01-02"`
}

type SupplierInvoiceInput struct {
	SupplierID    int64           `json:"supplier_id" validate:"gt=0"`
	InvoiceNumber string          `json:"invoice_number" validate:"required"`
	InvoiceDate   string          `json:"invoice_date" validate:"required,datetime=2006-01-02"`
	DueDate       string          `json:"due_date" validate:"required,datetime=2006-01-02"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
}

type SupplierPaymentInput struct {
	InvoiceID int64           `json:"invoice_id" validate:"gt=0"`
	Amount    decimal.Decimal `json:"amount"`
}

type SnapshotResult struct {
	Date  string `json:"date"`
	Items int64  `json:"items"`
}

type IngestionResult struct {
	BatchID      string                 `json:"batch_id"`
	Success      bool                   `json:"success"`
	RecordsCount int                    `json:"records_count"`
	Errors       []string               `json:"errors,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

// isItemError reports whether err rejects a single item rather than the
// whole request.
func isItemError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, repositories.ErrNotFound) ||
		errors.Is(err, repositories.ErrDuplicate) ||
		errors.Is(err, repositories.ErrOverpayment)
}

// record runs insert for every item in one transaction. Item errors are
// reported and the batch is committed only when every item succeeded. Any
// other error aborts the batch and is returned.
func (s *IngestionService) record(ctx context.Context, action string, total int, insert func(tx *sql.Tx, i int) (string, error)) (*IngestionResult, error) {
	result := &IngestionResult{
		BatchID: uuid.NewString(),
		Details: make(map[string]interface{}),
	}

	errRollback := errors.New("batch has failed items")

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for i := 0; i < total; i++ {
			label, err := insert(tx, i)
			if err != nil {
				if !isItemError(err) {
					return fmt.Errorf("%s: %w", label, err)
				}
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", label, err))
				continue
			}
			result.RecordsCount++
		}

		result.Details["total_records"] = total
		result.Details["successful"] = result.RecordsCount
		result.Details["failed"] = len(result.Errors)

		if len(result.Errors) > 0 {
			return errRollback
		}

		auditDetails, err := json.Marshal(result.Details)
		if err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
		audit := &models.IngestionAudit{
			BatchID: result.BatchID,
			Action:  action,
			Details: auditDetails,
			UserID:  "system",
		}
		if err := s.auditRepo.CreateAuditEntry(ctx, tx, audit); err != nil {
			return fmt.Errorf("failed to create audit entry: %w", err)
		}
		return nil
	})

	if errors.Is(err, errRollback) {
		s.log.Warn("batch rejected",
			zap.String("batch_id", result.BatchID),
			zap.String("action", action),
			zap.Int("failed", len(result.Errors)),
		)
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	result.Success = true
	s.log.Info("batch recorded",
		zap.String("batch_id", result.BatchID),
		zap.String("action", action),
		zap.Int("records", result.RecordsCount),
	)
	return result, nil
}

// IngestMovements records receipts and sales and keeps the medicine's current
// stock in step with them. A sale given only by name is linked to the catalog
// medicine of that name when there is one.
func (s *IngestionService) IngestMovements(ctx context.Context, inputs []MovementInput) (*IngestionResult, error) {
	return s.record(ctx, models.AuditActionMovementsRecorded, len(inputs), func(tx *sql.Tx, i int) (string, error) {
		input := inputs[i]
		label := "movement " + input.Reference
		if err := validateStruct(input); err != nil {
			return label, err
		}
		date, err := ParseDate(input.Date)
		if err != nil {
			return label, err
		}

		if input.Direction == models.DirectionIn {
			item := &models.GRNItem{
				GRNNumber:    input.Reference,
				MedicineID:   input.MedicineID,
				Quantity:     input.Quantity,
				ReceivedDate: date,
			}
			if err := s.stockRepo.InsertGRNItem(ctx, tx, item); err != nil {
				return label, err
			}
			return label, s.stockRepo.AdjustStock(ctx, tx, input.MedicineID, input.Quantity)
		}

		medicineID := input.MedicineID
		if medicineID == 0 {
			medicine, err := s.stockRepo.FindMedicineByName(ctx, tx, input.MedicineName)
			switch {
			case err == nil:
				medicineID = medicine.ID
			case !errors.Is(err, repositories.ErrNotFound):
				return label, err
			}
		}

		item := &models.SaleItem{
			InvoiceNumber: input.Reference,
			MedicineID:    sql.NullInt64{Int64: medicineID, Valid: medicineID > 0},
			MedicineName:  input.MedicineName,
			Quantity:      input.Quantity,
			SaleDate:      date,
		}
		if err := s.stockRepo.InsertSaleItem(ctx, tx, item); err != nil {
			return label, err
		}
		if !item.MedicineID.Valid {
			return label, nil
		}
		return label, s.stockRepo.AdjustStock(ctx, tx, medicineID, -input.Quantity)
	})
}

func (s *IngestionService) IngestSupplierInvoices(ctx context.Context, inputs []SupplierInvoiceInput) (*IngestionResult, error) {
	return s.record(ctx, models.AuditActionInvoicesRecorded, len(inputs), func(tx *sql.Tx, i int) (string, error) {
		input := inputs[i]
		label := "invoice " + input.InvoiceNumber
		if err := validateStruct(input); err != nil {
			return label, err
		}
		if !input.TotalAmount.IsPositive() {
			return label, invalid("total_amount", "must be greater than 0")
		}
		if input.PaidAmount.IsNegative() {
			return label, invalid("paid_amount", "must not be negative")
		}
		if input.PaidAmount.GreaterThan(input.TotalAmount) {
			return label, invalid("paid_amount", "must not exceed total_amount")
		}
		invoiceDate, err := ParseDate(input.InvoiceDate)
		if err != nil {
			return label, err
		}
		dueDate, err := ParseDate(input.DueDate)
		if err != nil {
			return label, err
		}
		if dueDate.Before(invoiceDate) {
			return label, invalid("due_date", "must not be before invoice_date")
		}

		return label, s.supplierRepo.InsertInvoice(ctx, tx, &models.SupplierInvoice{
			SupplierID:    input.SupplierID,
			InvoiceNumber: input.InvoiceNumber,
			InvoiceDate:   invoiceDate,
			DueDate:       dueDate,
			TotalAmount:   input.TotalAmount,
			PaidAmount:    input.PaidAmount,
		})
	})
}

func (s *IngestionService) RecordSupplierPayments(ctx context.Context, inputs []SupplierPaymentInput) (*IngestionResult, error) {
	return s.record(ctx, models.AuditActionPaymentsRecorded, len(inputs), func(tx *sql.Tx, i int) (string, error) {
		input := inputs[i]
		label := fmt.Sprintf("payment for invoice %d", input.InvoiceID)
		if err := validateStruct(input); err != nil {
			return label, err
		}
		if !input.Amount.IsPositive() {
			return label, invalid("amount", "must be greater than 0")
		}
		return label, s.supplierRepo.RecordPayment(ctx, tx, input.InvoiceID, input.Amount)
	})
}

// TakeSnapshot stores every medicine's stock at the start of date, which
// must be today. Snapshots anchor the opening stock of later sale reports.
func (s *IngestionService) TakeSnapshot(ctx context.Context, date string) (*SnapshotResult, error) {
	day, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	if today := calendarDate(s.now(), s.loc); !day.Equal(today) {
		return nil, invalid("date", "must be today ("+today.Format(dateLayout)+")")
	}

	var items int64
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		items, err = s.stockRepo.SnapshotStock(ctx, tx, day)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot stock: %w", err)
	}

	s.log.Info("stock snapshot taken", zap.String("date", date), zap.Int64("items", items))
	return &SnapshotResult{Date: date, Items: items}, nil
}
