package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pharmacy-report-service/internal/models"
	"pharmacy-report-service/internal/repositories"
)

type ingestionFixture struct {
	service   *IngestionService
	sqlMock   sqlmock.Sqlmock
	stock     *mockStockRepository
	suppliers *mockSupplierRepository
	audit     *mockAuditRepository
}

func newIngestionFixture(t *testing.T) *ingestionFixture {
	t.Helper()
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &ingestionFixture{
		sqlMock:   sqlMock,
		stock:     &mockStockRepository{},
		suppliers: &mockSupplierRepository{},
		audit:     &mockAuditRepository{},
	}
	f.service = NewIngestionService(db, f.stock, f.suppliers, f.audit, zap.NewNop(), time.UTC)
	f.service.now = func() time.Time { return time.Date(2024, time.June, 1, 10, 30, 0, 0, time.UTC) }
	return f
}

var anyTx = mock.AnythingOfType("*sql.Tx")

func TestIngestionService_IngestMovements(t *testing.T) {
	ctx := context.Background()

	t.Run("records receipts and sales", func(t *testing.T) {
		f := newIngestionFixture(t)
		f.sqlMock.ExpectBegin()
		f.sqlMock.ExpectCommit()

		f.stock.On("InsertGRNItem", ctx, anyTx, mock.MatchedBy(func(item *models.GRNItem) bool {
			return item.GRNNumber == "GRN-7" && item.MedicineID == 2 && item.Quantity == 40 &&
				item.ReceivedDate.Equal(time.Date(2024, time.May, 2, 0, 0, 0, 0, time.UTC))
		})).Return(nil)
		f.stock.On("AdjustStock", ctx, anyTx, int64(2), int64(40)).Return(nil)
		f.stock.On("InsertSaleItem", ctx, anyTx, mock.MatchedBy(func(item *models.SaleItem) bool {
			return item.InvoiceNumber == "INV-9" && item.MedicineID.Valid && item.MedicineID.Int64 == 2
		})).Return(nil)
		f.stock.On("AdjustStock", ctx, anyTx, int64(2), int64(-5)).Return(nil)
		f.stock.On("FindMedicineByName", ctx, anyTx, "Cotton Roll").Return(nil, repositories.ErrNotFound)
		f.stock.On("InsertSaleItem", ctx, anyTx, mock.MatchedBy(func(item *models.SaleItem) bool {
			return item.InvoiceNumber == "INV-10" && !item.MedicineID.Valid && item.MedicineName == "Cotton Roll"
		})).Return(nil)
		f.audit.On("CreateAuditEntry", ctx, anyTx, mock.MatchedBy(func(a *models.IngestionAudit) bool {
			var details map[string]int
			if err := json.Unmarshal(a.Details, &details); err != nil {
				return false
			}
			return a.Action == models.AuditActionMovementsRecorded && a.UserID == "system" &&
				details["successful"] == 3 && details["failed"] == 0
		})).Return(nil)

		result, err := f.service.IngestMovements(ctx, []MovementInput{
			{Direction: "in", Reference: "GRN-7", MedicineID: 2, Quantity: 40, Date: "2024-05-02"},
			{Direction: "out", Reference: "INV-9", MedicineID: 2, MedicineName: "Ibuprofen", Quantity: 5, Date: "2024-05-03"},
			{Direction: "out", Reference: "INV-10", MedicineName: "Cotton Roll", Quantity: 2, Date: "2024-05-03"},
		})

		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, 3, result.RecordsCount)
		assert.NotEmpty(t, result.BatchID)
		assert.Empty(t, result.Errors)
		f.stock.AssertExpectations(t)
		f.audit.AssertExpectations(t)
		assert.NoError(t, f.sqlMock.ExpectationsWereMet())
	})

	t.Run("name-only sale of a catalog medicine moves its stock", func(t *testing.T) {
		f := newIngestionFixture(t)
		f.sqlMock.ExpectBegin()
		f.sqlMock.ExpectCommit()

		f.stock.On("FindMedicineByName", ctx, anyTx, "Paracetamol").
			Return(&models.Medicine{ID: 1, Name: "paracetamol", CurrentStock: 100}, nil)
		f.stock.On("InsertSaleItem", ctx, anyTx, mock.MatchedBy(func(item *models.SaleItem) bool {
			return item.MedicineID.Valid && item.MedicineID.Int64 == 1 && item.MedicineName == "Paracetamol" && item.Quantity == 10
		})).Return(nil)
		f.stock.On("AdjustStock", ctx, anyTx, int64(1), int64(-10)).Return(nil)
		f.audit.On("CreateAuditEntry", ctx, anyTx, mock.Anything).Return(nil)

		result, err := f.service.IngestMovements(ctx, []MovementInput{
			{Direction: "out", Reference: "INV-11", MedicineName: "Paracetamol", Quantity: 10, Date: "2024-05-03"},
		})

		require.NoError(t, err)
		assert.True(t, result.Success)
		f.stock.AssertExpectations(t)
		f.stock.AssertNumberOfCalls(t, "AdjustStock", 1)
		assert.NoError(t, f.sqlMock.ExpectationsWereMet())
	})

	t.Run("storage failure aborts the batch", func(t *testing.T) {
		f := newIngestionFixture(t)
		f.sqlMock.ExpectBegin()
		f.sqlMock.ExpectRollback()

		f.stock.On("InsertGRNItem", ctx, anyTx, mock.Anything).Return(errors.New("connection reset by peer"))

		result, err := f.service.IngestMovements(ctx, []MovementInput{
			{Direction: "in", Reference: "GRN-1", MedicineID: 2, Quantity: 1, Date: "2024-05-02"},
			{Direction: "in", Reference: "GRN-2", MedicineID: 2, Quantity: 1, Date: "2024-05-02"},
		})

		assert.Nil(t, result)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidInput)
		assert.ErrorContains(t, err, "movement GRN-1: connection reset by peer")
		f.stock.AssertNumberOfCalls(t, "InsertGRNItem", 1)
		f.stock.AssertNotCalled(t, "AdjustStock", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.audit.AssertNotCalled(t, "CreateAuditEntry", mock.Anything, mock.Anything, mock.Anything)
		assert.NoError(t, f.sqlMock.ExpectationsWereMet())
	})

	t.Run("invalid item rolls back the batch", func(t *testing.T) {
		f := newIngestionFixture(t)
		f.sqlMock.ExpectBegin()
		f.sqlMock.ExpectRollback()

		f.stock.On("InsertGRNItem", ctx, anyTx, mock.Anything).Return(nil)
		f.stock.On("AdjustStock", ctx, anyTx, int64(2), int64(40)).Return(nil)

		result, err := f.service.IngestMovements(ctx, []MovementInput{
			{Direction: "in", Reference: "GRN-7", MedicineID: 2, Quantity: 40, Date: "2024-05-02"},
			{Direction: "in", Reference: "GRN-8", MedicineName: "Gauze", Quantity: 0, Date: "02/05/2024"},
		})

		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, 1, result.RecordsCount)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "movement GRN-8")
		assert.Contains(t, result.Errors[0], "medicine_id: is required")
		assert.Contains(t, result.Errors[0], "quantity: must be greater than 0")
		f.audit.AssertNotCalled(t, "CreateAuditEntry", mock.Anything, mock.Anything, mock.Anything)
		assert.NoError(t, f.sqlMock.ExpectationsWereMet())
	})

	t.Run("unknown medicine is reported", func(t *testing.T) {
		f := newIngestionFixture(t)
		f.sqlMock.ExpectBegin()
		f.sqlMock.ExpectRollback()

		f.stock.On("InsertSaleItem", ctx, anyTx, mock.Anything).Return(nil)
		f.stock.On("AdjustStock", ctx, anyTx, int64(99), int64(-1)).Return(repositories.ErrNotFound)

		result, err := f.service.IngestMovements(ctx, []MovementInput{
			{Direction: "out", Reference: "INV-1", MedicineID: 99, Quantity: 1, Date: "2024-05-02"},
		})

		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, 0, result.RecordsCount)
		assert.Contains(t, result.Errors[0], repositories.ErrNotFound.Error())
	})

	t.Run("audit failure is an error", func(t *testing.T) {
		f := newIngestionFixture(t)
		f.sqlMock.ExpectBegin()
		f.sqlMock.ExpectRollback()

		f.stock.On("InsertGRNItem", ctx, anyTx, mock.Anything).Return(nil)
		f.stock.On("AdjustStock", ctx, anyTx, int64(2), int64(1)).Return(nil)
		f.audit.On("CreateAuditEntry", ctx, anyTx, mock.Anything).Return(errors.New("disk full"))

		result, err := f.service.IngestMovements(ctx, []MovementInput{
			{Direction: "in", Reference: "GRN-1", MedicineID: 2, Quantity: 1, Date: "2024-05-02"},
		})

		assert.Nil(t, result)
		assert.ErrorContains(t, err, "failed to create audit entry")
	})
}

func TestIngestionService_IngestSupplierInvoices(t *testing.T) {
	ctx := context.Background()

	t.Run("records valid invoices", func(t *testing.T) {
		f := newIngestionFixture(t)
		f.sqlMock.ExpectBegin()
		f.sqlMock.ExpectCommit()

		f.suppliers.On("InsertInvoice", ctx, anyTx, mock.MatchedBy(func(inv *models.SupplierInvoice) bool {
			return inv.InvoiceNumber == "PI-1" && inv.TotalAmount.Equal(decimal.RequireFromString("1500.50")) &&
				inv.PaidAmount.IsZero()
		})).Return(nil)
		f.audit.On("CreateAuditEntry", ctx, anyTx, mock.Anything).Return(nil)

		result, err := f.service.IngestSupplierInvoices(ctx, []SupplierInvoiceInput{{
			SupplierID:    4,
			InvoiceNumber: "PI-1",
			InvoiceDate:   "2024-01-15",
			DueDate:       "2024-03-01",
			TotalAmount:   decimal.RequireFromString("1500.50"),
		}})

		require.NoError(t, err)
		assert.True(t, result.Success)
		f.suppliers.AssertExpectations(t)
	})

	t.Run("rejects inconsistent invoices", func(t *testing.T) {
		f := newIngestionFixture(t)
		f.sqlMock.ExpectBegin()
		f.sqlMock.ExpectRollback()

		result, err := f.service.IngestSupplierInvoices(ctx, []SupplierInvoiceInput{
			{SupplierID: 4, InvoiceNumber: "PI-2", InvoiceDate: "2024-03-01", DueDate: "2024-02-01", TotalAmount: decimal.NewFromInt(10)},
			{SupplierID: 4, InvoiceNumber: "PI-3", InvoiceDate: "2024-03-01", DueDate: "2024-04-01", TotalAmount: decimal.Zero},
			{SupplierID: 4, InvoiceNumber: "PI-4", InvoiceDate: "2024-03-01", DueDate: "2024-04-01", TotalAmount: decimal.NewFromInt(10), PaidAmount: decimal.NewFromInt(-1)},
			{SupplierID: 4, InvoiceNumber: "PI-5", InvoiceDate: "2024-03-01", DueDate: "2024-04-01", TotalAmount: decimal.NewFromInt(10), PaidAmount: decimal.NewFromInt(11)},
		})

		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, []string{
			"invoice PI-2: due_date: must not be before invoice_date",
			"invoice PI-3: total_amount: must be greater than 0",
			"invoice PI-4: paid_amount: must not be negative",
			"invoice PI-5: paid_amount: must not exceed total_amount",
		}, result.Errors)
		f.suppliers.AssertNotCalled(t, "InsertInvoice", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("duplicate invoice number is reported", func(t *testing.T) {
		f := newIngestionFixture(t)
		f.sqlMock.ExpectBegin()
		f.sqlMock.ExpectRollback()

		f.suppliers.On("InsertInvoice", ctx, anyTx, mock.Anything).
			Return(fmt.Errorf("%w: Duplicate entry '4-PI-1'", repositories.ErrDuplicate))

		result, err := f.service.IngestSupplierInvoices(ctx, []SupplierInvoiceInput{
			{SupplierID: 4, InvoiceNumber: "PI-1", InvoiceDate: "2024-01-15", DueDate: "2024-03-01", TotalAmount: decimal.NewFromInt(10)},
		})

		require.NoError(t, err)
		assert.False(t, result.Success)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "invoice PI-1: already exists")
	})
}

func TestIngestionService_RecordSupplierPayments(t *testing.T) {
	ctx := context.Background()
	f := newIngestionFixture(t)
	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectRollback()

	f.suppliers.On("RecordPayment", ctx, anyTx, int64(5), decimal.NewFromInt(250)).Return(nil)

	result, err := f.service.RecordSupplierPayments(ctx, []SupplierPaymentInput{
		{InvoiceID: 5, Amount: decimal.NewFromInt(250)},
		{InvoiceID: 6, Amount: decimal.NewFromInt(-3)},
	})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, []string{"payment for invoice 6: amount: must be greater than 0"}, result.Errors)
	f.suppliers.AssertExpectations(t)
}

func TestIngestionService_RecordSupplierPaymentsOverpayment(t *testing.T) {
	ctx := context.Background()
	f := newIngestionFixture(t)
	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectRollback()

	f.suppliers.On("RecordPayment", ctx, anyTx, int64(5), decimal.NewFromInt(500)).
		Return(fmt.Errorf("supplier invoice 5: %w: outstanding 250.00", repositories.ErrOverpayment))

	result, err := f.service.RecordSupplierPayments(ctx, []SupplierPaymentInput{
		{InvoiceID: 5, Amount: decimal.NewFromInt(500)},
	})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, []string{
		"payment for invoice 5: supplier invoice 5: payment exceeds outstanding amount: outstanding 250.00",
	}, result.Errors)
	f.audit.AssertNotCalled(t, "CreateAuditEntry", mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestionService_TakeSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("stores snapshot", func(t *testing.T) {
		f := newIngestionFixture(t)
		f.sqlMock.ExpectBegin()
		f.sqlMock.ExpectCommit()
		f.stock.On("SnapshotStock", ctx, anyTx, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)).Return(int64(12), nil)

		result, err := f.service.TakeSnapshot(ctx, "2024-06-01")

		require.NoError(t, err)
		assert.Equal(t, &SnapshotResult{Date: "2024-06-01", Items: 12}, result)
		assert.NoError(t, f.sqlMock.ExpectationsWereMet())
	})

	t.Run("rejects dates other than today", func(t *testing.T) {
		f := newIngestionFixture(t)

		for _, date := range []string{"2024-05-01", "2024-06-02"} {
			result, err := f.service.TakeSnapshot(ctx, date)

			assert.Nil(t, result)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, []FieldError{{Field: "date", Message: "must be today (2024-06-01)"}}, verr.Fields)
		}
		f.stock.AssertNotCalled(t, "SnapshotStock", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("today follows the configured timezone", func(t *testing.T) {
		f := newIngestionFixture(t)
		f.service.loc = time.FixedZone("WIB", 7*60*60)
		f.service.now = func() time.Time { return time.Date(2024, time.June, 1, 20, 0, 0, 0, time.UTC) }
		f.sqlMock.ExpectBegin()
		f.sqlMock.ExpectCommit()
		f.stock.On("SnapshotStock", ctx, anyTx, time.Date(2024, time.June, 2, 0, 0, 0, 0, time.UTC)).Return(int64(3), nil)

		result, err := f.service.TakeSnapshot(ctx, "2024-06-02")

		require.NoError(t, err)
		assert.Equal(t, int64(3), result.Items)
	})

	t.Run("bad date", func(t *testing.T) {
		f := newIngestionFixture(t)

		_, err := f.service.TakeSnapshot(ctx, "June 1st")

		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestValidateStruct(t *testing.T) {
	err := validateStruct(MovementInput{Direction: "sideways", Reference: "X", MedicineID: 1, Quantity: 1, Date: "2024-01-01"})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, []FieldError{{Field: "direction", Message: "must be one of: in out"}}, verr.Fields)

	assert.NoError(t, validateStruct(MovementInput{Direction: "out", Reference: "X", MedicineName: "Gauze", Quantity: 1, Date: "2024-01-01"}))
}
