package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"pharmacy-report-service/internal/models"
)

type mockStockRepository struct {
	mock.Mock
}

func (m *mockStockRepository) GetMedicine(ctx context.Context, id int64) (*models.Medicine, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Medicine), args.Error(1)
}

func (m *mockStockRepository) FindMedicineByName(ctx context.Context, tx *sql.Tx, name string) (*models.Medicine, error) {
	args := m.Called(ctx, tx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Medicine), args.Error(1)
}

func (m *mockStockRepository) ListMedicines(ctx context.Context) ([]*models.Medicine, error) {
	args := m.Called(ctx)
	medicines, _ := args.Get(0).([]*models.Medicine)
	return medicines, args.Error(1)
}

func (m *mockStockRepository) ListMovementsSince(ctx context.Context, medicine *models.Medicine, from time.Time) ([]*models.StockMovement, error) {
	args := m.Called(ctx, medicine, from)
	movements, _ := args.Get(0).([]*models.StockMovement)
	return movements, args.Error(1)
}

func (m *mockStockRepository) SumIssued(ctx context.Context, from, to time.Time) ([]*models.MovementTotal, error) {
	args := m.Called(ctx, from, to)
	totals, _ := args.Get(0).([]*models.MovementTotal)
	return totals, args.Error(1)
}

func (m *mockStockRepository) SumReceived(ctx context.Context, from, to time.Time) ([]*models.MovementTotal, error) {
	args := m.Called(ctx, from, to)
	totals, _ := args.Get(0).([]*models.MovementTotal)
	return totals, args.Error(1)
}

func (m *mockStockRepository) OpeningStock(ctx context.Context, at time.Time) (map[int64]int64, error) {
	args := m.Called(ctx, at)
	opening, _ := args.Get(0).(map[int64]int64)
	return opening, args.Error(1)
}

func (m *mockStockRepository) InsertGRNItem(ctx context.Context, tx *sql.Tx, item *models.GRNItem) error {
	return m.Called(ctx, tx, item).Error(0)
}

func (m *mockStockRepository) InsertSaleItem(ctx context.Context, tx *sql.Tx, item *models.SaleItem) error {
	return m.Called(ctx, tx, item).Error(0)
}

func (m *mockStockRepository) AdjustStock(ctx context.Context, tx *sql.Tx, medicineID, delta int64) error {
	return m.Called(ctx, tx, medicineID, delta).Error(0)
}

func (m *mockStockRepository) SnapshotStock(ctx context.Context, tx *sql.Tx, at time.Time) (int64, error) {
	args := m.Called(ctx, tx, at)
	return args.Get(0).(int64), args.Error(1)
}

type mockSupplierRepository struct {
	mock.Mock
}

func (m *mockSupplierRepository) ListOutstandingInvoices(ctx context.Context, supplierID *int64) ([]*models.SupplierInvoice, error) {
	args := m.Called(ctx, supplierID)
	invoices, _ := args.Get(0).([]*models.SupplierInvoice)
	return invoices, args.Error(1)
}

func (m *mockSupplierRepository) InsertInvoice(ctx context.Context, tx *sql.Tx, inv *models.SupplierInvoice) error {
	return m.Called(ctx, tx, inv).Error(0)
}

func (m *mockSupplierRepository) RecordPayment(ctx context.Context, tx *sql.Tx, invoiceID int64, amount decimal.Decimal) error {
	return m.Called(ctx, tx, invoiceID, amount).Error(0)
}

type mockAuditRepository struct {
	mock.Mock
}

func (m *mockAuditRepository) CreateAuditEntry(ctx context.Context, tx *sql.Tx, audit *models.IngestionAudit) error {
	return m.Called(ctx, tx, audit).Error(0)
}
