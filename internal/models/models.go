package models

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Medicine represents a stock-keeping item in the pharmacy catalog
type Medicine struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	CurrentStock int64     `db:"current_stock" json:"current_stock"`
	CreatedAt    time.Time `db:"created_at" json:"-"`
	UpdatedAt    time.Time `db:"updated_at" json:"-"`
}

// GRNItem represents a line of a goods receipt note
type GRNItem struct {
	ID           int64     `db:"id" json:"id"`
	GRNNumber    string    `db:"grn_number" json:"grn_number"`
	MedicineID   int64     `db:"medicine_id" json:"medicine_id"`
	Quantity     int64     `db:"quantity" json:"quantity"`
	ReceivedDate time.Time `db:"received_date" json:"received_date"`
	CreatedAt    time.Time `db:"created_at" json:"-"`
}

// SaleItem represents a dispensed line of a patient invoice. Older rows only
// carry the medicine name.
type SaleItem struct {
	ID            int64         `db:"id" json:"id"`
	InvoiceNumber string        `db:"invoice_number" json:"invoice_number"`
	MedicineID    sql.NullInt64 `db:"medicine_id" json:"medicine_id"`
	MedicineName  string        `db:"medicine_name" json:"medicine_name"`
	Quantity      int64         `db:"quantity" json:"quantity"`
	SaleDate      time.Time     `db:"sale_date" json:"sale_date"`
	CreatedAt     time.Time     `db:"created_at" json:"-"`
}

// StockMovement is the read model joining receipts and sales for one medicine
type StockMovement struct {
	MedicineID int64     `json:"medicine_id"`
	Date       time.Time `json:"date"`
	Direction  string    `json:"direction"`
	Quantity   int64     `json:"quantity"`
	Reference  string    `json:"reference"`
	Source     string    `json:"source"`
}

// MovementTotal is an issued or received quantity summed over a window
type MovementTotal struct {
	MedicineID   sql.NullInt64 `json:"medicine_id"`
	MedicineName string        `json:"medicine_name"`
	Quantity     int64         `json:"quantity"`
}

// SupplierInvoice represents a payable raised against a purchase order
type SupplierInvoice struct {
	ID            int64           `db:"id" json:"id"`
	SupplierID    int64           `db:"supplier_id" json:"supplier_id"`
	SupplierName  string          `db:"supplier_name" json:"supplier_name"`
	InvoiceNumber string          `db:"invoice_number" json:"invoice_number"`
	InvoiceDate   time.Time       `db:"invoice_date" json:"invoice_date"`
	DueDate       time.Time       `db:"due_date" json:"due_date"`
	TotalAmount   decimal.Decimal `db:"total_amount" json:"total_amount"`
	PaidAmount    decimal.Decimal `db:"paid_amount" json:"paid_amount"`
	CreatedAt     time.Time       `db:"created_at" json:"-"`
	UpdatedAt     time.Time       `db:"updated_at" json:"-"`
}

// IngestionAudit represents an audit trail entry for recorded data
type IngestionAudit struct {
	ID        int64           `db:"id" json:"id"`
	BatchID   string          `db:"batch_id" json:"batch_id"`
	Action    string          `db:"action" json:"action"`
	Details   json.RawMessage `db:"details" json:"details"`
	UserID    string          `db:"user_id" json:"user_id"`
	CreatedAt time.Time       `db:"created_at" json:"-"`
}

// Direction constants
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// AuditAction constants
const (
	AuditActionMovementsRecorded = "movements_recorded"
	AuditActionInvoicesRecorded  = "invoices_recorded"
	AuditActionPaymentsRecorded  = "payments_recorded"
)
