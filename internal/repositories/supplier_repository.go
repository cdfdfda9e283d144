package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pharmacy-report-service/internal/models"
)

type SupplierRepository interface {
	ListOutstandingInvoices(ctx context.Context, supplierID *int64) ([]*models.SupplierInvoice, error)
	InsertInvoice(ctx context.Context, tx *sql.Tx, inv *models.SupplierInvoice) error
	RecordPayment(ctx context.Context, tx *sql.Tx, invoiceID int64, amount decimal.Decimal) error
}

type supplierRepository struct {
	db *sql.DB
}

func NewSupplierRepository(db *sql.DB) SupplierRepository {
	return &supplierRepository{db: db}
}

// ListOutstandingInvoices returns invoices with an unpaid balance, oldest due
// date first, optionally for one supplier.
func (r *supplierRepository) ListOutstandingInvoices(ctx context.Context, supplierID *int64) ([]*models.SupplierInvoice, error) {
	query := `
		SELECT i.id, i.supplier_id, s.name, i.invoice_number, i.invoice_date,
		       i.due_date, i.total_amount, i.paid_amount, i.created_at, i.updated_at
		FROM supplier_invoices i
		JOIN suppliers s ON s.id = i.supplier_id
		WHERE i.total_amount > i.paid_amount
	`
	var args []interface{}
	if supplierID != nil {
		query += " AND i.supplier_id = ?"
		args = append(args, *supplierID)
	}
	query += " ORDER BY i.due_date, i.id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []*models.SupplierInvoice
	for rows.Next() {
		inv := &models.SupplierInvoice{}
		err := rows.Scan(
			&inv.ID,
			&inv.SupplierID,
			&inv.SupplierName,
			&inv.InvoiceNumber,
			&inv.InvoiceDate,
			&inv.DueDate,
			&inv.TotalAmount,
			&inv.PaidAmount,
			&inv.CreatedAt,
			&inv.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *supplierRepository) InsertInvoice(ctx context.Context, tx *sql.Tx, inv *models.SupplierInvoice) error {
	query := `
		INSERT INTO supplier_invoices (
			supplier_id, invoice_number, invoice_date,
			due_date, total_amount, paid_amount
		) VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := tx.ExecContext(ctx, query,
		inv.SupplierID,
		inv.InvoiceNumber,
		inv.InvoiceDate,
		inv.DueDate,
		inv.TotalAmount,
		inv.PaidAmount,
	)
	if err != nil {
		return translateError(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	inv.ID = id
	return nil
}

// RecordPayment adds amount to the invoice's paid amount. A payment that
// would take the paid amount past the total is rejected with ErrOverpayment
// and leaves the invoice unchanged.
func (r *supplierRepository) RecordPayment(ctx context.Context, tx *sql.Tx, invoiceID int64, amount decimal.Decimal) error {
	query := `
		UPDATE supplier_invoices
		SET paid_amount = paid_amount + ?,
		    updated_at = ?
		WHERE id = ?
		AND paid_amount + ? <= total_amount
	`
	result, err := tx.ExecContext(ctx, query, amount, time.Now(), invoiceID, amount)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected > 0 {
		return nil
	}

	var outstanding decimal.Decimal
	err = tx.QueryRowContext(ctx, `SELECT total_amount - paid_amount FROM supplier_invoices WHERE id = ?`, invoiceID).Scan(&outstanding)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("supplier invoice %d: %w", invoiceID, ErrNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("supplier invoice %d: %w: outstanding %s", invoiceID, ErrOverpayment, outstanding.StringFixed(2))
}
