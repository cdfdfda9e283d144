package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pharmacy-report-service/internal/models"
)

type StockRepository interface {
	GetMedicine(ctx context.Context, id int64) (*models.Medicine, error)
	FindMedicineByName(ctx context.Context, tx *sql.Tx, name string) (*models.Medicine, error)
	ListMedicines(ctx context.Context) ([]*models.Medicine, error)
	ListMovementsSince(ctx context.Context, medicine *models.Medicine, from time.Time) ([]*models.StockMovement, error)
	SumIssued(ctx context.Context, from, to time.Time) ([]*models.MovementTotal, error)
	SumReceived(ctx context.Context, from, to time.Time) ([]*models.MovementTotal, error)
	OpeningStock(ctx context.Context, at time.Time) (map[int64]int64, error)
	InsertGRNItem(ctx context.Context, tx *sql.Tx, item *models.GRNItem) error
	InsertSaleItem(ctx context.Context, tx *sql.Tx, item *models.SaleItem) error
	AdjustStock(ctx context.Context, tx *sql.Tx, medicineID, delta int64) error
	SnapshotStock(ctx context.Context, tx *sql.Tx, at time.Time) (int64, error)
}

type stockRepository struct {
	db *sql.DB
}

func NewStockRepository(db *sql.DB) StockRepository {
	return &stockRepository{db: db}
}

func (r *stockRepository) GetMedicine(ctx context.Context, id int64) (*models.Medicine, error) {
	m := &models.Medicine{}
	query := `
		SELECT id, name, current_stock, created_at, updated_at
		FROM medicines
		WHERE id = ?
	`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&m.ID,
		&m.Name,
		&m.CurrentStock,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("medicine %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// FindMedicineByName matches the catalog name ignoring case and surrounding
// whitespace. The lowest id wins when names collide.
func (r *stockRepository) FindMedicineByName(ctx context.Context, tx *sql.Tx, name string) (*models.Medicine, error) {
	m := &models.Medicine{}
	query := `
		SELECT id, name, current_stock, created_at, updated_at
		FROM medicines
		WHERE LOWER(TRIM(name)) = LOWER(TRIM(?))
		ORDER BY id
		LIMIT 1
	`
	err := tx.QueryRowContext(ctx, query, name).Scan(
		&m.ID,
		&m.Name,
		&m.CurrentStock,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("medicine %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *stockRepository) ListMedicines(ctx context.Context) ([]*models.Medicine, error) {
	query := `
		SELECT id, name, current_stock, created_at, updated_at
		FROM medicines
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var medicines []*models.Medicine
	for rows.Next() {
		m := &models.Medicine{}
		if err := rows.Scan(&m.ID, &m.Name, &m.CurrentStock, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		medicines = append(medicines, m)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return medicines, nil
}

// ListMovementsSince returns receipts and issues of one medicine dated on or
// after from. Sales recorded only by name are matched case-insensitively.
func (r *stockRepository) ListMovementsSince(ctx context.Context, medicine *models.Medicine, from time.Time) ([]*models.StockMovement, error) {
	query := `
		SELECT g.received_date AS movement_date, 'in' AS direction, g.quantity, g.grn_number AS reference, 'grn' AS source
		FROM grn_items g
		WHERE g.medicine_id = ?
		AND g.received_date >= ?
		UNION ALL
		SELECT s.sale_date AS movement_date, 'out' AS direction, s.quantity, s.invoice_number AS reference, 'sale' AS source
		FROM sale_items s
		WHERE (s.medicine_id = ? OR (s.medicine_id IS NULL AND LOWER(TRIM(s.medicine_name)) = LOWER(TRIM(?))))
		AND s.sale_date >= ?
		ORDER BY movement_date, direction
	`
	rows, err := r.db.QueryContext(ctx, query, medicine.ID, from, medicine.ID, medicine.Name, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []*models.StockMovement
	for rows.Next() {
		mv := &models.StockMovement{MedicineID: medicine.ID}
		if err := rows.Scan(&mv.Date, &mv.Direction, &mv.Quantity, &mv.Reference, &mv.Source); err != nil {
			return nil, err
		}
		movements = append(movements, mv)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (r *stockRepository) SumIssued(ctx context.Context, from, to time.Time) ([]*models.MovementTotal, error) {
	query := `
		SELECT medicine_id, medicine_name, COALESCE(SUM(quantity), 0)
		FROM sale_items
		WHERE sale_date BETWEEN ? AND ?
		GROUP BY medicine_id, medicine_name
	`
	return r.sumMovements(ctx, query, from, to)
}

func (r *stockRepository) SumReceived(ctx context.Context, from, to time.Time) ([]*models.MovementTotal, error) {
	query := `
		SELECT g.medicine_id, m.name, COALESCE(SUM(g.quantity), 0)
		FROM grn_items g
		JOIN medicines m ON m.id = g.medicine_id
		WHERE g.received_date BETWEEN ? AND ?
		GROUP BY g.medicine_id, m.name
	`
	return r.sumMovements(ctx, query, from, to)
}

func (r *stockRepository) sumMovements(ctx context.Context, query string, from, to time.Time) ([]*models.MovementTotal, error) {
	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []*models.MovementTotal
	for rows.Next() {
		t := &models.MovementTotal{}
		if err := rows.Scan(&t.MedicineID, &t.MedicineName, &t.Quantity); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return totals, nil
}

// OpeningStock returns the stock held at the start of day at for every
// medicine with a snapshot dated on or before at. The latest snapshot is
// rolled forward over the movements dated from the snapshot day up to, but
// excluding, at.
func (r *stockRepository) OpeningStock(ctx context.Context, at time.Time) (map[int64]int64, error) {
	query := `
		SELECT s.medicine_id,
			s.quantity
			+ COALESCE((
				SELECT SUM(g.quantity)
				FROM grn_items g
				WHERE g.medicine_id = s.medicine_id
				AND g.received_date >= s.snapshot_date
				AND g.received_date < ?
			), 0)
			- COALESCE((
				SELECT SUM(si.quantity)
				FROM sale_items si
				WHERE (si.medicine_id = s.medicine_id OR (si.medicine_id IS NULL AND LOWER(TRIM(si.medicine_name)) = LOWER(TRIM(m.name))))
				AND si.sale_date >= s.snapshot_date
				AND si.sale_date < ?
			), 0) AS quantity
		FROM stock_snapshots s
		JOIN medicines m ON m.id = s.medicine_id
		JOIN (
			SELECT medicine_id, MAX(snapshot_date) AS snapshot_date
			FROM stock_snapshots
			WHERE snapshot_date <= ?
			GROUP BY medicine_id
		) latest ON latest.medicine_id = s.medicine_id AND latest.snapshot_date = s.snapshot_date
	`
	rows, err := r.db.QueryContext(ctx, query, at, at, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	opening := make(map[int64]int64)
	for rows.Next() {
		var id, qty int64
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		opening[id] = qty
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return opening, nil
}

func (r *stockRepository) InsertGRNItem(ctx context.Context, tx *sql.Tx, item *models.GRNItem) error {
	query := `
		INSERT INTO grn_items (
			grn_number, medicine_id, quantity, received_date
		) VALUES (?, ?, ?, ?)
	`
	result, err := tx.ExecContext(ctx, query,
		item.GRNNumber,
		item.MedicineID,
		item.Quantity,
		item.ReceivedDate,
	)
	if err != nil {
		return translateError(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	item.ID = id
	return nil
}

func (r *stockRepository) InsertSaleItem(ctx context.Context, tx *sql.Tx, item *models.SaleItem) error {
	query := `
		INSERT INTO sale_items (
			invoice_number, medicine_id, medicine_name, quantity, sale_date
		) VALUES (?, ?, ?, ?, ?)
	`
	result, err := tx.ExecContext(ctx, query,
		item.InvoiceNumber,
		item.MedicineID,
		item.MedicineName,
		item.Quantity,
		item.SaleDate,
	)
	if err != nil {
		return translateError(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	item.ID = id
	return nil
}

func (r *stockRepository) AdjustStock(ctx context.Context, tx *sql.Tx, medicineID, delta int64) error {
	query := `
		UPDATE medicines
		SET current_stock = current_stock + ?,
		    updated_at = ?
		WHERE id = ?
	`
	result, err := tx.ExecContext(ctx, query, delta, time.Now(), medicineID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("medicine %d: %w", medicineID, ErrNotFound)
	}
	return nil
}

// SnapshotStock records every medicine's stock at the start of day at,
// replacing an existing snapshot for the same date. Movements dated on or
// after at are backed out of the current stock, so the row does not depend on
// the time of day it was taken. It returns the number of medicines covered.
func (r *stockRepository) SnapshotStock(ctx context.Context, tx *sql.Tx, at time.Time) (int64, error) {
	query := `
		INSERT INTO stock_snapshots (medicine_id, snapshot_date, quantity)
		SELECT m.id, ?,
			m.current_stock
			- COALESCE((
				SELECT SUM(g.quantity)
				FROM grn_items g
				WHERE g.medicine_id = m.id
				AND g.received_date >= ?
			), 0)
			+ COALESCE((
				SELECT SUM(si.quantity)
				FROM sale_items si
				WHERE (si.medicine_id = m.id OR (si.medicine_id IS NULL AND LOWER(TRIM(si.medicine_name)) = LOWER(TRIM(m.name))))
				AND si.sale_date >= ?
			), 0)
		FROM medicines m
		ON DUPLICATE KEY UPDATE quantity = VALUES(quantity)
	`
	if _, err := tx.ExecContext(ctx, query, at, at, at); err != nil {
		return 0, err
	}

	var count int64
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM stock_snapshots WHERE snapshot_date = ?`, at).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
