package repositories

import (
	"context"
	"database/sql"

	"pharmacy-report-service/internal/models"
)

type AuditRepository interface {
	CreateAuditEntry(ctx context.Context, tx *sql.Tx, audit *models.IngestionAudit) error
}

type auditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) CreateAuditEntry(ctx context.Context, tx *sql.Tx, audit *models.IngestionAudit) error {
	query := `
		INSERT INTO ingestion_audit (
			batch_id, action, details, user_id
		) VALUES (?, ?, ?, ?)
	`
	result, err := tx.ExecContext(ctx, query,
		audit.BatchID,
		audit.Action,
		[]byte(audit.Details),
		audit.UserID,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	audit.ID = id
	return nil
}
