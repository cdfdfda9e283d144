package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"pharmacy-report-service/internal/services"
)

// IngestionService is the write side of services.IngestionService.
type IngestionService interface {
	IngestMovements(ctx context.Context, inputs []services.MovementInput) (*services.IngestionResult, error)
	IngestSupplierInvoices(ctx context.Context, inputs []services.SupplierInvoiceInput) (*services.IngestionResult, error)
	RecordSupplierPayments(ctx context.Context, inputs []services.SupplierPaymentInput) (*services.IngestionResult, error)
	TakeSnapshot(ctx context.Context, date string) (*services.SnapshotResult, error)
}

type IngestionHandler struct {
	ingestionService IngestionService
	log              *zap.Logger
	loc              *time.Location
	now              func() time.Time
}

func NewIngestionHandler(ingestionService IngestionService, loc *time.Location, log *zap.Logger) *IngestionHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &IngestionHandler{
		ingestionService: ingestionService,
		log:              log.Named("handlers"),
		loc:              loc,
		now:              time.Now,
	}
}

func (h *IngestionHandler) IngestMovements(w http.ResponseWriter, r *http.Request) {
	var movements []services.MovementInput

	if err := json.NewDecoder(r.Body).Decode(&movements); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if len(movements) == 0 {
		respondWithError(w, http.StatusBadRequest, "No movements provided")
		return
	}

	result, err := h.ingestionService.IngestMovements(r.Context(), movements)
	h.respondWithResult(w, result, err)
}

func (h *IngestionHandler) IngestSupplierInvoices(w http.ResponseWriter, r *http.Request) {
	var invoices []services.SupplierInvoiceInput

	if err := json.NewDecoder(r.Body).Decode(&invoices); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if len(invoices) == 0 {
		respondWithError(w, http.StatusBadRequest, "No invoices provided")
		return
	}

	result, err := h.ingestionService.IngestSupplierInvoices(r.Context(), invoices)
	h.respondWithResult(w, result, err)
}

func (h *IngestionHandler) RecordSupplierPayments(w http.ResponseWriter, r *http.Request) {
	var payments []services.SupplierPaymentInput

	if err := json.NewDecoder(r.Body).Decode(&payments); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if len(payments) == 0 {
		respondWithError(w, http.StatusBadRequest, "No payments provided")
		return
	}

	result, err := h.ingestionService.RecordSupplierPayments(r.Context(), payments)
	h.respondWithResult(w, result, err)
}

// TakeSnapshot records today's start-of-day stock. The optional
// {"date": "YYYY-MM-DD"} body is accepted only when it names today.
func (h *IngestionHandler) TakeSnapshot(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Date string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if request.Date == "" {
		request.Date = h.now().In(h.loc).Format("2006-01-02")
	}

	result, err := h.ingestionService.TakeSnapshot(r.Context(), request.Date)
	if err != nil {
		respondWithServiceError(w, h.log, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, SuccessResponse{Message: "Stock snapshot recorded", Data: result})
}

// respondWithResult answers 200 for a committed batch and 422 when any item
// was rejected and nothing was recorded.
func (h *IngestionHandler) respondWithResult(w http.ResponseWriter, result *services.IngestionResult, err error) {
	if err != nil {
		respondWithServiceError(w, h.log, err)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	respondWithJSON(w, status, result)
}
