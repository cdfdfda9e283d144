package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"pharmacy-report-service/internal/export"
	"pharmacy-report-service/internal/services"
)

// ReportService is the report side of services.ReportService.
type ReportService interface {
	StockLedger(ctx context.Context, medicineID int64, from, to time.Time) (*services.StockLedgerReport, error)
	SupplierAging(ctx context.Context, asOf time.Time, supplierID *int64) (*services.SupplierAgingReport, error)
	SaleReport(ctx context.Context, from, to time.Time, activeOnly bool) (*services.SaleReport, error)
}

type ReportHandler struct {
	reportService ReportService
	renderer      *export.Renderer
	inflight      *inflightGuard
	log           *zap.Logger
	now           func() time.Time
}

func NewReportHandler(reportService ReportService, renderer *export.Renderer, inflightTTL time.Duration, log *zap.Logger) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		renderer:      renderer,
		inflight:      newInflightGuard(inflightTTL),
		log:           log.Named("handlers"),
		now:           time.Now,
	}
}

// begin parses the format and claims the in-flight slot for this report and
// its parameters. It writes the error response itself and returns ok=false
// when the request must stop.
func (h *ReportHandler) begin(w http.ResponseWriter, r *http.Request) (format export.Format, done func(), ok bool) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return "", nil, false
	}

	key := r.URL.Path + "?" + r.URL.Query().Encode()
	if !h.inflight.acquire(key) {
		respondWithError(w, http.StatusConflict, "This report is already being generated")
		return "", nil, false
	}
	return format, func() { h.inflight.release(key) }, true
}

func (h *ReportHandler) GetStockLedger(w http.ResponseWriter, r *http.Request) {
	medicineID, err := strconv.ParseInt(mux.Vars(r)["medicine_id"], 10, 64)
	if err != nil || medicineID <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid medicine_id")
		return
	}

	query := r.URL.Query()
	if query.Get("from") == "" {
		respondWithError(w, http.StatusBadRequest, "from query parameter is required")
		return
	}
	from, err := services.ParseDate(query.Get("from"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid from format. Use YYYY-MM-DD")
		return
	}
	var to time.Time
	if v := query.Get("to"); v != "" {
		if to, err = services.ParseDate(v); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid to format. Use YYYY-MM-DD")
			return
		}
	}

	format, done, ok := h.begin(w, r)
	if !ok {
		return
	}
	defer done()

	report, err := h.reportService.StockLedger(r.Context(), medicineID, from, to)
	if err != nil {
		respondWithServiceError(w, h.log, err)
		return
	}

	filename := export.Filename(fmt.Sprintf("stock-ledger-%d", medicineID), report.From, report.To, format)
	h.respond(w, format, filename, report,
		func(out io.Writer) error { return export.WriteLedgerCSV(out, report.Rows) },
		func(out io.Writer) error {
			return h.renderer.Ledger(out, export.LedgerPage{
				Page: export.Page{
					Title:       "Stock Ledger: " + report.Medicine.Name,
					Subtitle:    period(report.From, report.To),
					GeneratedAt: h.now(),
				},
				Rows:           report.Rows,
				Totals:         report.Totals,
				CurrentBalance: report.CurrentBalance,
				ClosingBalance: report.ClosingBalance,
			})
		},
	)
}

func (h *ReportHandler) GetSupplierAging(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var asOf time.Time
	if v := query.Get("as_of"); v != "" {
		var err error
		if asOf, err = services.ParseDate(v); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid as_of format. Use YYYY-MM-DD")
			return
		}
	}

	var supplierID *int64
	if v := query.Get("supplier_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid supplier_id")
			return
		}
		supplierID = &id
	}

	format, done, ok := h.begin(w, r)
	if !ok {
		return
	}
	defer done()

	report, err := h.reportService.SupplierAging(r.Context(), asOf, supplierID)
	if err != nil {
		respondWithServiceError(w, h.log, err)
		return
	}

	filename := export.Filename("supplier-aging", time.Time{}, report.AsOf, format)
	h.respond(w, format, filename, report,
		func(out io.Writer) error { return export.WriteAgingCSV(out, report.Classified) },
		func(out io.Writer) error {
			return h.renderer.Aging(out, export.AgingPage{
				Page: export.Page{
					Title:       "Supplier Aging",
					Subtitle:    "As of " + report.AsOf.Format("2006-01-02"),
					GeneratedAt: h.now(),
				},
				Report: report.Report,
			})
		},
	)
}

func (h *ReportHandler) GetSaleReport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("from") == "" || query.Get("to") == "" {
		respondWithError(w, http.StatusBadRequest, "Both from and to query parameters are required")
		return
	}
	from, err := services.ParseDate(query.Get("from"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid from format. Use YYYY-MM-DD")
		return
	}
	to, err := services.ParseDate(query.Get("to"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid to format. Use YYYY-MM-DD")
		return
	}

	activeOnly := false
	if v := query.Get("active_only"); v != "" {
		if activeOnly, err = strconv.ParseBool(v); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid active_only value")
			return
		}
	}

	format, done, ok := h.begin(w, r)
	if !ok {
		return
	}
	defer done()

	report, err := h.reportService.SaleReport(r.Context(), from, to, activeOnly)
	if err != nil {
		respondWithServiceError(w, h.log, err)
		return
	}

	filename := export.Filename("sales", report.From, report.To, format)
	h.respond(w, format, filename, report,
		func(out io.Writer) error { return export.WriteSalesCSV(out, report.Rows) },
		func(out io.Writer) error {
			return h.renderer.Sales(out, export.SalesPage{
				Page: export.Page{
					Title:       "Sale Report",
					Subtitle:    period(report.From, report.To),
					GeneratedAt: h.now(),
				},
				Rows: report.Rows,
			})
		},
	)
}

// respond writes payload as JSON, or renders it through writeCSV/writeHTML.
// Rendered output is buffered so a failure still yields a clean error.
func (h *ReportHandler) respond(w http.ResponseWriter, format export.Format, filename string, payload interface{}, writeCSV, writeHTML func(io.Writer) error) {
	var (
		buf         bytes.Buffer
		err         error
		contentType string
	)
	switch format {
	case export.FormatCSV:
		err = writeCSV(&buf)
		contentType = "text/csv; charset=utf-8"
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	case export.FormatHTML:
		err = writeHTML(&buf)
		contentType = "text/html; charset=utf-8"
	default:
		respondWithJSON(w, http.StatusOK, payload)
		return
	}

	if err != nil {
		w.Header().Del("Content-Disposition")
		h.log.Error("failed to export report", zap.String("format", string(format)), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

func period(from, to time.Time) string {
	return from.Format("2006-01-02") + " to " + to.Format("2006-01-02")
}
