package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pharmacy-report-service/internal/config"
)

func SetupRouter(reportHandler *ReportHandler, ingestionHandler *IngestionHandler, cfg *config.Config, log *zap.Logger) *mux.Router {
	router := mux.NewRouter()

	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware(log.Named("http")))

	router.HandleFunc("/health", healthCheckHandler).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(rateLimitMiddleware(newLimiter(cfg.RateLimit), log.Named("http")))

	reports := api.PathPrefix("/reports").Subrouter()
	reports.HandleFunc("/stock-ledger/{medicine_id:[0-9]+}", reportHandler.GetStockLedger).Methods(http.MethodGet)
	reports.HandleFunc("/supplier-aging", reportHandler.GetSupplierAging).Methods(http.MethodGet)
	reports.HandleFunc("/sales", reportHandler.GetSaleReport).Methods(http.MethodGet)

	api.HandleFunc("/movements", ingestionHandler.IngestMovements).Methods(http.MethodPost)
	api.HandleFunc("/supplier-invoices", ingestionHandler.IngestSupplierInvoices).Methods(http.MethodPost)
	api.HandleFunc("/supplier-payments", ingestionHandler.RecordSupplierPayments).Methods(http.MethodPost)
	api.HandleFunc("/stock-snapshots", ingestionHandler.TakeSnapshot).Methods(http.MethodPost)

	return router
}

// newLimiter returns nil when RPS is zero, which disables rate limiting.
func newLimiter(cfg config.RateLimitConfig) *rate.Limiter {
	if cfg.RPS <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RPS), burst)
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "healthy",
	}
	respondWithJSON(w, http.StatusOK, response)
}
