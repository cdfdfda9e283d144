package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"pharmacy-report-service/internal/config"
	"pharmacy-report-service/internal/database"
	"pharmacy-report-service/internal/export"
	"pharmacy-report-service/internal/handlers"
	"pharmacy-report-service/internal/logger"
	"pharmacy-report-service/internal/repositories"
	"pharmacy-report-service/internal/services"
)

func main() {
	configPath := flag.String("config", ".env", "Path to the .env configuration file")
	migrateCmd := flag.String("migrate", "", "Migration command (up/down/version)")
	steps := flag.Int("steps", 0, "Number of migration steps (0 means all)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if *migrateCmd != "" {
		handleMigration(cfg, log, *migrateCmd, *steps)
		return
	}

	db, err := database.NewConnection(cfg, log)
	if err != nil {
		log.Fatal("Error connecting to database", zap.Error(err))
	}
	defer db.Close()

	renderer, err := export.NewRenderer()
	if err != nil {
		log.Fatal("Error loading report templates", zap.Error(err))
	}

	stockRepo := repositories.NewStockRepository(db)
	supplierRepo := repositories.NewSupplierRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	reportService := services.NewReportService(stockRepo, supplierRepo, log, cfg.Location())
	ingestionService := services.NewIngestionService(db, stockRepo, supplierRepo, auditRepo, log, cfg.Location())

	router := handlers.SetupRouter(
		handlers.NewReportHandler(reportService, renderer, cfg.Report.InflightTTL, log),
		handlers.NewIngestionHandler(ingestionService, cfg.Location(), log),
		cfg,
		log,
	)

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server is running", zap.String("address", cfg.ServerAddress), zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server shutdown failed", zap.Error(err))
	}
	log.Info("Server exited gracefully")
}

func handleMigration(cfg *config.Config, log *zap.Logger, command string, steps int) {
	db, err := database.NewConnection(cfg, log)
	if err != nil {
		log.Fatal("Failed to ensure database exists", zap.Error(err))
	}
	db.Close()

	m, err := migrate.New(
		fmt.Sprintf("file://%s", cfg.Migration.Dir),
		cfg.GetMigrationDBURL(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "no change") {
			log.Info("No migration changes to apply")
			return
		}
		log.Fatal("Failed to initialize migrate", zap.Error(err))
	}
	defer m.Close()

	switch command {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	case "version":
		version, dirty, verErr := m.Version()
		if verErr != nil {
			if errors.Is(verErr, migrate.ErrNilVersion) {
				log.Info("No migrations have been applied yet")
				return
			}
			log.Fatal("Failed to get version", zap.Error(verErr))
		}
		fmt.Printf("Current migration version: %d (dirty: %v)\n", version, dirty)
		return
	default:
		log.Fatal("Invalid migration command", zap.String("command", command))
	}

	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("No migration changes to apply")
			return
		}
		log.Fatal("Migration failed", zap.Error(err))
	}

	log.Info("Migration completed successfully", zap.String("command", command))
}
