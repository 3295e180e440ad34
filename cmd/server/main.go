package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/ledgerline/be-approvals/internal/client"
	"github.com/ledgerline/be-approvals/internal/config"
	"github.com/ledgerline/be-approvals/internal/database"
	"github.com/ledgerline/be-approvals/internal/handler"
	"github.com/ledgerline/be-approvals/internal/logger"
	"github.com/ledgerline/be-approvals/internal/repository"
	"github.com/ledgerline/be-approvals/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Approvals Service")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize repositories
	defRepo := repository.NewDefinitionRepository(db)
	execRepo := repository.NewExecutionRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)

	// Initialize NATS notification publisher
	var nc *nats.Conn
	if cfg.NATS.Enabled {
		nc, err = nats.Connect(cfg.NATS.URL, nats.Name(cfg.Service.Name))
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.NATS.URL).
				Msg("Could not connect to NATS; notifications disabled")
		} else {
			defer nc.Drain()
			log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
		}
	}
	notifier := client.NewNotificationPublisher(nc, log.Logger)

	// Initialize identity client
	identityClient := client.NewIdentityClient(cfg.Identity.BaseURL, cfg.Identity.Timeout)
	log.Info().Str("identity_url", cfg.Identity.BaseURL).Msg("Identity client initialized")

	// Initialize services
	approvalService := service.NewApprovalService(
		execRepo, defRepo, auditRepo, invoiceRepo, identityClient, notifier, log)
	invoiceService := service.NewInvoiceService(invoiceRepo, approvalService, log)
	definitionService := service.NewDefinitionService(defRepo, log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(invoiceService, approvalService, definitionService, log)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Invoice routes
	mux.HandleFunc("/api/v1/invoices", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListInvoices(w, r)
		case http.MethodPost:
			httpHandler.CreateInvoice(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/invoices/get", requireMethod(http.MethodGet, httpHandler.GetInvoice))
	mux.HandleFunc("/api/v1/invoices/submit", requireMethod(http.MethodPost, httpHandler.SubmitForApproval))

	// Execution routes
	mux.HandleFunc("/api/v1/executions/decision", requireMethod(http.MethodPost, httpHandler.RecordDecision))
	mux.HandleFunc("/api/v1/executions/cancel", requireMethod(http.MethodPost, httpHandler.CancelExecution))
	mux.HandleFunc("/api/v1/executions/get", requireMethod(http.MethodGet, httpHandler.GetExecution))
	mux.HandleFunc("/api/v1/executions/active", requireMethod(http.MethodGet, httpHandler.GetActiveExecution))
	mux.HandleFunc("/api/v1/executions/pending", requireMethod(http.MethodGet, httpHandler.ListPending))
	mux.HandleFunc("/api/v1/executions/history", requireMethod(http.MethodGet, httpHandler.GetHistory))

	// Workflow definition routes
	mux.HandleFunc("/api/v1/workflows", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListDefinitions(w, r)
		case http.MethodPost:
			httpHandler.CreateDefinition(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/workflows/get", requireMethod(http.MethodGet, httpHandler.GetDefinition))
	mux.HandleFunc("/api/v1/workflows/update", requireMethod(http.MethodPost, httpHandler.UpdateDefinition))

	// Apply middleware
	var h http.Handler = mux
	h = handler.RequestID(h)
	h = handler.Logger(&log.Logger)(h)
	h = handler.Recovery(&log.Logger)(h)
	h = handler.CORS([]string{"*"})(h)
	h = handler.Timeout(cfg.Server.WriteTimeout)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}

// requireMethod rejects requests with the wrong HTTP method.
func requireMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}
