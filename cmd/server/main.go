package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/peoplecore/be-hrm-approvals/internal/config"
	"github.com/peoplecore/be-hrm-approvals/internal/database"
	"github.com/peoplecore/be-hrm-approvals/internal/events"
	"github.com/peoplecore/be-hrm-approvals/internal/handler"
	"github.com/peoplecore/be-hrm-approvals/internal/httpmw"
	"github.com/peoplecore/be-hrm-approvals/internal/repository"
	"github.com/peoplecore/be-hrm-approvals/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := newLogger(cfg.Service)

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Approval Workflow Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize event publisher
	publisher := events.Disabled(log)
	if cfg.NATS.Enabled {
		publisher, err = events.Connect(cfg.NATS.URL, log)
		if err != nil {
			log.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("Failed to connect to NATS")
		}
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
	}
	defer publisher.Close()

	// Initialize repositories
	policyRepo := repository.NewPolicyRepository(db)
	stepRepo := repository.NewStepRepository(db)
	delegationRepo := repository.NewDelegationRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Initialize services
	policyService := service.NewPolicyService(policyRepo, log)
	delegationService := service.NewDelegationService(delegationRepo, membershipRepo, auditRepo, log)
	workflowService := service.NewWorkflowService(
		policyService,
		stepRepo,
		delegationService,
		auditRepo,
		service.NoopListener{}, // entity owners consume NATS events instead
		publisher,
		log,
	)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(workflowService, policyService, delegationService, log)
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	httpHandler.Register(mux)

	// Apply middleware
	var h http.Handler = mux
	h = httpmw.Logger(log)(h)
	h = httpmw.Recovery(log)(h)
	h = httpmw.Timeout(cfg.Server.RequestTimeout)(h)

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

// newLogger builds the service-wide zerolog logger.
func newLogger(cfg config.ServiceConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}

	log := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.Name).
		Str("version", cfg.Version).
		Logger()

	if cfg.Environment == "development" {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return log
}
