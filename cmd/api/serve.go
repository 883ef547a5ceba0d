package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IANDYI/breeding-service/internal/adapters/handler"
	"github.com/IANDYI/breeding-service/internal/adapters/middleware"
	"github.com/IANDYI/breeding-service/internal/adapters/repository"
	"github.com/IANDYI/breeding-service/internal/config"
	"github.com/IANDYI/breeding-service/internal/core/services"
	"github.com/rs/zerolog"
)

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	publicKey, err := cfg.LoadPublicKey()
	if err != nil {
		return err
	}

	// Connect to database with retry logic
	db, err := config.ConnectDatabase(cfg.DatabaseURL, 5, 2*time.Second, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := config.InitDatabase(context.Background(), db, cfg.DropTablesOnStartup, logger); err != nil {
		return err
	}

	publisher, err := repository.NewRabbitMQPublisher(cfg.RabbitMQURL, cfg.EventsQueueName, cfg.Breaker(), logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	sqlRepo := repository.NewSQLRepository(db, cfg.Breaker())
	window := cfg.Window()
	orchestrator := services.NewBulkOrchestrator(cfg.BulkMaxWorkers, logger)

	protocolService := services.NewProtocolService(sqlRepo, sqlRepo, publisher, orchestrator, time.Now, logger)
	eventService := services.NewEventService(sqlRepo, sqlRepo, publisher, orchestrator, window, time.Now, logger)

	// Apply requests from the dashboard are consumed in this pod.
	// In multi-replica deployments RabbitMQ distributes messages across replicas.
	consumer, err := repository.NewApplicationConsumer(cfg.RabbitMQURL, cfg.ApplyQueueName, protocolService, logger)
	if err != nil {
		return err
	}
	defer consumer.Close()

	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()
	if err := consumer.StartConsuming(consumerCtx); err != nil {
		logger.Error().Err(err).Msg("application consumer failed to start")
	}

	protocolHandler := handler.NewProtocolHandler(protocolService, logger)
	eventHandler := handler.NewEventHandler(eventService, window, logger)
	healthHandler := handler.NewHealthHandler(db, logger)

	authMiddleware := middleware.NewAuthMiddleware(publicKey, logger)
	defer authMiddleware.Stop()

	mux := http.NewServeMux()

	// Health endpoints (OpenShift compatible, no auth required)
	mux.HandleFunc("GET /metrics", handler.Metrics)
	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.HandleFunc("GET /health/ready", healthHandler.Ready)
	mux.HandleFunc("GET /health/live", healthHandler.Live)

	planners := []string{middleware.RoleAdmin, middleware.RoleVet}
	anyRole := []string{middleware.RoleAdmin, middleware.RoleVet, middleware.RoleOperator}

	// Protocol applications - ADMIN and VET
	mux.HandleFunc("POST /protocol-applications", authMiddleware.RequireAnyRole(planners, protocolHandler.ApplyProtocol))
	mux.HandleFunc("GET /protocol-applications/{application_id}/schedule", authMiddleware.RequireAnyRole(anyRole, protocolHandler.GetSchedule))
	mux.HandleFunc("POST /schedules/preview", authMiddleware.RequireAnyRole(anyRole, protocolHandler.PreviewSchedule))

	// Reproductive events - any farm role
	mux.HandleFunc("POST /events/inseminations", authMiddleware.RequireAnyRole(anyRole, eventHandler.RegisterInseminations))
	mux.HandleFunc("POST /events/diagnoses", authMiddleware.RequireAnyRole(anyRole, eventHandler.RegisterDiagnoses))
	mux.HandleFunc("POST /diagnoses/evaluate", authMiddleware.RequireAnyRole(anyRole, eventHandler.EvaluateDiagnosis))
	mux.HandleFunc("GET /exam-types/suggest", authMiddleware.RequireAnyRole(anyRole, eventHandler.SuggestExamType))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      middleware.MetricsMiddleware(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("starting Breeding Service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return err
	}

	logger.Info().Msg("shutting down server")

	// Stop consuming first so no new apply requests start
	consumerCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info().Msg("server exited")
	return nil
}
