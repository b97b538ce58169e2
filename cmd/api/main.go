package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dogevents/platform/internal/auth"
	"github.com/dogevents/platform/internal/handler"
	"github.com/dogevents/platform/internal/infra"
	"github.com/dogevents/platform/internal/mailer"
	"github.com/dogevents/platform/internal/provider"
	"github.com/dogevents/platform/internal/repository"
	"github.com/dogevents/platform/internal/service"
	"github.com/go-chi/chi/v5"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	// Apply migrations
	if err := infra.RunMigrations(cfg.DSN(), logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// Connect to Postgres
	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	userExpiry, err := time.ParseDuration(cfg.JWTUserExpiry)
	if err != nil {
		return fmt.Errorf("parse user JWT expiry: %w", err)
	}
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, userExpiry)

	// Gateway credentials refresh hourly; a refresh failure serves the
	// last known credentials.
	credentials := infra.NewCachedCredentialSource(infra.EnvCredentialSource(cfg), time.Hour)
	gateway := provider.NewPaytrailClient(cfg.PaytrailEndpoint, credentials, logger)

	// Email pipeline
	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()
	mail := mailer.NewKafkaMailer(producer, cfg.KafkaEmailTopic, logger)

	// Repositories
	txRepo := repository.NewTransactionRepository()
	regRepo := repository.NewRegistrationRepository()
	eventRepo := repository.NewEventRepository()
	auditRepo := repository.NewAuditRepository()
	outboxRepo := repository.NewOutboxRepository()

	// Services
	paymentSvc := service.NewPaymentService(pool, gateway, txRepo, regRepo, eventRepo, auditRepo, outboxRepo, mail, logger,
		cfg.APIHost, cfg.FrontendURL)
	refundSvc := service.NewRefundService(pool, gateway, txRepo, regRepo, eventRepo, auditRepo, outboxRepo, mail, logger,
		cfg.APIHost)

	// Handlers
	paymentHandler := handler.NewPaymentHandler(paymentSvc, logger)
	refundHandler := handler.NewRefundHandler(refundSvc, logger)
	transactionHandler := handler.NewTransactionHandler(refundSvc)

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORS(cfg.CORSAllowedOrigins))
	r.Use(handler.JSONContentType)

	// Health (no auth)
	r.Get("/health", handler.HealthHandler(pool))

	// Gateway callbacks (no auth; authenticated by HMAC signature)
	r.Get("/payments/success", paymentHandler.Success)
	r.Get("/payments/cancel", paymentHandler.Cancel)
	r.Get("/refunds/success", refundHandler.Success)

	// Browser-facing verification (no auth)
	r.Post("/payments/verify", paymentHandler.Verify)

	// Payment creation: auth optional, the payer may be anonymous
	r.Group(func(r chi.Router) {
		r.Use(auth.AuthenticateOptional(jwtMgr))
		r.Post("/payments", paymentHandler.Create)
	})

	// Secretary operations
	r.Group(func(r chi.Router) {
		r.Use(auth.AuthenticateAdmin(jwtMgr))
		r.Post("/refunds", refundHandler.Create)
		r.Get("/admin/transactions", transactionHandler.List)
	})

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
