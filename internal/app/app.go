// Package app wires the application together: configuration, logging,
// storage, services, and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/postgres"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/postgres/callrecord"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/postgres/consent"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/postgres/credential"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/postgres/task"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/rqc"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/auth"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/config"
	consentsvc "github.com/reviewqualitycollector/janeway-rqcplugin/internal/service/consent"
	credentialsvc "github.com/reviewqualitycollector/janeway-rqcplugin/internal/service/credential"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/service/delivery"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/service/normalizer"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/transport/middleware"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/transport/rest"
)

// Run is the application entry point. It loads configuration, builds
// the full service stack, and serves HTTP until the context is
// canceled or a termination signal arrives.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := NewLogger(cfg.Log)

	logger.Info("starting application",
		slog.String("version", BuildVersion()),
		slog.String("log_level", cfg.Log.Level),
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	// Repositories.
	txm := postgres.NewTxManager(pool)
	consentRepo := consent.New(pool)
	credentialRepo := credential.New(pool)
	taskRepo := task.New(pool)
	callRecordRepo := callrecord.New(pool)

	// Outbound RQC client.
	client := rqc.NewClient(cfg.RQC, logger)

	// Services.
	consentService := consentsvc.NewService(logger, consentRepo, txm)
	credentialService := credentialsvc.NewService(logger, credentialRepo, client)
	normalizerService := normalizer.NewService(logger, consentService, credentialRepo)
	deliveryService := delivery.NewService(
		logger, taskRepo, callRecordRepo, credentialRepo, client, normalizerService, cfg.Queue,
	)

	// Transport.
	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL)

	rl := middleware.NewRateLimiter(time.Minute)
	defer rl.Stop()

	handlers := rest.Handlers{
		Events:      rest.NewEventsHandler(consentService, deliveryService, logger),
		Grading:     rest.NewGradingHandler(deliveryService, logger),
		Tasks:       rest.NewTasksHandler(deliveryService, logger),
		Credentials: rest.NewCredentialsHandler(credentialService, logger),
		Health:      rest.NewHealthHandler(pool, deliveryService, Version),
	}

	router := rest.NewRouter(logger, handlers, middleware.Auth(jwtManager), rl, cfg.Server.RateLimitPerMinute)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
