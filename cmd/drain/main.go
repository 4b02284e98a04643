// Command drain redelivers queued decision reports whose retry time
// has come. It is intended to be invoked by an external cron job
// (daily in production), not as an in-process goroutine.
//
// Exit codes: 0 = success, 1 = error.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/postgres"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/postgres/callrecord"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/postgres/consent"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/postgres/credential"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/postgres/task"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/rqc"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/app"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/config"
	consentsvc "github.com/reviewqualitycollector/janeway-rqcplugin/internal/service/consent"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/service/delivery"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/service/normalizer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := app.NewLogger(cfg.Log)

	// Bounded so a wedged RQC cannot hold the cron slot forever.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool)
	consentRepo := consent.New(pool)
	credentialRepo := credential.New(pool)
	taskRepo := task.New(pool)
	callRecordRepo := callrecord.New(pool)

	client := rqc.NewClient(cfg.RQC, logger)

	consentService := consentsvc.NewService(logger, consentRepo, txm)
	normalizerService := normalizer.NewService(logger, consentService, credentialRepo)
	deliveryService := delivery.NewService(
		logger, taskRepo, callRecordRepo, credentialRepo, client, normalizerService, cfg.Queue,
	)

	stats, err := deliveryService.Drain(ctx, time.Now())
	if err != nil {
		logger.Error("drain failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("drain completed",
		slog.Int("attempted", stats.Attempted),
		slog.Int("succeeded", stats.Succeeded),
		slog.Int("failed", stats.Failed),
		slog.Int("abandoned", stats.Abandoned),
	)
}
