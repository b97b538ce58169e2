package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dogevents/platform/internal/infra"
	"github.com/dogevents/platform/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("outbox consumer failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("outbox-consumer connected to postgres")

	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()

	pollInterval := 2 * time.Second
	if s := os.Getenv("OUTBOX_POLL_INTERVAL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			pollInterval = d
		}
	}

	batchSize := 100
	if s := os.Getenv("OUTBOX_BATCH_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			batchSize = n
		}
	}

	repo := repository.NewOutboxRepository()
	logger.Info("outbox-consumer starting", "poll_interval", pollInterval, "batch_size", batchSize)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("outbox-consumer shutting down")
			return nil
		case <-ticker.C:
			if err := poll(ctx, pool, repo, producer, logger, batchSize); err != nil {
				logger.Error("poll error", "error", err)
			}
		}
	}
}

func poll(ctx context.Context, pool *pgxpool.Pool, repo repository.OutboxRepository, producer *infra.KafkaProducer, logger *slog.Logger, limit int) error {
	drafts, err := repo.FetchUnpublished(ctx, pool, limit)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if len(drafts) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(drafts))
	for _, draft := range drafts {
		topic := "payments." + draft.AggregateType + "." + draft.EventType
		if err := producer.Publish(ctx, topic, []byte(draft.AggregateID), draft.Payload); err != nil {
			// Stop at the first failure so ordering holds; the
			// published prefix is marked and the rest retried.
			logger.Error("publish failed", "seq_id", draft.SeqID, "topic", topic, "error", err)
			break
		}
		logger.Info("outbox event published",
			"seq_id", draft.SeqID,
			"event_id", draft.EventID,
			"topic", topic,
			"aggregate_id", draft.AggregateID,
		)
		ids = append(ids, draft.SeqID)
	}

	if len(ids) == 0 {
		return nil
	}
	if err := repo.MarkPublished(ctx, pool, ids); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}

	logger.Info("processed outbox batch", "count", len(ids))
	return nil
}
