package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/suPer8Hu/ai-chat/internal/chat"
	"github.com/suPer8Hu/ai-chat/internal/config"
	"github.com/suPer8Hu/ai-chat/internal/db"
	"github.com/suPer8Hu/ai-chat/internal/logging"
	"github.com/suPer8Hu/ai-chat/internal/store/rabbitmq"
	"github.com/suPer8Hu/ai-chat/internal/usage"
)

const (
	reportEvery   = time.Minute
	handleTimeout = 10 * time.Second
)

var errBadMessage = errors.New("bad exchange message")

func main() {
	cfg := config.Load()

	logger, closeLog, err := logging.Init(cfg.LogDir, "worker", cfg.LogLevel, true)
	if err != nil {
		slog.Error("init logging", "error", err)
		os.Exit(1)
	}
	defer closeLog()

	if cfg.RabbitURL == "" {
		logger.Error("RABBIT_URL is not set")
		os.Exit(1)
	}

	gdb, err := db.Open(cfg.DBDSN)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	repo := usage.NewRepo(gdb)
	if err := repo.Migrate(); err != nil {
		logger.Error("migrate usage table", "error", err)
		os.Exit(1)
	}

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		logger.Error("rabbit dial", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Error("rabbit channel", "error", err)
		os.Exit(1)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		logger.Error("queue declare", "error", err)
		os.Exit(1)
	}

	//  strict concurrency control
	concurrency := cfg.WorkerConcurrency
	if err := ch.Qos(concurrency, 0, false); err != nil {
		logger.Error("qos", "error", err)
		os.Exit(1)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		logger.Error("consume", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("worker started", "queue", cfg.RabbitQueue, "concurrency", concurrency)

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				start := time.Now()
				created, err := handleEvent(ctx, repo, d.Body)
				if err != nil {
					requeue := shouldRequeue(err)
					logger.Warn("exchange event failed",
						"worker", workerID, "message_id", d.MessageId, "cost", time.Since(start),
						"requeue", requeue, "error", err)
					_ = d.Nack(false, requeue)
					continue
				}
				if !created {
					logger.Debug("duplicate exchange event", "worker", workerID, "message_id", d.MessageId)
				}
				if err := d.Ack(false); err != nil {
					logger.Warn("ack failed", "worker", workerID, "message_id", d.MessageId, "error", err)
				}
			}
		}(i)
	}

	report := time.NewTicker(reportEvery)
	defer report.Stop()
	startedAt := time.Now()

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case <-report.C:
			reportTotals(ctx, logger, repo, startedAt)

		case d, ok := <-msgs:
			if !ok {
				logger.Warn("delivery channel closed")
				close(jobs)
				wg.Wait()
				return
			}
			jobs <- d
		}
	}
}

// handleEvent stores one exchange event. It reports false for events that
// were already recorded. The write outlives cancellation of ctx so deliveries
// drained during shutdown are still stored.
func handleEvent(ctx context.Context, repo *usage.Repo, body []byte) (bool, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), handleTimeout)
	defer cancel()

	var ev chat.ExchangeEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return false, errors.Join(errBadMessage, err)
	}
	if ev.ID == "" || ev.SessionID == "" {
		return false, errBadMessage
	}
	rec := usage.FromEvent(ev)
	return repo.Insert(ctx, &rec)
}

// shouldRequeue keeps transient failures on the main queue; malformed
// messages and other errors go to the dead-letter queue.
func shouldRequeue(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func reportTotals(ctx context.Context, logger *slog.Logger, repo *usage.Repo, since time.Time) {
	totals, err := repo.TotalsByModel(ctx, since)
	if err != nil {
		logger.Warn("usage totals failed", "error", err)
		return
	}
	for _, t := range totals {
		logger.Info("model usage",
			"model", t.Model,
			"exchanges", t.Exchanges,
			"failures", t.Failures,
			"prompt_tokens", t.PromptTokens,
			"completion_tokens", t.CompletionTokens,
			"total_tokens", t.TotalTokens,
		)
	}
}
