package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/suPer8Hu/ai-chat/internal/apiclient"
	"github.com/suPer8Hu/ai-chat/internal/chat"
	"github.com/suPer8Hu/ai-chat/internal/config"
	"github.com/suPer8Hu/ai-chat/internal/db"
	"github.com/suPer8Hu/ai-chat/internal/logging"
	"github.com/suPer8Hu/ai-chat/internal/store/memory"
	"github.com/suPer8Hu/ai-chat/internal/store/rabbitmq"
	"github.com/suPer8Hu/ai-chat/internal/store/redisstore"
	"github.com/suPer8Hu/ai-chat/internal/store/sqlstore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with Mistral models from the terminal",
		Long: `Interactive chat client. Conversations are kept as sessions and
persisted between runs. Type /help inside the prompt for commands.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.ChatAPIURL, "api", cfg.ChatAPIURL, "base URL of the chat server")
	flags.StringVar(&cfg.StoreBackend, "store", cfg.StoreBackend, "session storage backend: sqlite, redis or memory")
	flags.StringVar(&cfg.DBDSN, "dsn", cfg.DBDSN, "database DSN for the sqlite backend (a MySQL DSN also works)")
	flags.StringVar(&cfg.DefaultModel, "model", cfg.DefaultModel, "model for new sessions")
	return cmd
}

func run(cmd *cobra.Command, cfg config.Config) error {
	logger, closeLog, err := logging.Init(cfg.LogDir, "chat", cfg.LogLevel, false)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	blobs, closeBlobs, err := openBlobs(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	defer closeBlobs()

	store := chat.NewStore(blobs, chat.WithLogger(logger), chat.WithStorageKey(cfg.StoreKey))
	store.Restore(ctx)

	api := apiclient.New(cfg.ChatAPIURL)
	opts := []chat.ControllerOption{chat.WithControllerLogger(logger)}
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue, logger)
		if err != nil {
			logger.Warn("exchange events disabled", "error", err)
		} else {
			defer pub.Close()
			opts = append(opts, chat.WithObserver(pub))
		}
	}
	ctrl := chat.NewController(store, api, cfg.DefaultModel, opts...)

	r := &repl{
		ctrl:   ctrl,
		models: api,
		in:     cmd.InOrStdin(),
		out:    cmd.OutOrStdout(),
		now:    time.Now,
	}
	return r.run(ctx)
}

func openBlobs(ctx context.Context, cfg config.Config) (chat.BlobStore, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return memory.New(), func() {}, nil
	case config.BackendRedis:
		rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CatalogCacheTTL)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := rds.Ping(pingCtx); err != nil {
			_ = rds.Close()
			return nil, nil, err
		}
		return rds, func() { _ = rds.Close() }, nil
	case config.BackendSQLite, "":
		gdb, err := db.Open(cfg.DBDSN)
		if err != nil {
			return nil, nil, err
		}
		s, err := sqlstore.New(gdb)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if sqlDB, err := gdb.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.StoreBackend)
	}
}
