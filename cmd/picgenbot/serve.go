package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/picgen-bot/internal/alias"
	"github.com/suPer8Hu/picgen-bot/internal/artifact"
	"github.com/suPer8Hu/picgen-bot/internal/bot"
	"github.com/suPer8Hu/picgen-bot/internal/config"
	"github.com/suPer8Hu/picgen-bot/internal/db"
	"github.com/suPer8Hu/picgen-bot/internal/genlog"
	"github.com/suPer8Hu/picgen-bot/internal/httpapi"
	"github.com/suPer8Hu/picgen-bot/internal/httpapi/handlers"
	"github.com/suPer8Hu/picgen-bot/internal/identity"
	"github.com/suPer8Hu/picgen-bot/internal/imagegen"
	"github.com/suPer8Hu/picgen-bot/internal/store"
	"github.com/suPer8Hu/picgen-bot/internal/store/rabbitmq"
	"github.com/suPer8Hu/picgen-bot/internal/store/redisstore"
	"github.com/suPer8Hu/picgen-bot/internal/telegram"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot and its HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(*envFile)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}

	// 1. database and the store actor that owns it
	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close(gdb)
	if err := db.Migrate(gdb); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	st := store.New(gdb)
	defer st.Close()

	resolver := identity.NewResolver(st)
	aliases := alias.NewStore(st)

	// 2. generation log, optionally fanned out to RabbitMQ
	var publisher genlog.EventPublisher
	if cfg.RabbitURL != "" {
		p, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			return fmt.Errorf("rabbit publisher: %w", err)
		}
		defer p.Close()
		publisher = p
	}
	genLog := genlog.New(st, publisher, logger)

	// 3. image backend and artifact storage
	artifacts, err := newArtifactStore(ctx, cfg)
	if err != nil {
		return err
	}
	provider, err := imagegen.DefaultRegistry().Get(ctx, cfg.ImageProvider, cfg.StableDiffusionURL)
	if err != nil {
		return err
	}
	generator := imagegen.NewGenerator(provider, artifacts, imagegen.Options{
		Steps:          cfg.Steps,
		Width:          cfg.ImageWidth,
		Height:         cfg.ImageHeight,
		PromptSuffix:   cfg.PromptSuffix,
		NegativePrompt: cfg.NegativePrompt,
	}, logger)

	// 4. telegram
	tg := telegram.NewClient(cfg.TelegramAPIURL, cfg.TelegramToken)
	me, err := tg.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}

	var dedup bot.Deduper = bot.NewMemoryDeduper(0)
	if cfg.RedisAddr != "" {
		rs := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.DedupTTL)
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return fmt.Errorf("redis ping: %w", err)
		}
		defer rs.Close()
		dedup = rs
	}

	orchestrator := bot.NewOrchestrator(bot.Deps{
		Identities:     resolver,
		Aliases:        aliases,
		Expander:       alias.NewExpander(aliases),
		Generator:      generator,
		Artifacts:      artifacts,
		Log:            genLog,
		SafeModes:      bot.NewSafeModes(st),
		Logger:         logger,
		BotName:        me.Username,
		BackendTimeout: cfg.BackendTimeout,
	})
	dispatcher := bot.NewDispatcher(orchestrator, dedup, cfg.MaxInflight, logger)
	// every in-flight command finishes before the store closes
	defer dispatcher.Wait()
	transport := telegram.NewTransport(tg, dispatcher, logger)

	// 5. HTTP
	h := &handlers.Handler{
		Identities:  resolver,
		Generations: genLog,
		Aliases:     aliases,
		Logger:      logger,
	}
	if cfg.TelegramMode == "webhook" {
		h.Updates = transport
		h.WebhookSecret = cfg.TelegramWebhookSecret
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h, cfg.JWTSecret),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting picgen bot",
		zap.String("bot", me.Username),
		zap.String("mode", cfg.TelegramMode),
		zap.String("addr", cfg.HTTPAddr),
		zap.String("database", redactDSN(cfg.DatabaseURL)),
		zap.String("artifacts", cfg.ArtifactBackend),
		zap.Bool("events", publisher != nil),
		zap.Bool("redis_dedup", cfg.RedisAddr != ""),
	)

	switch cfg.TelegramMode {
	case "webhook":
		if cfg.TelegramWebhookURL != "" {
			if err := tg.SetWebhook(ctx, cfg.TelegramWebhookURL, cfg.TelegramWebhookSecret); err != nil {
				return fmt.Errorf("telegram setWebhook: %w", err)
			}
		}
	default:
		// getUpdates is refused while a webhook is registered
		if err := tg.DeleteWebhook(ctx); err != nil {
			return fmt.Errorf("telegram deleteWebhook: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if cfg.TelegramMode == "polling" {
		poller := telegram.NewPoller(tg, transport.HandleUpdate, cfg.TelegramPollTimeout, logger)
		g.Go(func() error { return poller.Run(gctx) })
	}

	err = g.Wait()
	logger.Info("shutting down", zap.Error(err))
	return err
}

func newArtifactStore(ctx context.Context, cfg config.Config) (artifact.Store, error) {
	switch cfg.ArtifactBackend {
	case "s3":
		s, err := artifact.NewS3(ctx, artifact.S3Config{
			Endpoint:        cfg.S3EndpointURL,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 artifacts: %w", err)
		}
		return s, nil
	default:
		l, err := artifact.NewLocal(cfg.ImageDir)
		if err != nil {
			return nil, fmt.Errorf("local artifacts: %w", err)
		}
		return l, nil
	}
}

// redactDSN hides the password of a user:pass@ DSN for logging.
func redactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return dsn
	}
	start := 0
	if i := strings.Index(dsn, "://"); i >= 0 && i < at {
		start = i + 3
	}
	colon := strings.Index(dsn[start:at], ":")
	if colon < 0 {
		return dsn
	}
	return dsn[:start+colon+1] + "***" + dsn[at:]
}
