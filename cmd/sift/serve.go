package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/FranksOps/sift/internal/bot"
	"github.com/FranksOps/sift/internal/metrics"
	"github.com/FranksOps/sift/internal/sweep"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot and the subscription sweep",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := cfg.RequireToken(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	a, err := newApp(cfg, store, logger)
	if err != nil {
		return err
	}

	_ = tgbotapi.SetLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	api.Debug = cfg.Telegram.Debug

	b := bot.New(api, store, a.registry, a.pipeline, a.fetcher, logger)

	if cfg.Metrics.Addr != "" {
		srv, err := metrics.Start(cfg.Metrics.Addr, logger)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		defer func() { _ = srv.Stop(context.Background()) }()
	}

	sw, err := sweep.New(store, a.registry, a.pipeline, b, a.cache, sweep.Config{
		Schedule:    cfg.Sweep.Schedule,
		Concurrency: cfg.Sweep.Concurrency,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	if err := sw.Start(ctx); err != nil {
		return err
	}
	defer sw.Stop()

	logger.Info("bot started", "username", api.Self.UserName, "ai", cfg.AIEnabled(), "storage", cfg.Storage.Driver)
	b.Run(ctx, api)
	logger.Info("shutting down")
	return nil
}
