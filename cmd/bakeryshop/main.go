// Package main запускает HTTP-сервер витрины пекарни.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/bakeryshop/internal/config"
	"github.com/mmeshcher/bakeryshop/internal/handler"
	"github.com/mmeshcher/bakeryshop/internal/loyalty"
	"github.com/mmeshcher/bakeryshop/internal/middleware"
	"github.com/mmeshcher/bakeryshop/internal/notify"
	"github.com/mmeshcher/bakeryshop/internal/order"
	"github.com/mmeshcher/bakeryshop/internal/repository"
	"github.com/mmeshcher/bakeryshop/internal/service"
	"github.com/mmeshcher/bakeryshop/internal/timers"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	registry := timers.NewRegistry()
	defer registry.Stop()

	engine := loyalty.NewEngine(repo, repo, logger)
	manager := order.NewManager(repo, registry, logger,
		order.WithCompletionDelay(cfg.AutoCompleteDelay),
		order.WithCompletionHook(engine.OnOrderCompleted),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resumed, err := manager.Resume(ctx)
	if err != nil {
		sugar.Warnw("resume preparing orders error", "error", err.Error())
	} else if resumed > 0 {
		sugar.Infow("rescheduled completion timers", "orders", resumed)
	}

	svc := service.NewService(repo, manager, engine, logger, cfg.AdminLogins)

	authMiddleware := middleware.NewAuthMiddleware(cfg.SessionSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Доставка уведомлений включается только при заданном адресе вебхука
	if cfg.NotifyWebhookAddress != "" {
		dispatcher := notify.NewDispatcher(repo, notify.NewClient(cfg.NotifyWebhookAddress), logger)
		g.Go(func() error {
			return dispatcher.Run(ctx)
		})
	}

	g.Go(func() error {
		sugar.Infow("starting bakeryshop server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
