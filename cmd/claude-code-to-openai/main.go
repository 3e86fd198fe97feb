// Command claude-code-to-openai runs the OpenAI-compatible gateway in front
// of the Anthropic messages API, multiplexing requests over a pool of stored
// OAuth credentials.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/gagmm/claude-code-to-openai/internal/api"
	"github.com/gagmm/claude-code-to-openai/internal/config"
	"github.com/gagmm/claude-code-to-openai/internal/credential"
	"github.com/gagmm/claude-code-to-openai/internal/logging"
	"github.com/gagmm/claude-code-to-openai/internal/refresh"
	"github.com/gagmm/claude-code-to-openai/internal/store"
	"github.com/gagmm/claude-code-to-openai/internal/upstream"
	"github.com/gagmm/claude-code-to-openai/internal/watcher"
)

func main() {
	_ = godotenv.Load()

	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "path to the configuration file")
	flag.Parse()

	if err := run(configPath); err != nil {
		log.WithError(err).Fatal("gateway exited")
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		// A missing config file is fine; defaults plus env cover it.
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if cfg, err = config.Load(""); err != nil {
			return err
		}
	}
	logging.Setup(cfg.Logging)

	credStore, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	if closer, ok := credStore.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	selector := credential.NewSelector(cfg.Selector)
	manager := credential.NewManager(credStore, selector)
	refresher := refresh.NewRefresher(cfg.Upstream, cfg.Refresh, credStore)
	sweeper := refresh.NewSweeper(refresher, nil)
	client := upstream.NewClient(cfg.Upstream, cfg.ProxyURL)
	server := api.NewServer(cfg, manager, refresher, sweeper, client)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := cron.New()
	if _, err = scheduler.AddFunc(cfg.Refresh.SweepSchedule, func() {
		sweeper.Sweep(ctx, false)
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", cfg.Refresh.SweepSchedule, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	go func() {
		w := watcher.New(configPath, server.UpdateConfig)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("config watcher stopped")
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Engine(),
		// No write timeout: streamed completions run as long as the model
		// keeps talking.
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err = <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func openStore(cfg config.StoreConfig) (credential.Store, error) {
	switch cfg.Driver {
	case "file":
		return store.OpenFileStore(cfg.Path)
	default:
		return store.OpenSQLite(cfg.Path)
	}
}
