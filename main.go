package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/giygas/agrisafe-api/config"
	"github.com/giygas/agrisafe-api/data"
	"github.com/giygas/agrisafe-api/handlers"
	"github.com/giygas/agrisafe-api/health"
	"github.com/giygas/agrisafe-api/history"
	"github.com/giygas/agrisafe-api/interfaces"
	"github.com/giygas/agrisafe-api/logging"
	"github.com/giygas/agrisafe-api/notify"
	"github.com/giygas/agrisafe-api/recommend"
	"github.com/giygas/agrisafe-api/reference"
	"github.com/giygas/agrisafe-api/scheduler"
	"github.com/giygas/agrisafe-api/server"
	"github.com/joho/godotenv"
)

func main() {
	loadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logging.InitLogger(logging.Options{
		Dir:            cfg.LogDir,
		Level:          cfg.LogLevel,
		RetentionWeeks: cfg.LogRetentionWeeks,
		MaxFileSize:    cfg.MaxLogFileSize,
	})
	defer logging.Close()

	if err := run(cfg); err != nil {
		logging.Error("Startup failed", "error", err)
		_ = logging.Close()
		os.Exit(1)
	}
}

// loadEnvFile reads .env from the working directory, falling back to the
// executable's directory. A missing file is not an error.
func loadEnvFile() {
	if err := godotenv.Load(); err == nil {
		return
	}
	ex, err := os.Executable()
	if err != nil {
		return
	}
	exPath := filepath.Dir(ex)
	if err := godotenv.Load(filepath.Join(exPath, ".env")); err == nil {
		if err := os.Chdir(exPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to change directory: %v\n", err)
		}
	}
}

func run(cfg *config.Config) error {
	tables, err := reference.Load(cfg.ReferencePath)
	if err != nil {
		return fmt.Errorf("failed to load reference tables: %w", err)
	}

	dataContainer := data.NewDataContainer()
	dataContainer.SetServerStartTime(time.Now())

	var loader interfaces.DatasetLoader = scheduler.FileLoader{Path: cfg.DatasetPath, Concentrations: tables}
	if cfg.DatasetURL != "" {
		loader = scheduler.NewURLLoader(cfg.DatasetURL, cfg.DatasetPath, tables)
	}

	sched := scheduler.NewScheduler(dataContainer, loader, cfg.ReloadTimes)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	store, pinger, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error("Failed to close history store", "error", err)
		}
	}()

	notifier := notify.New(cfg.WhatsApp)
	if cfg.WhatsApp.Enabled {
		logging.Info("WhatsApp notifications enabled", "api_url", cfg.WhatsApp.APIURL)
	}

	engine := recommend.NewEngine(dataContainer, tables.AgeBuckets)
	healthChecker := health.NewHealthChecker(dataContainer, sched.NextRun, pinger)
	handler := handlers.NewHTTPHandler(dataContainer, engine, store, notifier, healthChecker)
	srv := server.NewServer(cfg, handler)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signals)

	for {
		select {
		case err := <-serverErr:
			return err
		case sig := <-signals:
			if sig == syscall.SIGHUP {
				logging.Info("SIGHUP received, reloading dataset")
				if err := sched.Reload(); err != nil {
					logging.Error("Manual dataset reload failed, keeping previous index", "error", err)
				}
				continue
			}

			logging.Info("Shutdown signal received", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		}
	}
}

// openHistory returns the MySQL store when DB_HOST is set and the in-memory
// store otherwise. The pinger is nil for the in-memory store.
func openHistory(cfg *config.Config) (history.Store, health.Pinger, error) {
	if !cfg.Database.Enabled() {
		logging.Warn("DB_HOST not set, recommendation history is kept in memory only")
		return history.NewMemoryStore(), nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := history.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return store, store, nil
}
