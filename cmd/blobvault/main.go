package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"blobvault/internal/cleanup"
	"blobvault/internal/config"
	"blobvault/internal/quota"
	"blobvault/internal/server"
	"blobvault/internal/storage"
)

func Run(ctx context.Context) error {

	listen := flag.String("listen", "", "HTTP listen port (overrides PORT)")
	dataDir := flag.String("data-dir", "", "local storage directory (overrides BLOBVAULT_DATA_DIR)")

	flag.Parse()

	handler := log.NewWithOptions(os.Stdout, log.Options{
		Level:           log.DebugLevel,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    true,
	})

	slog.SetDefault(slog.New(handler))

	cfg := config.Load()
	if *listen != "" {
		cfg.Port = *listen
	}
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
	}

	store, err := storage.NewStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}

	counter := quota.NewRedisCounter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer counter.Close()

	engine := quota.NewEngine(counter, cfg.DailyUploadLimit, cfg.DailyDownloadLimit)

	scheduler := cleanup.NewScheduler(store, cfg.InactivityPeriod, cfg.CleanupInterval)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	srv := server.New(store, engine, cfg.IsProduction())

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	eg.Go(func() error {
		slog.Info("Starting blobvault HTTP server",
			"port", cfg.Port,
			"provider", store.Provider(),
			"upload_limit", cfg.DailyUploadLimit,
			"download_limit", cfg.DailyDownloadLimit,
		)
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	slog.Info("blobvault started")
	return eg.Wait()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx); err != nil {
		slog.Error("blobvault exited with error", "error", err)
		os.Exit(1)
	}
}
