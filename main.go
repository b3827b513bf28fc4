package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ytget/ytdl-web/internal/config"
	"github.com/ytget/ytdl-web/internal/download"
	"github.com/ytget/ytdl-web/internal/httpapi"
	"github.com/ytget/ytdl-web/internal/logging"
	"github.com/ytget/ytdl-web/internal/model"
	"github.com/ytget/ytdl-web/internal/platform"
	"github.com/ytget/ytdl-web/internal/registry"
)

// Version is set during build via -ldflags "-X main.version=X.Y.Z"
var version = "dev"

const AppName = "ytdl-web"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(os.Stdout, cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("service stopped")
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	logger.WithFields(log.Fields{"version": version, "env": cfg.Env}).Infof("%s starting", AppName)

	if err := platform.CreateDirectoryIfNotExists(cfg.Download.Dir); err != nil {
		return fmt.Errorf("failed to ensure downloads dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := platform.CheckTool(ctx, httpapi.FFmpegTool); err != nil {
		logger.WithError(err).Warn("ffmpeg unavailable, merging and audio extraction will fail")
	}

	// Initialize services
	jobs := registry.New()
	jobs.SetUpdateCallback(func(job model.DownloadJob) {
		logger.WithFields(log.Fields{
			"job_id":   job.ID,
			"status":   job.Status,
			"progress": job.Progress,
		}).Trace("job updated")
	})

	fetcher := download.NewYTDLPFetcher(cfg.Download.CookiePaths, logger)
	downloadSvc := download.NewService(jobs, fetcher, download.Options{
		DownloadDir:  cfg.Download.Dir,
		MaxParallel:  cfg.Download.MaxParallel,
		ExtractorRPS: cfg.Download.ExtractorRPS,
		InfoCacheTTL: cfg.Download.InfoCacheTTL,
		JobRetention: cfg.Download.JobRetention,
		CleanupFiles: cfg.Download.CleanupFiles,
		RetryBackoff: cfg.Download.RetryBackoff,
	}, logger)

	playlists := platform.NewPlaylistParser()
	playlists.SetTimeout(cfg.Download.PlaylistTimeout)

	api := httpapi.NewServer(downloadSvc, playlists, logger)
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("addr", srv.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return downloadSvc.RunJanitor(gctx, cfg.Download.SweepInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := downloadSvc.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("download shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	start := time.Now()
	err := g.Wait()
	logger.WithField("uptime", time.Since(start).Round(time.Second).String()).Info("stopped")
	return err
}
