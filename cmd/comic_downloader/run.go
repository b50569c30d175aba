package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/italolelis/comic_downloader/internal/cleanup"
	"github.com/italolelis/comic_downloader/internal/config"
	"github.com/italolelis/comic_downloader/internal/crawler"
	"github.com/italolelis/comic_downloader/internal/fetch"
	"github.com/italolelis/comic_downloader/internal/gallery"
	"github.com/italolelis/comic_downloader/internal/logctx"
	"github.com/italolelis/comic_downloader/internal/notifier"
	"github.com/italolelis/comic_downloader/internal/storage"
	"github.com/italolelis/comic_downloader/internal/storage/sqlite"
	"github.com/italolelis/comic_downloader/internal/telemetry"
	"github.com/spf13/cobra"
)

var version = "dev"

func newRunCmd(a *app) *cobra.Command {
	var (
		mode      string
		targetDir string
	)

	cmd := &cobra.Command{
		Use:   "run <galleryId>",
		Short: "Download every missing page of a gallery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *a.cfg

			if cmd.Flags().Changed("mode") {
				cfg.Mode = mode
			}

			if cmd.Flags().Changed("target-dir") {
				cfg.TargetDir = targetDir
			}

			return runCrawl(cmd.Context(), &cfg, gallery.ID(args[0]), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "execution mode: sequential, parallel or parallel:N (default $MODE)")
	cmd.Flags().StringVar(&targetDir, "target-dir", "", "directory galleries are stored under (default $TARGET_DIR)")

	return cmd
}

func runCrawl(ctx context.Context, cfg *config.Config, id gallery.ID, out io.Writer) error {
	mode, err := crawler.ParseMode(cfg.Mode, cfg.MaxParallel)
	if err != nil {
		return err
	}

	var (
		errorLog    io.Writer
		errorLogErr error
	)

	if cfg.ErrorLogPath != "" {
		f, err := os.OpenFile(cfg.ErrorLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			errorLogErr = err
		} else {
			defer f.Close()

			errorLog = f
		}
	}

	logger := logctx.NewLogger(out, errorLog, cfg.SlogLevel())
	slog.SetDefault(logger)

	if errorLogErr != nil {
		logger.Warn("failed to open error log, logging to stdout only", "path", cfg.ErrorLogPath, "err", errorLogErr)
	}

	ctx = logctx.WithLogger(ctx, logger)

	logger.Info("comic downloader starting...",
		"gallery", string(id),
		"mode", mode.String(),
		"target_dir", cfg.TargetDir,
		"log_level", cfg.LogLevel,
	)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		if err := tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	if cfg.Telemetry.Enabled {
		stopServer := startMetricsServer(ctx, tel, cfg)
		defer stopServer()
	}

	// =========================================================================
	// Start Database
	opts := []crawler.Option{crawler.WithTelemetry(tel)}

	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		logger.Warn("failed to open run journal, continuing without history", "path", cfg.DBPath, "err", err)
	} else {
		defer database.Close()

		opts = append(opts, crawler.WithHistory(sqlite.NewInstrumentedRunRepository(database, tel)))
	}

	// =========================================================================
	// Start Crawler
	resolver, err := gallery.NewResolver(cfg.HostURL, cfg.ResourceURL, cfg.PathSegment)
	if err != nil {
		return err
	}

	client := fetch.NewClient(fetch.Options{
		Timeout:        cfg.HTTPTimeout,
		UserAgent:      cfg.UserAgent,
		TracerProvider: tel.TracerProvider(),
	})

	store := storage.NewIndex(cfg.TargetDir)

	if deleted, err := cleanup.DeleteStalePartials(ctx, store, string(id), cfg.PartialMaxAge); err != nil {
		logger.Warn("failed to remove stale partial files", "err", err)
	} else if deleted > 0 {
		logger.Info("removed stale partial files", "count", deleted)
	}

	if cfg.DiscordWebhookURL != "" {
		opts = append(opts, crawler.WithNotifier(notifier.NewDiscordNotifier(cfg.DiscordWebhookURL)))
	}

	report, err := crawler.New(resolver, client, store, opts...).Run(ctx, id, mode)
	if err != nil {
		return err
	}

	counts, err := store.CountArtifacts(string(id))
	if err != nil {
		logger.Warn("failed to count stored pages", "err", err)

		return nil
	}

	pages := 0
	for _, c := range counts {
		pages += c.Pages

		logger.Debug("stored chapter", "chapter", c.Chapter, "pages", c.Pages)
	}

	logger.Info("stored pages counted",
		"run_id", report.RunID,
		"chapters", len(counts),
		"pages", pages,
	)

	return nil
}

func startMetricsServer(ctx context.Context, tel *telemetry.Telemetry, cfg *config.Config) func() {
	logger := logctx.LoggerFromContext(ctx)

	server := tel.NewServer(ctx, telemetry.ServerConfig{
		BindAddress:  cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
	})

	go func() {
		logger.Info("Initializing metrics server", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "err", err)
		}
	}()

	return func() {
		// Give outstanding scrapes a deadline for completion.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			_ = server.Close()
		}
	}
}
