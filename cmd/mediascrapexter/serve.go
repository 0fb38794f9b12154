// cmd/mediascrapexter/serve.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/MediaScrapexter/internal/config"
	"github.com/valpere/MediaScrapexter/internal/monitoring"
	"github.com/valpere/MediaScrapexter/internal/pipeline"
	"github.com/valpere/MediaScrapexter/internal/server"
	"github.com/valpere/MediaScrapexter/internal/utils"
)

const maxGoroutines = 10000

func newServeCmd(opts *globalOptions) *cobra.Command {
	var (
		address string
		watch   bool
	)
	cmd := &cobra.Command{
		Use:   "serve <config.yaml>",
		Short: "Serve the extraction API",
		Long: `Serve the HTTP API. The configuration supplies fetch, storage and output
settings; its urls list is optional. With --watch, edits to the file are
applied without a restart.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, args[0], config.LoadServiceFile)
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Server.Address = address
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, args[0], watch)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "listen address; overrides server.address")
	cmd.Flags().BoolVar(&watch, "watch", false, "reload the configuration when the file changes")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, path string, watch bool) error {
	logger := utils.NewComponentLogger("serve")
	metrics := monitoring.NewMetrics("")

	health := monitoring.NewHealthManager(version, 5*time.Second)
	health.RegisterCheck(monitoring.DirectoryHealthCheck("media_root", cfg.Storage.MediaRoot, true))
	health.RegisterCheck(monitoring.GoroutineHealthCheck(maxGoroutines))

	p, err := pipeline.NewFromConfig(ctx, cfg, metrics, logger.WithField("component", "pipeline"))
	if err != nil {
		return err
	}

	srv := server.New(cfg.Server, p, health, metrics, logger.WithField("component", "server"))

	var watcher *config.Watcher
	if watch {
		watcher, err = config.NewServiceWatcher(path, logger)
		if err != nil {
			p.Close()
			return err
		}
		// Server settings are bound at startup; a reload swaps only the pipeline.
		watcher.OnChange(func(next *config.Config) {
			np, err := pipeline.NewFromConfig(ctx, next, metrics, logger.WithField("component", "pipeline"))
			if err != nil {
				logger.Warnf("keeping previous configuration: %v", err)
				return
			}
			if old, ok := srv.SetProcessor(np).(*pipeline.Pipeline); ok {
				if err := old.Close(); err != nil {
					logger.Warnf("failed to close previous pipeline: %v", err)
				}
			}
			logger.Infof("configuration %q applied", next.Name)
		})
	}

	serveErr := srv.ListenAndServe(ctx)
	if watcher != nil {
		watcher.Close()
	}

	var closeErr error
	if cur, ok := srv.SetProcessor(nil).(*pipeline.Pipeline); ok {
		closeErr = cur.Close()
	}
	if serveErr != nil {
		return serveErr
	}
	return closeErr
}
