package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sqlgate/sqlgate/pkg/metrics"
	"github.com/sqlgate/sqlgate/pkg/pgpool"
	"github.com/sqlgate/sqlgate/pkg/registry"
	"github.com/sqlgate/sqlgate/pkg/rest"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway server",
	Long:  `Loads and validates the definitions, then serves every configured endpoint.`,
	Run:   runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringP("server.listenAddr", "l", "", "server listen address")
	f.String("server.baseURL", "", "base URL prefix for configured endpoints")
	f.String("definitions.source", "", "definition source (file or postgres)")
	f.StringSlice("definitions.paths", nil, "definition files or directories")
	f.Bool("definitions.watch", false, "reload when definition files change")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	logger := newLogger()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source, cleanup := newSource(ctx, logger)
	defer cleanup()

	defs, err := source.Load(ctx)
	if err != nil {
		logger.Fatal("loading definitions failed", zap.Error(err))
	}
	reg, err := registry.Build(defs)
	if err != nil {
		fatalConfig(logger, err)
	}
	for _, w := range reg.Report().Warnings {
		logger.Warn("configuration warning", zap.String("warning", w))
	}

	store := registry.NewStore(reg, source, logger)
	pools := pgpool.NewManager(reg.DatabaseDefs(), logger)
	defer pools.Close()

	server := rest.NewServer(store, pools, logger, rest.Options{
		BaseURL:      cfg.Server.BaseURL,
		AsyncWorkers: cfg.Async.Workers,
		JobTimeout:   cfg.Async.JobTimeout,
		JobTTL:       cfg.Async.JobTTL,
	})

	if cfg.Definitions.Watch && cfg.Definitions.Source == "file" {
		go func() {
			if err := store.Watch(ctx, cfg.Definitions.Paths); err != nil && ctx.Err() == nil {
				logger.Error("definition watcher stopped", zap.Error(err))
			}
		}()
	}

	var wg sync.WaitGroup
	if cfg.Metrics.Enabled {
		metrics.StartServer(ctx, &wg, logger, &metrics.ServerOpts{Addr: cfg.Metrics.ListenAddr})
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.Start(cfg.Server.ListenAddr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	wg.Wait()
	logger.Info("server stopped")
}

// newSource builds the configured definition source. The returned cleanup
// closes source-owned resources such as the definition store's own pool.
func newSource(ctx context.Context, logger *zap.Logger) (registry.Source, func()) {
	switch cfg.Definitions.Source {
	case "postgres":
		src, err := registry.NewPGSource(ctx, cfg.Definitions.ConnString, cfg.Definitions.Schema, logger)
		if err != nil {
			logger.Fatal("connecting to definition store failed", zap.Error(err))
		}
		return src, src.Close
	default:
		return registry.NewFileSource(logger, cfg.Definitions.Paths...), func() {}
	}
}

// fatalConfig prints every validation finding before exiting, so a broken
// configuration is fixed in one round trip instead of error-by-error.
func fatalConfig(logger *zap.Logger, err error) {
	if cfgErr, ok := err.(*registry.ConfigError); ok {
		for _, e := range cfgErr.Report.Errors {
			logger.Error("configuration error", zap.String("error", e))
		}
		for _, w := range cfgErr.Report.Warnings {
			logger.Warn("configuration warning", zap.String("warning", w))
		}
		logger.Fatal("configuration invalid",
			zap.Int("errors", len(cfgErr.Report.Errors)),
			zap.Int("warnings", len(cfgErr.Report.Warnings)),
		)
	}
	logger.Fatal("configuration invalid", zap.Error(err))
}
