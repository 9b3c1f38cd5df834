package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wudi/pdftools/config"
	"github.com/wudi/pdftools/dispatch"
	"github.com/wudi/pdftools/intake"
	"github.com/wudi/pdftools/observability"
	"github.com/wudi/pdftools/server"
	"github.com/wudi/pdftools/store"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the toolkit over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, loader, err := opts.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return serve(cmd.Context(), cfg, loader)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, loader *config.Loader) error {
	logger, level, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	loader.Watch(func(next *config.Config) {
		lvl, err := observability.ParseLevel(next.Log.Level)
		if err != nil {
			return
		}
		if lvl != level.Level() {
			level.SetLevel(lvl)
			logger.Info("log level changed", zap.Stringer("level", lvl))
		}
	}, func(err error) {
		logger.Warn("config reload rejected", zap.Error(err))
	})

	tracing, err := observability.NewProvider(cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(sctx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	prom := prometheus.NewRegistry()
	prom.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	st, err := store.New(cfg.Storage.UploadDir, cfg.Storage.OutputDir,
		store.WithLogger(logger.Named("store")),
		store.WithRegisterer(prom),
	)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper := store.NewSweeper(st, cfg.Storage.SweepInterval, cfg.Storage.MaxAge, logger.Named("sweeper"))
	sweeper.Start(ctx)
	defer sweeper.Stop()

	reg, err := buildRegistry(cfg, logger)
	if err != nil {
		return err
	}
	in := intake.New(st,
		intake.WithMaxBytes(cfg.MaxUploadBytes()),
		intake.WithDeleteAfter(cfg.Storage.DeleteAfter),
		intake.WithLogger(logger.Named("intake")),
	)
	d := dispatch.New(reg, st,
		dispatch.WithLogger(logger.Named("dispatch")),
		dispatch.WithTracer(tracing.Tracer()),
		dispatch.WithDeleteAfter(cfg.Storage.DeleteAfter),
		dispatch.WithRegisterer(prom),
	)
	srv := server.New(reg, in, d, st,
		server.WithLogger(logger.Named("http")),
		server.WithAddr(cfg.Server.Addr),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		server.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
		server.WithArchiveTTL(cfg.Storage.DeleteAfter),
		server.WithMetrics(prom),
	)

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down", zap.Int("pending_deletions", st.Pending()))
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errc
}
