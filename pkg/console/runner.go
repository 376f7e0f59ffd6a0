package console

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/mchmarny/kitchen/pkg/client"
	"github.com/mchmarny/kitchen/pkg/config"
	"github.com/mchmarny/kitchen/pkg/logger"
	"github.com/mchmarny/kitchen/pkg/metric"
	"github.com/mchmarny/kitchen/pkg/server"
	"github.com/mchmarny/kitchen/pkg/state"
)

var (
	version = "dev"     // Set at build time via -ldflags "-X github.com/mchmarny/kitchen/pkg/console.version=version"
	commit  = "none"    // Set at build time via -ldflags "-X github.com/mchmarny/kitchen/pkg/console.commit=commit"
	date    = "unknown" // Set at build time via -ldflags "-X github.com/mchmarny/kitchen/pkg/console.date=date"
)

// Version returns the build version.
func Version() string {
	return version
}

// Run wires the menu API client, the state manager and the console pages
// into a server and blocks until the context is canceled or an error occurs.
// The menu is fetched once at startup; a failure there is logged and the
// first page view tries again.
func Run(ctx context.Context, cfg config.Config, opt ...server.Option) error {
	logger.SetDefaultLoggerWithLevel("kitchen", version, cfg.LogLevel, cfg.LogFormat)
	slog.Info("starting kitchen", "commit", commit, "date", date, "api", cfg.APIURL)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	reg := prometheus.NewRegistry()

	remote := client.New(
		client.WithBaseURL(cfg.APIURL),
		client.WithTimeout(cfg.APITimeout),
		client.WithCounter(metric.NewClientRequests(reg)),
	)

	store := state.New(remote, state.WithCounter(metric.NewStateOperations(reg)))

	c, err := New(store)
	if err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}

	opts := []server.Option{
		server.WithPort(cfg.Port),
		server.WithShutdownTimeout(cfg.ShutdownTimeout),
		server.WithRegistry(reg),
		server.WithPrometheusMetrics(),
		server.WithSimpleHealth(),
		server.WithReadiness(store),
		server.WithMiddleware(logger.Middleware),
		server.WithHandler("/", c.Handler()),
	}
	if cfg.TLSEnabled() {
		opts = append(opts, server.WithTLS(server.TLSConfig{CertFile: cfg.TLSCertFile, KeyFile: cfg.TLSKeyFile}))
	}
	opts = append(opts, opt...)

	srv := server.New(opts...)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Serve(gCtx)
	})

	g.Go(func() error {
		if err := store.EnsureLoaded(gCtx); err != nil {
			slog.Warn("initial menu load failed", "error", err)
		}
		return nil
	})

	return g.Wait()
}
