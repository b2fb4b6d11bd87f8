package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/domains/internal/config"
	"github.com/edvin/domains/internal/hostname"
	"github.com/edvin/domains/internal/logging"
	"github.com/edvin/domains/internal/metrics"
	"github.com/edvin/domains/internal/router"
	"github.com/edvin/domains/internal/verifyclient"
)

const serviceName = "edge-router"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.ServiceName = serviceName

	if err := cfg.Validate(serviceName); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	upstream, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid upstream url")
	}

	classifier := hostname.NewClassifier(cfg.HostnamePolicy())
	resolver := verifyclient.NewClient(cfg.VerifyAPIURL, cfg.LookupTimeout)
	rt := router.New(resolver, classifier, cfg.RouterPolicy(), logger)
	edge := router.NewEdge(rt, classifier.Root(), upstream, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	serve(gctx, g, logger, "edge", &http.Server{
		Addr:              cfg.EdgeListenAddr,
		Handler:           edge,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	})
	if cfg.MetricsListenAddr != "" {
		serve(gctx, g, logger, "metrics", metrics.NewServer(cfg.MetricsListenAddr))
	}

	logger.Info().Str("verify_api", cfg.VerifyAPIURL).Str("upstream", upstream.String()).Msg("edge router configured")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("edge-router stopped")
	}
	logger.Info().Msg("shut down")
}

// serve runs srv until ctx is cancelled, then drains it.
func serve(ctx context.Context, g *errgroup.Group, logger zerolog.Logger, name string, srv *http.Server) {
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msgf("starting %s server", name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s server: %w", name, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info().Msgf("shutting down %s server", name)
		return srv.Shutdown(shutdownCtx)
	})
}
