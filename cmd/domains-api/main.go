package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/domains/internal/api"
	"github.com/edvin/domains/internal/config"
	"github.com/edvin/domains/internal/core"
	"github.com/edvin/domains/internal/db"
	"github.com/edvin/domains/internal/hostname"
	"github.com/edvin/domains/internal/lock"
	"github.com/edvin/domains/internal/logging"
	"github.com/edvin/domains/internal/metrics"
	"github.com/edvin/domains/internal/router"
)

const serviceName = "domains-api"

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "create-api-key":
			createAPIKey(os.Args[2:])
			return
		case "revoke-api-key":
			revokeAPIKey(os.Args[2:])
			return
		}
	}

	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	flag.Parse()

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

	if *migrateFlag {
		logger.Info().Msg("running database migrations")
		if err := db.RunMigrations(cfg.CoreDatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	corePool, err := db.NewCorePool(ctx, cfg.CoreDatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to core database")
	}
	defer corePool.Close()

	var (
		rdb    *redis.Client
		locker lock.Locker
	)
	if cfg.RedisURL != "" {
		rdb, err = db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb)
		logger.Info().Msg("cluster-wide verification lock enabled")
	}

	metrics.RegisterPoolMetrics(prometheus.DefaultRegisterer, corePool, rdb)

	classifier := hostname.NewClassifier(cfg.HostnamePolicy())
	services := core.NewServices(corePool, core.ServiceDeps{
		Classifier:   classifier,
		Checker:      core.NewSignatureChecker(classifier.Root(), cfg.CheckScheme, nil, nil),
		Locker:       locker,
		Verification: cfg.VerificationPolicy(),
		Scheduling:   cfg.SchedulerPolicy(),
		Logger:       logger,
	})

	ready := []api.ReadyCheck{{Name: "core_db", Check: corePool.Ping}}
	if rdb != nil {
		ready = append(ready, api.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	apiServer := api.NewServer(logger, api.Deps{
		Domains:    services.Domains,
		Resolver:   services.Engine,
		Keys:       services.APIKey,
		Classifier: classifier,
		Ready:      ready,
	})

	upstream, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid upstream url")
	}
	rt := router.New(services.Engine, classifier, cfg.RouterPolicy(), logger)
	edge := router.NewEdge(rt, classifier.Root(), upstream, logger)

	g, gctx := errgroup.WithContext(ctx)
	serve(gctx, g, logger, "api", &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      apiServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	})
	serve(gctx, g, logger, "edge", &http.Server{
		Addr:              cfg.EdgeListenAddr,
		Handler:           edge,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	})
	if cfg.MetricsListenAddr != "" && cfg.MetricsListenAddr != cfg.HTTPListenAddr {
		serve(gctx, g, logger, "metrics", metrics.NewServer(cfg.MetricsListenAddr, corePool.Ping))
	}
	g.Go(func() error { return services.Scheduler.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("domains-api stopped")
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

func createAPIKey(args []string) {
	fs := flag.NewFlagSet("create-api-key", flag.ExitOnError)
	tenantID := fs.String("tenant", "", "Tenant ID the key authenticates as (required)")
	name := fs.String("name", "", "Name for the API key (required)")
	fs.Parse(args)

	if *tenantID == "" || *name == "" {
		fmt.Fprintln(os.Stderr, "error: --tenant and --name are required")
		fmt.Fprintln(os.Stderr, "usage: domains-api create-api-key --tenant <id> --name <name>")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	svc, closeDB := apiKeyService(ctx)
	defer closeDB()

	key, rawKey, err := svc.Create(ctx, *tenantID, *name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to create API key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("API key created successfully.\n\n")
	fmt.Printf("  Name:   %s\n", key.Name)
	fmt.Printf("  ID:     %s\n", key.ID)
	fmt.Printf("  Tenant: %s\n", key.TenantID)
	fmt.Printf("  Key:    %s\n\n", rawKey)
	fmt.Printf("Save this key, it will not be shown again.\n")
}

func revokeAPIKey(args []string) {
	fs := flag.NewFlagSet("revoke-api-key", flag.ExitOnError)
	id := fs.String("id", "", "ID of the API key to revoke (required)")
	fs.Parse(args)

	if *id == "" {
		fmt.Fprintln(os.Stderr, "error: --id is required")
		fmt.Fprintln(os.Stderr, "usage: domains-api revoke-api-key --id <key id>")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	svc, closeDB := apiKeyService(ctx)
	defer closeDB()

	if err := svc.Revoke(ctx, *id); err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to revoke API key: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("API key %s revoked.\n", *id)
}

// apiKeyService connects to the core database for the key subcommands.
func apiKeyService(ctx context.Context) (*core.APIKeyService, func()) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	pool, err := db.NewCorePool(ctx, cfg.CoreDatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	return core.NewAPIKeyService(pool), pool.Close
}
