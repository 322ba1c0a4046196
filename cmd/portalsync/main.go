// Package main provides the entry point for the portalsync server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/edubridge/portalsync/internal/server"
	"github.com/edubridge/portalsync/pkg/academic"
	"github.com/edubridge/portalsync/pkg/academic/repo"
	"github.com/edubridge/portalsync/pkg/cache"
	"github.com/edubridge/portalsync/pkg/database/migrate"
	"github.com/edubridge/portalsync/pkg/health"
	"github.com/edubridge/portalsync/pkg/platform"
	"github.com/edubridge/portalsync/pkg/portal"
	"github.com/edubridge/portalsync/pkg/portal/extract"
	"github.com/edubridge/portalsync/pkg/session"
)

// Version is the build version, overridden at link time.
var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type serverOptions struct {
	configPath  string
	address     string
	showVersion bool
}

func parseFlags() serverOptions {
	opts := serverOptions{}
	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.address, "address", "", "Listen address, overrides config")
	flag.BoolVar(&opts.showVersion, "version", false, "Show version and exit")
	flag.Parse()
	return opts
}

func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx
}

func loadConfig(opts serverOptions) (*platform.Config, error) {
	var cfg *platform.Config
	var err error
	if opts.configPath != "" {
		cfg, err = platform.LoadConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = platform.DefaultConfig()
	}
	if opts.address != "" {
		cfg.Server.Address = opts.address
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// storageTiers bundles the stores main wires together, with the cleanup
// order they require.
type storageTiers struct {
	sessions session.Store
	hot      cache.Cache
	store    academic.Snapshots

	closers []func() error
}

func (t *storageTiers) Close() {
	for i := len(t.closers) - 1; i >= 0; i-- {
		_ = t.closers[i]()
	}
}

// buildTiers selects Redis and Postgres when configured and reachable,
// degrading to in-memory stores otherwise. Degradation is logged and
// surfaced through the readiness body, never fatal.
func buildTiers(ctx context.Context, cfg *platform.Config, checker *health.Checker, logger *slog.Logger) *storageTiers {
	tiers := &storageTiers{}
	sessCfg := session.Config{
		AbsoluteTTL: cfg.Session.AbsoluteTTL,
		IdleTTL:     cfg.Session.IdleTTL,
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, using in-memory session store and cache",
				"addr", cfg.Redis.Addr, "error", err)
			_ = client.Close()
		} else {
			tiers.sessions = session.NewRedisStore(client, sessCfg)
			tiers.hot = cache.NewRedis(client)
			// Session store and cache share the client; close it once.
			tiers.closers = append(tiers.closers, client.Close)
			checker.SetTier("sessions", "redis")
			checker.SetTier("cache", "redis")
		}
	}
	if tiers.sessions == nil {
		tiers.sessions = session.NewMemoryStore(sessCfg)
		tiers.hot = cache.NewMemory()
		checker.SetTier("sessions", "memory")
		checker.SetTier("cache", "memory")
	}

	if cfg.Database.DSN == "" {
		logger.Info("no database configured, snapshot fallback disabled")
		checker.SetTier("database", "disabled")
		return tiers
	}

	db, err := openDatabase(cfg, logger)
	if err != nil {
		logger.Warn("database unavailable, snapshot fallback disabled", "error", err)
		checker.SetTier("database", "disabled")
		return tiers
	}
	tiers.closers = append(tiers.closers, db.Close)
	tiers.store = repo.New(db)
	checker.SetTier("database", "postgres")
	return tiers
}

func openDatabase(cfg *platform.Config, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if cfg.Database.RunMigrations {
		if err := migrate.Run(db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
	} else if version, dirty, err := migrate.Version(db); err == nil {
		logger.Info("database schema", "version", version, "dirty", dirty)
	}

	return db, nil
}

func run() error {
	opts := parseFlags()

	if opts.showVersion {
		fmt.Printf("portalsync version %s\n", Version)
		return nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx := setupSignalHandler()
	checker := health.NewChecker()

	tiers := buildTiers(ctx, cfg, checker, logger)
	defer tiers.Close()

	portalClient := portal.NewClient(portal.Config{
		BaseURL:            cfg.Portal.BaseURL,
		HealthPath:         cfg.Portal.HealthPath,
		ConnectTimeout:     cfg.Portal.ConnectTimeout,
		ReadTimeout:        cfg.Portal.ReadTimeout,
		InsecureSkipVerify: cfg.Portal.InsecureSkipVerify,
		UserAgent:          cfg.Portal.UserAgent,
	})

	svc := academic.NewService(academic.Deps{
		Portal:   portalClient,
		Sessions: tiers.sessions,
		Cache:    tiers.hot,
		Store:    tiers.store,
		Parser:   extract.NewScheduleParser(cfg.Portal.ScheduleParser),
		TTLs: repo.CacheTTLs{
			Profile:   cfg.Cache.ProfileTTL,
			Semesters: cfg.Cache.SemestersTTL,
			Grades:    cfg.Cache.GradesTTL,
			Schedule:  cfg.Cache.ScheduleTTL,
		},
		Logger: logger,
	})

	handler := server.RequestID(server.Logging(logger)(server.NewHandler(svc, checker, logger)))

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", cfg.Server.Address, "version", Version)
		checker.SetReady()
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	checker.SetDraining()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
