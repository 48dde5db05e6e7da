package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/aretw0/scenaria"
	"github.com/aretw0/scenaria/internal/config"
	"github.com/aretw0/scenaria/pkg/adapters/file"
	"github.com/aretw0/scenaria/pkg/adapters/memory"
	redisAdapter "github.com/aretw0/scenaria/pkg/adapters/redis"
	"github.com/aretw0/scenaria/pkg/adapters/sqlite"
	"github.com/aretw0/scenaria/pkg/observability"
	"github.com/aretw0/scenaria/pkg/persistence/middleware"
	"github.com/aretw0/scenaria/pkg/ports"
	"github.com/aretw0/scenaria/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
)

// app holds everything a command needs: configuration, logger, metrics registry
// and the session manager on top of the configured repository.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	sessions *session.Manager
	closers  []func() error
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector())

	for _, p := range cfg.Storage.Redact {
		if _, err := regexp.Compile(p); err != nil {
			return nil, fmt.Errorf("invalid redact pattern %q: %w", p, err)
		}
	}

	repo, locker, err := a.openRepository()
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	mws := []middleware.Middleware{
		middleware.NewLoggingMiddleware(logger),
		middleware.NewMetricsMiddleware(middleware.NewRepositoryMetrics(a.registry)),
	}
	if len(cfg.Storage.Redact) > 0 {
		mws = append(mws, middleware.NewRedactMiddleware(cfg.Storage.Redact))
	}
	repo = middleware.Chain(repo, mws...)

	metrics := observability.NewMetrics(a.registry)
	opts := []session.Option{
		session.WithLogger(logger),
		session.WithLockTTL(cfg.Editor.LockTTL),
		session.WithEditorOptions(
			scenaria.WithLogger(logger),
			scenaria.WithHooks(observability.Combine(observability.LoggingHooks(logger), metrics.Hooks())),
			scenaria.WithStrictGeometry(cfg.Editor.StrictGeometry),
		),
	}
	if locker != nil {
		opts = append(opts, session.WithLocker(locker))
	}
	a.sessions = session.NewManager(repo, opts...)

	logger.Debug("Storage ready", "driver", cfg.Storage.Driver, "path", cfg.Storage.Path)
	return a, nil
}

// openRepository builds the driver selected in the configuration. The redis driver
// also returns a distributed locker sharing its client.
func (a *app) openRepository() (ports.ScenarioRepository, ports.DistributedLocker, error) {
	st := a.cfg.Storage
	switch st.Driver {
	case "memory":
		return memory.NewRepository(), nil, nil

	case "file":
		return file.New(filepath.Join(st.Path, "scenarios")), nil, nil

	case "sqlite":
		path := st.Path
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "scenaria.db")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		db, err := sqlite.OpenDB(path)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, db.Close)
		return sqlite.NewRepository(db), nil, nil

	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     st.Redis.Addr,
			Password: st.Redis.Password,
			DB:       st.Redis.DB,
		})
		a.closers = append(a.closers, client.Close)
		prefix := st.Redis.Prefix + ":"
		repo := redisAdapter.NewFromClient(client,
			redisAdapter.WithPrefix(prefix),
			redisAdapter.WithTTL(st.Redis.TTL),
		)
		return repo, redisAdapter.NewLocker(client, prefix), nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", st.Driver)
}

// Close releases the storage connections.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
