package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gitquest/gitquest/internal/api"
	"github.com/gitquest/gitquest/internal/app/engagement"
	"github.com/gitquest/gitquest/internal/health"
	"github.com/gitquest/gitquest/internal/infra/kv"
	"github.com/gitquest/gitquest/internal/infra/sqlite"
)

const shutdownTimeout = 30 * time.Second

// Daemon is the gitquest runtime. It owns the store and the engine;
// the throttle cache, health checker and HTTP server are built by Serve.
type Daemon struct {
	Config  Config
	Version string
	Log     *logrus.Logger
	DB      *sqlite.DB
	Engine  *engagement.Engine

	cancel context.CancelFunc
}

// New loads the configuration and opens a Daemon.
func New(version string) (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg, version)
}

// NewWithConfig opens the database, wires the engine and seeds the
// achievement catalog.
func NewWithConfig(cfg Config, version string) (*Daemon, error) {
	log, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	engCfg, err := cfg.EngineConfig(log)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.Open(cfg.Database.Dir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	eng := engagement.New(db, engCfg)
	if err := eng.Achievements.Seed(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed achievements: %w", err)
	}

	return &Daemon{
		Config:  cfg,
		Version: version,
		Log:     log,
		DB:      db,
		Engine:  eng,
	}, nil
}

// NewLogger builds the process logger from the logging section.
func NewLogger(cfg LoggingConfig) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	switch cfg.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	default:
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	if cfg.Level != "" {
		level, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		log.SetLevel(level)
	}
	return log, nil
}

// EngineConfig translates the engagement section into engine settings.
func (c Config) EngineConfig(log logrus.FieldLogger) (engagement.Config, error) {
	offset, err := engagement.ParseUTCOffset(c.Engagement.UTCOffset)
	if err != nil {
		return engagement.Config{}, err
	}
	cfg := engagement.DefaultConfig()
	cfg.Calendar = engagement.NewCalendar(offset)
	cfg.DailyChallenges = c.Engagement.DailyChallenges
	cfg.WeeklyChallenges = c.Engagement.WeeklyChallenges
	cfg.ClaimedLimit = c.Engagement.ClaimedLimit
	cfg.HistoryLimit = c.Engagement.HistoryLimit
	cfg.Logger = log
	return cfg, nil
}

// OpenCache connects the throttle store selected by the config.
func OpenCache(cfg ThrottleConfig) (kv.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return kv.NewMemoryStore(), nil
	case "redis":
		store, err := kv.NewRedisStore(kv.RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: "gitquest:",
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis at %s: %w", cfg.RedisAddr, err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown throttle backend %q", cfg.Backend)
	}
}

// Addr is the listen address of the HTTP server.
func (d *Daemon) Addr() string {
	return fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
}

// buildServer connects the cache and assembles the HTTP handler with its
// health checker.
func (d *Daemon) buildServer() (*api.Server, *health.Checker, kv.Store, error) {
	cache, err := OpenCache(d.Config.Throttle)
	if err != nil {
		return nil, nil, nil, err
	}

	checker := health.NewChecker(d.DB, cache, d.Config.Database.Dir, d.Log)

	srv := api.NewServer(d.Engine, cache, checker, api.Options{
		Version:                  d.Version,
		CORSOrigins:              d.Config.API.CORSOrigins,
		WebhookRatePerMinute:     d.Config.API.WebhookRatePerMinute,
		AchievementCheckInterval: d.Config.Throttle.AchievementCheckInterval,
		Metrics:                  d.Config.Telemetry.Prometheus,
	}, d.Log)
	return srv, checker, cache, nil
}

// Serve starts the HTTP server and the health checker and blocks until
// ctx is cancelled, SIGINT or SIGTERM arrives, or the listener fails.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	d.cancel = cancel

	srv, checker, cache, err := d.buildServer()
	if err != nil {
		return err
	}
	defer cache.Close()

	httpServer := &http.Server{
		Addr:              d.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		checker.Run(ctx)
		return nil
	})

	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", httpServer.Addr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		d.Log.Info("Shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})

	fields := logrus.Fields{
		"addr":     "http://" + httpServer.Addr,
		"database": d.Config.Database.Dir,
		"throttle": d.Config.Throttle.Backend,
		"timezone": d.Engine.Calendar.Location().String(),
	}
	if d.Config.Telemetry.Prometheus {
		fields["metrics"] = "http://" + httpServer.Addr + "/metrics"
	}
	if len(d.Config.API.CORSOrigins) > 0 {
		fields["cors"] = strings.Join(d.Config.API.CORSOrigins, ",")
	}
	d.Log.WithFields(fields).Info("gitquest serving")

	return g.Wait()
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			d.Log.WithError(err).Warn("Closing database")
		}
	}
}
