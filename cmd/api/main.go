package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backend-groupridemtb/internal/config"
	"backend-groupridemtb/internal/db"
	"backend-groupridemtb/internal/logger"
	"backend-groupridemtb/internal/server"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadEnv         func() error
	loadConfig      func() config.Config
	newLogger       func(level string) (*zap.Logger, error)
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) *redis.Client
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, *pgxpool.Pool, *redis.Client, *zap.Logger, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadEnv:         func() error { return godotenv.Load() },
		loadConfig:      config.Load,
		newLogger:       logger.New,
		connectPostgres: db.ConnectPostgres,
		connectRedis:    db.ConnectRedis,
		notify:          signal.Notify,
		run:             Run,
	}
}

func realMain(deps mainDeps) {
	// a missing .env is normal outside local development
	envErr := deps.loadEnv()
	cfg := deps.loadConfig()

	zl, err := deps.newLogger(cfg.LogLevel)
	if err != nil {
		log.Printf("logger setup failed, using nop: %v", err)
		zl = zap.NewNop()
	}
	defer func() { _ = zl.Sync() }()
	if envErr != nil {
		zl.Debug("no .env file loaded", zap.Error(envErr))
	}
	if !cfg.MailConfigured() {
		zl.Warn("email provider not configured, notifications disabled")
	}

	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		zl.Error("postgres connection failed", zap.Error(err))
	}

	rdb := deps.connectRedis(cfg)

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, pg, rdb, zl, signals, nil); err != nil {
		zl.Error("server exited with error", zap.Error(err))
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

var newServer = server.NewServer

const shutdownTimeout = 5 * time.Second

// drainTimeout bounds how long shutdown waits on queued notifications.
var drainTimeout = 30 * time.Second

// Run starts the HTTP server and waits for termination signals. On the way
// out it stops accepting requests, then gives queued notifications a bounded
// window to finish before closing the pools.
func Run(ctx context.Context, cfg config.Config, pg *pgxpool.Pool, rdb *redis.Client, zl *zap.Logger, signals <-chan os.Signal, listen ListenFunc) error {
	if zl == nil {
		zl = zap.NewNop()
	}
	srv := newServer(cfg, pg, rdb, zl)

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := shutdownFn(srv.App, shutdownCtx); err != nil {
		return err
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), drainTimeout)
	defer cancelDrain()
	if err := srv.Drain(drainCtx); err != nil {
		zl.Warn("shutdown abandoned in-flight notifications", zap.Error(err))
	}

	if pg != nil {
		pg.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	return nil
}
