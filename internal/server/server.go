package server

import (
	"context"

	"backend-groupridemtb/internal/auth"
	"backend-groupridemtb/internal/config"
	"backend-groupridemtb/internal/email"
	"backend-groupridemtb/internal/message"
	"backend-groupridemtb/internal/notify"
	"backend-groupridemtb/internal/ride"
	"backend-groupridemtb/internal/rider"
	"backend-groupridemtb/internal/stream"
	"backend-groupridemtb/internal/trail"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Stream   *stream.Hub
	Notifier *notify.Dispatcher
	Registry *prometheus.Registry
	Log      *zap.Logger
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:     "groupridemtb",
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,
	})
	app.Use(recover.New())
	app.Use(logger.New())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s := &Server{
		App:      app,
		Cfg:      cfg,
		DB:       db,
		Redis:    redisClient,
		Stream:   stream.NewHub(redisClient, log),
		Registry: reg,
		Log:      log,
	}

	registerRoutes(s)
	return s
}

func newThrottleStore(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client, log *zap.Logger) notify.ThrottleStore {
	if cfg.ThrottleBackend == "redis" {
		if redisClient != nil {
			return notify.NewRedisThrottleStore(redisClient, cfg.ThrottleWindow)
		}
		log.Warn("redis throttle backend requested without redis, using postgres")
	}
	return notify.NewPGThrottleStore(db)
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"email":  s.Cfg.MailConfigured(),
		})
	})
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{})))

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	trails := trail.NewService(s.DB)
	gateway := email.NewGateway(email.OptionsFromConfig(s.Cfg), nil, s.Log)
	s.Notifier = notify.NewDispatcher(
		notify.NewPGDirectory(s.DB, trails),
		notify.NewThrottle(newThrottleStore(s.Cfg, s.DB, s.Redis, s.Log)),
		gateway,
		notify.NewRenderer(s.Cfg.SiteURL),
		notify.NewMetrics(s.Registry),
		notify.Options{
			Concurrency:    s.Cfg.NotifyConcurrency,
			Timeout:        s.Cfg.NotifyTimeout,
			ThrottleWindow: s.Cfg.ThrottleWindow,
		},
		s.Log,
	)

	ride.RegisterRoutes(s.App.Group("/rides"), ride.NewService(s.DB, s.Log), s.Notifier, s.Stream, jwtMiddleware, s.Log)
	trail.RegisterRoutes(s.App.Group("/trails"), trails, jwtMiddleware)
	rider.RegisterRoutes(s.App.Group("/riders"), rider.NewService(s.DB), jwtMiddleware)
	message.RegisterRoutes(s.App.Group("/messages"), message.NewService(s.DB, s.Log), s.Notifier, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}

// Drain waits for in-flight notifications and stops the chat subscription.
func (s *Server) Drain(ctx context.Context) error {
	var err error
	if s.Notifier != nil {
		if err = s.Notifier.Wait(ctx); err != nil {
			s.Log.Warn("notifications still in flight at shutdown", zap.Error(err))
		}
	}
	if s.Stream != nil {
		s.Stream.Close()
	}
	return err
}
