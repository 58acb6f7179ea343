package server

import (
	"backend-fieldforce/internal/auth"
	"backend-fieldforce/internal/config"
	"backend-fieldforce/internal/store"
	"backend-fieldforce/internal/stream"
	"backend-fieldforce/internal/syncer"
	"backend-fieldforce/internal/tracking"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App        *fiber.App
	Cfg        config.Config
	DB         *pgxpool.Pool
	Redis      *redis.Client
	Stream     *stream.Hub
	Collector  *tracking.PushCollector
	Controller *tracking.Controller
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	hub := stream.NewHub(redisClient)
	collector := tracking.NewPushCollector()
	controller := tracking.NewController(tracking.Deps{
		Store:     store.NewStore(db),
		Sessions:  store.NewSessionStore(redisClient),
		Gateway:   syncer.NewHTTPGateway(cfg.SyncEndpoint),
		Hub:       hub,
		Collector: collector,
		Battery:   tracking.SysfsBattery{},
	})

	s := &Server{
		App:        app,
		Cfg:        cfg,
		DB:         db,
		Redis:      redisClient,
		Stream:     hub,
		Collector:  collector,
		Controller: controller,
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	attendance := s.App.Group("/attendance")
	tracking.RegisterRoutes(attendance, s.Controller, jwtMiddleware)
	tracking.RegisterIngest(attendance, s.Collector, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
