package web

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

// Server wires the handlers into a fiber application.
type Server struct {
	logger   *slog.Logger
	handlers *APIHandlers
	app      *fiber.App
}

func NewServer(logger *slog.Logger, handlers *APIHandlers) *Server {
	s := &Server{logger: logger.With("module", "http"), handlers: handlers}
	s.app = s.build()

	return s
}

// App returns the configured fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) build() *fiber.App {
	h := s.handlers

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Packflow API")
	})

	app.Post("/events/:tenant", h.IngestEvent)

	w := app.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Get("/:id", h.GetWorkflow)
	w.Get("/:id/runs", h.GetWorkflowRuns)
	w.Post("/:id/runs", h.InvokeWorkflow)

	r := app.Group("/runs")
	r.Get("/:id", h.GetRun)
	r.Post("/:id/cancel", h.CancelRun)

	app.Get("/health", h.HealthCheck)

	return app
}

// Start listens on port until Shutdown is called.
func (s *Server) Start(port int) error {
	s.logger.Info("Starting HTTP server", "port", port)

	return s.app.Listen(":" + strconv.Itoa(port))
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
