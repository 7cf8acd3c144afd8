package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ServerConfig holds the transport settings.
type ServerConfig struct {
	BodyLimit int
	AccessLog bool
}

// NewServer creates the fiber app with the target routes and, when reg is
// non-nil, GET /metrics.
func NewServer(cfg ServerConfig, table *RouteTable, h *BuildHandler, reg *prom.Registry) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "ocomp",
		BodyLimit:             cfg.BodyLimit,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			if code >= fiber.StatusInternalServerError {
				slog.Error("Request failed", slog.String("path", c.Path()), slog.Any("error", err))
			}
			return c.Status(code).SendString(err.Error())
		},
	})

	app.Use(recover.New())
	if cfg.AccessLog {
		app.Use(logger.New())
	}

	if reg != nil {
		app.Get("/metrics", MetricsHandler(reg))
	}
	table.Mount(app, h)
	return app
}
