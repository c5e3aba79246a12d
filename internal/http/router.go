// Package http exposes the public API: scraper management, the dynamic
// scrape endpoints, job status and results, and monitor administration.
package http

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"webtap/internal/config"
	"webtap/internal/gateway"
	"webtap/internal/metrics"
	"webtap/internal/progress"
	"webtap/internal/state"
)

// Deps are the collaborators handlers pull out of request locals.
type Deps struct {
	Gateway  *gateway.Gateway
	Store    state.Store
	Progress progress.Stream
	DB       *sql.DB
	Redis    *redis.Client
}

type Server struct {
	app    *fiber.App
	config *config.Config
	logger *slog.Logger
}

func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	app := fiber.New()

	// Inject collaborators into context for handlers
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("gateway", deps.Gateway)
		c.Locals("store", deps.Store)
		c.Locals("progress", deps.Progress)
		return c.Next()
	})

	// Request logging + metrics middleware
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		// Ensure a request ID exists
		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)
		if logger != nil {
			c.Locals("logger", logger)
		}

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()
		method := c.Method()
		path := c.Path()

		metrics.RecordRequest(method, path, status, latency.Milliseconds())

		if logger != nil {
			logger.Info("request",
				"request_id", reqID,
				"method", method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}

		return err
	})

	// Health endpoints
	app.Get("/healthz", func(c *fiber.Ctx) error {
		// Shallow health: process is up
		if c.Query("deep") != "true" {
			return c.JSON(fiber.Map{"status": "ok"})
		}

		// Deep health: check DB and Redis connectivity, and rod configuration.
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		dbStatus := "disabled"
		if deps.DB != nil {
			dbStatus = "ok"
			if err := deps.DB.PingContext(ctx); err != nil {
				dbStatus = "error"
			}
		}

		redisStatus := "disabled"
		if deps.Redis != nil {
			if err := deps.Redis.Ping(ctx).Err(); err != nil {
				redisStatus = "error"
			} else {
				redisStatus = "ok"
			}
		}

		rodStatus := "disabled"
		if cfg.Rod.Enabled {
			rodStatus = "enabled"
		}

		status := "ok"
		if dbStatus == "error" || redisStatus == "error" {
			status = "error"
		}

		return c.JSON(fiber.Map{
			"status": status,
			"db":     dbStatus,
			"redis":  redisStatus,
			"rod":    rodStatus,
		})
	})

	// Prometheus-style metrics endpoint
	app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Type("txt")
		return c.SendString(metrics.Export())
	})

	api := app.Group("/api")
	registerAPIRoutes(api)

	return &Server{
		app:    app,
		config: cfg,
		logger: logger,
	}
}

func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	return s.app.Listen(addr)
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func registerAPIRoutes(group fiber.Router) {
	group.Post("/scrapers", createScraperHandler)
	group.Get("/scrapers", listScrapersHandler)
	group.Get("/scrapers/:scraperId", getScraperHandler)
	group.Post("/scrape/:scraperId", runScraperHandler)
	group.Get("/status/:jobId", getStatusHandler)
	group.Get("/results/:jobId", getResultsHandler)
	group.Get("/monitors", listMonitorsHandler)
	group.Delete("/monitors/:monitorId", deleteMonitorHandler)
}
