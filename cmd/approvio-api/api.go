// Package main provides the Approvio API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/approvio/approvio/pkg/engine"
	"github.com/approvio/approvio/pkg/persistence"
	"github.com/approvio/approvio/pkg/services"
	"github.com/approvio/approvio/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	runtime     *engine.Runtime
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	runtime *engine.Runtime,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		runtime:     runtime,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	templateService := services.NewTemplate(a.persistence)

	handlers := web.NewAPIHandlers(templateService, a.runtime, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Approvio API")
	})

	org := app.Group("/organizations/:orgId")

	t := org.Group("/templates")
	t.Post("/", handlers.CreateTemplate)
	t.Get("/", handlers.ListTemplates)
	t.Get("/:id", handlers.GetTemplate)
	t.Put("/:id", handlers.CreateTemplateVersion)

	i := org.Group("/instances")
	i.Post("/", handlers.CreateInstance)
	i.Get("/:id", handlers.GetInstance)
	i.Post("/:id/decisions", handlers.RecordDecision)
	i.Post("/:id/cancel", handlers.CancelInstance)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
