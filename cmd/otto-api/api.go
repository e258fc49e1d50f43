// Package main provides the Otto API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"

	"go.opentelemetry.io/otel/trace"

	"github.com/ottoflow/otto/pkg/eventbus"
	"github.com/ottoflow/otto/pkg/persistence"
	"github.com/ottoflow/otto/pkg/registry"
	"github.com/ottoflow/otto/pkg/web"
	"github.com/ottoflow/otto/pkg/workflow"
)

type API struct {
	logger     *slog.Logger
	repository persistence.ExecutionRepository
	registry   *registry.Registry
	eventBus   eventbus.EventBus
	tracer     trace.Tracer
	validate   *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	repository persistence.ExecutionRepository,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
	tracer trace.Tracer,
) *API {
	return &API{
		logger:     logger,
		repository: repository,
		registry:   registry,
		eventBus:   eventBus,
		tracer:     tracer,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	opts := []workflow.Option{
		workflow.WithRepository(a.repository),
		workflow.WithEventBus(a.eventBus),
	}
	if a.tracer != nil {
		opts = append(opts, workflow.WithTracer(a.tracer))
	}

	executor := workflow.NewExecutor(a.registry, a.logger, opts...)

	handlers := web.NewAPIHandlers(executor, a.repository, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Otto API")
	})

	handlers.RegisterRoutes(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
