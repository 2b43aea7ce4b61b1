package main

import (
	"context"
	"os"

	"github.com/approvio/approvio/pkg/cmd"
	"github.com/approvio/approvio/pkg/engine"
	"github.com/approvio/approvio/pkg/log"
	"github.com/approvio/approvio/pkg/otelhelper"
	"github.com/approvio/approvio/pkg/sweeper"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "approvio-api",
		Usage:                 "Create and manage approval workflow templates and instances",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (postgres:// or a file path)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel, none)",
				Value:   "none",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "directory-file",
				Usage:   "Path to the JSON membership directory seed file",
				Sources: cli.EnvVars("DIRECTORY_FILE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the directory role-lookup cache (optional)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "sweep-schedule",
				Usage:   "Cron schedule for retrying blocked instances",
				Value:   sweeper.DefaultSchedule,
				Sources: cli.EnvVars("SWEEP_SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OTLP trace export",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Approvio API")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)

			defer func() {
				if eventBus != nil {
					if err := eventBus.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
					}
				}
			}()

			dir := cmd.NewDirectory(logger, command.String("directory-file"), command.String("redis-url"))

			var tracer trace.Tracer
			if command.Bool("tracing") {
				var err error

				tracer, err = otelhelper.NewTracer(ctx, "approvio-api")
				if err != nil {
					logger.ErrorContext(ctx, "Failed to initialize tracer", "error", err)

					return err
				}
			} else {
				tracer = otelhelper.NewNoopTracer()
			}

			runtime := engine.NewRuntime(persistence, dir, eventBus, tracer, logger)

			sw := sweeper.NewSweeper(runtime, persistence, logger)
			if err := sw.Start(command.String("sweep-schedule")); err != nil {
				return err
			}
			defer sw.Stop()

			api := NewAPI(logger, persistence, runtime)

			err := api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
