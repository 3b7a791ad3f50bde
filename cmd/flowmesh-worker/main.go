package main

import (
	"context"
	"os"

	"github.com/flowmesh/flowmesh/pkg/cmd"
	"github.com/flowmesh/flowmesh/pkg/log"
	"github.com/flowmesh/flowmesh/pkg/otelhelper"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "flowmesh-worker",
		EnableShellCompletion: true,
		Usage:                 "Start workers to dispatch queued flow messages",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "queue-url",
				Usage:   "Optional Redis URL for the queue write-through store",
				Sources: cli.EnvVars("QUEUE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (gochannel, kafka)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "plugins-path",
				Usage:    "Path to the directory containing adapter plugins",
				Value:    "./plugins",
				Required: false,
				Sources:  cli.EnvVars("PLUGINS_PATH"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:    "otel",
				Usage:   "Export execution traces over OTLP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("flowmesh-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing FlowMesh Worker")

			registry := cmd.NewRegistry(ctx, logger, command.String("plugins-path"))

			eventBus := cmd.NewEventBus(command.String("event-bus"), "flowmesh-worker", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			queueRepository := cmd.NewQueueRepository(ctx, logger, command.String("queue-url"), persistence)

			worker := NewWorkerManager(workerID, persistence, queueRepository, eventBus, logger, registry)

			if command.Bool("otel") {
				tracer, err := otelhelper.NewTracer(ctx, "flowmesh-worker")
				if err != nil {
					return err
				}

				worker.executor.WithTracer(tracer)
			}

			if err := worker.Start(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to start worker", "error", err)
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
