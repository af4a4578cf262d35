package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/packflow/pkg/cmd"
	"github.com/dukex/packflow/pkg/ingest"
	"github.com/dukex/packflow/pkg/log"
	"github.com/dukex/packflow/pkg/scheduler"
	"github.com/dukex/packflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/urfave/cli/v3"
)

func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the API, the event ingestion gateway and the scheduler",
		Flags: flags(packFlags(), storeFlags(), engineFlags(), []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "ledger-url",
				Usage:   "Event ledger URL (memory, redis://... or postgres://...)",
				Value:   "memory",
				Sources: cli.EnvVars("LEDGER_URL"),
			},
			&cli.DurationFlag{
				Name:    "ledger-ttl",
				Usage:   "How long accepted event identifiers are remembered",
				Value:   ingest.DefaultLedgerTTL,
				Sources: cli.EnvVars("LEDGER_TTL"),
			},
		}),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("packflow")

			logger.InfoContext(ctx, "Initializing packflow")

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			app, err := newEngine(ctx, logger, command)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			if err := app.manager.Listen(ctx, app.bridge); err != nil {
				return fmt.Errorf("failed to listen for data occurrences: %w", err)
			}

			if err := app.bus.Subscribe(ctx); err != nil {
				return fmt.Errorf("failed to subscribe to event bus: %w", err)
			}

			ticks := scheduler.New(logger)
			if err := app.manager.Listen(ctx, ticks); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}

			defer func() {
				if err := ticks.Stop(context.Background()); err != nil {
					logger.Error("Failed to stop scheduler", "error", err)
				}
			}()

			ledger, closeLedger, err := cmd.NewLedger(ctx, logger, command.String("ledger-url"), command.Duration("ledger-ttl"))
			if err != nil {
				return err
			}

			defer func() {
				if err := closeLedger(); err != nil {
					logger.Error("Failed to close event ledger", "error", err)
				}
			}()

			gateway := ingest.NewGateway(logger, app.tenants, ledger, app.manager, ingest.WithPublisher(app.bus))

			handlers := web.NewAPIHandlers(
				logger,
				app.workflows,
				app.manager,
				gateway,
				app.persistence,
				app.registry,
				validator.New(validator.WithRequiredStructEnabled()),
			)
			server := web.NewServer(logger, handlers)

			errs := make(chan error, 1)

			go func() {
				errs <- server.Start(command.Int("port"))
			}()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigChan:
				logger.Info("Received shutdown signal", "signal", sig)
			case err := <-errs:
				if err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("server stopped: %w", err)
				}
			case <-ctx.Done():
			}

			if err := server.Shutdown(); err != nil {
				logger.Error("Failed to shutdown server", "error", err)
			}

			logger.Info("packflow stopped")

			return nil
		},
	}
}
