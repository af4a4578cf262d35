package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/packflow/pkg/cmd"
	"github.com/dukex/packflow/pkg/datastore"
	"github.com/dukex/packflow/pkg/eventbus"
	"github.com/dukex/packflow/pkg/expression"
	"github.com/dukex/packflow/pkg/otelhelper"
	"github.com/dukex/packflow/pkg/pack"
	"github.com/dukex/packflow/pkg/persistence"
	"github.com/dukex/packflow/pkg/registry"
	"github.com/dukex/packflow/pkg/tenant"
	"github.com/dukex/packflow/pkg/workflow"
	"github.com/urfave/cli/v3"
)

// engine is the set of components shared by the serve and run commands.
type engine struct {
	logger      *slog.Logger
	registry    *registry.Registry
	packs       *pack.Set
	workflows   *workflow.Repository
	bus         eventbus.EventBus
	bridge      *eventbus.OccurrenceBridge
	tenants     *tenant.Directory
	persistence persistence.Persistence
	manager     *workflow.Manager

	closers []func(ctx context.Context) error
}

// loadWorkflows reads the packs and compiles their workflows against the
// registered actions.
func loadWorkflows(ctx context.Context, logger *slog.Logger, command *cli.Command) (*registry.Registry, *pack.Set, *workflow.Repository, error) {
	reg, err := cmd.NewRegistry(ctx, logger, command.String("plugins-path"))
	if err != nil {
		return nil, nil, nil, err
	}

	set, err := pack.LoadPath(command.String("packs-path"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load packs: %w", err)
	}

	workflows := workflow.NewRepository()
	if err := workflows.Load(ctx, reg, set.Workflows()); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid workflows: %w", err)
	}

	return reg, set, workflows, nil
}

func newEngine(ctx context.Context, logger *slog.Logger, command *cli.Command) (*engine, error) {
	e := &engine{logger: logger}

	var err error

	e.registry, e.packs, e.workflows, err = loadWorkflows(ctx, logger, command)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Loaded packs", "packs", e.packs.Names(), "workflows", len(e.workflows.FetchAll()))

	e.tenants, err = tenant.LoadFileOrDefault(command.String("tenants-file"))
	if err != nil {
		return nil, fmt.Errorf("failed to load tenants: %w", err)
	}

	e.bus, err = cmd.NewEventBus(command.String("event-bus"), command.StringSlice("kafka-brokers"), logger)
	if err != nil {
		return nil, err
	}

	e.onClose(func(context.Context) error { return e.bus.Close() })

	e.bridge = eventbus.NewOccurrenceBridge(e.bus)

	rawStore, closeStore, err := cmd.NewDataStore(ctx, logger, command.String("store-url"))
	if err != nil {
		e.Close(ctx)

		return nil, err
	}

	e.onClose(func(context.Context) error { return closeStore() })

	store := datastore.NewNotifyingStore(rawStore, e.bridge, logger)

	deps, err := cmd.NewDependencies(logger, store, collaboratorsFrom(command))
	if err != nil {
		e.Close(ctx)

		return nil, fmt.Errorf("invalid collaborator settings: %w", err)
	}

	e.persistence, err = cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		e.Close(ctx)

		return nil, err
	}

	e.onClose(e.persistence.Close)

	eval := expression.New()

	opts := []workflow.ExecutorOption{
		workflow.WithLimits(limitsFrom(command)),
		workflow.WithRunRepository(e.persistence.RunRepository()),
		workflow.WithPublisher(e.bus),
		workflow.WithTenants(e.tenants),
	}

	if command.Bool("otel") {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, "packflow")
		if err != nil {
			e.Close(ctx)

			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		e.onClose(shutdown)

		opts = append(opts, workflow.WithTracer(tracer))
	}

	executor := workflow.NewExecutor(logger, eval, deps, opts...)
	e.manager = workflow.NewManager(logger, e.workflows, executor, workflow.NewTriggerMatcher(logger, eval))

	return e, nil
}

func (e *engine) onClose(closer func(ctx context.Context) error) {
	e.closers = append(e.closers, closer)
}

// Close stops every run and releases resources in reverse order of creation.
func (e *engine) Close(ctx context.Context) {
	if e.manager != nil {
		e.manager.Stop()
	}

	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](ctx); err != nil {
			e.logger.ErrorContext(ctx, "Failed to release resource", "error", err)
		}
	}

	e.closers = nil
}
