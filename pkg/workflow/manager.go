package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/persistence"
	"github.com/dukex/packflow/pkg/protocol"
)

// Manager starts runs for matched triggers and direct invocations. Runs
// execute concurrently, each in its own goroutine, and may be cancelled
// between steps.
type Manager struct {
	repository *Repository
	executor   *Executor
	matcher    *TriggerMatcher
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func NewManager(logger *slog.Logger, repository *Repository, executor *Executor, matcher *TriggerMatcher) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		repository: repository,
		executor:   executor,
		matcher:    matcher,
		logger:     logger.With("module", "workflow_manager"),
		ctx:        ctx,
		cancel:     cancel,
		running:    map[string]context.CancelFunc{},
	}
}

// Dispatch routes an occurrence to the trigger matcher and starts one run per
// match, in match order. The returned runs are owned by their executing
// goroutine; callers may only read their ID.
func (m *Manager) Dispatch(ctx context.Context, occurrence models.Occurrence) ([]*models.WorkflowRun, error) {
	if err := m.ctx.Err(); err != nil {
		return nil, fmt.Errorf("manager stopped: %w", err)
	}

	matches := m.matcher.MatchWorkflows(occurrence, m.repository.FetchAll())
	runs := make([]*models.WorkflowRun, 0, len(matches))

	for _, match := range matches {
		run := m.executor.NewRun(match.Plan, match.Trigger.ID, occurrence.TenantID, match.TriggerData)
		m.launch(ctx, match.Plan, run)

		runs = append(runs, run)
	}

	return runs, nil
}

// HandleOccurrence adapts Dispatch to an occurrence source callback.
func (m *Manager) HandleOccurrence(ctx context.Context, occurrence models.Occurrence) error {
	_, err := m.Dispatch(ctx, occurrence)

	return err
}

// Invoke starts a run of a workflow directly, bypassing trigger matching.
func (m *Manager) Invoke(ctx context.Context, workflowID, tenantID string, triggerData map[string]any) (*models.WorkflowRun, error) {
	plan, err := m.repository.FetchByID(workflowID)
	if err != nil {
		return nil, err
	}

	run := m.executor.NewRun(plan, string(models.OnInvoked), tenantID, triggerData)
	m.launch(ctx, plan, run)

	return run, nil
}

// RunSync executes a workflow in the calling goroutine and returns the
// finished run together with the error that failed it, if any.
func (m *Manager) RunSync(ctx context.Context, workflowID, tenantID string, triggerData map[string]any) (*models.WorkflowRun, error) {
	plan, err := m.repository.FetchByID(workflowID)
	if err != nil {
		return nil, err
	}

	run := m.executor.NewRun(plan, string(models.OnInvoked), tenantID, triggerData)
	m.executor.Save(ctx, run)

	return run, m.executor.Execute(ctx, plan, run)
}

// Cancel requests that a running run stops before its next step.
func (m *Manager) Cancel(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cancel, ok := m.running[runID]
	if !ok {
		return persistence.NewRunError("Cancel", runID, models.ErrRunNotFound)
	}

	cancel()

	return nil
}

// Running reports whether the run is currently executing.
func (m *Manager) Running(runID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.running[runID]

	return ok
}

// Wait blocks until every started run has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Stop cancels every run at its next step boundary and waits for them.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

// Listen feeds every occurrence of source into Dispatch.
func (m *Manager) Listen(ctx context.Context, source protocol.OccurrenceSource) error {
	return source.Start(ctx, m.HandleOccurrence)
}

func (m *Manager) launch(ctx context.Context, plan *Plan, run *models.WorkflowRun) {
	// The run outlives the request that started it but stops with the manager.
	runCtx, cancel := context.WithCancel(m.ctx)

	m.mu.Lock()
	m.running[run.ID] = cancel
	m.mu.Unlock()

	m.executor.Save(ctx, run)

	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.running, run.ID)
			m.mu.Unlock()
			cancel()
		}()

		if err := m.executor.Execute(runCtx, plan, run); err != nil {
			m.logger.DebugContext(runCtx, "Run finished with error", "run_id", run.ID, "error", err)
		}
	}()
}
