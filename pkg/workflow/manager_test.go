package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dukex/packflow/pkg/datastore"
	"github.com/dukex/packflow/pkg/mocks"
	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/persistence"
	"github.com/dukex/packflow/pkg/persistence/file"
	"github.com/dukex/packflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, factories []protocol.ActionFactory, workflows ...*models.Workflow) (*Manager, persistence.RunRepository) {
	t.Helper()

	repo := NewRepository()
	require.NoError(t, repo.Load(context.Background(), newRegistry(factories...), workflows))

	runs := file.NewPersistence(t.TempDir()).RunRepository()
	executor := newExecutor(protocol.Dependencies{}, WithRunRepository(runs), WithTenants(newTenants(t)))

	manager := NewManager(discardLogger(), repo, executor, NewTriggerMatcher(discardLogger(), nil))
	t.Cleanup(manager.Stop)

	return manager, runs
}

func onContactAdded(id string) *models.Workflow {
	return &models.Workflow{
		ID:        id,
		StartStep: "end",
		Steps:     []*models.WorkflowStep{{ID: "end", IsTerminal: true}},
		Triggers: []*models.WorkflowTrigger{
			{ID: "added", Type: models.TriggerTypeManual, OnEvent: "data_added", TargetModel: "contacts", IsActive: true},
		},
	}
}

func TestManager_DispatchStartsOneRunPerMatch(t *testing.T) {
	manager, runs := newManager(t, nil, onContactAdded("b-welcome"), onContactAdded("a-audit"))

	started, err := manager.Dispatch(context.Background(), models.Occurrence{
		Kind:     models.OnDataAdded,
		Model:    "contacts",
		Record:   map[string]any{"_id": "c1"},
		TenantID: "acme",
	})
	require.NoError(t, err)
	require.Len(t, started, 2)

	ids := []string{started[0].ID, started[1].ID}

	manager.Wait()

	first, err := runs.RunByID(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, "a-audit", first.WorkflowID)
	assert.Equal(t, "acme", first.TenantID)
	assert.Equal(t, models.RunStatusSucceeded, first.Status)
	assert.Equal(t, "c1", first.Context.TriggerData["_id"])

	second, err := runs.RunByID(context.Background(), ids[1])
	require.NoError(t, err)
	assert.Equal(t, "b-welcome", second.WorkflowID)
}

// dispatchingPublisher feeds store writes straight back into the manager.
type dispatchingPublisher struct {
	manager *Manager
}

func (p *dispatchingPublisher) PublishOccurrence(ctx context.Context, occurrence models.Occurrence) error {
	_, err := p.manager.Dispatch(ctx, occurrence)

	return err
}

func TestManager_ChainedRunKeepsTenant(t *testing.T) {
	var (
		mu      sync.Mutex
		tenants []string
	)

	create := &funcFactory{id: "CreateOrder", fn: func(ctx context.Context, _ *models.ExecutionContext, deps protocol.Dependencies) (map[string]any, error) {
		return deps.Store.Create(ctx, "orders", map[string]any{"status": "new"})
	}}
	notify := &funcFactory{id: "Notify", fn: func(_ context.Context, _ *models.ExecutionContext, deps protocol.Dependencies) (map[string]any, error) {
		mu.Lock()
		defer mu.Unlock()

		if deps.Tenant != nil {
			tenants = append(tenants, deps.Tenant.ID)
		}

		return nil, nil
	}}

	place := &models.Workflow{
		ID:        "place",
		StartStep: "create",
		Actions:   []*models.WorkflowAction{{ID: "create", Type: "CreateOrder"}},
		Steps: []*models.WorkflowStep{
			{ID: "create", Actions: []string{"create"}, OnSuccessStep: "end"},
			{ID: "end", IsTerminal: true},
		},
	}
	confirm := &models.Workflow{
		ID:        "confirm",
		StartStep: "notify",
		Actions:   []*models.WorkflowAction{{ID: "notify", Type: "Notify"}},
		Steps:     []*models.WorkflowStep{{ID: "notify", Actions: []string{"notify"}, IsTerminal: true}},
		Triggers: []*models.WorkflowTrigger{
			{ID: "placed", Type: models.TriggerTypeManual, OnEvent: "data_added", TargetModel: "orders", IsActive: true},
		},
	}

	repo := NewRepository()
	require.NoError(t, repo.Load(context.Background(), newRegistry(create, notify), []*models.Workflow{place, confirm}))

	publisher := &dispatchingPublisher{}
	store := datastore.NewNotifyingStore(datastore.NewMemoryStore(), publisher, discardLogger())
	runs := file.NewPersistence(t.TempDir()).RunRepository()
	executor := newExecutor(protocol.Dependencies{Store: store}, WithRunRepository(runs), WithTenants(newTenants(t)))

	manager := NewManager(discardLogger(), repo, executor, NewTriggerMatcher(discardLogger(), nil))
	publisher.manager = manager

	t.Cleanup(manager.Stop)

	_, err := manager.Invoke(context.Background(), "place", "acme", nil)
	require.NoError(t, err)

	manager.Wait()

	chained, err := runs.RunsByWorkflow(context.Background(), "confirm")
	require.NoError(t, err)
	require.Len(t, chained, 1)
	assert.Equal(t, "acme", chained[0].TenantID)
	assert.Equal(t, models.RunStatusSucceeded, chained[0].Status)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"acme"}, tenants)
}

func TestManager_InvokeAndCancel(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	block := &funcFactory{id: "Block", fn: func(context.Context, *models.ExecutionContext, protocol.Dependencies) (map[string]any, error) {
		close(entered)
		<-release

		return nil, nil
	}}

	wf := &models.Workflow{
		ID:        "slow",
		StartStep: "wait",
		Actions:   []*models.WorkflowAction{{ID: "block", Type: "Block"}},
		Steps: []*models.WorkflowStep{
			{ID: "wait", Actions: []string{"block"}, OnSuccessStep: "end"},
			{ID: "end", IsTerminal: true},
		},
	}

	manager, runs := newManager(t, []protocol.ActionFactory{block}, wf)

	run, err := manager.Invoke(context.Background(), "slow", "", map[string]any{"by": "api"})
	require.NoError(t, err)

	runID := run.ID

	<-entered
	assert.True(t, manager.Running(runID))
	require.NoError(t, manager.Cancel(runID))
	close(release)

	manager.Wait()
	assert.False(t, manager.Running(runID))

	stored, err := runs.RunByID(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	assert.Equal(t, models.FailureCancelled, stored.FailureReason)
	assert.Equal(t, string(models.OnInvoked), stored.TriggerID)

	assert.True(t, persistence.IsRunNotFound(manager.Cancel(runID)))
}

func TestManager_RunSync(t *testing.T) {
	manager, _ := newManager(t, nil, onContactAdded("sync"))

	run, err := manager.RunSync(context.Background(), "sync", "acme", nil)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSucceeded, run.Status)

	_, err = manager.RunSync(context.Background(), "missing", "", nil)
	require.ErrorIs(t, err, models.ErrWorkflowNotFound)
}

func TestManager_StopRejectsNewOccurrences(t *testing.T) {
	manager, _ := newManager(t, nil, onContactAdded("stopped"))
	manager.Stop()

	done := make(chan struct{})

	go func() {
		defer close(done)

		_, err := manager.Dispatch(context.Background(), models.Occurrence{Kind: models.OnDataAdded, Model: "contacts"})
		assert.Error(t, err)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch blocked after stop")
	}
}

func TestManager_ListenFeedsDispatch(t *testing.T) {
	manager, runs := newManager(t, nil, onContactAdded("welcome"))

	var callback protocol.OccurrenceCallback

	source := &mocks.MockOccurrenceSource{}
	source.On("Start", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			callback = args.Get(1).(protocol.OccurrenceCallback)
		}).
		Return(nil)

	require.NoError(t, manager.Listen(context.Background(), source))
	require.NotNil(t, callback)
	source.AssertExpectations(t)

	err := callback(context.Background(), models.Occurrence{
		Kind:   models.OnDataAdded,
		Model:  "contacts",
		Record: map[string]any{"_id": "c9"},
	})
	require.NoError(t, err)

	manager.Wait()

	stored, err := runs.RunsByWorkflow(context.Background(), "welcome")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "c9", stored[0].Context.TriggerData["_id"])
}
