package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/protocol"
	"github.com/dukex/packflow/pkg/registry"
	"github.com/dukex/packflow/pkg/tenant"
	"github.com/dukex/packflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const secret = "whsec_test"

type mockRouter struct {
	mock.Mock
}

func (m *mockRouter) Dispatch(ctx context.Context, occurrence models.Occurrence) ([]*models.WorkflowRun, error) {
	args := m.Called(ctx, occurrence)

	runs, _ := args.Get(0).([]*models.WorkflowRun)

	return runs, args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tenants(t *testing.T) *tenant.Directory {
	t.Helper()

	dir, err := tenant.NewDirectory(
		&tenant.Tenant{
			ID:                "acme",
			WebhookSecretName: "STRIPE_WEBHOOK_SECRET",
			Values:            map[string]string{"STRIPE_WEBHOOK_SECRET": secret},
		},
		&tenant.Tenant{ID: "unsigned", Values: map[string]string{}},
	)
	require.NoError(t, err)

	return dir
}

func signedHeader(body []byte) HeaderFunc {
	signature := "sha256=" + Sign(secret, body)

	return func(name string) string {
		if name == tenant.DefaultSignatureHeader {
			return signature
		}

		return ""
	}
}

// countingRouter forwards to a real manager and counts what it started.
type countingRouter struct {
	next  Router
	calls int
	runs  int
}

func (r *countingRouter) Dispatch(ctx context.Context, occurrence models.Occurrence) ([]*models.WorkflowRun, error) {
	runs, err := r.next.Dispatch(ctx, occurrence)
	r.calls++
	r.runs += len(runs)

	return runs, err
}

func newManager(t *testing.T) *workflow.Manager {
	t.Helper()

	repo := workflow.NewRepository()
	require.NoError(t, repo.Load(context.Background(), registry.NewRegistry(discardLogger()), []*models.Workflow{{
		ID:        "on-paid",
		StartStep: "end",
		Steps:     []*models.WorkflowStep{{ID: "end", IsTerminal: true}},
		Triggers: []*models.WorkflowTrigger{{
			ID: "paid", Type: models.TriggerTypeManual, OnEvent: "event_received", TargetModel: "invoice.paid", IsActive: true,
		}},
	}}))

	executor := workflow.NewExecutor(discardLogger(), nil, protocol.Dependencies{})
	manager := workflow.NewManager(discardLogger(), repo, executor, workflow.NewTriggerMatcher(discardLogger(), nil))
	t.Cleanup(manager.Stop)

	return manager
}

func TestGateway_IdempotentDelivery(t *testing.T) {
	manager := newManager(t)
	router := &countingRouter{next: manager}

	gateway := NewGateway(discardLogger(), tenants(t), NewMemoryLedger(0, 0), router)
	body := []byte(`{"id":"evt_1","type":"invoice.paid","data":{"amount":1200}}`)

	first, err := gateway.Ingest(context.Background(), "acme", body, signedHeader(body))
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.Equal(t, 1, first.Runs)

	second, err := gateway.Ingest(context.Background(), "acme", body, signedHeader(body))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, 0, second.Runs)

	manager.Wait()
	assert.Equal(t, 1, router.runs)
	assert.Equal(t, 1, router.calls)
}

func TestGateway_RejectsTamperedPayloads(t *testing.T) {
	body := []byte(`{"id":"evt_2","type":"invoice.paid","data":{"amount":1200}}`)
	header := signedHeader(body)

	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i] ^= 0x01

		router := &mockRouter{}
		ledger := NewMemoryLedger(0, 0)
		gateway := NewGateway(discardLogger(), tenants(t), ledger, router)

		_, err := gateway.Ingest(context.Background(), "acme", mutated, header)
		require.ErrorIs(t, err, models.ErrSignatureVerification, "byte %d", i)
		assert.True(t, IsClientError(err))
		assert.Zero(t, ledger.Len())
		router.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
	}
}

func TestGateway_Rejections(t *testing.T) {
	valid := []byte(`{"id":"evt_3","type":"invoice.paid"}`)

	tests := []struct {
		name       string
		tenantID   string
		body       []byte
		header     HeaderFunc
		wantClient bool
	}{
		{name: "unknown tenant", tenantID: "nobody", body: valid, header: signedHeader(valid), wantClient: true},
		{name: "missing signature", tenantID: "acme", body: valid, header: func(string) string { return "" }, wantClient: true},
		{name: "not hex", tenantID: "acme", body: valid, header: func(string) string { return "zz" }, wantClient: true},
		{name: "signed but malformed", tenantID: "acme", body: []byte(`{"type":"x"}`), header: signedHeader([]byte(`{"type":"x"}`)), wantClient: true},
		{name: "signed but not json", tenantID: "acme", body: []byte(`nope`), header: signedHeader([]byte(`nope`)), wantClient: true},
		{name: "tenant without secret", tenantID: "unsigned", body: valid, header: signedHeader(valid), wantClient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := &mockRouter{}
			gateway := NewGateway(discardLogger(), tenants(t), NewMemoryLedger(0, 0), router)

			_, err := gateway.Ingest(context.Background(), tt.tenantID, tt.body, tt.header)
			require.Error(t, err)
			assert.Equal(t, tt.wantClient, IsClientError(err))
			router.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
		})
	}
}

func TestGateway_RoutingFailureReleasesLedger(t *testing.T) {
	body := []byte(`{"id":"evt_4","type":"invoice.paid","data":{}}`)

	router := &mockRouter{}
	router.On("Dispatch", mock.Anything, mock.MatchedBy(func(o models.Occurrence) bool {
		return o.EventID == "evt_4" && o.Kind == models.OnEventReceived && o.TenantID == "acme"
	})).Return(nil, errors.New("manager stopped")).Once()
	router.On("Dispatch", mock.Anything, mock.Anything).Return([]*models.WorkflowRun{{ID: "r1"}}, nil).Once()

	ledger := NewMemoryLedger(0, 0)
	gateway := NewGateway(discardLogger(), tenants(t), ledger, router)

	_, err := gateway.Ingest(context.Background(), "acme", body, signedHeader(body))
	require.Error(t, err)
	assert.False(t, IsClientError(err))
	assert.Zero(t, ledger.Len())

	result, err := gateway.Ingest(context.Background(), "acme", body, signedHeader(body))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Runs)
	router.AssertExpectations(t)
}

func TestGateway_RedeliveryDuringFailingRouteIsRetried(t *testing.T) {
	body := []byte(`{"id":"evt_6","type":"invoice.paid","data":{}}`)

	entered := make(chan struct{})
	release := make(chan struct{})

	router := &mockRouter{}
	router.On("Dispatch", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return(nil, errors.New("manager stopped")).Once()
	router.On("Dispatch", mock.Anything, mock.Anything).Return([]*models.WorkflowRun{{ID: "r1"}}, nil).Once()

	gateway := NewGateway(discardLogger(), tenants(t), NewMemoryLedger(0, 0), router)

	first := make(chan error, 1)

	go func() {
		_, err := gateway.Ingest(context.Background(), "acme", body, signedHeader(body))
		first <- err
	}()

	<-entered

	_, err := gateway.Ingest(context.Background(), "acme", body, signedHeader(body))
	require.ErrorIs(t, err, ErrEventInFlight)
	assert.False(t, IsClientError(err))

	close(release)
	require.Error(t, <-first)

	result, err := gateway.Ingest(context.Background(), "acme", body, signedHeader(body))
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Equal(t, 1, result.Runs)
	router.AssertExpectations(t)
}

func TestGateway_TenantHeaderOverride(t *testing.T) {
	dir, err := tenant.NewDirectory(&tenant.Tenant{
		ID:                "custom",
		WebhookSecretName: "SECRET",
		SignatureHeader:   "X-Hub-Signature-256",
		Values:            map[string]string{"SECRET": secret},
	})
	require.NoError(t, err)

	body := []byte(`{"id":"evt_5","type":"push"}`)
	router := &mockRouter{}
	router.On("Dispatch", mock.Anything, mock.Anything).Return(nil, nil)

	gateway := NewGateway(discardLogger(), dir, NewMemoryLedger(0, 0), router)

	_, err = gateway.Ingest(context.Background(), "custom", body, func(name string) string {
		if name == "X-Hub-Signature-256" {
			return Sign(secret, body)
		}

		return ""
	})
	require.NoError(t, err)
}
