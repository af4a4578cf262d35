package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logaction "github.com/dukex/packflow/pkg/actions/log"
	"github.com/dukex/packflow/pkg/ingest"
	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/persistence/file"
	"github.com/dukex/packflow/pkg/protocol"
	"github.com/dukex/packflow/pkg/registry"
	"github.com/dukex/packflow/pkg/tenant"
	"github.com/dukex/packflow/pkg/web"
	"github.com/dukex/packflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "whsec_web"

// gateFactory builds actions that block until the gate is opened.
type gateFactory struct {
	open chan struct{}
}

type gateAction struct {
	open chan struct{}
}

func (a gateAction) Execute(ctx context.Context, _ *models.ExecutionContext, _ protocol.Dependencies) (map[string]any, error) {
	select {
	case <-a.open:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return map[string]any{"result": "opened"}, nil
}

func (f *gateFactory) Create(context.Context, map[string]any) (protocol.Action, error) {
	return gateAction{open: f.open}, nil
}

func (f *gateFactory) ID() string { return "Gate" }
func (f *gateFactory) Name() string { return "Gate" }
func (f *gateFactory) Description() string { return "Blocks until opened" }
func (f *gateFactory) Schema() map[string]any { return map[string]any{"type": "object"} }

type testEnv struct {
	app     *fiber.App
	manager *workflow.Manager
	gate    *gateFactory
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	gate := &gateFactory{open: make(chan struct{})}

	reg := registry.NewRegistry(logger)
	reg.RegisterAction(logaction.NewActionFactory())
	reg.RegisterAction(gate)

	repo := workflow.NewRepository()
	require.NoError(t, repo.Load(ctx, reg, []*models.Workflow{
		{
			ID:        "on-paid",
			Name:      "Invoice paid",
			StartStep: "announce",
			Steps: []*models.WorkflowStep{
				{ID: "announce", Actions: []string{"say"}, OnSuccessStep: "end"},
				{ID: "end", IsTerminal: true},
			},
			Actions: []*models.WorkflowAction{
				{ID: "say", Type: "Log", Config: map[string]any{"message": "paid {triggerData.amount}"}},
			},
			Triggers: []*models.WorkflowTrigger{{
				ID: "paid", Type: models.TriggerTypeManual, OnEvent: "event_received", TargetModel: "invoice.paid", IsActive: true,
			}},
		},
		{
			ID:        "slow",
			Name:      "Slow workflow",
			StartStep: "hold",
			Steps: []*models.WorkflowStep{
				{ID: "hold", Actions: []string{"gate"}, OnSuccessStep: "end"},
				{ID: "end", IsTerminal: true},
			},
			Actions: []*models.WorkflowAction{{ID: "gate", Type: "Gate"}},
			Triggers: []*models.WorkflowTrigger{{
				ID: "held", Type: models.TriggerTypeManual, OnEvent: "event_received", TargetModel: "invoice.held", IsActive: true,
			}},
		},
	}))

	tenants, err := tenant.NewDirectory(&tenant.Tenant{
		ID:                "acme",
		WebhookSecretName: "WEBHOOK_SECRET",
		Values:            map[string]string{"WEBHOOK_SECRET": webhookSecret},
	})
	require.NoError(t, err)

	persistence := file.NewPersistence(t.TempDir())

	executor := workflow.NewExecutor(logger, nil, protocol.Dependencies{},
		workflow.WithRunRepository(persistence.RunRepository()),
		workflow.WithTenants(tenants),
	)
	manager := workflow.NewManager(logger, repo, executor, workflow.NewTriggerMatcher(logger, nil))

	t.Cleanup(func() {
		select {
		case <-gate.open:
		default:
			close(gate.open)
		}

		manager.Stop()
	})

	gateway := ingest.NewGateway(logger, tenants, ingest.NewMemoryLedger(0, 0), manager)
	handlers := web.NewAPIHandlers(logger, repo, manager, gateway, persistence, reg,
		validator.New(validator.WithRequiredStructEnabled()))

	return &testEnv{
		app:     web.NewServer(logger, handlers).App(),
		manager: manager,
		gate:    gate,
	}
}

func (e *testEnv) do(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()

	resp, err := e.app.Test(req)
	require.NoError(t, err)

	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	}

	return resp.StatusCode, body
}

func eventRequest(tenantID string, body []byte, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/events/"+tenantID, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	if signature != "" {
		req.Header.Set(tenant.DefaultSignatureHeader, signature)
	}

	return req
}

func TestAPIHandlers_IngestEvent(t *testing.T) {
	env := setupTestApp(t)
	body := []byte(`{"id":"evt_1","type":"invoice.paid","data":{"amount":1200}}`)
	signature := ingest.Sign(webhookSecret, body)

	status, ack := env.do(t, eventRequest("acme", body, signature))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "accepted", ack["status"])

	status, ack = env.do(t, eventRequest("acme", body, signature))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "duplicate", ack["status"])

	env.manager.Wait()

	status, runs := env.do(t, httptest.NewRequest(http.MethodGet, "/workflows/on-paid/runs", nil))
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 1.0, runs["total_count"], 0)
}

func TestAPIHandlers_IngestEventKeepsTenantAfterRequest(t *testing.T) {
	env := setupTestApp(t)
	body := []byte(`{"id":"evt_held","type":"invoice.held","data":{}}`)

	status, ack := env.do(t, eventRequest("acme", body, ingest.Sign(webhookSecret, body)))
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "accepted", ack["status"])

	// Later requests reuse the buffers the first path was parsed from.
	for range 5 {
		status, _ = env.do(t, eventRequest("zzzz", body, ingest.Sign(webhookSecret, body)))
		require.Equal(t, http.StatusBadRequest, status)
	}

	close(env.gate.open)
	env.manager.Wait()

	status, runs := env.do(t, httptest.NewRequest(http.MethodGet, "/workflows/slow/runs", nil))
	require.Equal(t, http.StatusOK, status)
	require.InDelta(t, 1.0, runs["total_count"], 0)

	run := runs["runs"].([]any)[0].(map[string]any)
	assert.Equal(t, "acme", run["tenant_id"])
	assert.Equal(t, string(models.RunStatusSucceeded), run["status"])
}

func TestAPIHandlers_IngestEventRejections(t *testing.T) {
	body := []byte(`{"id":"evt_2","type":"invoice.paid","data":{}}`)

	tests := []struct {
		name           string
		tenant         string
		body           []byte
		signature      string
		expectedStatus int
	}{
		{name: "bad signature", tenant: "acme", body: body, signature: ingest.Sign("wrong", body), expectedStatus: http.StatusBadRequest},
		{name: "missing signature", tenant: "acme", body: body, expectedStatus: http.StatusBadRequest},
		{name: "unknown tenant", tenant: "globex", body: body, signature: ingest.Sign(webhookSecret, body), expectedStatus: http.StatusBadRequest},
		{
			name:           "malformed envelope",
			tenant:         "acme",
			body:           []byte(`{"type":"invoice.paid"}`),
			signature:      ingest.Sign(webhookSecret, []byte(`{"type":"invoice.paid"}`)),
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestApp(t)

			status, problem := env.do(t, eventRequest(tt.tenant, tt.body, tt.signature))
			assert.Equal(t, tt.expectedStatus, status)
			assert.Equal(t, "event rejected", problem["detail"])
			assert.NotContains(t, problem, "error")
		})
	}
}

func TestAPIHandlers_Workflows(t *testing.T) {
	env := setupTestApp(t)

	status, body := env.do(t, httptest.NewRequest(http.MethodGet, "/workflows", nil))
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 2.0, body["total_count"], 0)

	workflows := body["workflows"].([]any)
	assert.Equal(t, "on-paid", workflows[0].(map[string]any)["id"])

	status, body = env.do(t, httptest.NewRequest(http.MethodGet, "/workflows/slow", nil))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "hold", body["start_step"])

	status, body = env.do(t, httptest.NewRequest(http.MethodGet, "/workflows/missing", nil))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "workflow not found", body["detail"])
}

func TestAPIHandlers_InvokeAndInspect(t *testing.T) {
	env := setupTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/workflows/on-paid/runs",
		bytes.NewBufferString(`{"tenant_id":"acme","data":{"amount":5}}`))
	req.Header.Set("Content-Type", "application/json")

	status, accepted := env.do(t, req)
	require.Equal(t, http.StatusAccepted, status)

	runID, _ := accepted["run_id"].(string)
	require.NotEmpty(t, runID)

	env.manager.Wait()

	status, run := env.do(t, httptest.NewRequest(http.MethodGet, "/runs/"+runID, nil))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(models.RunStatusSucceeded), run["status"])
	assert.Equal(t, "acme", run["tenant_id"])

	status, _ = env.do(t, httptest.NewRequest(http.MethodGet, "/runs/unknown-run", nil))
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = env.do(t, httptest.NewRequest(http.MethodPost, "/workflows/missing/runs", nil))
	assert.Equal(t, http.StatusNotFound, status)

	bad := httptest.NewRequest(http.MethodPost, "/workflows/on-paid/runs", bytes.NewBufferString(`{`))
	bad.Header.Set("Content-Type", "application/json")

	status, _ = env.do(t, bad)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_CancelRun(t *testing.T) {
	env := setupTestApp(t)

	status, accepted := env.do(t, httptest.NewRequest(http.MethodPost, "/workflows/slow/runs", nil))
	require.Equal(t, http.StatusAccepted, status)

	runID := accepted["run_id"].(string)

	require.Eventually(t, func() bool { return env.manager.Running(runID) }, time.Second, 5*time.Millisecond)

	status, _ = env.do(t, httptest.NewRequest(http.MethodPost, "/runs/"+runID+"/cancel", nil))
	assert.Equal(t, http.StatusAccepted, status)

	close(env.gate.open)
	env.manager.Wait()

	status, run := env.do(t, httptest.NewRequest(http.MethodGet, "/runs/"+runID, nil))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(models.RunStatusFailed), run["status"])
	assert.Equal(t, string(models.FailureCancelled), run["failure_reason"])

	status, problem := env.do(t, httptest.NewRequest(http.MethodPost, "/runs/"+runID+"/cancel", nil))
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, problem["detail"], "Failed")

	status, _ = env.do(t, httptest.NewRequest(http.MethodPost, "/runs/unknown-run/cancel", nil))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	env := setupTestApp(t)

	status, body := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
}
