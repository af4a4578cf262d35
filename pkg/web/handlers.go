// Package web provides the HTTP API: event ingestion, run inspection, manual
// invocation and cancellation.
package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/packflow/pkg/ingest"
	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/persistence"
	"github.com/dukex/packflow/pkg/registry"
	"github.com/dukex/packflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/utils/v2"
)

type APIHandlers struct {
	logger      *slog.Logger
	workflows   *workflow.Repository
	manager     *workflow.Manager
	gateway     *ingest.Gateway
	persistence persistence.Persistence
	registry    *registry.Registry
	validator   *validator.Validate
}

func NewAPIHandlers(
	logger *slog.Logger,
	workflows *workflow.Repository,
	manager *workflow.Manager,
	gateway *ingest.Gateway,
	persistence persistence.Persistence,
	registry *registry.Registry,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		logger:      logger.With("module", "web"),
		workflows:   workflows,
		manager:     manager,
		gateway:     gateway,
		persistence: persistence,
		registry:    registry,
		validator:   validator,
	}
}

// IngestEvent accepts a signed event for the tenant in the path. The body is
// verified byte for byte, so it is read raw and never re-encoded.
func (h *APIHandlers) IngestEvent(c fiber.Ctx) error {
	// Runs keep the tenant after the request buffer is reused.
	tenantID := utils.CopyString(c.Params("tenant"))
	body := append([]byte(nil), c.Body()...)

	result, err := h.gateway.Ingest(c.Context(), tenantID, body, func(name string) string {
		return c.Get(name)
	})
	if err != nil {
		if ingest.IsClientError(err) {
			return eventRejected(c)
		}

		return eventFailed(c)
	}

	status := "accepted"
	if result.Duplicate {
		status = "duplicate"
	}

	return c.JSON(EventAcknowledgement{Status: status})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	plans := h.workflows.FetchAll()

	summaries := make([]WorkflowSummary, 0, len(plans))
	for _, plan := range plans {
		summaries = append(summaries, SummarizeWorkflow(plan))
	}

	return c.JSON(fiber.Map{
		"workflows":   summaries,
		"total_count": len(summaries),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	plan, err := h.workflows.FetchByID(c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(plan.Workflow)
}

// InvokeWorkflow starts a run directly. The run continues after the response.
func (h *APIHandlers) InvokeWorkflow(c fiber.Ctx) error {
	var req InvokeWorkflowRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflowID := utils.CopyString(c.Params("id"))

	run, err := h.manager.Invoke(c.Context(), workflowID, req.TenantID, req.Data)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(RunAccepted{
		RunID:      run.ID,
		WorkflowID: workflowID,
		Status:     models.RunStatusPending,
	})
}

func (h *APIHandlers) GetWorkflowRuns(c fiber.Ctx) error {
	id := c.Params("id")

	if _, err := h.workflows.FetchByID(id); err != nil {
		return handleEngineError(c, err)
	}

	runs, err := h.persistence.RunRepository().RunsByWorkflow(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"runs":        runs,
		"total_count": len(runs),
	})
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	run, err := h.persistence.RunRepository().RunByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(run)
}

// CancelRun stops a running run before its next step. Finished runs conflict.
func (h *APIHandlers) CancelRun(c fiber.Ctx) error {
	id := c.Params("id")

	if err := h.manager.Cancel(id); err != nil {
		run, loadErr := h.persistence.RunRepository().RunByID(c.Context(), id)
		if loadErr != nil {
			return handleEngineError(c, loadErr)
		}

		return conflict(c, "run is "+string(run.Status)+" and cannot be cancelled")
	}

	h.logger.InfoContext(c.Context(), "Run cancellation requested", "run_id", id)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"run_id": id,
		"status": "cancelling",
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck := "Run ledger is healthy"
	repOk := true

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		repositoryCheck = "Run ledger is unhealthy: " + err.Error()
		repOk = false
	}

	status := "unhealthy"
	message := "Packflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Packflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
			"workflows":  len(h.workflows.FetchAll()),
			"actions":    h.registry.ActionTypes(),
		},
		"timestamp": time.Now().UTC(),
	})
}
