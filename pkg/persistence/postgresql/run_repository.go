package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/persistence"
)

// RunRepository handles run-related database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

const selectRuns = `
	SELECT id, workflow_id, trigger_id, tenant_id, current_step, status, context,
		   iterations, error_message, failure_reason, started_at, ended_at
	FROM workflow_runs
`

// SaveRun upserts a run snapshot.
func (r *RunRepository) SaveRun(ctx context.Context, run *models.WorkflowRun) error {
	contextJSON, err := json.Marshal(run.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal run context: %w", err)
	}

	query := `
		INSERT INTO workflow_runs (
			id, workflow_id, trigger_id, tenant_id, current_step, status, context,
			iterations, error_message, failure_reason, started_at, ended_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			current_step = EXCLUDED.current_step,
			status = EXCLUDED.status,
			context = EXCLUDED.context,
			iterations = EXCLUDED.iterations,
			error_message = EXCLUDED.error_message,
			failure_reason = EXCLUDED.failure_reason,
			ended_at = EXCLUDED.ended_at
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		run.WorkflowID,
		run.TriggerID,
		run.TenantID,
		run.CurrentStep,
		run.Status,
		contextJSON,
		run.Iterations,
		run.Error,
		run.FailureReason,
		run.StartedAt,
		run.EndedAt,
	)
	if err != nil {
		return persistence.NewRunError("SaveRun", run.ID, err)
	}

	return nil
}

// RunByID retrieves a run by its ID.
func (r *RunRepository) RunByID(ctx context.Context, runID string) (*models.WorkflowRun, error) {
	row := r.db.QueryRowContext(ctx, selectRuns+" WHERE id = $1", runID)

	run, err := r.scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError("RunByID", runID, persistence.ErrRunNotFound)
		}

		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	return run, nil
}

// RunsByWorkflow retrieves all runs of a workflow, newest first.
func (r *RunRepository) RunsByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowRun, error) {
	rows, err := r.db.QueryContext(ctx, selectRuns+" WHERE workflow_id = $1 ORDER BY started_at DESC", workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	runs := []*models.WorkflowRun{}

	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

func (r *RunRepository) scanRun(scanner interface {
	Scan(dest ...any) error
}) (*models.WorkflowRun, error) {
	var (
		run                                            models.WorkflowRun
		contextJSON                                    []byte
		triggerID, tenantID, currentStep, errorMessage sql.NullString
		failureReason                                  sql.NullString
		endedAt                                        sql.NullTime
	)

	err := scanner.Scan(
		&run.ID,
		&run.WorkflowID,
		&triggerID,
		&tenantID,
		&currentStep,
		&run.Status,
		&contextJSON,
		&run.Iterations,
		&errorMessage,
		&failureReason,
		&run.StartedAt,
		&endedAt,
	)
	if err != nil {
		return nil, err
	}

	run.TriggerID = triggerID.String
	run.TenantID = tenantID.String
	run.CurrentStep = currentStep.String
	run.Error = errorMessage.String
	run.FailureReason = models.FailureReason(failureReason.String)

	if endedAt.Valid {
		ended := endedAt.Time
		run.EndedAt = &ended
	}

	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &run.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run context: %w", err)
		}
	}

	return &run, nil
}
