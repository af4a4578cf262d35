// Package persistence provides the run ledger: storage of WorkflowRun records
// so failures and results can be inspected after the fact.
package persistence

import (
	"context"

	"github.com/dukex/packflow/pkg/models"
)

// RunRepository stores WorkflowRun snapshots. SaveRun is called after every
// transition, so implementations must upsert.
type RunRepository interface {
	SaveRun(ctx context.Context, run *models.WorkflowRun) error
	RunByID(ctx context.Context, id string) (*models.WorkflowRun, error)
	RunsByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowRun, error)
}

type Persistence interface {
	RunRepository() RunRepository
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
