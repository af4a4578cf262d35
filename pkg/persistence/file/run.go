package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/persistence"
)

// RunRepository stores each run as runs/<id>.json under the root.
type RunRepository struct {
	root string
	mu   sync.RWMutex
}

// NewRunRepository creates a new run repository.
func NewRunRepository(root string) *RunRepository {
	return &RunRepository{root: root}
}

// validateRunID validates that the run ID is safe for file operations.
func validateRunID(runID string) error {
	if runID == "" || strings.Contains(runID, "..") || strings.ContainsAny(runID, `/\`) {
		return persistence.ErrInvalidRunID
	}

	return nil
}

func (r *RunRepository) dir() string {
	return filepath.Join(r.root, "runs")
}

// SaveRun writes the run, replacing any earlier snapshot. The file is written
// to a temporary name and renamed so readers never see a partial snapshot.
func (r *RunRepository) SaveRun(_ context.Context, run *models.WorkflowRun) error {
	if err := validateRunID(run.ID); err != nil {
		return persistence.NewRunError("SaveRun", run.ID, err)
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", run.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir(), 0o750); err != nil {
		return fmt.Errorf("failed to create runs directory: %w", err)
	}

	target := filepath.Join(r.dir(), run.ID+".json")
	tmp := target + ".tmp"

	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write run %s: %w", run.ID, err)
	}

	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("failed to write run %s: %w", run.ID, err)
	}

	return nil
}

// RunByID retrieves a run by its ID from the file system.
func (r *RunRepository) RunByID(_ context.Context, runID string) (*models.WorkflowRun, error) {
	if err := validateRunID(runID); err != nil {
		return nil, persistence.NewRunError("RunByID", runID, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.read(runID)
}

func (r *RunRepository) read(runID string) (*models.WorkflowRun, error) {
	data, err := os.ReadFile(filepath.Join(r.dir(), runID+".json")) // #nosec G304 -- runID is validated
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewRunError("RunByID", runID, persistence.ErrRunNotFound)
		}

		return nil, fmt.Errorf("failed to read run %s: %w", runID, err)
	}

	var run models.WorkflowRun

	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", runID, err)
	}

	return &run, nil
}

// RunsByWorkflow retrieves the runs of a workflow, newest first.
func (r *RunRepository) RunsByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := os.ReadDir(r.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.WorkflowRun{}, nil
		}

		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	runs := []*models.WorkflowRun{}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		run, err := r.read(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			// Skip invalid files
			continue
		}

		if run.WorkflowID == workflowID {
			runs = append(runs, run)
		}
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	return runs, nil
}
