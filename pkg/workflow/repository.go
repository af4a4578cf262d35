package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/registry"
)

// Repository is the catalog of compiled workflows loaded from packs.
type Repository struct {
	mu    sync.RWMutex
	plans map[string]*Plan
}

func NewRepository() *Repository {
	return &Repository{plans: map[string]*Plan{}}
}

// Load compiles every workflow and adds the ones that compile. All problems
// are reported together; nothing is added when any workflow is invalid.
func (r *Repository) Load(ctx context.Context, reg *registry.Registry, workflows []*models.Workflow) error {
	plans := make([]*Plan, 0, len(workflows))

	var errs []error

	for _, wf := range workflows {
		plan, err := Compile(ctx, wf, reg)
		if err != nil {
			errs = append(errs, fmt.Errorf("workflow %s: %w", wf.ID, err))

			continue
		}

		plans = append(plans, plan)
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, plan := range plans {
		if _, exists := r.plans[plan.ID()]; exists {
			errs = append(errs, models.NewValidationError(plan.ID(), "workflow id already loaded"))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	for _, plan := range plans {
		r.plans[plan.ID()] = plan
	}

	return nil
}

// Add registers a compiled plan.
func (r *Repository) Add(plan *Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plans[plan.ID()]; exists {
		return models.NewValidationError(plan.ID(), "workflow id already loaded")
	}

	r.plans[plan.ID()] = plan

	return nil
}

// FetchAll returns every plan ordered by workflow ID.
func (r *Repository) FetchAll() []*Plan {
	r.mu.RLock()
	defer r.mu.RUnlock()

	plans := make([]*Plan, 0, len(r.plans))
	for _, plan := range r.plans {
		plans = append(plans, plan)
	}

	sort.Slice(plans, func(i, j int) bool { return plans[i].ID() < plans[j].ID() })

	return plans
}

func (r *Repository) FetchByID(id string) (*Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	plan, ok := r.plans[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrWorkflowNotFound, id)
	}

	return plan, nil
}
