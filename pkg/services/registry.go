package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/dukex/packflow/pkg/protocol"
)

// Func is one callable service function.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Registry maps service and function names to implementations.
type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	services map[string]map[string]Func
}

var _ protocol.ServiceInvoker = (*Registry)(nil)

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger.With("module", "services"),
		services: map[string]map[string]Func{},
	}
}

// Register adds fn as service.function, replacing any earlier registration.
func (r *Registry) Register(service, function string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.services[service] == nil {
		r.services[service] = map[string]Func{}
	}

	r.services[service][function] = fn
}

// Functions returns the registered "service.function" names, sorted.
func (r *Registry) Functions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string

	for service, functions := range r.services {
		for function := range functions {
			names = append(names, service+"."+function)
		}
	}

	sort.Strings(names)

	return names
}

func (r *Registry) Invoke(ctx context.Context, service, function string, args map[string]any) (any, error) {
	r.mu.RLock()
	functions, ok := r.services[service]

	var fn Func
	if ok {
		fn = functions[function]
	}
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownService, service)
	}

	if fn == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownFunction, service, function)
	}

	r.logger.DebugContext(ctx, "Invoking service function", "service", service, "function", function)

	result, err := fn(ctx, args)
	if err != nil {
		var serviceErr *ServiceError
		if errors.As(err, &serviceErr) {
			return nil, err
		}

		return nil, &ServiceError{Service: service, Function: function, Err: err}
	}

	return result, nil
}
