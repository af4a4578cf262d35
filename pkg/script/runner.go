// Package script runs ExecuteScript sources with expr-lang. Scripts are
// expressions evaluated against the run subject; the store is reachable only
// through the functions bound into the environment.
package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/protocol"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// DefaultMaxNodes bounds the size of a compiled script.
const DefaultMaxNodes = 10_000

// ErrScriptFailed wraps errors raised while a script runs.
var ErrScriptFailed = errors.New("script failed")

// Runner implements protocol.ScriptRunner.
type Runner struct {
	logger   *slog.Logger
	maxNodes uint
}

var _ protocol.ScriptRunner = (*Runner)(nil)

type Option func(*Runner)

func WithMaxNodes(n uint) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxNodes = n
		}
	}
}

func NewRunner(logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		logger:   logger.With("module", "script"),
		maxNodes: DefaultMaxNodes,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Compile checks that source is a valid script.
func (r *Runner) Compile(source string) error {
	_, err := r.compile(source)

	return err
}

func (r *Runner) compile(source string) (*vm.Program, error) {
	program, err := expr.Compile(source,
		expr.Env(bind(context.Background(), nil)),
		expr.AllowUndefinedVariables(),
		expr.MaxNodes(r.maxNodes),
	)
	if err != nil {
		return nil, models.NewValidationError("script", "script does not compile: %v", err)
	}

	return program, nil
}

// Run evaluates source with input as its variables. Store functions run with
// ctx, and Run returns as soon as ctx is done.
func (r *Runner) Run(ctx context.Context, source string, input map[string]any, db protocol.DataStore) (any, error) {
	program, err := r.compile(source)
	if err != nil {
		return nil, err
	}

	env := make(map[string]any, len(input)+len(storeFunctions))
	maps.Copy(env, input)
	maps.Copy(env, bind(ctx, db))

	type outcome struct {
		value any
		err   error
	}

	done := make(chan outcome, 1)

	go func() {
		value, err := vm.Run(program, env)
		done <- outcome{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		if out.err != nil {
			r.logger.DebugContext(ctx, "Script failed", "error", out.err)

			return nil, fmt.Errorf("%w: %w", ErrScriptFailed, out.err)
		}

		return out.value, nil
	}
}
