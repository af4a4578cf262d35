// Package scheduler emits a tick occurrence at the start of every minute so
// the trigger matcher can fire scheduled triggers whose cron expression
// covers that minute.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/protocol"
	"github.com/robfig/cron/v3"
)

// EveryMinute is the default tick spec.
const EveryMinute = "* * * * *"

// ErrAlreadyStarted is returned by Start on a running scheduler.
var ErrAlreadyStarted = errors.New("scheduler already started")

// Scheduler is an occurrence source driven by robfig/cron.
type Scheduler struct {
	logger   *slog.Logger
	spec     string
	location *time.Location

	mu      sync.Mutex
	cron    *cron.Cron
	started bool
}

var _ protocol.OccurrenceSource = (*Scheduler)(nil)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSpec overrides the tick cadence.
func WithSpec(spec string) Option {
	return func(s *Scheduler) {
		s.spec = spec
	}
}

// WithLocation sets the time zone ticks and cron expressions are evaluated in.
func WithLocation(location *time.Location) Option {
	return func(s *Scheduler) {
		s.location = location
	}
}

func New(logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		logger:   logger.With("module", "scheduler"),
		spec:     EveryMinute,
		location: time.UTC,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start begins emitting ticks to callback until Stop is called or ctx ends.
func (s *Scheduler) Start(ctx context.Context, callback protocol.OccurrenceCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	c := cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(cronLogger{logger: s.logger}),
		cron.WithChain(cron.Recover(cronLogger{logger: s.logger})),
	)

	_, err := c.AddFunc(s.spec, func() {
		s.Tick(ctx, time.Now().In(s.location), callback)
	})
	if err != nil {
		return &models.ValidationError{Path: "scheduler", Message: "invalid tick spec", Err: err}
	}

	c.Start()

	s.cron = c
	s.started = true

	go func() {
		<-ctx.Done()

		if err := s.Stop(context.Background()); err != nil {
			s.logger.Error("Failed to stop scheduler", "error", err)
		}
	}()

	s.logger.InfoContext(ctx, "Scheduler started", "spec", s.spec, "location", s.location.String())

	return nil
}

// Tick delivers one tick occurrence for the minute containing at.
func (s *Scheduler) Tick(ctx context.Context, at time.Time, callback protocol.OccurrenceCallback) {
	occurrence := models.Occurrence{Tick: at.Truncate(time.Minute)}

	if err := callback(ctx, occurrence); err != nil {
		s.logger.ErrorContext(ctx, "Failed to dispatch tick", "tick", occurrence.Tick, "error", err)
	}
}

// Stop halts the scheduler and waits for a running tick to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	stopped := s.cron.Stop()

	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	s.started = false
	s.logger.Info("Scheduler stopped")

	return nil
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
