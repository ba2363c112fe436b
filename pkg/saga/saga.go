// Package saga runs a sequence of steps that span independently stored
// databases, undoing completed steps in reverse order when a later step
// fails.
//
// There is no durable saga log. If the process dies between a step and its
// compensation, or a compensation itself fails, the failure is logged
// with consistency_alarm=true and counted, and the orphaned state waits
// for manual repair.
package saga

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rhuss/exammaker/pkg/observability"
)

// DefaultUndoTimeout bounds the whole compensation phase.
const DefaultUndoTimeout = 10 * time.Second

// Step is one unit of work. Undo may be nil when the step has nothing to
// compensate, which is normal for the last step.
type Step struct {
	Name string
	Do   func(ctx context.Context) error
	Undo func(ctx context.Context) error
}

// Error describes a failed saga. It unwraps to the failure of the step
// that aborted the run, so callers can match store sentinels with
// errors.Is.
type Error struct {
	// Saga is the name of the saga that failed.
	Saga string

	// Step is the name of the step whose Do failed.
	Step string

	// Err is the error returned by that step.
	Err error

	// CompensationErrs holds the errors of Undo calls that failed, keyed
	// by step name in the order they ran.
	CompensationErrs []StepError
}

// StepError pairs a step name with its compensation error.
type StepError struct {
	Step string
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("saga %s: step %s: %v", e.Saga, e.Step, e.Err)
	if len(e.CompensationErrs) > 0 {
		msg += fmt.Sprintf(" (%d compensation(s) failed)", len(e.CompensationErrs))
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Compensated reports whether every completed step was undone.
func (e *Error) Compensated() bool { return len(e.CompensationErrs) == 0 }

// Saga runs steps under a name used in logs and metrics.
type Saga struct {
	name        string
	logger      *slog.Logger
	undoTimeout time.Duration
}

// Option configures a Saga.
type Option func(*Saga)

// WithUndoTimeout overrides DefaultUndoTimeout.
func WithUndoTimeout(d time.Duration) Option {
	return func(s *Saga) { s.undoTimeout = d }
}

// New creates a saga runner. A nil logger uses slog.Default().
func New(name string, logger *slog.Logger, opts ...Option) *Saga {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Saga{name: name, logger: logger, undoTimeout: DefaultUndoTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes steps in order. When step n fails, Undo runs for steps
// n-1 down to 1 and Run returns an *Error. Compensation runs on a context
// detached from ctx's cancellation so an aborted request still cleans up.
func (s *Saga) Run(ctx context.Context, steps ...Step) error {
	for i, step := range steps {
		err := step.Do(ctx)
		if err == nil {
			continue
		}

		s.logger.Debug("saga step failed",
			"saga", s.name, "step", step.Name, "error", err.Error())

		serr := &Error{Saga: s.name, Step: step.Name, Err: err}
		s.compensate(ctx, steps[:i], serr)

		outcome := "compensated"
		if !serr.Compensated() {
			outcome = "inconsistent"
		}
		observability.SagaRunsTotal.WithLabelValues(s.name, outcome).Inc()
		return serr
	}

	observability.SagaRunsTotal.WithLabelValues(s.name, "ok").Inc()
	return nil
}

func (s *Saga) compensate(ctx context.Context, done []Step, serr *Error) {
	if len(done) == 0 {
		return
	}

	undoCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.undoTimeout)
	defer cancel()

	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.Undo == nil {
			continue
		}

		observability.SagaCompensationsTotal.WithLabelValues(s.name, step.Name).Inc()

		if err := step.Undo(undoCtx); err != nil {
			serr.CompensationErrs = append(serr.CompensationErrs, StepError{Step: step.Name, Err: err})
			observability.SagaCompensationFailuresTotal.WithLabelValues(s.name, step.Name).Inc()
			s.logger.Error("saga compensation failed",
				"saga", s.name,
				"step", step.Name,
				"cause_step", serr.Step,
				"error", err.Error(),
				"consistency_alarm", true,
			)
			continue
		}

		s.logger.Info("saga step compensated",
			"saga", s.name, "step", step.Name, "cause_step", serr.Step)
	}
}

