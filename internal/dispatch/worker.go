package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// worker owns one inbox/outbox pair for the lifetime of a batch.
type worker struct {
	slot   int
	engine Engine
	inbox  <-chan json.RawMessage
	outbox chan<- JobResult
	logger *slog.Logger
}

// run handles descriptors in arrival order until the inbox is closed and
// drained, then closes the outbox.
func (w *worker) run(ctx context.Context) error {
	defer close(w.outbox)

	for descriptor := range w.inbox {
		res := w.process(ctx, descriptor)
		select {
		case w.outbox <- res:
		default:
			return fmt.Errorf("%w: outbox %d full", ErrBrokenInvariant, w.slot)
		}
	}
	return nil
}

// process builds and runs one job. A panic in the engine is contained here
// and reported as the failure kind of the phase that panicked.
func (w *worker) process(ctx context.Context, descriptor json.RawMessage) (res JobResult) {
	phase := "build"
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("job panicked", "phase", phase, "panic", r, "stack", string(debug.Stack()))
			outcome := OutcomeBuildFailed
			if phase == "run" {
				outcome = OutcomeRunFailed
			}
			res = JobResult{Outcome: outcome, Err: &PanicError{Phase: phase, Value: r}}
		}
	}()

	job, err := w.engine.Build(descriptor)
	if err != nil {
		w.logger.Debug("job build failed", "error", err)
		return JobResult{Outcome: OutcomeBuildFailed, Err: err}
	}

	phase = "run"
	value, err := job.Run(ctx)
	if err != nil {
		w.logger.Debug("job run failed", "error", err)
		return JobResult{Outcome: OutcomeRunFailed, Err: err}
	}
	return JobResult{Outcome: OutcomeSucceeded, Value: value}
}
