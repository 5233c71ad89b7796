package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/urlclean/internal/log"
)

// Pool runs batches on a fixed number of worker slots.
type Pool struct {
	width    int
	preparer Preparer

	batches atomic.Uint64
}

// New creates a Pool. A width <= 0 resolves to runtime.NumCPU().
func New(width int, preparer Preparer) *Pool {
	if width <= 0 {
		width = runtime.NumCPU()
	}
	return &Pool{
		width:    width,
		preparer: preparer,
	}
}

// Width returns the number of worker slots used for each batch.
func (p *Pool) Width() int { return p.width }

// Batches returns how many batches have been started.
func (p *Pool) Batches() uint64 { return p.batches.Load() }

type traceKey struct{}

// WithTrace attaches a trace id that Run logs alongside the batch id.
func WithTrace(ctx context.Context, trace string) context.Context {
	return context.WithValue(ctx, traceKey{}, trace)
}

// TraceFromContext returns the trace id set by WithTrace, or "".
func TraceFromContext(ctx context.Context) string {
	trace, _ := ctx.Value(traceKey{}).(string)
	return trace
}

// Run processes bulk and returns exactly one result per job, in job order.
// It returns an error only when the batch as a whole failed; per-job failures
// are reported in the results. Run never returns a partial result list.
//
// Run does not cancel or time out jobs. ctx is handed to each job unchanged.
func (p *Pool) Run(ctx context.Context, bulk BulkJob) ([]JobResult, error) {
	id := p.batches.Add(1)
	trace := TraceFromContext(ctx)
	if trace == "" {
		trace = uuid.NewString()
	}
	n, width := len(bulk.Jobs), p.width
	logger := log.WithBatch(id).With("component", "dispatch", "trace", trace, "jobs", n, "workers", width)
	start := time.Now()
	logger.Debug("batch started")

	engine, err := p.preparer.Prepare(bulk.ParamsDiff, bulk.Context)
	if err != nil {
		logger.Error("failed to prepare batch", "error", err)
		return nil, fmt.Errorf("prepare batch %d: %w", id, err)
	}

	inboxes := make([]chan json.RawMessage, width)
	outboxes := make([]chan JobResult, width)
	for k := range width {
		load := slotLoad(n, width, k)
		inboxes[k] = make(chan json.RawMessage, load)
		outboxes[k] = make(chan JobResult, load)
	}

	var (
		g       errgroup.Group
		results []JobResult
	)
	g.Go(guard("dispatcher", func() error {
		return dispatchJobs(bulk.Jobs, inboxes)
	}))
	for k := range width {
		w := &worker{
			slot:   k,
			engine: engine,
			inbox:  inboxes[k],
			outbox: outboxes[k],
			logger: logger.With("slot", k),
		}
		g.Go(guard(fmt.Sprintf("worker %d", k), func() error {
			return w.run(ctx)
		}))
	}
	g.Go(guard("collector", func() error {
		var err error
		results, err = collect(outboxes, n)
		return err
	}))

	if err := g.Wait(); err != nil {
		logger.Error("batch failed", "error", err)
		return nil, fmt.Errorf("batch %d: %w", id, err)
	}

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	logger.Info("batch finished", "failed", failed, "duration_ms", time.Since(start).Milliseconds())
	return results, nil
}

// dispatchJobs sends job i to inbox i mod W, then closes every inbox.
// Inboxes are sized to their exact load, so a send that would block means the
// topology is wrong.
func dispatchJobs(jobs []json.RawMessage, inboxes []chan json.RawMessage) error {
	defer func() {
		for _, inbox := range inboxes {
			close(inbox)
		}
	}()

	width := len(inboxes)
	for i, descriptor := range jobs {
		slot := i % width
		select {
		case inboxes[slot] <- descriptor:
		default:
			return fmt.Errorf("%w: inbox %d full at job %d", ErrBrokenInvariant, slot, i)
		}
	}
	return nil
}

// slotLoad is how many of n jobs land on slot k of width slots.
func slotLoad(n, width, k int) int {
	return (n - k + width - 1) / width
}

// guard turns a panic escaping fn into ErrBrokenInvariant so the batch fails
// instead of the process.
func guard(role string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %s panicked: %v", ErrBrokenInvariant, role, r)
			}
		}()
		return fn()
	}
}
