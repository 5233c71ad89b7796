package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mattjoyce/urlclean/internal/cleaner"
)

// ErrBrokenInvariant means the batch topology failed structurally: a channel
// peer went away outside its normal shutdown path. The batch result is void.
var ErrBrokenInvariant = errors.New("batch topology invariant broken")

// BulkJob is one caller-submitted batch.
type BulkJob struct {
	// Jobs are opaque descriptors, processed in this order.
	Jobs []json.RawMessage
	// ParamsDiff is applied once, before dispatch, to build the shared snapshot.
	ParamsDiff *cleaner.ParamsDiff
	// Context holds batch-wide job variables.
	Context cleaner.JobContext
}

// Outcome classifies a JobResult.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeBuildFailed
	OutcomeRunFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeBuildFailed:
		return "build_failed"
	case OutcomeRunFailed:
		return "run_failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// JobResult is the outcome of one job. Value is set on success, Err otherwise.
type JobResult struct {
	Outcome Outcome
	Value   string
	Err     error
}

// OK reports whether the job succeeded.
func (r JobResult) OK() bool { return r.Outcome == OutcomeSucceeded }

// PanicError wraps a value recovered from a panicking engine call.
type PanicError struct {
	Phase string // "build" or "run"
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic during %s: %v", e.Phase, e.Value)
}
