package dispatch

import (
	"context"
	"encoding/json"

	"github.com/mattjoyce/urlclean/internal/cleaner"
)

// Preparer turns a batch's configuration delta into the Engine every worker
// of that batch shares. Prepare is called once per batch, before dispatch.
type Preparer interface {
	Prepare(diff *cleaner.ParamsDiff, batch cleaner.JobContext) (Engine, error)
}

// Engine builds runnable jobs from descriptors.
// Build must be safe for concurrent use and must not mutate shared state.
type Engine interface {
	Build(descriptor json.RawMessage) (Job, error)
}

// Job is one built unit of work.
type Job interface {
	Run(ctx context.Context) (string, error)
}

// CleanerPreparer adapts a cleaner.Cleaner to Preparer.
type CleanerPreparer struct {
	Cleaner *cleaner.Cleaner
}

func (p CleanerPreparer) Prepare(diff *cleaner.ParamsDiff, batch cleaner.JobContext) (Engine, error) {
	return snapshotEngine{snap: p.Cleaner.Snapshot(diff, batch)}, nil
}

type snapshotEngine struct {
	snap *cleaner.Snapshot
}

func (e snapshotEngine) Build(descriptor json.RawMessage) (Job, error) {
	job, err := e.snap.Build(descriptor)
	if err != nil {
		return nil, err
	}
	return cleanerJob{job: job}, nil
}

type cleanerJob struct {
	job *cleaner.Job
}

func (j cleanerJob) Run(ctx context.Context) (string, error) {
	u, err := j.job.Run(ctx)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
