package api

import (
	"encoding/json"

	"github.com/mattjoyce/urlclean/internal/cleaner"
)

// batchTraceHeader carries the trace id logged with a /clean batch.
const batchTraceHeader = "X-Batch-Trace"

// CleanRequest is the JSON body for POST /clean.
// "urls" is accepted as an alias of "jobs".
type CleanRequest struct {
	Jobs       []json.RawMessage   `json:"jobs,omitempty"`
	URLs       []json.RawMessage   `json:"urls,omitempty"`
	Context    cleaner.JobContext  `json:"context"`
	ParamsDiff *cleaner.ParamsDiff `json:"params_diff,omitempty"`
}

// CleanResponse is the body of every POST /clean reply. Exactly one of OK or
// Err is set: OK when the batch ran, Err when it could not run as a whole.
// The Ok/Err keys nest the same way at every level so clients can walk
// result.Ok.urls[i].Ok.Ok.
type CleanResponse struct {
	OK  *CleanSuccess  `json:"Ok,omitempty"`
	Err *ErrorResponse `json:"Err,omitempty"`
}

// CleanSuccess holds one entry per job, in job order.
type CleanSuccess struct {
	URLs []JobOutput `json:"urls"`
}

// JobOutput is {"Ok": ...} when the job was built, or {"Err": ...} when the
// descriptor could not be turned into a job.
type JobOutput struct {
	OK  *RunOutput `json:"Ok,omitempty"`
	Err *JobError  `json:"Err,omitempty"`
}

// RunOutput is {"Ok": "<url>"} or {"Err": ...} for a job that was built.
type RunOutput struct {
	OK  *string   `json:"Ok,omitempty"`
	Err *JobError `json:"Err,omitempty"`
}

// JobError describes a failed job.
type JobError struct {
	Message string `json:"message"`
	Variant string `json:"variant"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Status int    `json:"status"`
	Reason string `json:"reason"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status           string `json:"status"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	Workers          int    `json:"workers"`
	Batches          uint64 `json:"batches"`
	RulesFingerprint string `json:"rules_fingerprint"`
	CacheEntries     *int   `json:"cache_entries,omitempty"`
}
