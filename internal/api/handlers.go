package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/urlclean/internal/cleaner"
	"github.com/mattjoyce/urlclean/internal/dispatch"
)

const indexText = `urlclean: removes tracking junk from URLs and unwraps redirectors.

POST /clean with {"jobs": ["https://..."]} to clean URLs in bulk.
GET /openapi.json describes every endpoint.
`

// handleIndex handles GET /.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(indexText))
}

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:           "ok",
		UptimeSeconds:    int64(time.Since(s.startedAt).Seconds()),
		Workers:          s.runner.Width(),
		Batches:          s.runner.Batches(),
		RulesFingerprint: s.rules.Fingerprint(),
	}
	if s.cache != nil {
		n, err := s.cache.Len(r.Context())
		if err != nil {
			s.logger.Warn("failed to count cache entries", "error", err)
		} else {
			resp.CacheEntries = &n
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleOpenAPI handles GET /openapi.json.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.config.MaxJSONSize))
}

// handleClean handles POST /clean.
// The response is all-or-nothing: either one entry per job, or an Err body.
func (s *Server) handleClean(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxJSONSize)

	var req CleanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeCleanError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.writeCleanError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	jobs := req.Jobs
	if len(req.URLs) > 0 {
		if len(jobs) > 0 {
			s.writeCleanError(w, http.StatusBadRequest, `use either "jobs" or "urls", not both`)
			return
		}
		jobs = req.URLs
	}

	trace := uuid.NewString()
	w.Header().Set(batchTraceHeader, trace)
	ctx := dispatch.WithTrace(r.Context(), trace)

	results, err := s.runner.Run(ctx, dispatch.BulkJob{
		Jobs:       jobs,
		ParamsDiff: req.ParamsDiff,
		Context:    req.Context,
	})
	if err != nil {
		s.logger.Error("batch failed", "trace", trace, "jobs", len(jobs), "error", err)
		s.writeCleanError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(results) != len(jobs) {
		s.logger.Error("batch returned wrong result count", "trace", trace, "jobs", len(jobs), "results", len(results))
		s.writeCleanError(w, http.StatusInternalServerError,
			fmt.Sprintf("batch returned %d results for %d jobs", len(results), len(jobs)))
		return
	}

	success := &CleanSuccess{URLs: make([]JobOutput, len(results))}
	for i, res := range results {
		success.URLs[i] = toJobOutput(res)
	}
	respondJSON(w, http.StatusOK, CleanResponse{OK: success})
}

func toJobOutput(res dispatch.JobResult) JobOutput {
	switch res.Outcome {
	case dispatch.OutcomeSucceeded:
		value := res.Value
		return JobOutput{OK: &RunOutput{OK: &value}}
	case dispatch.OutcomeBuildFailed:
		return JobOutput{Err: newJobError("MakeJobError", res.Err)}
	default:
		return JobOutput{OK: &RunOutput{Err: newJobError("DoJobError", res.Err)}}
	}
}

// errorVariants names the sentinel causes reported in JobError.Variant.
var errorVariants = []struct {
	err  error
	name string
}{
	{cleaner.ErrInvalidDescriptor, "InvalidDescriptor"},
	{cleaner.ErrMissingURL, "MissingURL"},
	{cleaner.ErrRelativeURL, "RelativeURL"},
	{cleaner.ErrMissingQueryParam, "MissingQueryParam"},
	{cleaner.ErrRuleFailed, "RuleFailed"},
	{cleaner.ErrInvalidHost, "InvalidHost"},
}

// newJobError renders err as kind(Cause), e.g. DoJobError(RuleFailed).
func newJobError(kind string, err error) *JobError {
	if err == nil {
		return &JobError{Message: "unknown error", Variant: kind}
	}

	variant := kind
	var panicErr *dispatch.PanicError
	if errors.As(err, &panicErr) {
		variant = kind + "(Panic)"
	} else {
		for _, v := range errorVariants {
			if errors.Is(err, v.err) {
				variant = kind + "(" + v.name + ")"
				break
			}
		}
	}
	return &JobError{Message: err.Error(), Variant: variant}
}

// handleMaxJSONSize handles GET /get-max-json-size.
func (s *Server) handleMaxJSONSize(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(strconv.FormatInt(s.config.MaxJSONSize, 10)))
}

// handleGetConfig handles GET /get-config.
// The ETag is the rules fingerprint, so clients can revalidate cheaply.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	etag := strconv.Quote(s.rules.Fingerprint())
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(s.rules.Raw())
}

// handleHostParts handles GET /host-parts?host=...
func (s *Server) handleHostParts(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")
	parts, err := cleaner.ParseHostParts(host)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, parts)
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeCleanError writes a /clean failure as {"Err": {status, reason}}.
func (s *Server) writeCleanError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, CleanResponse{Err: &ErrorResponse{Status: statusCode, Reason: message}})
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Status: statusCode, Reason: message})
}
