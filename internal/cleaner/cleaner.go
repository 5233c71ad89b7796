package cleaner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"time"

	"github.com/mattjoyce/urlclean/internal/cache"
)

const defaultHTTPTimeout = 10 * time.Second

// JobContext carries per-job (or per-batch) variables that rules may read.
type JobContext struct {
	Vars map[string]string `json:"vars,omitempty"`
}

// Cleaner owns a base configuration plus the collaborators network rules need.
type Cleaner struct {
	config *Config
	cache  *cache.Store
	client *http.Client
}

// Option configures a Cleaner.
type Option func(*Cleaner)

// WithCache sets the store used to remember network lookups.
func WithCache(store *cache.Store) Option {
	return func(c *Cleaner) { c.cache = store }
}

// WithHTTPClient overrides the client used by expand_redirect.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Cleaner) { c.client = client }
}

// New creates a Cleaner for cfg.
func New(cfg *Config, opts ...Option) *Cleaner {
	c := &Cleaner{
		config: cfg,
		client: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the base configuration.
func (c *Cleaner) Config() *Config { return c.config }

// Snapshot applies diff to a copy of the base configuration and returns the
// read-only view shared by every job of one batch.
func (c *Cleaner) Snapshot(diff *ParamsDiff, batch JobContext) *Snapshot {
	return &Snapshot{
		config: c.config.WithParamsDiff(diff),
		batch:  batch,
		cache:  c.cache,
		client: c.client,
	}
}

// Snapshot is safe for concurrent use; nothing in it is mutated after creation.
type Snapshot struct {
	config *Config
	batch  JobContext
	cache  *cache.Store
	client *http.Client
}

// Config returns the post-diff configuration.
func (s *Snapshot) Config() *Config { return s.config }

// Job is one URL ready to be cleaned.
type Job struct {
	URL     *url.URL
	Context JobContext

	snap *Snapshot
}

type jobObject struct {
	URL     *string     `json:"url"`
	Context *JobContext `json:"context"`
}

// Build parses a job descriptor: either a JSON string holding the URL, or an
// object {"url": "...", "context": {"vars": {...}}}.
func (s *Snapshot) Build(descriptor json.RawMessage) (*Job, error) {
	raw := bytes.TrimSpace(descriptor)
	if len(raw) == 0 {
		return nil, &BuildError{Err: ErrInvalidDescriptor}
	}

	var (
		rawURL string
		jobCtx JobContext
	)
	switch raw[0] {
	case '"':
		if err := json.Unmarshal(raw, &rawURL); err != nil {
			return nil, &BuildError{Err: fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)}
		}
	case '{':
		var obj jobObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, &BuildError{Err: fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)}
		}
		if obj.URL == nil {
			return nil, &BuildError{Err: ErrMissingURL}
		}
		rawURL = *obj.URL
		if obj.Context != nil {
			jobCtx = *obj.Context
		}
	default:
		return nil, &BuildError{Err: fmt.Errorf("%w: expected string or object", ErrInvalidDescriptor)}
	}

	u, err := parseAbsolute(rawURL)
	if err != nil {
		return nil, &BuildError{Err: err}
	}

	return &Job{
		URL:     u,
		Context: JobContext{Vars: mergeVars(s.batch.Vars, jobCtx.Vars)},
		snap:    s,
	}, nil
}

// Run applies every matching rule in order and returns the cleaned URL.
// j.URL is not modified.
func (j *Job) Run(ctx context.Context) (*url.URL, error) {
	u := cloneURL(j.URL)

	for i := range j.snap.config.Rules {
		rule := &j.snap.config.Rules[i]
		if !rule.When.matches(u, j) {
			continue
		}
		for k := range rule.Do {
			next, err := j.apply(ctx, &rule.Do[k], u)
			if err != nil {
				return nil, &RunError{Rule: rule.Name, Err: err}
			}
			u = next
		}
	}
	return u, nil
}

// lookupVar resolves name against the job context first, then config params.
func (j *Job) lookupVar(name string) (string, bool) {
	if v, ok := j.Context.Vars[name]; ok {
		return v, true
	}
	v, ok := j.snap.config.Params.Vars[name]
	return v, ok
}

func parseAbsolute(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("%w: %q", ErrRelativeURL, raw)
	}
	return u, nil
}

// cloneURL copies u. Userinfo is immutable so sharing it is fine.
func cloneURL(u *url.URL) *url.URL {
	out := *u
	return &out
}

func mergeVars(base, over map[string]string) map[string]string {
	if len(base) == 0 && len(over) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(over))
	maps.Copy(out, base)
	maps.Copy(out, over)
	return out
}
