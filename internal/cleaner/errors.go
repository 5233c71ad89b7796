package cleaner

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDescriptor means a job descriptor is neither a URL string nor a job object.
	ErrInvalidDescriptor = errors.New("invalid job descriptor")
	// ErrMissingURL means a job object has no url field.
	ErrMissingURL = errors.New("job has no url")
	// ErrRelativeURL means the job URL has no scheme.
	ErrRelativeURL = errors.New("url is not absolute")
	// ErrMissingQueryParam means an unwrap action found no value to unwrap.
	ErrMissingQueryParam = errors.New("query parameter not found")
	// ErrRuleFailed is returned by the fail action.
	ErrRuleFailed = errors.New("rule failed")
	// ErrInvalidHost means a host string is not a domain or IP address.
	ErrInvalidHost = errors.New("couldn't parse host")
)

// BuildError reports a descriptor that could not be turned into a job.
type BuildError struct {
	Err error
}

func (e *BuildError) Error() string { return "make job: " + e.Err.Error() }

func (e *BuildError) Unwrap() error { return e.Err }

// RunError reports a job that was built but failed while cleaning.
type RunError struct {
	Rule string
	Err  error
}

func (e *RunError) Error() string {
	if e.Rule == "" {
		return "do job: " + e.Err.Error()
	}
	return fmt.Sprintf("do job: rule %s: %v", e.Rule, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
