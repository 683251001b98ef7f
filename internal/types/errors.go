package types

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrMissingCredentials   = errors.New("missing catalog credentials")
	ErrUnsupportedPart      = errors.New("unsupported part")
	ErrUnsupportedGroup     = errors.New("unsupported group")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrNoMatch              = errors.New("no matching entries")
	ErrNotFound             = errors.New("not found")
	ErrTimeout              = errors.New("operation timed out")
	ErrLoginStuck           = errors.New("login panel did not close")
	ErrSearchInputMissing   = errors.New("search input not found")
	ErrSearchInteractFailed = errors.New("search interaction failed")
	ErrNavigationFailed     = errors.New("catalog navigation failed")
	ErrElementNotFound      = errors.New("element not found")
	ErrCacheMiss            = errors.New("cache miss")
	ErrChallenged           = errors.New("request challenged by anti-bot protection")
)

// Process exit codes reported by the CLI.
const (
	ExitOK                = 0
	ExitUnexpected        = 1
	ExitInvalidInput      = 2
	ExitNoMatch           = 3
	ExitUnsupported       = 4
	ExitTimeout           = 5
	ExitLoginStuck        = 10
	ExitSearchInput       = 11
	ExitSearchInteract    = 12
	ExitNavigationFailure = 13
)

// ExitCode maps an error chain to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrLoginStuck):
		return ExitLoginStuck
	case errors.Is(err, ErrSearchInputMissing):
		return ExitSearchInput
	case errors.Is(err, ErrSearchInteractFailed):
		return ExitSearchInteract
	case errors.Is(err, ErrNavigationFailed):
		return ExitNavigationFailure
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrMissingCredentials):
		return ExitInvalidInput
	case errors.Is(err, ErrUnsupportedPart), errors.Is(err, ErrUnsupportedGroup), errors.Is(err, ErrUnsupportedOperation):
		return ExitUnsupported
	case errors.Is(err, ErrNoMatch), errors.Is(err, ErrNotFound):
		return ExitNoMatch
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ExitTimeout
	default:
		return ExitUnexpected
	}
}

// ActionError wraps a failed browser step.
type ActionError struct {
	Step     string
	Selector string
	Err      error
}

func (e *ActionError) Error() string {
	if e.Selector != "" {
		return fmt.Sprintf("%s (selector=%q): %v", e.Step, e.Selector, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// ScrapeError wraps a failed catalog flow.
type ScrapeError struct {
	Site      string
	Operation string
	Err       error
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Site, e.Operation, e.Err)
}

func (e *ScrapeError) Unwrap() error { return e.Err }

// FetchError wraps errors that occur during plain HTTP fetching.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
	RetryAfter time.Duration
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur while archiving results.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PipelineError wraps errors that occur in the row-processing pipeline.
type PipelineError struct {
	Stage string
	Row   *PartRow
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// ParseError wraps errors that occur while reading a captured page.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error (%s): %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
