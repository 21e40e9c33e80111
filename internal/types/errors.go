package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrTimeout          = errors.New("request timed out")
	ErrEmptyPage        = errors.New("empty page body")
	ErrNoProjects       = errors.New("no projects recognized on listing page")
	ErrUnknownSource    = errors.New("unknown trending source")
	ErrNotifierDisabled = errors.New("notifier is not configured")
	ErrInvalidURL       = errors.New("invalid URL")
)

// FetchError wraps errors that occur during page retrieval.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// ParseError wraps errors that occur while turning a page into a document.
type ParseError struct {
	URL    string
	Source Source
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error for %s (source=%s): %v", e.URL, e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TranslateError wraps failures of a translation backend.
type TranslateError struct {
	Backend string
	Err     error
}

func (e *TranslateError) Error() string {
	return fmt.Sprintf("translate error (%s): %v", e.Backend, e.Err)
}

func (e *TranslateError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur during storage/export.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// RenderError wraps report rendering failures.
type RenderError struct {
	Format string
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render error (%s): %v", e.Format, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// NotifyError wraps notification delivery failures.
type NotifyError struct {
	Channel string
	Err     error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify error (%s): %v", e.Channel, e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }

// PipelineError wraps a middleware failure for one project.
type PipelineError struct {
	Stage  string
	RepoID string
	Err    error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at %s for %s: %v", e.Stage, e.RepoID, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
