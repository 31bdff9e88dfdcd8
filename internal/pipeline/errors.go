package pipeline

import (
	"errors"
	"fmt"

	"github.com/AnyUserName/imgcrush/internal/decoder"
	"github.com/AnyUserName/imgcrush/internal/encoder"
	"github.com/AnyUserName/imgcrush/internal/resizer"
)

// Stage names one step of a pipeline run.
type Stage string

const (
	StageValidate Stage = "validate"
	StageDecode   Stage = "decode"
	StageResize   Stage = "resize"
	StageEncode   Stage = "encode"
)

var (
	// ErrNotReady is returned by Run before Init has completed.
	ErrNotReady = errors.New("pipeline not initialized")
	// ErrBusy is returned by Run while another Run holds the orchestrator.
	ErrBusy = errors.New("pipeline busy")
	// ErrInvalidConfig wraps config validation failures.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrResourceLimitExceeded is returned when the input size or decoded
	// pixel count is over the configured limit.
	ErrResourceLimitExceeded = errors.New("resource limit exceeded")
	// ErrCancelled is returned when the context is done at a stage boundary.
	ErrCancelled = errors.New("pipeline cancelled")
)

// Error is the single failure type returned by Run. Stage is empty for
// failures that do not belong to one stage (not ready, busy, limits,
// cancellation).
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	if e.Stage == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Kind returns a stable, machine-readable name for the failure class.
func (e *Error) Kind() string {
	kinds := []struct {
		target error
		name   string
	}{
		{ErrNotReady, "not_ready"},
		{ErrBusy, "busy"},
		{ErrInvalidConfig, "invalid_config"},
		{ErrResourceLimitExceeded, "resource_limit_exceeded"},
		{ErrCancelled, "cancelled"},
		{decoder.ErrUnsupportedFormat, "unsupported_format"},
		{decoder.ErrMalformed, "malformed"},
		{resizer.ErrDegenerateTarget, "degenerate_target"},
		{resizer.ErrEmptySource, "empty_source"},
		{encoder.ErrInvalidDimensions, "invalid_dimensions"},
		{encoder.ErrUnsupported, "unsupported_output"},
	}
	for _, k := range kinds {
		if errors.Is(e.Err, k.target) {
			return k.name
		}
	}
	return "internal"
}

// KindOf returns the failure kind of any error returned by Run.
func KindOf(err error) string {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind()
	}
	if err == nil {
		return ""
	}
	return "internal"
}

func stageError(s Stage, err error) *Error {
	return &Error{Stage: s, Err: err}
}
