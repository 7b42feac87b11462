package types

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes pipeline failures for persistence and API responses.
type ErrorKind string

const (
	KindUpload         ErrorKind = "upload_error"
	KindPollTimeout    ErrorKind = "poll_timeout"
	KindProviderFailed ErrorKind = "provider_reported_error"
	KindUnparsable     ErrorKind = "unparsable_response"
	KindExternal       ErrorKind = "external_service_error"
)

var (
	ErrUploadFailed     = errors.New("provider upload failed")
	ErrPollTimeout      = errors.New("transcription polling timed out")
	ErrProviderReported = errors.New("provider reported job failure")
	ErrExternalService  = errors.New("external service error")
	ErrJobNotFound      = errors.New("transcription job not found")
	ErrNotCompleted     = errors.New("job has not completed")
)

// PipelineError wraps a sentinel with its kind and a human-readable message
// suitable for persisting on the job record.
type PipelineError struct {
	Kind    ErrorKind
	Message string
	wrapped error
}

func NewPipelineError(kind ErrorKind, sentinel error, format string, args ...any) *PipelineError {
	return &PipelineError{Kind: kind, Message: fmt.Sprintf(format, args...), wrapped: sentinel}
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.wrapped }

// KindOf extracts the error kind, defaulting to external for plain errors.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindExternal
}
