// -----------------------------------------------------------------------
// Processing Errors - closed error kinds with retry classification
// -----------------------------------------------------------------------

package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the closed set of failure categories the pipeline can
// surface. Persistent job state stores "Kind: message" strings only,
// never stack traces.
type ErrorKind string

const (
	ErrKindValidation          ErrorKind = "ValidationError"
	ErrKindUnsupportedPlatform ErrorKind = "UnsupportedPlatformError"
	ErrKindFetch               ErrorKind = "FetchError"
	ErrKindFormat              ErrorKind = "FormatError"
	ErrKindAnalyzer            ErrorKind = "AnalyzerError"
	ErrKindStore               ErrorKind = "StoreError"
	ErrKindTimeout             ErrorKind = "TimeoutError"
)

// nonRetryableMarkers are remote failure messages that indicate retrying
// can never succeed, regardless of the error kind that carried them.
var nonRetryableMarkers = []string{
	"invalid url",
	"malformed url",
	"video not found",
	"private video",
	"video unavailable",
	"unsupported format",
	"invalid video id",
}

// ProcessingError is the domain error type carried through the pipeline,
// dispatcher, and worker.
type ProcessingError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// NewProcessingError wraps an underlying error with a kind and short
// message.
func NewProcessingError(kind ErrorKind, message string, err error) *ProcessingError {
	return &ProcessingError{Kind: kind, Message: message, Err: err}
}

// ValidationError reports a client error (bad URL, unknown locale).
func ValidationError(message string) *ProcessingError {
	return &ProcessingError{Kind: ErrKindValidation, Message: message}
}

// UnsupportedPlatformError reports a valid URL on a platform the system
// does not handle.
func UnsupportedPlatformError(host string) *ProcessingError {
	return &ProcessingError{Kind: ErrKindUnsupportedPlatform, Message: fmt.Sprintf("unsupported platform: %s", host)}
}

// FetchError reports a remote scraper failure.
func FetchError(message string, err error) *ProcessingError {
	return &ProcessingError{Kind: ErrKindFetch, Message: message, Err: err}
}

// FormatError reports an unparseable payload: a frame-extraction,
// image-decoding, or response-decoding failure.
func FormatError(message string, err error) *ProcessingError {
	return &ProcessingError{Kind: ErrKindFormat, Message: message, Err: err}
}

// AnalyzerError reports empty or unparseable analyzer output.
func AnalyzerError(message string, err error) *ProcessingError {
	return &ProcessingError{Kind: ErrKindAnalyzer, Message: message, Err: err}
}

// StoreError reports a cache or queue I/O failure.
func StoreError(message string, err error) *ProcessingError {
	return &ProcessingError{Kind: ErrKindStore, Message: message, Err: err}
}

// ErrorKindOf extracts the kind from an error chain. Unclassified errors
// default to FetchError so unknown failures stay retryable.
func ErrorKindOf(err error) ErrorKind {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrKindFetch
}

// ErrorString renders an error as the persisted "Kind: message" form.
func ErrorString(err error) string {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Error()
	}
	return fmt.Sprintf("%s: %s", ErrKindFetch, err.Error())
}

// IsRetryable classifies an error for the worker's failure path.
// Validation, unsupported platform, and format errors are permanent, as
// is any error whose message carries a non-retryable remote marker.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch ErrorKindOf(err) {
	case ErrKindValidation, ErrKindUnsupportedPlatform, ErrKindFormat:
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range nonRetryableMarkers {
		if strings.Contains(msg, marker) {
			return false
		}
	}
	return true
}
