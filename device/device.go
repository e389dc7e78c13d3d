// Package device abstracts the capability surfaces the report flow depends
// on: geolocation queries and live camera streams. Implementations bridge to
// whatever the hosting platform offers; the flow only sees these interfaces.
package device

import (
	"context"
	"errors"
	"image"
	"time"
)

// Reason classifies why a capability request failed.
type Reason string

const (
	ReasonPermissionDenied Reason = "permission_denied"
	ReasonUnavailable      Reason = "unavailable"
	ReasonTimeout          Reason = "timeout"
	ReasonNotSupported     Reason = "not_supported"
)

// Error carries a classified capability failure.
type Error struct {
	Reason  Reason
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Reason)
}

// NewError builds a classified capability error.
func NewError(reason Reason, message string) *Error {
	return &Error{Reason: reason, Message: message}
}

// ClassifyReason extracts the failure reason from an error returned by a
// capability request. Context deadline expiry maps to a timeout; anything
// unclassified is treated as unavailable.
func ClassifyReason(err error) Reason {
	var devErr *Error
	if errors.As(err, &devErr) {
		return devErr.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return ReasonUnavailable
}

// Position is a resolved device location.
type Position struct {
	Latitude  float64
	Longitude float64
	AccuracyM float64
}

// LocateOptions mirror the hints passed to the platform geolocation query.
type LocateOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaximumAge   time.Duration
}

// Locator issues a single position request. Implementations must honor
// ctx cancellation and opts.Timeout, returning a classified *Error on
// failure where possible.
type Locator interface {
	Locate(ctx context.Context, opts LocateOptions) (Position, error)
}

// Stream is an open camera stream. Frame grabs the current preview frame.
// Close must be safe to call after a failed Frame.
type Stream interface {
	Frame(ctx context.Context) (image.Image, error)
	Close() error
}

// Camera opens a stream from the environment-facing camera. Platforms
// without a live-preview API return an *Error with ReasonNotSupported so
// the flow can degrade to file-picker capture.
type Camera interface {
	Open(ctx context.Context) (Stream, error)
}
