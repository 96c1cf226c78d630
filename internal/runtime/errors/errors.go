package errors

import (
	"fmt"

	sterrors "errors"
)

var (
	ErrNoHandlers           = sterrors.New("warren: no handlers were registered on the app")
	ErrHandlerRequired      = sterrors.New("warren: handler function is required")
	ErrRoutingKeyRequired   = sterrors.New("warren: routing key is required")
	ErrExtractorRequired    = sterrors.New("warren: extractor function is required")
	ErrResponderRequired    = sterrors.New("warren: responder is required")
	ErrConnectionRequired   = sterrors.New("warren: broker connection is required")
	ErrAppAlreadyRunning    = sterrors.New("warren: app is already running")
	ErrAckerAlreadyTaken    = sterrors.New("warren: acker was already extracted from this request")
	ErrAckAlreadyDecided    = sterrors.New("warren: ack/nack was already decided for this delivery")
	ErrStateProjectionUnset = sterrors.New("warren: state projection has not been wired")
)

// ConsumerCancelledError reports that the broker cancelled the consumer for a
// queue, terminating its task without a shutdown having been requested.
type ConsumerCancelledError struct {
	RoutingKey string
}

func (e ConsumerCancelledError) Error() string {
	return fmt.Sprintf("warren: broker cancelled the consumer for routing key %q", e.RoutingKey)
}

// ConfigValidationError wraps the joined validation failures of a Config.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	if e.Err == nil {
		return "warren: invalid configuration"
	}
	return "warren: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error { return e.Err }

// NewConfigValidationError wraps err in a ConfigValidationError, or returns
// nil if err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
