package runtime

// ErrorKind separates extraction failures the caller can fix from failures
// that are the service's own fault.
type ErrorKind int

const (
	// ErrorKindInvalidRequest covers malformed payloads and other problems
	// with the inbound message itself.
	ErrorKindInvalidRequest ErrorKind = iota
	// ErrorKindInternal covers misconfiguration and framework-side defects.
	ErrorKindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindInvalidRequest:
		return "invalid request"
	case ErrorKindInternal:
		return "internal server error"
	default:
		return "unknown"
	}
}

// HandlerError is the typed failure produced by extractors. Responders turn
// it into the handler's declared response type so the caller still receives
// a reply on extraction failure.
type HandlerError struct {
	Kind ErrorKind
	Err  error
}

func (e *HandlerError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *HandlerError) Unwrap() error { return e.Err }

// InvalidRequest wraps err as a caller-side extraction failure.
func InvalidRequest(err error) *HandlerError {
	return &HandlerError{Kind: ErrorKindInvalidRequest, Err: err}
}

// InternalError wraps err as a service-side extraction failure.
func InternalError(err error) *HandlerError {
	return &HandlerError{Kind: ErrorKindInternal, Err: err}
}
