package runtime

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/proto"

	brokerpkg "github.com/warrenmq/warren/internal/runtime/broker"
	errspkg "github.com/warrenmq/warren/internal/runtime/errors"
)

// Extractor produces a typed value from an in-flight request, possibly
// mutating it. Extraction either yields the value or a HandlerError that the
// handler's responder converts into the declared response type.
type Extractor[S, T any] func(ctx context.Context, req *Request[S]) (T, *HandlerError)

// Msg decodes the delivery payload as the protobuf message M. M must be a
// pointer to a generated message type. Malformed payloads fail extraction
// with an invalid-request error.
func Msg[S any, M proto.Message]() Extractor[S, M] {
	return func(_ context.Context, req *Request[S]) (M, *HandlerError) {
		var zero M
		decoded := zero.ProtoReflect().New().Interface()
		typed, ok := decoded.(M)
		if !ok {
			return zero, InternalError(fmt.Errorf("unexpected prototype type %T", decoded))
		}
		if err := proto.Unmarshal(req.Delivery().Body, typed); err != nil {
			return zero, InvalidRequest(fmt.Errorf("message could not be decoded into %T: %w", typed, err))
		}
		return typed, nil
	}
}

// State projects a value out of the shared application state. Presence is
// established at construction time, so extraction cannot fail at steady
// state; a nil projection is a wiring defect surfaced as an internal error.
func State[S, T any](project func(*S) T) Extractor[S, T] {
	return func(_ context.Context, req *Request[S]) (T, *HandlerError) {
		if project == nil {
			var zero T
			return zero, InternalError(errspkg.ErrStateProjectionUnset)
		}
		return project(req.State()), nil
	}
}

// ChannelHandle yields the broker channel the request arrived on, for
// handlers that publish messages of their own.
func ChannelHandle[S any]() Extractor[S, brokerpkg.Channel] {
	return func(_ context.Context, req *Request[S]) (brokerpkg.Channel, *HandlerError) {
		return req.Channel(), nil
	}
}

// RequestID yields the request id. Infallible: ids are synthesized when the
// req_id header is absent.
func RequestID[S any]() Extractor[S, string] {
	return func(_ context.Context, req *Request[S]) (string, *HandlerError) {
		return req.RequestID(), nil
	}
}

// ApplicationID yields the app-id property of the inbound message, or the
// empty string. Diagnostic only.
func ApplicationID[S any]() Extractor[S, string] {
	return func(_ context.Context, req *Request[S]) (string, *HandlerError) {
		return req.AppID(), nil
	}
}

// TakeAcker hands the ack/nack decision to the handler. Fails if the acker
// was already taken for this request; taking it twice is a programming
// error.
func TakeAcker[S any]() Extractor[S, Acker] {
	return func(_ context.Context, req *Request[S]) (Acker, *HandlerError) {
		return req.takeAcker()
	}
}

// Option holds the result of an extraction that was allowed to fail.
type Option[T any] struct {
	value T
	ok    bool
}

// Get returns the extracted value and whether extraction succeeded.
func (o Option[T]) Get() (T, bool) { return o.value, o.ok }

// Maybe turns a fallible extractor into one that never fails, discarding
// the error. The handler decides what absence means.
func Maybe[S, T any](e Extractor[S, T]) Extractor[S, Option[T]] {
	return func(ctx context.Context, req *Request[S]) (Option[T], *HandlerError) {
		value, herr := e(ctx, req)
		if herr != nil {
			return Option[T]{}, nil
		}
		return Option[T]{value: value, ok: true}, nil
	}
}

// Result holds either an extracted value or the extraction error.
type Result[T any] struct {
	value T
	err   *HandlerError
}

// Get returns the extracted value, or the error that prevented extraction.
func (r Result[T]) Get() (T, *HandlerError) { return r.value, r.err }

// Try turns a fallible extractor into one that never fails, surfacing the
// error to the handler instead of short-circuiting dispatch.
func Try[S, T any](e Extractor[S, T]) Extractor[S, Result[T]] {
	return func(ctx context.Context, req *Request[S]) (Result[T], *HandlerError) {
		value, herr := e(ctx, req)
		return Result[T]{value: value, err: herr}, nil
	}
}
