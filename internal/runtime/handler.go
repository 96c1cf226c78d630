package runtime

import (
	"context"
	"reflect"

	"google.golang.org/protobuf/proto"

	errspkg "github.com/warrenmq/warren/internal/runtime/errors"
	loggingpkg "github.com/warrenmq/warren/internal/runtime/logging"
)

// Handler processes one request and produces the encoded reply payload.
// Extraction failures never escape: they are converted into the declared
// response type before encoding.
type Handler[S any] interface {
	Handle(ctx context.Context, req *Request[S]) []byte
}

// Responder converts handler results and extraction failures into reply
// payloads. Every registered handler carries one, so the response type is
// statically known to absorb every parameter's extraction error.
type Responder[Res any] struct {
	// Encode turns the handler's return value into reply bytes. A nil
	// payload means an empty reply.
	Encode func(Res) ([]byte, error)
	// FromError builds the response for a failed extraction.
	FromError func(*HandlerError) Res
}

// ProtoResponder responds with proto-encoded messages. fromError maps
// extraction failures onto the response message, typically by filling an
// error field the caller understands.
func ProtoResponder[Res proto.Message](fromError func(*HandlerError) Res) Responder[Res] {
	if fromError == nil {
		panic(errspkg.ErrResponderRequired)
	}
	return Responder[Res]{
		Encode: func(res Res) ([]byte, error) {
			if isNilMessage(res) {
				return nil, nil
			}
			return proto.Marshal(res)
		},
		FromError: fromError,
	}
}

// BytesResponder responds with raw bytes.
func BytesResponder(fromError func(*HandlerError) []byte) Responder[[]byte] {
	if fromError == nil {
		panic(errspkg.ErrResponderRequired)
	}
	return Responder[[]byte]{
		Encode:    func(res []byte) ([]byte, error) { return res, nil },
		FromError: fromError,
	}
}

// Void is the response type of handlers that never reply.
type Void struct{}

// VoidResponder is for listener-style handlers. Responses are always empty;
// combine with HandlerConfig.WithReplies(false) to suppress publishing
// entirely.
func VoidResponder() Responder[Void] {
	return Responder[Void]{
		Encode:    func(Void) ([]byte, error) { return nil, nil },
		FromError: func(*HandlerError) Void { return Void{} },
	}
}

func isNilMessage(msg proto.Message) bool {
	if msg == nil {
		return true
	}
	val := reflect.ValueOf(msg)
	switch val.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// Handle0 builds a handler with no extracted parameters.
func Handle0[S, Res any](r Responder[Res], fn func(ctx context.Context) Res) Handler[S] {
	mustHandlerParts(r.Encode, fn)
	return handlerFunc[S](func(ctx context.Context, req *Request[S]) []byte {
		return respond(req, r, fn(ctx))
	})
}

// Handle1 builds a handler with one extracted parameter.
func Handle1[S, A, Res any](r Responder[Res], ea Extractor[S, A], fn func(ctx context.Context, a A) Res) Handler[S] {
	mustHandlerParts(r.Encode, fn, ea)
	return handlerFunc[S](func(ctx context.Context, req *Request[S]) []byte {
		a, herr := ea(ctx, req)
		if herr != nil {
			return respondError(req, r, 1, herr)
		}
		return respond(req, r, fn(ctx, a))
	})
}

// Handle2 builds a handler with two extracted parameters. Extraction runs
// strictly left to right and stops at the first failure.
func Handle2[S, A, B, Res any](r Responder[Res], ea Extractor[S, A], eb Extractor[S, B], fn func(ctx context.Context, a A, b B) Res) Handler[S] {
	mustHandlerParts(r.Encode, fn, ea, eb)
	return handlerFunc[S](func(ctx context.Context, req *Request[S]) []byte {
		a, herr := ea(ctx, req)
		if herr != nil {
			return respondError(req, r, 1, herr)
		}
		b, herr := eb(ctx, req)
		if herr != nil {
			return respondError(req, r, 2, herr)
		}
		return respond(req, r, fn(ctx, a, b))
	})
}

// Handle3 builds a handler with three extracted parameters.
func Handle3[S, A, B, C, Res any](r Responder[Res], ea Extractor[S, A], eb Extractor[S, B], ec Extractor[S, C], fn func(ctx context.Context, a A, b B, c C) Res) Handler[S] {
	mustHandlerParts(r.Encode, fn, ea, eb, ec)
	return handlerFunc[S](func(ctx context.Context, req *Request[S]) []byte {
		a, herr := ea(ctx, req)
		if herr != nil {
			return respondError(req, r, 1, herr)
		}
		b, herr := eb(ctx, req)
		if herr != nil {
			return respondError(req, r, 2, herr)
		}
		c, herr := ec(ctx, req)
		if herr != nil {
			return respondError(req, r, 3, herr)
		}
		return respond(req, r, fn(ctx, a, b, c))
	})
}

// Handle4 builds a handler with four extracted parameters.
func Handle4[S, A, B, C, D, Res any](r Responder[Res], ea Extractor[S, A], eb Extractor[S, B], ec Extractor[S, C], ed Extractor[S, D], fn func(ctx context.Context, a A, b B, c C, d D) Res) Handler[S] {
	mustHandlerParts(r.Encode, fn, ea, eb, ec, ed)
	return handlerFunc[S](func(ctx context.Context, req *Request[S]) []byte {
		a, herr := ea(ctx, req)
		if herr != nil {
			return respondError(req, r, 1, herr)
		}
		b, herr := eb(ctx, req)
		if herr != nil {
			return respondError(req, r, 2, herr)
		}
		c, herr := ec(ctx, req)
		if herr != nil {
			return respondError(req, r, 3, herr)
		}
		d, herr := ed(ctx, req)
		if herr != nil {
			return respondError(req, r, 4, herr)
		}
		return respond(req, r, fn(ctx, a, b, c, d))
	})
}

type handlerFunc[S any] func(ctx context.Context, req *Request[S]) []byte

func (f handlerFunc[S]) Handle(ctx context.Context, req *Request[S]) []byte {
	return f(ctx, req)
}

// mustHandlerParts rejects nil handler pieces at registration time, the
// closest Go gets to the compile-time guarantee the dispatch contract asks
// for.
func mustHandlerParts(encode, fn any, extractors ...any) {
	if encode == nil || reflect.ValueOf(encode).IsNil() {
		panic(errspkg.ErrResponderRequired)
	}
	if fn == nil || reflect.ValueOf(fn).IsNil() {
		panic(errspkg.ErrHandlerRequired)
	}
	for _, e := range extractors {
		if e == nil || reflect.ValueOf(e).IsNil() {
			panic(errspkg.ErrExtractorRequired)
		}
	}
}

func respond[S, Res any](req *Request[S], r Responder[Res], res Res) []byte {
	payload, err := r.Encode(res)
	if err != nil {
		req.Logger().Error("Failed to encode response; replying with empty payload", err, nil)
		return nil
	}
	return payload
}

func respondError[S, Res any](req *Request[S], r Responder[Res], position int, herr *HandlerError) []byte {
	req.Logger().Error("Extraction failed; converting error into response", herr, loggingpkg.LogFields{
		"parameter": position,
		"kind":      herr.Kind.String(),
	})
	if r.FromError == nil {
		return nil
	}
	return respond(req, r, r.FromError(herr))
}
