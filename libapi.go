package warren

import (
	"context"

	"google.golang.org/protobuf/proto"

	runtimepkg "github.com/warrenmq/warren/internal/runtime"
	brokerpkg "github.com/warrenmq/warren/internal/runtime/broker"
	configpkg "github.com/warrenmq/warren/internal/runtime/config"
	errspkg "github.com/warrenmq/warren/internal/runtime/errors"
	loggingpkg "github.com/warrenmq/warren/internal/runtime/logging"
)

type (
	Config        = configpkg.Config
	HandlerConfig = configpkg.HandlerConfig

	App[S any]          = runtimepkg.App[S]
	Dependencies        = runtimepkg.Dependencies
	Connector           = runtimepkg.Connector
	Request[S any]      = runtimepkg.Request[S]
	Handler[S any]      = runtimepkg.Handler[S]
	Extractor[S, T any] = runtimepkg.Extractor[S, T]
	Responder[Res any]  = runtimepkg.Responder[Res]
	Option[T any]       = runtimepkg.Option[T]
	Result[T any]       = runtimepkg.Result[T]
	Void                = runtimepkg.Void
	Acker               = runtimepkg.Acker
	Broadcast           = runtimepkg.Broadcast
	Metrics             = runtimepkg.Metrics

	HandlerError = runtimepkg.HandlerError
	ErrorKind    = runtimepkg.ErrorKind

	ConsumerCancelledError = errspkg.ConsumerCancelledError
	ConfigValidationError  = errspkg.ConfigValidationError

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	BrokerConnection = brokerpkg.Connection
	BrokerChannel    = brokerpkg.Channel
)

const (
	ErrorKindInvalidRequest = runtimepkg.ErrorKindInvalidRequest
	ErrorKindInternal       = runtimepkg.ErrorKindInternal

	DefaultExchange = configpkg.DefaultExchange
	DirectExchange  = configpkg.DirectExchange
	TopicExchange   = configpkg.TopicExchange
	DefaultPrefetch = configpkg.DefaultPrefetch
)

var (
	ErrNoHandlers        = errspkg.ErrNoHandlers
	ErrHandlerRequired   = errspkg.ErrHandlerRequired
	ErrAckerAlreadyTaken = errspkg.ErrAckerAlreadyTaken
	ErrAckAlreadyDecided = errspkg.ErrAckAlreadyDecided
)

// New constructs an App around the given shared state.
func New[S any](conf *Config, log ServiceLogger, state S, deps Dependencies) *App[S] {
	return runtimepkg.New(conf, log, state, deps)
}

// NewHandlerConfig returns the default per-handler queue configuration.
func NewHandlerConfig() HandlerConfig { return configpkg.NewHandlerConfig() }

// NewBroadcast returns an untriggered shutdown broadcast, for collaborators
// that coordinate shutdown outside of an App.
func NewBroadcast() *Broadcast { return runtimepkg.NewBroadcast() }

// NewSlogServiceLogger adapts a slog.Logger to the ServiceLogger contract.
var NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger

// NewNopLogger returns a logger that discards everything.
var NewNopLogger = loggingpkg.NewNopLogger

// Dial connects to the broker at the given AMQP URL.
var Dial = brokerpkg.Dial

// InvalidRequest wraps err as a caller-side extraction failure.
var InvalidRequest = runtimepkg.InvalidRequest

// InternalError wraps err as a service-side extraction failure.
var InternalError = runtimepkg.InternalError

// Msg decodes the delivery payload as the protobuf message M.
func Msg[S any, M proto.Message]() Extractor[S, M] { return runtimepkg.Msg[S, M]() }

// State projects a value out of the shared application state.
func State[S, T any](project func(*S) T) Extractor[S, T] { return runtimepkg.State(project) }

// ChannelHandle yields the broker channel the request arrived on.
func ChannelHandle[S any]() Extractor[S, BrokerChannel] { return runtimepkg.ChannelHandle[S]() }

// RequestID yields the request id of the inbound message.
func RequestID[S any]() Extractor[S, string] { return runtimepkg.RequestID[S]() }

// ApplicationID yields the app-id property of the inbound message.
func ApplicationID[S any]() Extractor[S, string] { return runtimepkg.ApplicationID[S]() }

// TakeAcker hands the ack/nack decision to the handler.
func TakeAcker[S any]() Extractor[S, Acker] { return runtimepkg.TakeAcker[S]() }

// Maybe turns a fallible extractor into one that never fails, discarding
// the error.
func Maybe[S, T any](e Extractor[S, T]) Extractor[S, Option[T]] { return runtimepkg.Maybe(e) }

// Try turns a fallible extractor into one that surfaces the extraction
// error to the handler instead of short-circuiting dispatch.
func Try[S, T any](e Extractor[S, T]) Extractor[S, Result[T]] { return runtimepkg.Try(e) }

// ProtoResponder responds with proto-encoded messages.
func ProtoResponder[Res proto.Message](fromError func(*HandlerError) Res) Responder[Res] {
	return runtimepkg.ProtoResponder(fromError)
}

// BytesResponder responds with raw bytes.
func BytesResponder(fromError func(*HandlerError) []byte) Responder[[]byte] {
	return runtimepkg.BytesResponder(fromError)
}

// VoidResponder is for listener-style handlers that never reply.
func VoidResponder() Responder[Void] { return runtimepkg.VoidResponder() }

// Handle0 builds a handler with no extracted parameters.
func Handle0[S, Res any](r Responder[Res], fn func(ctx context.Context) Res) Handler[S] {
	return runtimepkg.Handle0[S](r, fn)
}

// Handle1 builds a handler with one extracted parameter.
func Handle1[S, A, Res any](r Responder[Res], ea Extractor[S, A], fn func(ctx context.Context, a A) Res) Handler[S] {
	return runtimepkg.Handle1(r, ea, fn)
}

// Handle2 builds a handler with two extracted parameters.
func Handle2[S, A, B, Res any](r Responder[Res], ea Extractor[S, A], eb Extractor[S, B], fn func(ctx context.Context, a A, b B) Res) Handler[S] {
	return runtimepkg.Handle2(r, ea, eb, fn)
}

// Handle3 builds a handler with three extracted parameters.
func Handle3[S, A, B, C, Res any](r Responder[Res], ea Extractor[S, A], eb Extractor[S, B], ec Extractor[S, C], fn func(ctx context.Context, a A, b B, c C) Res) Handler[S] {
	return runtimepkg.Handle3(r, ea, eb, ec, fn)
}

// Handle4 builds a handler with four extracted parameters.
func Handle4[S, A, B, C, D, Res any](r Responder[Res], ea Extractor[S, A], eb Extractor[S, B], ec Extractor[S, C], ed Extractor[S, D], fn func(ctx context.Context, a A, b B, c C, d D) Res) Handler[S] {
	return runtimepkg.Handle4(r, ea, eb, ec, ed, fn)
}
