package runtime

import (
	"fmt"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"

	brokerpkg "github.com/warrenmq/warren/internal/runtime/broker"
	errspkg "github.com/warrenmq/warren/internal/runtime/errors"
	idspkg "github.com/warrenmq/warren/internal/runtime/ids"
	loggingpkg "github.com/warrenmq/warren/internal/runtime/logging"
)

// requestIDHeader is the inbound header carrying the caller's request id.
const requestIDHeader = "req_id"

// Request is one inbound delivery bundled with the shared app state and the
// channel it arrived on. A request commits its acknowledgment decision at
// most once: either the framework acks after dispatch, the handler takes
// over via TakeAcker, or the release path nacks an abandoned request.
type Request[S any] struct {
	state    *S
	channel  brokerpkg.Channel
	delivery amqp.Delivery
	reqID    string
	log      loggingpkg.ServiceLogger

	committed  atomic.Bool
	ackerTaken bool
}

func newRequest[S any](channel brokerpkg.Channel, delivery amqp.Delivery, state *S, log loggingpkg.ServiceLogger) *Request[S] {
	reqID := requestIDFromDelivery(&delivery)
	return &Request[S]{
		state:    state,
		channel:  channel,
		delivery: delivery,
		reqID:    reqID,
		log:      log.With(loggingpkg.LogFields{"req_id": reqID}),
	}
}

func requestIDFromDelivery(d *amqp.Delivery) string {
	if v, ok := d.Headers[requestIDHeader]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
		return fmt.Sprint(v)
	}
	return idspkg.NewRequestID()
}

// State returns the shared application state.
func (r *Request[S]) State() *S { return r.state }

// Channel returns the broker channel the delivery arrived on. It is safe
// for concurrent publishes.
func (r *Request[S]) Channel() brokerpkg.Channel { return r.channel }

// Delivery exposes the raw inbound delivery.
func (r *Request[S]) Delivery() *amqp.Delivery { return &r.delivery }

// RequestID returns the id from the req_id header, or the freshly generated
// id if the header was absent.
func (r *Request[S]) RequestID() string { return r.reqID }

// AppID returns the app-id property of the inbound message, if any.
func (r *Request[S]) AppID() string { return r.delivery.AppId }

// ReplyTo returns the reply destination the caller asked for, if any.
func (r *Request[S]) ReplyTo() string { return r.delivery.ReplyTo }

// CorrelationID returns the caller's correlation id, if any.
func (r *Request[S]) CorrelationID() string { return r.delivery.CorrelationId }

// Logger returns the request-scoped logger.
func (r *Request[S]) Logger() loggingpkg.ServiceLogger { return r.log }

// ack commits the acknowledgment unless responsibility was already
// transferred or the request was released. Calling it redundantly is a
// no-op, never a second broker ack.
func (r *Request[S]) ack() error {
	if !r.committed.CompareAndSwap(false, true) {
		return nil
	}
	return r.delivery.Ack(false)
}

// release is run on every exit path of a sub-task. If no commit decision
// was made, the delivery is nacked with requeue so the broker redelivers it
// instead of losing it. Failures are logged, not escalated.
func (r *Request[S]) release() {
	if !r.committed.CompareAndSwap(false, true) {
		return
	}
	r.log.Warn("Request abandoned before acknowledgment; nacking for redelivery", nil)
	if err := r.delivery.Nack(false, true); err != nil {
		r.log.Error("Failed to nack abandoned request", err, nil)
	}
}

// takeAcker transfers the ack/nack decision to the handler. After this the
// framework neither acks on success nor nacks on abandonment.
func (r *Request[S]) takeAcker() (Acker, *HandlerError) {
	if r.ackerTaken {
		return Acker{}, InternalError(errspkg.ErrAckerAlreadyTaken)
	}
	r.ackerTaken = true
	r.committed.Store(true)
	return Acker{delivery: r.delivery, used: new(atomic.Bool)}, nil
}

// Acker is a single-use handle that commits the final ack/nack decision for
// a delivery. Extracting it makes the handler responsible: the framework
// will not acknowledge the message, nor reject it if the handler panics.
type Acker struct {
	delivery amqp.Delivery
	used     *atomic.Bool
}

// Ack acknowledges the delivery.
func (a Acker) Ack() error {
	if err := a.take(); err != nil {
		return err
	}
	return a.delivery.Ack(false)
}

// Reject rejects the delivery, optionally asking the broker to requeue it.
func (a Acker) Reject(requeue bool) error {
	if err := a.take(); err != nil {
		return err
	}
	return a.delivery.Reject(requeue)
}

func (a Acker) take() error {
	if a.used == nil {
		return errspkg.ErrAckerAlreadyTaken
	}
	if !a.used.CompareAndSwap(false, true) {
		return errspkg.ErrAckAlreadyDecided
	}
	return nil
}
