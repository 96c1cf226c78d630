package runtime

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	brokerpkg "github.com/warrenmq/warren/internal/runtime/broker"
	configpkg "github.com/warrenmq/warren/internal/runtime/config"
	errspkg "github.com/warrenmq/warren/internal/runtime/errors"
	idspkg "github.com/warrenmq/warren/internal/runtime/ids"
	loggingpkg "github.com/warrenmq/warren/internal/runtime/logging"
)

// taskFactory pairs a routing key and handler with its queue configuration.
// Factories are created at registration time as pure data and consumed
// exactly once at startup, when build performs the declare/bind/consume
// sequence and yields the runnable consumer task.
type taskFactory[S any] struct {
	routingKey string
	config     configpkg.HandlerConfig
	handler    Handler[S]
}

func (f *taskFactory[S]) build(conn brokerpkg.Connection, state *S, appName string, log loggingpkg.ServiceLogger, metrics *Metrics, shutdown *Broadcast) (*consumerTask[S], error) {
	channel, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("creating channel: %w", err)
	}

	if err := channel.Qos(f.config.Prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("setting prefetch: %w", err)
	}

	queueName := f.config.QueueName(f.routingKey)

	if _, err := channel.QueueDeclare(queueName, f.config.Durable, f.config.AutoDelete, f.config.Exclusive, false, f.config.Arguments); err != nil {
		return nil, fmt.Errorf("declaring queue %q: %w", queueName, err)
	}

	if err := channel.QueueBind(queueName, f.routingKey, f.config.Exchange, false, nil); err != nil {
		return nil, fmt.Errorf("binding queue %q on exchange %q: %w", queueName, f.config.Exchange, err)
	}

	consumerTag := idspkg.NewConsumerTag(f.routingKey)
	deliveries, err := channel.Consume(queueName, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("starting consumer on queue %q: %w", queueName, err)
	}

	metrics.TaskStarted(queueName, f.config.Prefetch)

	return &consumerTask[S]{
		routingKey:  f.routingKey,
		queueName:   queueName,
		consumerTag: consumerTag,
		shouldReply: f.config.ShouldReply,
		prefetch:    f.config.Prefetch,
		channel:     channel,
		deliveries:  deliveries,
		handler:     f.handler,
		state:       state,
		appName:     appName,
		log: log.With(loggingpkg.LogFields{
			"routing_key": f.routingKey,
			"queue":       queueName,
		}),
		metrics:  metrics,
		shutdown: shutdown,
	}, nil
}

// consumerTask owns one broker consumer stream. It lives from startup until
// broker cancellation or a signaled shutdown plus full drain. Deliveries are
// accepted in broker order; each one is handled in its own goroutine, so
// completion order is unconstrained. Concurrency is bounded by the
// broker-granted prefetch credit; no local admission control is applied.
type consumerTask[S any] struct {
	routingKey  string
	queueName   string
	consumerTag string
	shouldReply bool
	prefetch    int

	channel    brokerpkg.Channel
	deliveries <-chan amqp.Delivery
	handler    Handler[S]
	state      *S
	appName    string

	log      loggingpkg.ServiceLogger
	metrics  *Metrics
	shutdown *Broadcast
}

// run drives the task through Receiving, Draining and Terminated. The
// returned error is nil for a shutdown-initiated drain and a
// ConsumerCancelledError when the broker cancelled the consumer.
func (t *consumerTask[S]) run(ctx context.Context) error {
	t.log.Info("Consumer task started", loggingpkg.LogFields{"prefetch": t.prefetch})

	// One entry per finished sub-task; non-nil carries a recovered panic.
	results := make(chan error)
	inFlight := 0
	var cause error

receiving:
	for {
		// Fixed priority when several events are ready: shutdown first,
		// then finished sub-tasks, then new deliveries.
		select {
		case <-t.shutdown.Done():
			t.log.Info("Shutdown signal received", nil)
			break receiving
		default:
		}

		select {
		case err := <-results:
			inFlight--
			t.subTaskDone(err)
			continue
		default:
		}

		select {
		case <-t.shutdown.Done():
			t.log.Info("Shutdown signal received", nil)
			break receiving

		case err := <-results:
			inFlight--
			t.subTaskDone(err)

		case delivery, ok := <-t.deliveries:
			if !ok {
				t.log.Error("Consumer cancelled by broker; draining", nil, nil)
				cause = errspkg.ConsumerCancelledError{RoutingKey: t.routingKey}
				break receiving
			}
			inFlight++
			t.spawn(ctx, delivery, results)
		}
	}

	t.drain(results, inFlight)
	return cause
}

// spawn handles one delivery in its own goroutine. The recover sits at the
// sub-task boundary so one panicking request never takes down siblings or
// the consumer task; the recovered panic travels back on the results
// channel.
func (t *consumerTask[S]) spawn(ctx context.Context, delivery amqp.Delivery, results chan<- error) {
	go func() {
		var crashed error
		defer func() { results <- crashed }()
		defer func() {
			if r := recover(); r != nil {
				crashed = fmt.Errorf("handler panicked: %v", r)
			}
		}()
		t.handleRequest(ctx, delivery)
	}()
}

func (t *consumerTask[S]) subTaskDone(err error) {
	if err == nil {
		return
	}
	t.metrics.HandlerPanicked(t.queueName)
	t.log.Error("Request handling crashed; the request was nacked for redelivery", err, nil)
}

// handleRequest runs the per-request sequence: dispatch, reply, acknowledge.
// The deferred release guarantees an abandoned request is nacked with
// requeue on every exit path, including panics unwinding through here.
func (t *consumerTask[S]) handleRequest(ctx context.Context, delivery amqp.Delivery) {
	req := newRequest(t.channel, delivery, t.state, t.log)
	defer req.release()

	log := req.Logger()
	t.metrics.RequestReceived(t.queueName)

	fields := loggingpkg.LogFields{}
	if appID := req.AppID(); appID != "" {
		fields["app_id"] = appID
	}
	if delivery.Redelivered {
		fields["redelivered"] = true
	}
	log.Info("Received request", fields)

	start := time.Now()
	payload := t.handler.Handle(ctx, req)
	elapsed := time.Since(start)

	t.publishReply(ctx, req, payload, elapsed)

	if err := req.ack(); err != nil {
		log.Error("Failed to ack request", err, nil)
	} else {
		log.Debug("Request acknowledged", nil)
	}
}

// publishReply decides whether and where to reply. Publish failures are
// logged and counted, never escalated: redelivering the inbound request
// would not repair a failed reply, so the request is still acknowledged.
func (t *consumerTask[S]) publishReply(ctx context.Context, req *Request[S], payload []byte, elapsed time.Duration) {
	log := req.Logger()

	if !t.shouldReply {
		log.Debug("Handler finished; replies disabled", loggingpkg.LogFields{
			"bytes":   len(payload),
			"elapsed": elapsed,
		})
		return
	}

	replyTo := req.ReplyTo()
	if replyTo == "" {
		if len(payload) > 0 {
			log.Warn("Handler produced a response but the request carries no reply-to; the reply cannot be delivered", loggingpkg.LogFields{
				"bytes":   len(payload),
				"elapsed": elapsed,
			})
		} else {
			log.Info("Handler finished with nothing to reply", loggingpkg.LogFields{"elapsed": elapsed})
		}
		return
	}

	publishing := amqp.Publishing{
		ContentType: "application/octet-stream",
		Body:        payload,
		AppId:       t.appName,
	}

	if correlationID := req.CorrelationID(); correlationID != "" {
		publishing.CorrelationId = correlationID
	} else {
		log.Warn("Request carries no correlation-id; the caller may not match the reply to its request", nil)
	}

	if len(payload) == 0 {
		log.Warn("Publishing an empty reply; the caller likely expects content", loggingpkg.LogFields{"elapsed": elapsed})
	}

	if err := t.channel.PublishWithContext(ctx, configpkg.DefaultExchange, replyTo, false, false, publishing); err != nil {
		t.metrics.ReplyFailed(t.queueName)
		log.Error("Failed to publish reply", err, loggingpkg.LogFields{"reply_to": replyTo})
		return
	}

	log.Debug("Published reply", loggingpkg.LogFields{
		"reply_to": replyTo,
		"bytes":    len(payload),
		"elapsed":  elapsed,
	})
}

// drain stops accepting deliveries, returns the task's prefetch credit and
// waits for the outstanding sub-tasks before terminating.
func (t *consumerTask[S]) drain(results <-chan error, inFlight int) {
	if err := t.channel.Cancel(t.consumerTag, false); err != nil {
		t.log.Error("Failed to cancel consumer; drain continues regardless", err, nil)
	}

	t.metrics.DrainStarted(t.queueName, t.prefetch)

	if inFlight == 0 {
		t.log.Info("No outstanding requests; consumer task terminated", nil)
		return
	}

	t.log.Info("Draining outstanding requests", loggingpkg.LogFields{"in_flight": inFlight})
	start := time.Now()
	for inFlight > 0 {
		err := <-results
		inFlight--
		t.subTaskDone(err)
	}
	t.log.Info("Drain finished; consumer task terminated", loggingpkg.LogFields{"elapsed": time.Since(start)})
}
