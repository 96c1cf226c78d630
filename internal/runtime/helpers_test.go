package runtime

import (
	"context"
	"io"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	brokerpkg "github.com/warrenmq/warren/internal/runtime/broker"
	loggingpkg "github.com/warrenmq/warren/internal/runtime/logging"
)

func newTestSlogLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(newTestSlogLogger())
}

// recordingLogger captures log calls for assertions on warn/error paths.
type recordingLogger struct {
	mu      *sync.Mutex
	entries *[]logEntry
}

type logEntry struct {
	level string
	msg   string
	err   error
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{mu: &sync.Mutex{}, entries: &[]logEntry{}}
}

func (l *recordingLogger) record(level, msg string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, logEntry{level: level, msg: msg, err: err})
}

func (l *recordingLogger) With(loggingpkg.LogFields) loggingpkg.ServiceLogger { return l }

func (l *recordingLogger) Debug(msg string, _ loggingpkg.LogFields) { l.record("debug", msg, nil) }
func (l *recordingLogger) Info(msg string, _ loggingpkg.LogFields)  { l.record("info", msg, nil) }
func (l *recordingLogger) Warn(msg string, _ loggingpkg.LogFields)  { l.record("warn", msg, nil) }
func (l *recordingLogger) Error(msg string, err error, _ loggingpkg.LogFields) {
	l.record("error", msg, err)
}

func (l *recordingLogger) byLevel(level string) []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logEntry
	for _, e := range *l.entries {
		if e.level == level {
			out = append(out, e)
		}
	}
	return out
}

// fakeAcknowledger implements amqp091.Acknowledger, counting the decisions
// made for deliveries that carry it.
type fakeAcknowledger struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	rejects int
	requeue bool
	err     error
}

func (a *fakeAcknowledger) Ack(_ uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.acks++
	return nil
}

func (a *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.nacks++
	a.requeue = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.rejects++
	a.requeue = requeue
	return nil
}

func (a *fakeAcknowledger) counts() (acks, nacks, rejects int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acks, a.nacks, a.rejects
}

func makeDelivery(ack *fakeAcknowledger, body []byte) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		Body:         body,
	}
}

type publishRecord struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type declareRecord struct {
	queue      string
	durable    bool
	autoDelete bool
	exclusive  bool
	args       amqp.Table
}

type bindRecord struct {
	queue    string
	key      string
	exchange string
}

type consumeRecord struct {
	queue   string
	tag     string
	autoAck bool
}

// fakeChannel implements broker.Channel, recording every call and serving
// deliveries from an in-memory channel.
type fakeChannel struct {
	mu sync.Mutex

	qosPrefetch int
	declares    []declareRecord
	binds       []bindRecord
	consumes    []consumeRecord
	cancels     []string
	publishes   []publishRecord

	deliveries chan amqp.Delivery

	qosErr     error
	declareErr error
	bindErr    error
	consumeErr error
	cancelErr  error
	publishErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp.Delivery, 16)}
}

func (c *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.qosErr != nil {
		return c.qosErr
	}
	c.qosPrefetch = prefetchCount
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, _ bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.declareErr != nil {
		return amqp.Queue{}, c.declareErr
	}
	c.declares = append(c.declares, declareRecord{queue: name, durable: durable, autoDelete: autoDelete, exclusive: exclusive, args: args})
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bindErr != nil {
		return c.bindErr
	}
	c.binds = append(c.binds, bindRecord{queue: name, key: key, exchange: exchange})
	return nil
}

func (c *fakeChannel) Consume(queue, consumer string, autoAck, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.consumeErr != nil {
		return nil, c.consumeErr
	}
	c.consumes = append(c.consumes, consumeRecord{queue: queue, tag: consumer, autoAck: autoAck})
	return c.deliveries, nil
}

func (c *fakeChannel) Cancel(consumer string, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelErr != nil {
		return c.cancelErr
	}
	c.cancels = append(c.cancels, consumer)
	return nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.publishes = append(c.publishes, publishRecord{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) published() []publishRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := make([]publishRecord, len(c.publishes))
	copy(clone, c.publishes)
	return clone
}

func (c *fakeChannel) cancelled() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := make([]string, len(c.cancels))
	copy(clone, c.cancels)
	return clone
}

// fakeConnection implements broker.Connection, handing out fakeChannels.
type fakeConnection struct {
	mu          sync.Mutex
	channels    []*fakeChannel
	channelErr  error
	closeNotify chan *amqp.Error
	closes      int
}

func newFakeConnection() *fakeConnection {
	return &fakeConnection{closeNotify: make(chan *amqp.Error, 1)}
}

func (c *fakeConnection) Channel() (brokerpkg.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channelErr != nil {
		return nil, c.channelErr
	}
	ch := newFakeChannel()
	c.channels = append(c.channels, ch)
	return ch, nil
}

func (c *fakeConnection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	go func() {
		if err, ok := <-c.closeNotify; ok {
			receiver <- err
		}
	}()
	return receiver
}

func (c *fakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *fakeConnection) channelCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.channels)
}

func (c *fakeConnection) channelAt(i int) *fakeChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[i]
}
