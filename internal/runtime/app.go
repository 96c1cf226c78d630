package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"

	brokerpkg "github.com/warrenmq/warren/internal/runtime/broker"
	configpkg "github.com/warrenmq/warren/internal/runtime/config"
	errspkg "github.com/warrenmq/warren/internal/runtime/errors"
	loggingpkg "github.com/warrenmq/warren/internal/runtime/logging"
)

// Connector dials the broker. Overridable through Dependencies for tests.
type Connector func(ctx context.Context, url string) (brokerpkg.Connection, error)

// Dependencies holds the optional collaborators an App can use. Leave
// fields nil to use the defaults.
type Dependencies struct {
	// Registerer receives the consumer metrics. Defaults to the global
	// Prometheus registerer.
	Registerer prometheus.Registerer
	// Connector dials the broker for Run. Defaults to an amqp091 dial.
	Connector Connector
}

// App is the top-level registry. It collects handler registrations and the
// shared state, then Run wires every handler to its queue and consumes
// until shutdown.
type App[S any] struct {
	conf  *configpkg.Config
	log   loggingpkg.ServiceLogger
	state S

	factories []*taskFactory[S]
	shutdown  *Broadcast
	metrics   *Metrics
	connector Connector
	running   atomic.Bool
}

// New constructs an App around the given shared state. The state is handed
// out by reference to every request; any internal mutability is the state
// type's own responsibility.
func New[S any](conf *configpkg.Config, log loggingpkg.ServiceLogger, state S, deps Dependencies) *App[S] {
	if conf == nil {
		conf = &configpkg.Config{}
	}
	if log == nil {
		log = loggingpkg.NewNopLogger()
	}

	connector := deps.Connector
	if connector == nil {
		connector = func(_ context.Context, url string) (brokerpkg.Connection, error) {
			return brokerpkg.Dial(url)
		}
	}

	log.Info("Creating AMQP app", loggingpkg.LogFields{"config": conf})

	return &App[S]{
		conf:      conf,
		log:       log,
		state:     state,
		shutdown:  NewBroadcast(),
		metrics:   NewMetrics(deps.Registerer),
		connector: connector,
	}
}

// Handler registers a handler for the given routing key with the default
// queue configuration. Panics on nil handler or empty routing key, which
// are programming errors caught at wiring time.
func (a *App[S]) Handler(routingKey string, h Handler[S]) *App[S] {
	return a.HandlerWithConfig(routingKey, h, configpkg.NewHandlerConfig())
}

// HandlerWithConfig registers a handler with an explicit queue
// configuration. The configuration is frozen here; later mutation of the
// value passed in has no effect.
func (a *App[S]) HandlerWithConfig(routingKey string, h Handler[S], cfg configpkg.HandlerConfig) *App[S] {
	if routingKey == "" {
		panic(errspkg.ErrRoutingKeyRequired)
	}
	if h == nil {
		panic(errspkg.ErrHandlerRequired)
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = configpkg.DefaultPrefetch
	}

	a.log.Debug("Registered handler", loggingpkg.LogFields{
		"routing_key": routingKey,
		"queue":       cfg.QueueName(routingKey),
		"prefetch":    cfg.Prefetch,
	})

	a.factories = append(a.factories, &taskFactory[S]{
		routingKey: routingKey,
		config:     cfg,
		handler:    h,
	})
	return a
}

// ShutdownHandle exposes the shutdown broadcast so any collaborator can
// request a graceful shutdown.
func (a *App[S]) ShutdownHandle() *Broadcast {
	return a.shutdown
}

// Shutdown requests a graceful shutdown of all consumer tasks.
func (a *App[S]) Shutdown() {
	a.shutdown.Trigger()
}

// ShutdownOnSignal wires OS termination signals to the shutdown broadcast.
// With no arguments it listens for SIGINT and SIGTERM.
func (a *App[S]) ShutdownOnSignal(signals ...os.Signal) *App[S] {
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)
	go func() {
		sig := <-ch
		a.log.Info("OS signal received; requesting shutdown", loggingpkg.LogFields{"signal": sig.String()})
		a.shutdown.Trigger()
	}()
	return a
}

// Run validates the configuration, connects to the broker and consumes
// until every task has terminated. Startup failures are returned
// synchronously; post-startup failures become the run outcome once all
// tasks have drained.
func (a *App[S]) Run(ctx context.Context) error {
	if len(a.factories) == 0 {
		return errspkg.ErrNoHandlers
	}
	if err := errspkg.NewConfigValidationError(a.conf.Validate()); err != nil {
		return err
	}

	a.log.Debug("Connecting to AMQP broker", loggingpkg.LogFields{"config": a.conf})
	conn, err := a.connector(ctx, a.conf.AMQPURL)
	if err != nil {
		return fmt.Errorf("warren: connecting to broker: %w", err)
	}
	defer conn.Close()

	return a.RunWithConnection(ctx, conn)
}

// RunWithConnection runs the app on an already established connection. The
// caller keeps ownership of the connection.
func (a *App[S]) RunWithConnection(ctx context.Context, conn brokerpkg.Connection) error {
	if conn == nil {
		return errspkg.ErrConnectionRequired
	}
	if len(a.factories) == 0 {
		return errspkg.ErrNoHandlers
	}
	if !a.running.CompareAndSwap(false, true) {
		return errspkg.ErrAppAlreadyRunning
	}

	if err := a.metrics.Register(); err != nil {
		return fmt.Errorf("warren: registering metrics: %w", err)
	}

	tasks := make([]*consumerTask[S], 0, len(a.factories))
	for _, factory := range a.factories {
		task, err := factory.build(conn, &a.state, a.conf.AppName, a.log, a.metrics, a.shutdown)
		if err != nil {
			return fmt.Errorf("warren: setting up handler for routing key %q: %w", factory.routingKey, err)
		}
		tasks = append(tasks, task)
	}

	a.log.Info("Connected to AMQP broker; consuming", loggingpkg.LogFields{"handlers": len(tasks)})

	// Translate context cancellation and connection loss into the shutdown
	// broadcast so every task drains through the same path.
	closeNotify := conn.NotifyClose(make(chan *amqp.Error, 1))
	watchDone := make(chan struct{})
	defer close(watchDone)
	go a.watchConnection(ctx, closeNotify, watchDone)

	outcomes := make([]error, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task *consumerTask[S]) {
			defer wg.Done()
			err := task.run(ctx)
			outcomes[i] = err
			if err != nil {
				// One queue's loss brings the whole app down in a controlled
				// way rather than leaving its peers running orphaned.
				a.log.Error("Consumer task terminated abnormally; shutting down the app", err, loggingpkg.LogFields{
					"routing_key": task.routingKey,
				})
				a.shutdown.Trigger()
			}
		}(i, task)
	}
	wg.Wait()

	a.log.Info("All consumer tasks terminated", nil)
	return errors.Join(outcomes...)
}

func (a *App[S]) watchConnection(ctx context.Context, closeNotify chan *amqp.Error, done <-chan struct{}) {
	select {
	case <-ctx.Done():
		a.log.Info("Context cancelled; requesting shutdown", nil)
		a.shutdown.Trigger()
	case err, ok := <-closeNotify:
		if ok && err != nil {
			a.log.Error("Broker connection lost; requesting shutdown", err, nil)
		} else {
			a.log.Info("Broker connection closed; requesting shutdown", nil)
		}
		a.shutdown.Trigger()
	case <-done:
	}
}
