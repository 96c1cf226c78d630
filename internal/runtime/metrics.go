package runtime

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks consumer-side statistics.
type Metrics struct {
	mu sync.Mutex

	prefetchCapacity *prometheus.GaugeVec
	requestsTotal    *prometheus.CounterVec
	handlerPanics    *prometheus.CounterVec
	replyFailures    *prometheus.CounterVec

	registerer prometheus.Registerer
	registered bool
}

func newConsumerGaugeVec(name, help string, labels []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "warren",
			Subsystem: "consumer",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newConsumerCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warren",
			Subsystem: "consumer",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewMetrics creates the consumer metrics collectors. A nil registerer
// falls back to the default Prometheus registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		registerer:       registerer,
		prefetchCapacity: newConsumerGaugeVec("prefetch_capacity", "Prefetch credit currently granted to running consumers, summed per queue. Compare with the broker's unacked-message count to estimate queue saturation.", []string{"queue"}),
		requestsTotal:    newConsumerCounterVec("requests_total", "Total number of deliveries accepted for handling", []string{"queue"}),
		handlerPanics:    newConsumerCounterVec("handler_panics_total", "Total number of handler invocations that panicked", []string{"queue"}),
		replyFailures:    newConsumerCounterVec("reply_failures_total", "Total number of replies that failed to publish", []string{"queue"}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.prefetchCapacity,
		m.requestsTotal,
		m.handlerPanics,
		m.replyFailures,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// TaskStarted records a consumer task taking up its prefetch credit.
func (m *Metrics) TaskStarted(queue string, prefetch int) {
	m.prefetchCapacity.WithLabelValues(queue).Add(float64(prefetch))
}

// DrainStarted records a consumer task relinquishing its prefetch credit.
// Done at drain start rather than termination so a slow drain does not
// advertise capacity it no longer accepts.
func (m *Metrics) DrainStarted(queue string, prefetch int) {
	m.prefetchCapacity.WithLabelValues(queue).Sub(float64(prefetch))
}

// RequestReceived counts an accepted delivery.
func (m *Metrics) RequestReceived(queue string) {
	m.requestsTotal.WithLabelValues(queue).Inc()
}

// HandlerPanicked counts a panicking handler invocation.
func (m *Metrics) HandlerPanicked(queue string) {
	m.handlerPanics.WithLabelValues(queue).Inc()
}

// ReplyFailed counts a reply publish failure.
func (m *Metrics) ReplyFailed(queue string) {
	m.replyFailures.WithLabelValues(queue).Inc()
}
