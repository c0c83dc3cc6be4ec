package gofaye

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var defaultMetricsNamespace = "gofaye"

var registryMu sync.Mutex

type metrics struct {
	messagesSent       *prometheus.CounterVec
	messagesReceived   *prometheus.CounterVec
	connectAttempts    *prometheus.CounterVec
	connectTimeouts    prometheus.Counter
	errorEvents        *prometheus.CounterVec
	subscriptionsGauge prometheus.Gauge
}

func newMetrics(registry prometheus.Registerer, namespace string) (*metrics, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if namespace == "" {
		namespace = defaultMetricsNamespace
	}

	m := &metrics{}

	m.messagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "messages_sent_total",
		Help:      "Number of Bayeux messages handed to the transport.",
	}, []string{"channel_type"})

	m.messagesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "messages_received_total",
		Help:      "Number of Bayeux messages routed from the transport.",
	}, []string{"channel_type"})

	m.connectAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "transport",
		Name:      "connect_attempts_total",
		Help:      "Number of transport connection attempts.",
	}, []string{"transport"})

	m.connectTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "transport",
		Name:      "connect_timeouts_total",
		Help:      "Number of connection attempts that were not established in time.",
	})

	m.errorEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "errors_total",
		Help:      "Number of error events raised, by level.",
	}, []string{"level"})

	m.subscriptionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "subscriptions",
		Help:      "Number of acknowledged subscriptions across sessions.",
	})

	if registry == nil {
		return m, nil
	}

	collectors := []prometheus.Collector{
		m.messagesSent,
		m.messagesReceived,
		m.connectAttempts,
		m.connectTimeouts,
		m.errorEvents,
		m.subscriptionsGauge,
	}
	for i, c := range collectors {
		if err := registry.Register(c); err != nil {
			var alreadyRegistered prometheus.AlreadyRegisteredError
			if !errors.As(err, &alreadyRegistered) {
				return nil, err
			}
			// Share the collector already registered under this name so
			// several sessions feed one series.
			collectors[i] = alreadyRegistered.ExistingCollector
		}
	}
	m.messagesSent = collectors[0].(*prometheus.CounterVec)
	m.messagesReceived = collectors[1].(*prometheus.CounterVec)
	m.connectAttempts = collectors[2].(*prometheus.CounterVec)
	m.connectTimeouts = collectors[3].(prometheus.Counter)
	m.errorEvents = collectors[4].(*prometheus.CounterVec)
	m.subscriptionsGauge = collectors[5].(prometheus.Gauge)
	return m, nil
}

func (m *metrics) incSent(c Channel) {
	m.messagesSent.WithLabelValues(string(c.Type())).Inc()
}

func (m *metrics) incReceived(c Channel) {
	m.messagesReceived.WithLabelValues(string(c.Type())).Inc()
}

func (m *metrics) incConnectAttempt(transport string) {
	m.connectAttempts.WithLabelValues(transport).Inc()
}

func (m *metrics) incConnectTimeout() {
	m.connectTimeouts.Inc()
}

func (m *metrics) incError(level ErrorLevel) {
	m.errorEvents.WithLabelValues(level.String()).Inc()
}

func (m *metrics) addSubscriptions(delta int) {
	m.subscriptionsGauge.Add(float64(delta))
}
