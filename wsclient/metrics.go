package wsclient

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wsclient"

// Metrics holds the Prometheus collectors of one Client. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	ConnectionAttempts prometheus.Counter
	Retries            prometheus.Counter
	GaveUp             prometheus.Counter
	MessagesReceived   prometheus.Counter
	MessagesSent       prometheus.Counter
	HandlerErrors      prometheus.Counter
	ConnectionState    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil. constLabels distinguish several clients sharing a registry.
func NewMetrics(reg prometheus.Registerer, constLabels prometheus.Labels) (*Metrics, error) {
	counter := func(name string, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		})
	}
	metrics := &Metrics{
		ConnectionAttempts: counter("connection_attempts_total", "Connection attempts started, including retries."),
		Retries:            counter("retries_total", "Reconnection attempts scheduled after a failure."),
		GaveUp:             counter("gave_up_total", "Times the client stopped retrying after exhausting its attempts."),
		MessagesReceived:   counter("messages_received_total", "Inbound messages delivered to the dispatcher."),
		MessagesSent:       counter("messages_sent_total", "Outbound messages accepted into the send queue."),
		HandlerErrors:      counter("handler_errors_total", "Subscriber failures isolated during dispatch."),
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "connection_state",
			Help:        "Current connection state (0=idle 1=connecting 2=open 3=closing 4=closed 5=failed).",
			ConstLabels: constLabels,
		}),
	}
	if reg == nil {
		return metrics, nil
	}
	for _, collector := range metrics.collectors() {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return metrics, nil
}

func (metrics *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		metrics.ConnectionAttempts,
		metrics.Retries,
		metrics.GaveUp,
		metrics.MessagesReceived,
		metrics.MessagesSent,
		metrics.HandlerErrors,
		metrics.ConnectionState,
	}
}

func (metrics *Metrics) attemptStarted() {
	if metrics != nil {
		metrics.ConnectionAttempts.Inc()
	}
}

func (metrics *Metrics) retryScheduled() {
	if metrics != nil {
		metrics.Retries.Inc()
	}
}

func (metrics *Metrics) gaveUp() {
	if metrics != nil {
		metrics.GaveUp.Inc()
	}
}

func (metrics *Metrics) received() {
	if metrics != nil {
		metrics.MessagesReceived.Inc()
	}
}

func (metrics *Metrics) sent() {
	if metrics != nil {
		metrics.MessagesSent.Inc()
	}
}

func (metrics *Metrics) handlerFailed() {
	if metrics != nil {
		metrics.HandlerErrors.Inc()
	}
}

func (metrics *Metrics) stateChanged(state ConnectionState) {
	if metrics != nil {
		metrics.ConnectionState.Set(float64(state))
	}
}
