package netsim

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "gbn"
	subsystem = "sim"
)

// Timer events counted by Metrics.
const (
	timerStart  = "start"
	timerStop   = "stop"
	timerExpiry = "expiry"
)

// Metrics holds the counters a simulator updates. All of them are labelled
// with the entity the event happened at.
type Metrics struct {
	framesSent      *prometheus.CounterVec
	framesLost      *prometheus.CounterVec
	framesCorrupted *prometheus.CounterVec
	framesReordered *prometheus.CounterVec
	delivered       *prometheus.CounterVec
	timerEvents     *prometheus.CounterVec
}

func newCounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

// NewMetrics creates the simulator counters and registers them with reg. If
// reg is nil the counters are kept but not registered anywhere.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		framesSent: newCounterVec(
			"frames_sent_total",
			"Frames handed to the link by a host.",
			"entity", "kind",
		),
		framesLost: newCounterVec(
			"frames_lost_total",
			"Frames sent by a host and lost on the link.",
			"entity",
		),
		framesCorrupted: newCounterVec(
			"frames_corrupted_total",
			"Frames sent by a host that had a bit flipped.",
			"entity",
		),
		framesReordered: newCounterVec(
			"frames_reordered_total",
			"Frames sent by a host that were held back.",
			"entity",
		),
		delivered: newCounterVec(
			"payloads_delivered_total",
			"Payloads delivered to the application of a host.",
			"entity",
		),
		timerEvents: newCounterVec(
			"timer_events_total",
			"Retransmission timer starts, stops and expiries.",
			"entity", "event",
		),
	}

	if reg == nil {
		return m, nil
	}

	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.framesSent, m.framesLost, m.framesCorrupted,
		m.framesReordered, m.delivered, m.timerEvents,
	}
}
