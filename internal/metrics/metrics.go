package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/dbehnke/mcdu429/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mcdu429"

var (
	registerOnce sync.Once

	busWords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "words_total",
			Help:      "ARINC-429 words sent or received per endpoint.",
		},
		[]string{"endpoint", "direction"},
	)
	sendErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "send_errors_total",
			Help:      "Words the bus driver refused to send.",
		},
		[]string{"endpoint"},
	)
	recordsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "records_sent_total",
			Help:      "Display records framed onto the bus, by CNTRL layout.",
		},
		[]string{"endpoint", "layout"},
	)
	handshakeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "events_total",
			Help:      "Handshake events: retry, timeout, exhausted, heartbeat, keypress, mal_locked, mal_released.",
		},
		[]string{"endpoint", "event"},
	)
	stateChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "state_changes_total",
			Help:      "Transmission state transitions.",
		},
		[]string{"endpoint", "from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "state",
			Help:      "Current transmission state (0 Idle, 1 RTS, 2 SendData, 3 Scratchpad).",
		},
		[]string{"endpoint"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total status API requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Status API request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(busWords, sendErrors, recordsSent, handshakeEvents,
			stateChanges, currentState, httpRequests, httpDuration)
	})
}

// Observer turns engine events into Prometheus samples.
type Observer struct{}

// NewObserver registers the collectors and returns an observer.
func NewObserver() *Observer {
	Register()
	return &Observer{}
}

func (*Observer) Observe(ev transport.Event) {
	switch ev.Kind {
	case transport.EventWordSent:
		busWords.WithLabelValues(ev.Endpoint, "tx").Inc()
	case transport.EventWordReceived:
		busWords.WithLabelValues(ev.Endpoint, "rx").Inc()
	case transport.EventSendError:
		sendErrors.WithLabelValues(ev.Endpoint).Inc()
	case transport.EventRecordSent:
		recordsSent.WithLabelValues(ev.Endpoint, ev.Layout.String()).Inc()
	case transport.EventStateChange:
		stateChanges.WithLabelValues(ev.Endpoint, ev.From.String(), ev.To.String()).Inc()
		currentState.WithLabelValues(ev.Endpoint).Set(float64(ev.To))
	case transport.EventRetry, transport.EventTimeout, transport.EventExhausted,
		transport.EventHeartbeat, transport.EventKeypress,
		transport.EventMALLocked, transport.EventMALReleased:
		handshakeEvents.WithLabelValues(ev.Endpoint, ev.Kind.String()).Inc()
	}
}

// RecordHTTPRequest counts one status API request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	Register()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
