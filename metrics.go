package connect

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricEventsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "airship_stream_events_received_total",
		Help: "Events decoded from the stream and handed to the caller",
	})

	metricKeepalives = promauto.NewCounter(prometheus.CounterOpts{
		Name: "airship_stream_keepalives_total",
		Help: "Keepalive frames swallowed by the connection",
	})

	metricDecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "airship_stream_decode_errors_total",
		Help: "Malformed frames skipped by the consumer",
	})

	metricConnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "airship_stream_connect_attempts_total",
		Help: "Stream connect attempts, including reconnects",
	})

	metricReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "airship_stream_reconnects_total",
		Help: "Reconnects triggered by transient stream failures",
	})

	metricAcks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "airship_stream_acks_total",
		Help: "Events acknowledged by the caller",
	})

	metricState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "airship_stream_consumer_state",
		Help: "Consumer state (0=disconnected 1=connecting 2=streaming 3=reconnecting)",
	})
)
