package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WSConnections counts websocket upgrades accepted.
	WSConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_connections_total",
		Help: "Websocket connections accepted.",
	})

	// EventsBroadcast counts frames fanned out to rooms, by event kind.
	EventsBroadcast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_events_broadcast_total",
		Help: "Frames broadcast to room members, labeled by event kind.",
	}, []string{"event"})

	// FallbackSends counts messages accepted over the request/response
	// fallback instead of the socket.
	FallbackSends = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_fallback_sends_total",
		Help: "Messages accepted via the REST fallback path.",
	})
)

// Handler serves the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
