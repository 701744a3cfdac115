package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ConnectionsActive tracks currently open websocket connections.
var ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "scene_ws_connections_active",
	Help: "Currently open websocket connections.",
})

// EventsTotal counts inbound protocol events by name.
var EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "scene_events_total",
	Help: "Inbound protocol events processed, by event name.",
}, []string{"event"})

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
