// Package metrics exposes Prometheus metrics for the MUD client and mapper.
// All recording methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus metric descriptors for a session.
type Metrics struct {
	startTime time.Time
	gatherer  prometheus.Gatherer

	bytesRecvTotal   prometheus.Counter
	bytesSentTotal   prometheus.Counter
	linesTotal       prometheus.Counter
	gmcpTotal        *prometheus.CounterVec
	malformedTotal   prometheus.Counter
	protocolErrors   *prometheus.CounterVec
	commandsTotal    *prometheus.CounterVec
	sessionState     *prometheus.GaugeVec
	roomsTotal       prometheus.Gauge
	edgesTotal       prometheus.Gauge
	exploredTotal    prometheus.Gauge
	savesTotal       *prometheus.CounterVec
	enrichmentsTotal *prometheus.CounterVec
	feedClients      prometheus.Gauge
	uptimeSeconds    prometheus.Gauge
	goroutines       prometheus.Gauge
}

// States lists the session states reported by the session_state gauge.
var States = []string{"disconnected", "connecting", "negotiating", "authenticating", "ready"}

// New creates metrics and registers them with reg. A nil reg uses a fresh
// private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		startTime: time.Now(),
		gatherer:  reg,
		bytesRecvTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mudmapper_bytes_received_total",
			Help: "Total bytes received from the MUD server.",
		}),
		bytesSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mudmapper_bytes_sent_total",
			Help: "Total bytes sent to the MUD server.",
		}),
		linesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mudmapper_lines_received_total",
			Help: "Total text lines and prompts received.",
		}),
		gmcpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mudmapper_gmcp_messages_total",
			Help: "GMCP messages received by module.",
		}, []string{"module"}),
		malformedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mudmapper_telnet_malformed_total",
			Help: "Malformed telnet sequences skipped.",
		}),
		protocolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mudmapper_gmcp_errors_total",
			Help: "GMCP messages dropped because they could not be decoded.",
		}, []string{"module"}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mudmapper_commands_sent_total",
			Help: "Commands sent to the server by origin.",
		}, []string{"origin"}),
		sessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mudmapper_session_state",
			Help: "1 for the current session state, 0 otherwise.",
		}, []string{"state"}),
		roomsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mudmapper_rooms_total",
			Help: "Rooms in the world map.",
		}),
		edgesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mudmapper_edges_total",
			Help: "Edges in the world map.",
		}),
		exploredTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mudmapper_rooms_explored",
			Help: "Rooms that have been visited at least once.",
		}),
		savesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mudmapper_map_saves_total",
			Help: "Map saves by result.",
		}, []string{"result"}),
		enrichmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mudmapper_enrichments_total",
			Help: "Room enrichment attempts by result.",
		}, []string{"result"}),
		feedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mudmapper_feed_clients",
			Help: "Connected websocket feed clients.",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mudmapper_uptime_seconds",
			Help: "Process uptime in seconds.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mudmapper_goroutines",
			Help: "Number of active goroutines.",
		}),
	}

	reg.MustRegister(
		m.bytesRecvTotal,
		m.bytesSentTotal,
		m.linesTotal,
		m.gmcpTotal,
		m.malformedTotal,
		m.protocolErrors,
		m.commandsTotal,
		m.sessionState,
		m.roomsTotal,
		m.edgesTotal,
		m.exploredTotal,
		m.savesTotal,
		m.enrichmentsTotal,
		m.feedClients,
		m.uptimeSeconds,
		m.goroutines,
	)
	return m
}

// BytesReceived counts bytes read from the socket.
func (m *Metrics) BytesReceived(n int) {
	if m == nil {
		return
	}
	m.bytesRecvTotal.Add(float64(n))
}

// BytesSent counts bytes written to the socket.
func (m *Metrics) BytesSent(n int) {
	if m == nil {
		return
	}
	m.bytesSentTotal.Add(float64(n))
}

// Line counts a received line or prompt.
func (m *Metrics) Line() {
	if m == nil {
		return
	}
	m.linesTotal.Inc()
}

// GMCP counts a received GMCP message.
func (m *Metrics) GMCP(module string) {
	if m == nil {
		return
	}
	m.gmcpTotal.WithLabelValues(module).Inc()
}

// Malformed counts a skipped telnet sequence.
func (m *Metrics) Malformed() {
	if m == nil {
		return
	}
	m.malformedTotal.Inc()
}

// ProtocolError counts a GMCP message that failed to decode.
func (m *Metrics) ProtocolError(module string) {
	if m == nil {
		return
	}
	m.protocolErrors.WithLabelValues(module).Inc()
}

// Command counts a command sent, by origin ("user", "auto", "walk", "login").
func (m *Metrics) Command(origin string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(origin).Inc()
}

// State marks state as the current session state.
func (m *Metrics) State(state string) {
	if m == nil {
		return
	}
	for _, s := range States {
		v := 0.0
		if s == state {
			v = 1
		}
		m.sessionState.WithLabelValues(s).Set(v)
	}
}

// Graph records world map sizes.
func (m *Metrics) Graph(rooms, explored, edges int) {
	if m == nil {
		return
	}
	m.roomsTotal.Set(float64(rooms))
	m.exploredTotal.Set(float64(explored))
	m.edgesTotal.Set(float64(edges))
}

// Save records a map save outcome.
func (m *Metrics) Save(err error) {
	if m == nil {
		return
	}
	m.savesTotal.WithLabelValues(result(err)).Inc()
}

// Enrichment records an enrichment outcome: "ok", "error" or "dropped".
func (m *Metrics) Enrichment(outcome string) {
	if m == nil {
		return
	}
	m.enrichmentsTotal.WithLabelValues(outcome).Inc()
}

// FeedClients sets the number of connected feed clients.
func (m *Metrics) FeedClients(n int) {
	if m == nil {
		return
	}
	m.feedClients.Set(float64(n))
}

// Update refreshes process gauges.
func (m *Metrics) Update() {
	m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())
	m.goroutines.Set(float64(runtime.NumGoroutine()))
}

// Handler returns an http.Handler that updates metrics before serving them.
func (m *Metrics) Handler() http.Handler {
	inner := promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Update()
		inner.ServeHTTP(w, r)
	})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
