package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "forumd"

var (
	descSessionsActive = prometheus.NewDesc(
		namespace+"_sessions_active", "Sessions currently connected.", nil, nil)
	descSessionsTotal = prometheus.NewDesc(
		namespace+"_sessions_total", "Sessions accepted since start.", nil, nil)
	descSessionsRejected = prometheus.NewDesc(
		namespace+"_sessions_rejected_total", "Sessions that failed the greeting check.", nil, nil)
	descConnsRefused = prometheus.NewDesc(
		namespace+"_connections_refused_total", "Connections refused at the concurrency cap.", nil, nil)
	descCommands = prometheus.NewDesc(
		namespace+"_commands_total", "Command lines dispatched.", nil, nil)
	descBackendCalls = prometheus.NewDesc(
		namespace+"_backend_calls_total", "Backend Gateway calls by outcome.", []string{"outcome"}, nil)
	descBytes = prometheus.NewDesc(
		namespace+"_session_bytes_total", "Bytes moved over session connections.", []string{"direction"}, nil)
	descErrors = prometheus.NewDesc(
		namespace+"_errors_total", "Errors recorded by the server.", nil, nil)
)

// Describe implements [prometheus.Collector].
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		descSessionsActive, descSessionsTotal, descSessionsRejected,
		descConnsRefused, descCommands, descBackendCalls, descBytes, descErrors,
	} {
		ch <- d
	}
}

// Collect implements [prometheus.Collector].
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.Snapshot()
	gauge := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v), labels...)
	}
	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	gauge(descSessionsActive, s.SessionsActive)
	counter(descSessionsTotal, s.SessionsTotal)
	counter(descSessionsRejected, s.SessionsRejected)
	counter(descConnsRefused, s.ConnectionsRefused)
	counter(descCommands, s.Commands)
	counter(descBackendCalls, s.BackendCalls-s.BackendErrors, "ok")
	counter(descBackendCalls, s.BackendErrors, "error")
	counter(descBytes, s.BytesIn, "in")
	counter(descBytes, s.BytesOut, "out")
	counter(descErrors, s.ErrorsTotal)
}

var _ prometheus.Collector = (*Collector)(nil)
