package httpapi

import "github.com/prometheus/client_golang/prometheus"

// MetricsRegistry holds the Prometheus collectors this server exposes at
// /metrics, registered against the default registry on construction.
type MetricsRegistry struct {
	RequestDuration *prometheus.HistogramVec
	TradesTotal     *prometheus.CounterVec
	TradeErrors     *prometheus.CounterVec
	WSConnections   prometheus.Gauge
}

// NewMetricsRegistry builds and registers every collector.
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketsim_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"path", "status"},
		),
		TradesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketsim_trades_total",
				Help: "Total number of trades executed, by side",
			},
			[]string{"side"},
		),
		TradeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketsim_trade_errors_total",
				Help: "Total number of rejected trades, by error kind",
			},
			[]string{"kind"},
		),
		WSConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "marketsim_ws_connections",
				Help: "Current number of connected tick-stream WebSocket clients",
			},
		),
	}
	prometheus.MustRegister(m.RequestDuration, m.TradesTotal, m.TradeErrors, m.WSConnections)
	return m
}
