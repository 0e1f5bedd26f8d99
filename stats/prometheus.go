package stats

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fwdPacketsDesc = prometheus.NewDesc(
		"xdpfwd_forwarded_packets_total",
		"Packets forwarded by the XDP program.",
		nil, nil)
	fwdBytesDesc = prometheus.NewDesc(
		"xdpfwd_forwarded_bytes_total",
		"Bytes forwarded by the XDP program.",
		nil, nil)
	passPacketsDesc = prometheus.NewDesc(
		"xdpfwd_passed_packets_total",
		"Packets passed to the network stack unmodified.",
		nil, nil)
	passBytesDesc = prometheus.NewDesc(
		"xdpfwd_passed_bytes_total",
		"Bytes passed to the network stack unmodified.",
		nil, nil)
	dropPacketsDesc = prometheus.NewDesc(
		"xdpfwd_dropped_packets_total",
		"Packets dropped by the XDP program.",
		nil, nil)
	dropBytesDesc = prometheus.NewDesc(
		"xdpfwd_dropped_bytes_total",
		"Bytes dropped by the XDP program.",
		nil, nil)
)

// Exporter publishes the most recent counter totals as Prometheus
// metrics. The control loop calls Update once per sample; scrapes read
// the stored totals, so a scrape never touches the kernel map.
type Exporter struct {
	mu     sync.Mutex
	totals Counters
}

// NewExporter returns an Exporter with zeroed totals.
func NewExporter() *Exporter {
	return &Exporter{}
}

// Update stores the latest totals.
func (e *Exporter) Update(totals Counters) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.totals = totals
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- fwdPacketsDesc
	ch <- fwdBytesDesc
	ch <- passPacketsDesc
	ch <- passBytesDesc
	ch <- dropPacketsDesc
	ch <- dropBytesDesc
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	e.mu.Lock()
	totals := e.totals
	e.mu.Unlock()

	ch <- prometheus.MustNewConstMetric(fwdPacketsDesc, prometheus.CounterValue, float64(totals.FwdPackets))
	ch <- prometheus.MustNewConstMetric(fwdBytesDesc, prometheus.CounterValue, float64(totals.FwdBytes))
	ch <- prometheus.MustNewConstMetric(passPacketsDesc, prometheus.CounterValue, float64(totals.PassPackets))
	ch <- prometheus.MustNewConstMetric(passBytesDesc, prometheus.CounterValue, float64(totals.PassBytes))
	ch <- prometheus.MustNewConstMetric(dropPacketsDesc, prometheus.CounterValue, float64(totals.DropPackets))
	ch <- prometheus.MustNewConstMetric(dropBytesDesc, prometheus.CounterValue, float64(totals.DropBytes))
}

// NewMetricsServer registers the exporter on a fresh registry and
// returns an HTTP server exposing /metrics on addr. The caller owns
// the server's lifecycle.
func NewMetricsServer(addr string, exporter *Exporter) (*http.Server, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(exporter); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &http.Server{Addr: addr, Handler: mux}, nil
}
