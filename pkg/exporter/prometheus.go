package exporter

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/laik/xnet/pkg/report"
)

type PrometheusExporter struct {
	totalPackets prometheus.Gauge
	totalBytes   prometheus.Gauge
	portPackets  *prometheus.GaugeVec
	portBytes    *prometheus.GaugeVec
	devPackets   *prometheus.GaugeVec
	devBytes     *prometheus.GaugeVec

	mu        sync.Mutex
	seenPorts map[string]bool
	seenDevs  map[[2]string]bool
}

func NewPrometheusExporter() *PrometheusExporter {
	p := &PrometheusExporter{
		totalPackets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "xnet_total_packets",
			Help: "Total packets seen on the classifier path",
		}),
		totalBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "xnet_total_bytes",
			Help: "Total bytes seen on the classifier path",
		}),
		portPackets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "xnet_port_packets",
			Help: "Packets per TCP/UDP port",
		}, []string{"port"}),
		portBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "xnet_port_bytes",
			Help: "Bytes per TCP/UDP port",
		}, []string{"port"}),
		devPackets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "xnet_device_packets",
			Help: "Packets per monitored device and direction",
		}, []string{"device", "direction"}),
		devBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "xnet_device_bytes",
			Help: "Bytes per monitored device and direction",
		}, []string{"device", "direction"}),
		seenPorts: make(map[string]bool),
		seenDevs:  make(map[[2]string]bool),
	}

	prometheus.MustRegister(p.totalPackets, p.totalBytes, p.portPackets, p.portBytes, p.devPackets, p.devBytes)
	return p
}

// UpdateStats publishes a fresh summary, dropping series for ports and
// devices that disappeared from the tables.
func (p *PrometheusExporter) UpdateStats(s report.Summary) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalPackets.Set(float64(s.TotalPackets))
	p.totalBytes.Set(float64(s.TotalBytes))

	fresh := make(map[string]bool, len(s.Ports))
	for _, entry := range s.Ports {
		port := strconv.Itoa(int(entry.Port))
		fresh[port] = true
		p.portPackets.WithLabelValues(port).Set(float64(entry.Packets))
		p.portBytes.WithLabelValues(port).Set(float64(entry.Bytes))
	}
	for port := range p.seenPorts {
		if !fresh[port] {
			p.portPackets.DeleteLabelValues(port)
			p.portBytes.DeleteLabelValues(port)
		}
	}
	p.seenPorts = fresh

	freshDevs := make(map[[2]string]bool, len(s.Devices))
	for _, entry := range s.Devices {
		key := [2]string{entry.Device, entry.Direction}
		freshDevs[key] = true
		p.devPackets.WithLabelValues(key[0], key[1]).Set(float64(entry.Packets))
		p.devBytes.WithLabelValues(key[0], key[1]).Set(float64(entry.Bytes))
	}
	for key := range p.seenDevs {
		if !freshDevs[key] {
			p.devPackets.DeleteLabelValues(key[0], key[1])
			p.devBytes.DeleteLabelValues(key[0], key[1])
		}
	}
	p.seenDevs = freshDevs
}

func (p *PrometheusExporter) StartServer(addr string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, nil)
}
