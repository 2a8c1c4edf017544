// Package metrics holds relay counters and exports them to Prometheus.
package metrics

import (
	"net/http"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samdemo/samrelay/log2"
)

const namespace = "samrelay"

type Stat struct {
	NodeLines       prometheus.Counter
	RelayedLines    prometheus.Counter
	Telemetry       prometheus.Counter
	SensorFailures  prometheus.Counter
	Overflows       *prometheus.CounterVec // label source
	Commands        *prometheus.CounterVec // label state
	Dropped         prometheus.Counter
	ConnectAttempts prometheus.Counter
	Connected       prometheus.Gauge
	Heater          prometheus.Gauge
	Errors          prometheus.Counter

	registry *prometheus.Registry
}

func NewStat() *Stat {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}
	self := &Stat{
		NodeLines:      counter("node_lines_total", "Lines received from measurement node."),
		RelayedLines:   counter("relayed_lines_total", "Node lines forwarded to transport."),
		Telemetry:      counter("telemetry_records_total", "Sensor records encoded."),
		SensorFailures: counter("sensor_failures_total", "Sensor samples skipped due to NaN."),
		Overflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "line_overflows_total",
			Help: "Partial lines discarded on line buffer overflow.",
		}, []string{"source"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "heater_commands_total",
			Help: "Heater commands applied.",
		}, []string{"state"}),
		Dropped:         counter("transport_dropped_total", "Outbound lines dropped while transport offline."),
		ConnectAttempts: counter("transport_connect_attempts_total", "Socket connection attempts."),
		Connected:       gauge("transport_ready", "1 when transport is ready to send."),
		Heater:          gauge("heater_on", "Heater output level."),
		Errors:          counter("errors_total", "Errors logged."),
		registry:        prometheus.NewRegistry(),
	}
	self.registry.MustRegister(
		self.NodeLines, self.RelayedLines, self.Telemetry, self.SensorFailures,
		self.Overflows, self.Commands, self.Dropped, self.ConnectAttempts,
		self.Connected, self.Heater, self.Errors,
	)
	return self
}

func (self *Stat) Registry() *prometheus.Registry { return self.registry }

func (self *Stat) ErrorFunc(error) { self.Errors.Inc() }

// Serve exposes /metrics on listen address in background.
// Listen errors after start are logged, metrics are not critical for relay.
func (self *Stat) Serve(log *log2.Log, listen string) (*http.Server, error) {
	if listen == "" {
		return nil, errors.NotValidf("metrics listen address empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(self.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: listen, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics listen=%s err=%v", listen, err)
		}
	}()
	log.Infof("metrics listen=%s", listen)
	return srv, nil
}
