// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics exports session counters in the Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"code.hybscloud.com/chunkspeed"
)

// Collector implements chunkspeed.Observer.
type Collector struct {
	sessions *prometheus.CounterVec
	active   prometheus.Gauge
	bytes    *prometheus.CounterVec
	seconds  *prometheus.HistogramVec
}

var _ chunkspeed.Observer = (*Collector)(nil)

// NewCollector creates the collectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chunkspeed",
			Name:      "sessions_total",
			Help:      "Finished measurement sessions.",
		}, []string{"mode", "reason"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chunkspeed",
			Name:      "sessions_active",
			Help:      "Sessions currently in progress.",
		}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chunkspeed",
			Name:      "bytes_total",
			Help:      "Payload bytes moved, by direction.",
		}, []string{"direction"}),
		seconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chunkspeed",
			Name:      "phase_seconds",
			Help:      "Phase durations, by direction.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}, []string{"direction"}),
	}
	for _, col := range []prometheus.Collector{c.sessions, c.active, c.bytes, c.seconds} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) SessionStarted() { c.active.Inc() }

func (c *Collector) SessionFinished(r chunkspeed.Report) {
	c.active.Dec()
	c.sessions.WithLabelValues(r.Plan.Mode.String(), r.Reason.String()).Inc()
	if r.UploadBytes > 0 {
		c.bytes.WithLabelValues("upload").Add(float64(r.UploadBytes))
		c.seconds.WithLabelValues("upload").Observe(r.Upload.Seconds())
	}
	if r.DownloadBytes > 0 {
		c.bytes.WithLabelValues("download").Add(float64(r.DownloadBytes))
		c.seconds.WithLabelValues("download").Observe(r.Download.Seconds())
	}
}

// Handler serves the registry's metrics.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
