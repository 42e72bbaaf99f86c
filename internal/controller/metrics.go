// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package controller

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are feed controller metrics. One value may be shared by many
// controllers; series are labeled by feed.
type Metrics struct {
	fetches  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	size     *prometheus.GaugeVec
}

// NewMetrics creates controller metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedsync",
			Name:      "fetches_total",
			Help:      "Page fetches by feed and outcome.",
		}, []string{"feed", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "feedsync",
			Name:      "fetch_duration_seconds",
			Help:      "Page fetch latency by feed.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"feed"}),
		size: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "feedsync",
			Name:      "items",
			Help:      "Items currently held by a feed.",
		}, []string{"feed"}),
	}
	reg.MustRegister(m.fetches, m.duration, m.size)
	return m
}

func (m *Metrics) fetch(feedKey, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(feedKey, outcome).Inc()
	m.duration.WithLabelValues(feedKey).Observe(d.Seconds())
}

func (m *Metrics) items(feedKey string, n int) {
	if m == nil {
		return
	}
	m.size.WithLabelValues(feedKey).Set(float64(n))
}
