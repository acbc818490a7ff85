// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package clustermonitor

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	queueUp       *prometheus.GaugeVec
	runningJobs   *prometheus.GaugeVec
	queuedJobs    *prometheus.GaugeVec
	probeErrors   *prometheus.CounterVec
	cycleDuration prometheus.Summary
}

func newMetrics(subsystem string, reg *prometheus.Registry) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &metrics{}
	m.queueUp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "airavata",
		Subsystem: subsystem,
		Name:      "queue_up",
		Help:      "1 if the queue was reported up by the latest probe, else 0.",
	}, []string{"host", "queue"})
	reg.MustRegister(m.queueUp)
	m.runningJobs = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "airavata",
		Subsystem: subsystem,
		Name:      "queue_running_jobs",
		Help:      "Number of running jobs reported by the latest probe.",
	}, []string{"host", "queue"})
	reg.MustRegister(m.runningJobs)
	m.queuedJobs = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "airavata",
		Subsystem: subsystem,
		Name:      "queue_queued_jobs",
		Help:      "Number of queued jobs reported by the latest probe.",
	}, []string{"host", "queue"})
	reg.MustRegister(m.queuedJobs)
	m.probeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "airavata",
		Subsystem: subsystem,
		Name:      "probe_errors_total",
		Help:      "Number of failed compute resource probes.",
	}, []string{"compute_resource"})
	reg.MustRegister(m.probeErrors)
	m.cycleDuration = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace:  "airavata",
		Subsystem:  subsystem,
		Name:       "cycle_duration_seconds",
		Help:       "Time taken by each monitor cycle.",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	})
	reg.MustRegister(m.cycleDuration)
	return m
}

func (m *metrics) observe(rr ResourceResult) {
	if rr.Failed() {
		m.probeErrors.WithLabelValues(rr.ComputeResourceID).Inc()
	}
	for _, qs := range rr.Statuses {
		up := 0.0
		if qs.QueueUp {
			up = 1
		}
		m.queueUp.WithLabelValues(qs.HostName, qs.QueueName).Set(up)
		m.runningJobs.WithLabelValues(qs.HostName, qs.QueueName).Set(float64(qs.RunningJobs))
		m.queuedJobs.WithLabelValues(qs.HostName, qs.QueueName).Set(float64(qs.QueuedJobs))
	}
}
