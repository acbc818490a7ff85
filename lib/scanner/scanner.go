// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package scanner feeds queued and requeued processes to a
// rescheduler.
package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/airavata-metascheduler/lib/rescheduler"
	"github.com/apache/airavata-metascheduler/sdk/go/ctxlog"
	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Registry lists processes by state.
type Registry interface {
	GetProcessListInState(ctx context.Context, state metascheduler.ProcessState) ([]metascheduler.Process, error)
}

// ItemResult is what happened to one process during a scan.
type ItemResult struct {
	ProcessID string
	State     metascheduler.ProcessState
	Outcome   rescheduler.Outcome
	Err       error
}

// Result aggregates the per-process results of a scan.
type Result struct {
	Items []ItemResult
}

// Failures returns the items whose rescheduling returned an error.
func (r Result) Failures() []ItemResult {
	var failed []ItemResult
	for _, item := range r.Items {
		if item.Err != nil {
			failed = append(failed, item)
		}
	}
	return failed
}

// Count returns the number of items that completed with the given
// outcome.
func (r Result) Count(outcome rescheduler.Outcome) int {
	n := 0
	for _, item := range r.Items {
		if item.Err == nil && item.Outcome == outcome {
			n++
		}
	}
	return n
}

// Scanner runs one rescheduling pass at a time. It is not safe to
// call Scan concurrently.
type Scanner struct {
	registry    Registry
	rescheduler rescheduler.Rescheduler

	mProcesses    *prometheus.GaugeVec
	mOutcomes     *prometheus.CounterVec
	mScanDuration prometheus.Summary
}

// New returns a Scanner. Metrics are registered with reg if it is
// not nil.
func New(registry Registry, rs rescheduler.Rescheduler, reg *prometheus.Registry) *Scanner {
	s := &Scanner{registry: registry, rescheduler: rs}
	s.registerMetrics(reg)
	return s
}

func (s *Scanner) registerMetrics(reg *prometheus.Registry) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	s.mProcesses = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "airavata",
		Subsystem: "metascheduler",
		Name:      "scanned_processes",
		Help:      "Number of processes found in each state by the latest scan.",
	}, []string{"state"})
	reg.MustRegister(s.mProcesses)
	s.mOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "airavata",
		Subsystem: "metascheduler",
		Name:      "reschedule_outcomes_total",
		Help:      "Number of reschedule attempts, by process state and outcome.",
	}, []string{"state", "outcome"})
	reg.MustRegister(s.mOutcomes)
	s.mScanDuration = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace:  "airavata",
		Subsystem:  "metascheduler",
		Name:       "process_scan_duration_seconds",
		Help:       "Time taken by each process scan.",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	})
	reg.MustRegister(s.mScanDuration)
}

// Scan reschedules every QUEUED process, then every REQUEUED
// process. Failures of individual processes are recorded in the
// result. An error listing processes ends the scan; the returned
// result then covers the processes handled so far.
func (s *Scanner) Scan(ctx context.Context) (Result, error) {
	t0 := time.Now()
	defer func() { s.mScanDuration.Observe(time.Since(t0).Seconds()) }()
	logger := ctxlog.FromContext(ctx)

	var result Result
	for _, state := range []metascheduler.ProcessState{metascheduler.ProcessStateQueued, metascheduler.ProcessStateRequeued} {
		procs, err := s.registry.GetProcessListInState(ctx, state)
		if err != nil {
			return result, fmt.Errorf("error listing %s processes: %w", state, err)
		}
		s.mProcesses.WithLabelValues(string(state)).Set(float64(len(procs)))
		logger.WithFields(logrus.Fields{
			"State": state,
			"Count": len(procs),
		}).Debug("scanning processes")
		for _, proc := range procs {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			item := ItemResult{ProcessID: proc.ID, State: state}
			item.Outcome, item.Err = s.rescheduler.Reschedule(ctx, proc, state)
			if item.Err != nil {
				logger.WithError(item.Err).WithFields(logrus.Fields{
					"ProcessID": proc.ID,
					"State":     state,
				}).Warn("reschedule failed, will retry on next scan")
				s.mOutcomes.WithLabelValues(string(state), "error").Inc()
			} else {
				s.mOutcomes.WithLabelValues(string(state), item.Outcome.String()).Inc()
			}
			result.Items = append(result.Items, item)
		}
	}
	logger.WithFields(logrus.Fields{
		"Processes": len(result.Items),
		"Dequeued":  result.Count(rescheduler.OutcomeDequeued),
		"Failed":    result.Count(rescheduler.OutcomeFailed),
		"Errors":    len(result.Failures()),
	}).Info("process scan finished")
	return result, nil
}
