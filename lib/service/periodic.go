// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/apache/airavata-metascheduler/sdk/go/ctxlog"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Locker is a cluster-wide lock held for as long as a periodic task
// runs. See dblock.Locker.
type Locker interface {
	Lock(context.Context) bool
	Check() bool
	Unlock()
}

// Periodic runs a task at a fixed interval, starting immediately.
// Runs never overlap: if a run takes longer than the interval, the
// next run starts when it finishes.
//
// Periodic implements Handler.
type Periodic struct {
	name     string
	interval time.Duration
	run      func(context.Context) error
	lock     Locker

	done chan struct{}
	mtx  sync.Mutex
	err  error // reason the loop stopped

	mRuns        *prometheus.CounterVec
	mLastSuccess prometheus.Gauge
	mDuration    prometheus.Summary
}

// StartPeriodic starts running task every interval, until ctx is
// canceled. If lock is not nil, the task only runs while the lock is
// held.
func StartPeriodic(ctx context.Context, name string, interval time.Duration, task func(context.Context) error, lock Locker, reg *prometheus.Registry) *Periodic {
	p := &Periodic{
		name:     name,
		interval: interval,
		run:      task,
		lock:     lock,
		done:     make(chan struct{}),
	}
	p.registerMetrics(reg)
	go p.loop(ctx)
	return p
}

func (p *Periodic) registerMetrics(reg *prometheus.Registry) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	p.mRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "airavata",
		Subsystem:   "metascheduler",
		Name:        "task_runs_total",
		Help:        "Number of completed periodic task runs.",
		ConstLabels: prometheus.Labels{"task": p.name},
	}, []string{"result"})
	reg.MustRegister(p.mRuns)
	p.mLastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "airavata",
		Subsystem:   "metascheduler",
		Name:        "task_last_success_timestamp_seconds",
		Help:        "Time the periodic task last finished without error.",
		ConstLabels: prometheus.Labels{"task": p.name},
	})
	reg.MustRegister(p.mLastSuccess)
	p.mDuration = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace:   "airavata",
		Subsystem:   "metascheduler",
		Name:        "task_run_duration_seconds",
		Help:        "Time taken by each periodic task run.",
		ConstLabels: prometheus.Labels{"task": p.name},
		Objectives:  map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	})
	reg.MustRegister(p.mDuration)
}

// CheckHealth returns an error if the task loop has stopped for a
// reason other than cancellation.
func (p *Periodic) CheckHealth() error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.err
}

// Done returns a channel that closes when the task loop stops.
func (p *Periodic) Done() <-chan struct{} {
	return p.done
}

func (p *Periodic) loop(ctx context.Context) {
	defer close(p.done)
	logger := ctxlog.FromContext(ctx).WithField("Task", p.name)
	if p.interval <= 0 {
		p.stop(errors.New("task interval must be positive"))
		logger.Error("task interval must be positive")
		return
	}
	if p.lock != nil {
		if !p.lock.Lock(ctx) {
			p.lockFailed(ctx, logger, "could not acquire lock")
			return
		}
		defer p.lock.Unlock()
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		if p.lock != nil && !p.lock.Check() {
			p.lockFailed(ctx, logger, "lost lock")
			return
		}
		p.runOnce(ctx, logger)
		select {
		case <-ctx.Done():
			logger.Info("stopping")
			return
		case <-ticker.C:
		}
	}
}

func (p *Periodic) runOnce(ctx context.Context, logger logrus.FieldLogger) {
	logger = logger.WithField("RunID", uuid.New().String())
	ctx = ctxlog.Context(ctx, logger)
	t0 := time.Now()
	logger.Debug("starting run")
	err := p.run(ctx)
	elapsed := time.Since(t0)
	p.mDuration.Observe(elapsed.Seconds())
	if err != nil {
		p.mRuns.WithLabelValues("error").Inc()
		logger.WithError(err).WithField("Elapsed", elapsed.String()).Warn("run failed")
		return
	}
	p.mRuns.WithLabelValues("ok").Inc()
	p.mLastSuccess.SetToCurrentTime()
	logger.WithField("Elapsed", elapsed.String()).Debug("run finished")
}

// lockFailed records an error unless the loop is stopping because
// ctx is done.
func (p *Periodic) lockFailed(ctx context.Context, logger logrus.FieldLogger, msg string) {
	if ctx.Err() != nil {
		logger.Info("stopping")
		return
	}
	p.stop(errors.New(msg))
	logger.Error(msg)
}

func (p *Periodic) stop(err error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.err = err
}
