// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apache/airavata-metascheduler/sdk/go/ctxlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	check "gopkg.in/check.v1"
)

var _ = check.Suite(&periodicSuite{})

type periodicSuite struct {
	ctx    context.Context
	cancel context.CancelFunc
	reg    *prometheus.Registry
}

func (s *periodicSuite) SetUpTest(c *check.C) {
	s.ctx, s.cancel = context.WithCancel(ctxlog.Context(context.Background(), ctxlog.TestLogger(c)))
	s.reg = prometheus.NewRegistry()
}

func (s *periodicSuite) TearDownTest(c *check.C) {
	s.cancel()
}

func (s *periodicSuite) wait(c *check.C, p *Periodic) {
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		c.Fatal("timed out waiting for task loop to stop")
	}
}

func (s *periodicSuite) TestRunsUntilCanceled(c *check.C) {
	var runs int64
	p := StartPeriodic(s.ctx, "test", time.Millisecond, func(ctx context.Context) error {
		if atomic.AddInt64(&runs, 1) == 3 {
			s.cancel()
		}
		return nil
	}, nil, s.reg)
	s.wait(c, p)
	c.Check(atomic.LoadInt64(&runs), check.Equals, int64(3))
	c.Check(p.CheckHealth(), check.IsNil)
	c.Check(testutil.ToFloat64(p.mRuns.WithLabelValues("ok")), check.Equals, float64(3))
}

func (s *periodicSuite) TestRunsDoNotOverlap(c *check.C) {
	var running, maxRunning, runs int64
	p := StartPeriodic(s.ctx, "test", time.Millisecond, func(ctx context.Context) error {
		n := atomic.AddInt64(&running, 1)
		defer atomic.AddInt64(&running, -1)
		if n > atomic.LoadInt64(&maxRunning) {
			atomic.StoreInt64(&maxRunning, n)
		}
		time.Sleep(10 * time.Millisecond)
		if atomic.AddInt64(&runs, 1) == 5 {
			s.cancel()
		}
		return nil
	}, nil, s.reg)
	s.wait(c, p)
	c.Check(atomic.LoadInt64(&maxRunning), check.Equals, int64(1))
}

func (s *periodicSuite) TestFailedRunContinues(c *check.C) {
	var logbuf bytes.Buffer
	logger := ctxlog.New(&logbuf, "text", "info")
	ctx, cancel := context.WithCancel(ctxlog.Context(context.Background(), logger))
	defer cancel()
	var runs int64
	p := StartPeriodic(ctx, "test", time.Millisecond, func(ctx context.Context) error {
		n := atomic.AddInt64(&runs, 1)
		ctxlog.FromContext(ctx).Info("inside run")
		if n == 1 {
			return errors.New("registry unavailable")
		}
		cancel()
		return nil
	}, nil, s.reg)
	s.wait(c, p)
	c.Check(atomic.LoadInt64(&runs), check.Equals, int64(2))
	c.Check(testutil.ToFloat64(p.mRuns.WithLabelValues("error")), check.Equals, float64(1))
	c.Check(testutil.ToFloat64(p.mRuns.WithLabelValues("ok")), check.Equals, float64(1))
	c.Check(logbuf.String(), check.Matches, `(?ms).*level=warning msg="run failed".*registry unavailable.*`)
	c.Check(logbuf.String(), check.Matches, `(?ms).*msg="inside run" RunID=[-0-9a-f]{36} Task=test.*`)
}

func (s *periodicSuite) TestInvalidInterval(c *check.C) {
	p := StartPeriodic(s.ctx, "test", 0, func(ctx context.Context) error {
		c.Error("task should not run")
		return nil
	}, nil, s.reg)
	s.wait(c, p)
	c.Check(p.CheckHealth(), check.ErrorMatches, `task interval must be positive`)
}

type fakeLocker struct {
	sync.Mutex
	lock     bool
	checks   int
	okChecks int
	unlocked bool
}

func (fl *fakeLocker) Lock(context.Context) bool {
	fl.Mutex.Lock()
	defer fl.Mutex.Unlock()
	return fl.lock
}

func (fl *fakeLocker) Check() bool {
	fl.Mutex.Lock()
	defer fl.Mutex.Unlock()
	fl.checks++
	return fl.checks <= fl.okChecks
}

func (fl *fakeLocker) Unlock() {
	fl.Mutex.Lock()
	defer fl.Mutex.Unlock()
	fl.unlocked = true
}

func (s *periodicSuite) TestLockNotAcquired(c *check.C) {
	fl := &fakeLocker{lock: false}
	p := StartPeriodic(s.ctx, "test", time.Millisecond, func(ctx context.Context) error {
		c.Error("task should not run")
		return nil
	}, fl, s.reg)
	s.wait(c, p)
	c.Check(fl.unlocked, check.Equals, false)
	c.Check(p.CheckHealth(), check.ErrorMatches, `could not acquire lock`)
}

func (s *periodicSuite) TestLockWaitCanceled(c *check.C) {
	fl := &fakeLocker{lock: false}
	s.cancel()
	p := StartPeriodic(s.ctx, "test", time.Millisecond, func(ctx context.Context) error {
		c.Error("task should not run")
		return nil
	}, fl, s.reg)
	s.wait(c, p)
	c.Check(p.CheckHealth(), check.IsNil)
}

func (s *periodicSuite) TestStopsWhenLockLost(c *check.C) {
	fl := &fakeLocker{lock: true, okChecks: 2}
	var runs int64
	p := StartPeriodic(s.ctx, "test", time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt64(&runs, 1)
		return nil
	}, fl, s.reg)
	s.wait(c, p)
	c.Check(atomic.LoadInt64(&runs), check.Equals, int64(2))
	c.Check(p.CheckHealth(), check.ErrorMatches, `lost lock`)
	fl.Mutex.Lock()
	defer fl.Mutex.Unlock()
	c.Check(fl.unlocked, check.Equals, true)
}
