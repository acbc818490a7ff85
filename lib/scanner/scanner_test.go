// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/apache/airavata-metascheduler/lib/rescheduler"
	"github.com/apache/airavata-metascheduler/lib/test"
	"github.com/apache/airavata-metascheduler/sdk/go/ctxlog"
	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	check "gopkg.in/check.v1"
)

// Gocheck boilerplate
func Test(t *testing.T) {
	check.TestingT(t)
}

var _ = check.Suite(&suite{})

type suite struct {
	ctx context.Context
	reg *test.StubRegistry
}

type call struct {
	processID string
	state     metascheduler.ProcessState
}

// fakeRescheduler records calls and fails for the listed processes.
type fakeRescheduler struct {
	calls []call
	fail  map[string]bool
}

func (fr *fakeRescheduler) Reschedule(ctx context.Context, proc metascheduler.Process, state metascheduler.ProcessState) (rescheduler.Outcome, error) {
	fr.calls = append(fr.calls, call{proc.ID, state})
	if fr.fail[proc.ID] {
		return rescheduler.OutcomeNoResource, errors.New("boom")
	}
	return rescheduler.OutcomeDequeued, nil
}

func (s *suite) SetUpTest(c *check.C) {
	s.ctx = ctxlog.Context(context.Background(), ctxlog.TestLogger(c))
	s.reg = &test.StubRegistry{}
	t0 := time.Now().Add(-time.Hour)
	s.reg.AddProcess(test.Process(1, t0, metascheduler.ProcessStateQueued))
	s.reg.AddProcess(test.Process(2, t0, metascheduler.ProcessStateQueued, metascheduler.ProcessStateDequeuing, metascheduler.ProcessStateRequeued))
	s.reg.AddProcess(test.Process(3, t0, metascheduler.ProcessStateQueued))
	s.reg.AddProcess(test.Process(4, t0, metascheduler.ProcessStateExecuting))
}

func (s *suite) TestQueuedBeforeRequeued(c *check.C) {
	fr := &fakeRescheduler{}
	result, err := New(s.reg, fr, nil).Scan(s.ctx)
	c.Assert(err, check.IsNil)
	c.Assert(fr.calls, check.HasLen, 3)
	c.Check(fr.calls[0].state, check.Equals, metascheduler.ProcessStateQueued)
	c.Check(fr.calls[1].state, check.Equals, metascheduler.ProcessStateQueued)
	c.Check(fr.calls[2], check.Equals, call{test.ProcessID(2), metascheduler.ProcessStateRequeued})
	c.Check(result.Items, check.HasLen, 3)
	c.Check(result.Count(rescheduler.OutcomeDequeued), check.Equals, 3)
}

func (s *suite) TestItemFailureIsIsolated(c *check.C) {
	fr := &fakeRescheduler{fail: map[string]bool{test.ProcessID(1): true}}
	reg := prometheus.NewRegistry()
	sc := New(s.reg, fr, reg)
	result, err := sc.Scan(s.ctx)
	c.Assert(err, check.IsNil)
	c.Check(fr.calls, check.HasLen, 3)
	failures := result.Failures()
	c.Assert(failures, check.HasLen, 1)
	c.Check(failures[0].ProcessID, check.Equals, test.ProcessID(1))
	c.Check(failures[0].Err, check.ErrorMatches, "boom")
	c.Check(result.Count(rescheduler.OutcomeDequeued), check.Equals, 2)

	c.Check(testutil.ToFloat64(sc.mOutcomes.WithLabelValues("QUEUED", "error")), check.Equals, float64(1))
	c.Check(testutil.ToFloat64(sc.mOutcomes.WithLabelValues("QUEUED", "dequeued")), check.Equals, float64(1))
	c.Check(testutil.ToFloat64(sc.mOutcomes.WithLabelValues("REQUEUED", "dequeued")), check.Equals, float64(1))
	c.Check(testutil.ToFloat64(sc.mProcesses.WithLabelValues("QUEUED")), check.Equals, float64(2))
}

func (s *suite) TestListFailureAbortsScan(c *check.C) {
	fr := &fakeRescheduler{}
	s.reg.Errors = map[string]error{"GetProcessListInState:QUEUED": errors.New("registry unreachable")}
	_, err := New(s.reg, fr, nil).Scan(s.ctx)
	c.Check(err, check.ErrorMatches, `error listing QUEUED processes: registry unreachable`)
	c.Check(fr.calls, check.HasLen, 0)

	s.reg.Errors = map[string]error{"GetProcessListInState:REQUEUED": errors.New("registry unreachable")}
	result, err := New(s.reg, fr, nil).Scan(s.ctx)
	c.Check(err, check.ErrorMatches, `error listing REQUEUED processes: registry unreachable`)
	c.Check(result.Items, check.HasLen, 2)
}

func (s *suite) TestCancelled(c *check.C) {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	fr := &fakeRescheduler{}
	_, err := New(s.reg, fr, nil).Scan(ctx)
	c.Check(err, check.Equals, context.Canceled)
	c.Check(fr.calls, check.HasLen, 0)
}

func (s *suite) TestWithBackoffRescheduler(c *check.C) {
	for i := 1; i <= 3; i++ {
		s.reg.AddExperiment(test.Experiment(i))
	}
	policy := &test.StubPolicy{
		Selection: metascheduler.ComputeResourceSelection{ResourceHostID: test.ComputeResourceID(1), QueueName: "normal", WallTimeLimit: 20},
		Errors:    map[string]error{test.ProcessID(3): errors.New("policy failure")},
	}
	rs, err := rescheduler.New(rescheduler.ExponentialBackOffReSchedulerName, rescheduler.Deps{
		Registry: s.reg,
		Policy:   policy,
		Config:   rescheduler.Config{MaximumReschedulerThreshold: 5, JobScanningInterval: time.Minute},
	})
	c.Assert(err, check.IsNil)
	result, err := New(s.reg, rs, nil).Scan(s.ctx)
	c.Assert(err, check.IsNil)
	c.Check(result.Count(rescheduler.OutcomeDequeued), check.Equals, 2)
	c.Check(result.Failures(), check.HasLen, 1)
	p1, p2, p3 := s.reg.Snapshot(test.ProcessID(1)), s.reg.Snapshot(test.ProcessID(2)), s.reg.Snapshot(test.ProcessID(3))
	c.Check(p1.State(), check.Equals, metascheduler.ProcessStateDequeuing)
	c.Check(p2.State(), check.Equals, metascheduler.ProcessStateDequeuing)
	c.Check(p3.State(), check.Equals, metascheduler.ProcessStateQueued)
	c.Check(s.reg.DeletedJobs, check.DeepEquals, []string{test.ProcessID(2)})
}
