// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package rescheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/apache/airavata-metascheduler/lib/selection"
	"github.com/apache/airavata-metascheduler/sdk/go/ctxlog"
	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// backoffRescheduler dequeues QUEUED processes as soon as the
// selection policy finds a resource. A REQUEUED process is retried
// once fib(n) scanning intervals have passed since its last status
// change, where n is the number of times it has been requeued; after
// MaximumReschedulerThreshold requeues it fails.
type backoffRescheduler struct {
	reg    Registry
	policy selection.Policy
	config Config
	now    func() time.Time
}

func newBackoffRescheduler(deps Deps) (Rescheduler, error) {
	if deps.Config.MaximumReschedulerThreshold < 0 {
		return nil, fmt.Errorf("invalid MaximumReschedulerThreshold %d", deps.Config.MaximumReschedulerThreshold)
	}
	return &backoffRescheduler{
		reg:    deps.Registry,
		policy: deps.Policy,
		config: deps.Config,
		now:    deps.Now,
	}, nil
}

func (br *backoffRescheduler) Reschedule(ctx context.Context, proc metascheduler.Process, state metascheduler.ProcessState) (Outcome, error) {
	// Don't modify the caller's slices.
	proc.StatusHistory = append([]metascheduler.ProcessStatus(nil), proc.StatusHistory...)
	proc.Inputs = append([]metascheduler.InputDataObject(nil), proc.Inputs...)

	logger := ctxlog.FromContext(ctx).WithFields(logrus.Fields{
		"ProcessID":    proc.ID,
		"ExperimentID": proc.ExperimentID,
		"State":        state,
	})
	switch state {
	case metascheduler.ProcessStateQueued:
		return br.dequeue(ctx, logger, &proc)
	case metascheduler.ProcessStateRequeued:
		return br.requeued(ctx, logger, &proc)
	default:
		return OutcomeNoResource, fmt.Errorf("cannot reschedule process %s in state %s", proc.ID, state)
	}
}

func (br *backoffRescheduler) requeued(ctx context.Context, logger logrus.FieldLogger, proc *metascheduler.Process) (Outcome, error) {
	n := proc.RequeueCount()
	if n >= br.config.MaximumReschedulerThreshold {
		reason := fmt.Sprintf("requeued %d times, limit is %d", n, br.config.MaximumReschedulerThreshold)
		err := transition(ctx, proc, eventFail, br.now(), reason)
		if err != nil {
			return OutcomeNoResource, err
		}
		err = br.reg.UpdateProcess(ctx, proc)
		if err != nil {
			return OutcomeNoResource, fmt.Errorf("update process: %w", err)
		}
		logger.WithField("RequeueCount", n).Warn("process failed: reschedule limit reached")
		return OutcomeFailed, nil
	}

	last := proc.LastStatusChange()
	st, err := br.reg.GetProcessStatus(ctx, proc.ID)
	if err == nil {
		last = st.TimeOfStateChange
	} else if !errors.Is(err, metascheduler.ErrNotFound) {
		return OutcomeNoResource, fmt.Errorf("get process status: %w", err)
	}
	now := br.now()
	backoff := Backoff(n, br.config.JobScanningInterval)
	if now.Sub(last) < backoff {
		logger.WithFields(logrus.Fields{
			"RequeueCount": n,
			"Backoff":      backoff.String(),
		}).Debugf("waiting to reschedule, next attempt %s", humanize.RelTime(last.Add(backoff), now, "ago", "from now"))
		return OutcomeBackoff, nil
	}

	err = br.reg.DeleteJobs(ctx, proc.ID)
	if err != nil {
		return OutcomeNoResource, fmt.Errorf("delete jobs: %w", err)
	}
	return br.dequeue(ctx, logger, proc)
}

// dequeue places proc on the resource chosen by the selection
// policy and moves it to DEQUEUING.
func (br *backoffRescheduler) dequeue(ctx context.Context, logger logrus.FieldLogger, proc *metascheduler.Process) (Outcome, error) {
	sel, ok, err := br.policy.SelectComputeResource(ctx, proc.ID)
	if err != nil {
		return OutcomeNoResource, fmt.Errorf("select compute resource: %w", err)
	}
	if !ok {
		logger.Debug("no compute resource available")
		return OutcomeNoResource, nil
	}

	exp, err := br.reg.GetExperiment(ctx, proc.ExperimentID)
	if err != nil {
		return OutcomeNoResource, fmt.Errorf("get experiment: %w", err)
	}
	mergeSchedulingInputs(exp.Inputs, sel)
	mergeSchedulingInputs(proc.Inputs, sel)
	// Processes are stored separately.
	exp.Processes = nil

	proc.ComputeResourceID = sel.ResourceHostID
	proc.ResourceScheduling = sel.Scheduling()
	err = transition(ctx, proc, eventDequeue, br.now(), "")
	if err != nil {
		return OutcomeNoResource, err
	}

	err = br.reg.UpdateExperimentAndProcess(ctx, exp, proc)
	if err != nil {
		return OutcomeNoResource, fmt.Errorf("update experiment and process: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"ComputeResourceID": sel.ResourceHostID,
		"Queue":             sel.QueueName,
	}).Info("process dequeued")
	return OutcomeDequeued, nil
}

// mergeSchedulingInputs stores the selected wall time and group
// count in the reserved inputs that carry them to the job script.
// Zero values leave the inputs unchanged.
func mergeSchedulingInputs(inputs []metascheduler.InputDataObject, sel metascheduler.ComputeResourceSelection) {
	for i := range inputs {
		switch inputs[i].Name {
		case metascheduler.InputNameWallTime:
			if sel.WallTimeLimit > 0 {
				inputs[i].Value = "-walltime=" + strconv.Itoa(sel.WallTimeLimit)
			}
		case metascheduler.InputNameParallelGroupCount:
			if sel.GroupCount > 0 {
				inputs[i].Value = "-mgroupcount=" + strconv.Itoa(sel.GroupCount)
			}
		}
	}
}
