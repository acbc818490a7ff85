// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package selection

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
	"github.com/sirupsen/logrus"
)

// multiplePolicy picks the first of the experiment's candidate
// placements whose queue was last seen up. If the experiment has no
// candidates, its configured placement is used the same way.
type multiplePolicy struct {
	reg    Registry
	logger logrus.FieldLogger
}

func newMultiplePolicy(reg Registry, logger logrus.FieldLogger) (Policy, error) {
	return &multiplePolicy{reg: reg, logger: logger}, nil
}

func (mp *multiplePolicy) SelectComputeResource(ctx context.Context, processID string) (metascheduler.ComputeResourceSelection, bool, error) {
	exp, err := experimentFor(ctx, mp.reg, processID)
	if err != nil {
		return metascheduler.ComputeResourceSelection{}, false, err
	}
	ucd := exp.UserConfigurationData
	candidates := ucd.AutoScheduledCompResourceSchedulingList
	if len(candidates) == 0 && ucd.ComputeResourceScheduling.ResourceHostID != "" {
		candidates = []metascheduler.ComputationalResourceScheduling{ucd.ComputeResourceScheduling}
	}
	for _, cand := range candidates {
		logger := mp.logger.WithFields(logrus.Fields{
			"ProcessID":         processID,
			"ComputeResourceID": cand.ResourceHostID,
			"Queue":             cand.QueueName,
		})
		up, err := mp.queueUp(ctx, cand)
		if errors.Is(err, metascheduler.ErrNotFound) {
			logger.WithError(err).Info("skipping unknown compute resource")
			continue
		} else if err != nil {
			return metascheduler.ComputeResourceSelection{}, false, err
		}
		if !up {
			logger.Debug("queue is not up")
			continue
		}
		return selectionFromScheduling(cand), true, nil
	}
	return metascheduler.ComputeResourceSelection{}, false, nil
}

func (mp *multiplePolicy) queueUp(ctx context.Context, sched metascheduler.ComputationalResourceScheduling) (bool, error) {
	crd, err := mp.reg.GetComputeResource(ctx, sched.ResourceHostID)
	if err != nil {
		return false, fmt.Errorf("get compute resource: %w", err)
	}
	if !crd.Enabled {
		return false, nil
	}
	qs, err := mp.reg.GetQueueStatus(ctx, crd.HostName, sched.QueueName)
	if err != nil {
		return false, fmt.Errorf("get queue status: %w", err)
	}
	return qs.QueueUp, nil
}

// defaultPolicy returns the experiment's configured placement
// without checking queue status.
type defaultPolicy struct {
	reg Registry
}

func newDefaultPolicy(reg Registry, logger logrus.FieldLogger) (Policy, error) {
	return &defaultPolicy{reg: reg}, nil
}

func (dp *defaultPolicy) SelectComputeResource(ctx context.Context, processID string) (metascheduler.ComputeResourceSelection, bool, error) {
	exp, err := experimentFor(ctx, dp.reg, processID)
	if err != nil {
		return metascheduler.ComputeResourceSelection{}, false, err
	}
	sched := exp.UserConfigurationData.ComputeResourceScheduling
	if sched.ResourceHostID == "" || sched.QueueName == "" {
		return metascheduler.ComputeResourceSelection{}, false, nil
	}
	return selectionFromScheduling(sched), true, nil
}
