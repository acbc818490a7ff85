// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package rescheduler

import (
	"context"
	"fmt"

	"github.com/apache/airavata-metascheduler/lib/selection"
	"github.com/apache/airavata-metascheduler/sdk/go/ctxlog"
	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
)

// Scheduler answers launch-time questions for the orchestrator.
type Scheduler struct {
	Registry interface {
		GetExperiment(ctx context.Context, experimentID string) (*metascheduler.Experiment, error)
	}
	Policy selection.Policy
}

// CanLaunch reports whether every process of the experiment can be
// placed on a compute resource right now. Experiments that are not
// auto-scheduled can always launch.
func (s *Scheduler) CanLaunch(ctx context.Context, experimentID string) (bool, error) {
	exp, err := s.Registry.GetExperiment(ctx, experimentID)
	if err != nil {
		return false, fmt.Errorf("get experiment: %w", err)
	}
	if !exp.UserConfigurationData.AiravataAutoSchedule {
		return true, nil
	}
	logger := ctxlog.FromContext(ctx).WithField("ExperimentID", experimentID)
	for _, proc := range exp.Processes {
		_, ok, err := s.Policy.SelectComputeResource(ctx, proc.ID)
		if err != nil {
			return false, fmt.Errorf("process %s: %w", proc.ID, err)
		}
		if !ok {
			logger.WithField("ProcessID", proc.ID).Info("no compute resource available, experiment stays queued")
			return false, nil
		}
	}
	return true, nil
}
