// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package selection provides the named compute resource selection
// policies used to place queued processes.
package selection

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
	"github.com/sirupsen/logrus"
)

// A Policy chooses a compute resource and queue for a process. It
// returns ok=false if no resource is currently suitable.
type Policy interface {
	SelectComputeResource(ctx context.Context, processID string) (sel metascheduler.ComputeResourceSelection, ok bool, err error)
}

// Registry is the subset of the registry used by the built-in
// policies.
type Registry interface {
	GetProcess(ctx context.Context, processID string) (*metascheduler.Process, error)
	GetExperiment(ctx context.Context, experimentID string) (*metascheduler.Experiment, error)
	GetComputeResource(ctx context.Context, computeResourceID string) (*metascheduler.ComputeResourceDescription, error)
	GetQueueStatus(ctx context.Context, hostName, queueName string) (*metascheduler.QueueStatus, error)
}

// A Driver creates a Policy.
type Driver interface {
	Policy(reg Registry, logger logrus.FieldLogger) (Policy, error)
}

// DriverFunc makes a Driver from a func.
type DriverFunc func(reg Registry, logger logrus.FieldLogger) (Policy, error)

func (df DriverFunc) Policy(reg Registry, logger logrus.FieldLogger) (Policy, error) {
	return df(reg, logger)
}

const (
	MultipleComputeResourcePolicyName = "MultipleComputeResourcePolicy"
	DefaultComputeResourcePolicyName  = "DefaultComputeResourcePolicy"
)

var (
	driversMtx sync.Mutex
	drivers    = map[string]Driver{
		MultipleComputeResourcePolicyName: DriverFunc(newMultiplePolicy),
		DefaultComputeResourcePolicyName:  DriverFunc(newDefaultPolicy),
	}
)

// Register makes a policy available to New under the given name. It
// is meant to be called from init functions.
func Register(name string, driver Driver) {
	driversMtx.Lock()
	defer driversMtx.Unlock()
	if _, dup := drivers[name]; dup {
		panic(fmt.Sprintf("selection policy %q registered twice", name))
	}
	drivers[name] = driver
}

// Names returns the registered policy names, sorted.
func Names() []string {
	driversMtx.Lock()
	defer driversMtx.Unlock()
	var names []string
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New returns the named policy.
func New(name string, reg Registry, logger logrus.FieldLogger) (Policy, error) {
	driversMtx.Lock()
	driver, ok := drivers[name]
	driversMtx.Unlock()
	if !ok {
		return nil, fmt.Errorf("unsupported compute resource selection policy %q", name)
	}
	return driver.Policy(reg, logger.WithField("SelectionPolicy", name))
}

func selectionFromScheduling(sched metascheduler.ComputationalResourceScheduling) metascheduler.ComputeResourceSelection {
	return metascheduler.ComputeResourceSelection{
		ResourceHostID: sched.ResourceHostID,
		QueueName:      sched.QueueName,
		WallTimeLimit:  sched.WallTimeLimit,
		NodeCount:      sched.NodeCount,
		TotalCPUCount:  sched.TotalCPUCount,
		GroupCount:     sched.GroupCount,
	}
}

// experimentFor returns the experiment that owns the given process.
func experimentFor(ctx context.Context, reg Registry, processID string) (*metascheduler.Experiment, error) {
	proc, err := reg.GetProcess(ctx, processID)
	if err != nil {
		return nil, fmt.Errorf("get process: %w", err)
	}
	exp, err := reg.GetExperiment(ctx, proc.ExperimentID)
	if err != nil {
		return nil, fmt.Errorf("get experiment: %w", err)
	}
	return exp, nil
}
