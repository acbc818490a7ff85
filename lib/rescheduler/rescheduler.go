// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package rescheduler decides whether queued and requeued processes
// can be handed to a compute resource.
package rescheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/apache/airavata-metascheduler/lib/selection"
	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
)

// Registry is the subset of the registry a Rescheduler reads and
// updates.
type Registry interface {
	GetExperiment(ctx context.Context, experimentID string) (*metascheduler.Experiment, error)
	// Must write both or neither.
	UpdateExperimentAndProcess(ctx context.Context, exp *metascheduler.Experiment, proc *metascheduler.Process) error
	UpdateProcess(ctx context.Context, proc *metascheduler.Process) error
	DeleteJobs(ctx context.Context, processID string) error
	GetProcessStatus(ctx context.Context, processID string) (*metascheduler.ProcessStatus, error)
}

// Outcome describes what a Reschedule call did to a process.
type Outcome int

const (
	// No compute resource was available; the process is unchanged.
	OutcomeNoResource Outcome = iota
	// The process is still inside its backoff period.
	OutcomeBackoff
	// The process moved to DEQUEUING.
	OutcomeDequeued
	// The process moved to FAILED.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoResource:
		return "no-resource"
	case OutcomeBackoff:
		return "backoff"
	case OutcomeDequeued:
		return "dequeued"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// A Rescheduler advances a process found in the given state
// (QUEUED or REQUEUED). If it returns an error, neither the process
// nor its experiment has been updated and the call can be retried.
// The exception is a REQUEUED process whose old job records were
// already deleted; a retry deletes them again, which is harmless.
// An error wrapping metascheduler.ErrConflict means the process
// changed in the registry since proc was loaded.
type Rescheduler interface {
	Reschedule(ctx context.Context, proc metascheduler.Process, state metascheduler.ProcessState) (Outcome, error)
}

// Config holds the tunables shared by all reschedulers.
type Config struct {
	// Number of requeues after which a process fails.
	MaximumReschedulerThreshold int
	// Base unit of the backoff period.
	JobScanningInterval time.Duration
}

// Deps are the collaborators handed to a Driver.
type Deps struct {
	Registry Registry
	Policy   selection.Policy
	Config   Config
	// Defaults to time.Now.
	Now func() time.Time
}

// A Driver creates a Rescheduler.
type Driver interface {
	Rescheduler(Deps) (Rescheduler, error)
}

// DriverFunc makes a Driver from a func.
type DriverFunc func(Deps) (Rescheduler, error)

func (df DriverFunc) Rescheduler(deps Deps) (Rescheduler, error) {
	return df(deps)
}

const ExponentialBackOffReSchedulerName = "ExponentialBackOffReScheduler"

var drivers = map[string]Driver{
	ExponentialBackOffReSchedulerName: DriverFunc(newBackoffRescheduler),
	"fibonacci-backoff":               DriverFunc(newBackoffRescheduler),
}

// Names returns the supported rescheduler names, sorted.
func Names() []string {
	var names []string
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New returns the named Rescheduler.
func New(name string, deps Deps) (Rescheduler, error) {
	driver, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("unsupported rescheduler policy %q", name)
	}
	if deps.Registry == nil || deps.Policy == nil {
		return nil, fmt.Errorf("rescheduler %q: registry and selection policy are required", name)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return driver.Rescheduler(deps)
}
