// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package metascheduler

import "time"

// ProcessState is the lifecycle state of a Process.
type ProcessState string

const (
	ProcessStateCreated   = ProcessState("CREATED")
	ProcessStateValidated = ProcessState("VALIDATED")
	ProcessStateStarted   = ProcessState("STARTED")
	ProcessStateQueued    = ProcessState("QUEUED")
	ProcessStateDequeuing = ProcessState("DEQUEUING")
	ProcessStateRequeued  = ProcessState("REQUEUED")
	ProcessStateExecuting = ProcessState("EXECUTING")
	ProcessStateCompleted = ProcessState("COMPLETED")
	ProcessStateFailed    = ProcessState("FAILED")
	ProcessStateCancelled = ProcessState("CANCELLED")
)

// ProcessStatus is one entry in a process's status history.
type ProcessStatus struct {
	State             ProcessState `json:"state" db:"state"`
	TimeOfStateChange time.Time    `json:"time_of_state_change" db:"time_of_state_change"`
	Reason            string       `json:"reason,omitempty" db:"reason"`
}

// Reserved input names whose values are passed to the job script as
// command line arguments.
const (
	InputNameWallTime           = "Wall_Time"
	InputNameParallelGroupCount = "Parallel_Group_Count"
)

// InputDataObject is a name/value input of a process or experiment.
type InputDataObject struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Type  string `json:"type,omitempty"`
}

// ComputationalResourceScheduling describes where and how a process
// runs.
type ComputationalResourceScheduling struct {
	ResourceHostID string `json:"resource_host_id"`
	QueueName      string `json:"queue_name"`
	WallTimeLimit  int    `json:"wall_time_limit"`
	NodeCount      int    `json:"node_count"`
	TotalCPUCount  int    `json:"total_cpu_count"`
	GroupCount     int    `json:"group_count"`
}

// Process is one remote-execution attempt derived from an Experiment.
type Process struct {
	ID                     string                          `json:"id"`
	ExperimentID           string                          `json:"experiment_id"`
	ComputeResourceID      string                          `json:"compute_resource_id"`
	GroupResourceProfileID string                          `json:"group_resource_profile_id,omitempty"`
	UseUserCRPref          bool                            `json:"use_user_cr_pref"`
	StatusHistory          []ProcessStatus                 `json:"status_history"`
	ResourceScheduling     ComputationalResourceScheduling `json:"resource_scheduling"`
	Inputs                 []InputDataObject               `json:"inputs"`
}

// State returns the process's current state, i.e., the state of the
// last status history entry, or "" if there is no history yet.
func (p *Process) State() ProcessState {
	if len(p.StatusHistory) == 0 {
		return ""
	}
	return p.StatusHistory[len(p.StatusHistory)-1].State
}

// LastStatusChange returns the time of the latest state change, or
// the zero time if there is no history yet.
func (p *Process) LastStatusChange() time.Time {
	if len(p.StatusHistory) == 0 {
		return time.Time{}
	}
	return p.StatusHistory[len(p.StatusHistory)-1].TimeOfStateChange
}

// RequeueCount returns the number of REQUEUED entries in the status
// history.
func (p *Process) RequeueCount() int {
	n := 0
	for _, st := range p.StatusHistory {
		if st.State == ProcessStateRequeued {
			n++
		}
	}
	return n
}

// AppendStatus records a state change. History is append-only.
func (p *Process) AppendStatus(state ProcessState, t time.Time, reason string) {
	p.StatusHistory = append(p.StatusHistory, ProcessStatus{
		State:             state,
		TimeOfStateChange: t,
		Reason:            reason,
	})
}

// Extends reports whether stored is a prefix of the process's status
// history, i.e., the process was derived from the stored version
// without losing any status recorded since. Times are not compared;
// storage may round them.
func (p *Process) Extends(stored []ProcessStatus) bool {
	if len(stored) > len(p.StatusHistory) {
		return false
	}
	for i, st := range stored {
		mine := p.StatusHistory[i]
		if mine.State != st.State || mine.Reason != st.Reason {
			return false
		}
	}
	return true
}
