// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package test

import (
	"fmt"
	"time"

	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
)

const (
	GatewayID              = "seagrid"
	Username               = "alice"
	GroupResourceProfileID = "grp-default"
)

// ProcessID returns a fake process ID.
func ProcessID(i int) string {
	return fmt.Sprintf("PROCESS_%08d", i)
}

// ExperimentID returns a fake experiment ID.
func ExperimentID(i int) string {
	return fmt.Sprintf("EXPERIMENT_%08d", i)
}

// ComputeResourceID returns a fake compute resource ID.
func ComputeResourceID(i int) string {
	return fmt.Sprintf("cluster%d.example_%08d", i, i)
}

// HostName returns the host name of fake compute resource i.
func HostName(i int) string {
	return fmt.Sprintf("cluster%d.example", i)
}

// Process returns a fake process whose status history contains the
// given states, one minute apart, ending at last.
func Process(i int, last time.Time, states ...metascheduler.ProcessState) metascheduler.Process {
	proc := metascheduler.Process{
		ID:           ProcessID(i),
		ExperimentID: ExperimentID(i),
		Inputs: []metascheduler.InputDataObject{
			{Name: "Input_File", Value: "/tmp/input"},
			{Name: metascheduler.InputNameWallTime},
			{Name: metascheduler.InputNameParallelGroupCount},
		},
	}
	for n, st := range states {
		proc.AppendStatus(st, last.Add(time.Duration(n-len(states)+1)*time.Minute), "")
	}
	return proc
}

// Experiment returns a fake experiment owning fake process i.
func Experiment(i int) metascheduler.Experiment {
	return metascheduler.Experiment{
		ID:        ExperimentID(i),
		GatewayID: GatewayID,
		UserName:  Username,
		UserConfigurationData: metascheduler.UserConfigurationData{
			GroupResourceProfileID: GroupResourceProfileID,
			AiravataAutoSchedule:   true,
		},
		Inputs: []metascheduler.InputDataObject{
			{Name: "Input_File", Value: "/tmp/input"},
			{Name: metascheduler.InputNameWallTime},
			{Name: metascheduler.InputNameParallelGroupCount},
		},
	}
}

// ComputeResource returns a fake SSH-reachable compute resource
// called "cluster{i}.example" with the given queues. Its SSH job
// submission record has ID "ssh-{i}".
func ComputeResource(i int, queues ...string) metascheduler.ComputeResourceDescription {
	crd := metascheduler.ComputeResourceDescription{
		ComputeResourceID: ComputeResourceID(i),
		HostName:          HostName(i),
		Enabled:           true,
		JobSubmissionInterfaces: []metascheduler.JobSubmissionInterface{{
			JobSubmissionInterfaceID: fmt.Sprintf("ssh-%d", i),
			JobSubmissionProtocol:    metascheduler.JobSubmissionProtocolSSH,
			PriorityOrder:            0,
		}},
	}
	for _, q := range queues {
		crd.BatchQueues = append(crd.BatchQueues, metascheduler.BatchQueue{QueueName: q})
	}
	return crd
}
