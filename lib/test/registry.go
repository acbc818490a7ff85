// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package test

import (
	"context"
	"fmt"
	"sync"

	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
)

// StubRegistry is an in-memory registry. It is safe for concurrent
// use.
//
// Errors injects failures: a call returns Errors[method+":"+key] if
// present, otherwise Errors[method], where key is the first ID
// argument (the process, experiment, compute resource, gateway or
// group ID).
type StubRegistry struct {
	Processes         map[string]metascheduler.Process
	Experiments       map[string]metascheduler.Experiment
	ComputeResources  map[string]metascheduler.ComputeResourceDescription
	SSHJobSubmissions map[string]metascheduler.SSHJobSubmission
	GatewayProfiles   map[string]metascheduler.GatewayResourceProfile
	GroupProfiles     map[string]metascheduler.GroupResourceProfile
	UserProfiles      map[string]metascheduler.UserResourceProfile
	// Keyed by username + "/" + compute resource ID.
	UserPreferences map[string]metascheduler.UserComputeResourcePreference
	// Keyed by host + "/" + queue.
	QueueStatuses map[string]metascheduler.QueueStatus
	Errors        map[string]error

	// Calls that mutate the registry, in order.
	ProcessUpdates     []metascheduler.Process
	ExperimentUpdates  []metascheduler.Experiment
	DeletedJobs        []string
	QueueStatusBatches [][]metascheduler.QueueStatus

	mtx sync.Mutex
}

func (reg *StubRegistry) fail(method, key string) error {
	if err, ok := reg.Errors[method+":"+key]; ok {
		return err
	}
	return reg.Errors[method]
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, metascheduler.ErrNotFound)
}

// AddProcess stores proc.
func (reg *StubRegistry) AddProcess(proc metascheduler.Process) {
	reg.mtx.Lock()
	defer reg.mtx.Unlock()
	if reg.Processes == nil {
		reg.Processes = map[string]metascheduler.Process{}
	}
	reg.Processes[proc.ID] = copyProcess(proc)
}

// AddExperiment stores exp.
func (reg *StubRegistry) AddExperiment(exp metascheduler.Experiment) {
	reg.mtx.Lock()
	defer reg.mtx.Unlock()
	if reg.Experiments == nil {
		reg.Experiments = map[string]metascheduler.Experiment{}
	}
	reg.Experiments[exp.ID] = exp
}

// AddComputeResource stores crd and its SSH job submission record.
func (reg *StubRegistry) AddComputeResource(crd metascheduler.ComputeResourceDescription, sjs metascheduler.SSHJobSubmission) {
	reg.mtx.Lock()
	defer reg.mtx.Unlock()
	if reg.ComputeResources == nil {
		reg.ComputeResources = map[string]metascheduler.ComputeResourceDescription{}
	}
	if reg.SSHJobSubmissions == nil {
		reg.SSHJobSubmissions = map[string]metascheduler.SSHJobSubmission{}
	}
	reg.ComputeResources[crd.ComputeResourceID] = crd
	if sjs.JobSubmissionInterfaceID != "" {
		reg.SSHJobSubmissions[sjs.JobSubmissionInterfaceID] = sjs
	}
}

// SetQueueStatus stores qs as the latest status of its queue.
func (reg *StubRegistry) SetQueueStatus(qs metascheduler.QueueStatus) {
	reg.mtx.Lock()
	defer reg.mtx.Unlock()
	if reg.QueueStatuses == nil {
		reg.QueueStatuses = map[string]metascheduler.QueueStatus{}
	}
	reg.QueueStatuses[qs.HostName+"/"+qs.QueueName] = qs
}

func (reg *StubRegistry) GetProcess(ctx context.Context, processID string) (*metascheduler.Process, error) {
	reg.mtx.Lock()
	defer reg.mtx.Unlock()
	if err := reg.fail("GetProcess", processID); err != nil {
		return nil, err
	}
	proc, ok := reg.Processes[processID]
	if !ok {
		return nil, notFound("process", processID)
	}
	proc = copyProcess(proc)
	return &proc, nil
}

func (reg *StubRegistry) GetProcessListInState(ctx context.Context, state metascheduler.ProcessState) ([]metascheduler.Process, error) {
	reg.mtx.Lock()
	defer reg.mtx.Unlock()
	if err := reg.fail("GetProcessListInState", string(state)); err != nil {
		return nil, err
	}
	var procs []metascheduler.Process
	for _, proc := range reg.Processes {
		if proc.State() == state {
			procs = append(procs, copyProcess(proc))
		}
	}
	return procs, nil
}

func (reg *StubRegistry) GetProcessStatus(ctx context.Context, processID string) (*metascheduler.ProcessStatus, error) {
	reg.mtx.Lock()
	defer reg.mtx.Unlock()
	if err := reg.fail("GetProcessStatus", processID); err != nil {
		return nil, err
	}
	proc, ok := reg.Processes[processID]
	if !ok || len(proc.StatusHistory) == 0 {
		return nil, notFound("process status", processID)
	}
	st := proc.StatusHistory[len(proc.StatusHistory)-1]
	return &st, nil
}

func (reg *StubRegistry) UpdateProcess(ctx context.Context, proc *metascheduler.Process) error {
	reg.mtx.Lock()
	defer reg.mtx.Unlock()
	if err := reg.fail("UpdateProcess", proc.ID); err != nil {
		return err
	}
	if err := reg.checkProcessUpdate(proc); err != nil {
		return err
	}
	reg.Processes[proc.ID] = copyProcess(*proc)
	reg.ProcessUpdates = append(reg.ProcessUpdates, copyProcess(*proc))
	return nil
}

// UpdateExperimentAndProcess applies both updates, or neither if
// either one would fail.
func (reg *StubRegistry) UpdateExperimentAndProcess(ctx context.Context, exp *metascheduler.Experiment, proc *metascheduler.Process) error {
	reg.mtx.Lock()
	defer reg.mtx.Unlock()
	if err := reg.fail("UpdateExperimentAndProcess", proc.ID); err != nil {
		return err
	}
	if err := reg.checkProcessUpdate(proc); err != nil {
		return err
	}
	if _, ok := reg.Experiments[exp.ID]; !ok {
		return notFound("experiment", exp.ID)
	}
	reg.Processes[proc.ID] = copyProcess(*proc)
	reg.ProcessUpdates = append(reg.ProcessUpdates, copyProcess(*proc))
	reg.Experiments[exp.ID] = copyExperiment(*exp)
	reg.ExperimentUpdates = append(reg.ExperimentUpdates, copyExperiment(*exp))
	return nil
}

func (reg *StubRegistry) checkProcessUpdate(proc *metascheduler.Process) error {
	stored, ok := reg.Processes[proc.ID]
	if !ok {
		return notFound("process", proc.ID)
	}
	if !proc.Extends(stored.StatusHistory) {
		return fmt.Errorf("process %q changed since it was loaded: %w", proc.ID, metascheduler.ErrConflict)
	}
	return nil
}

func (reg *StubRegistry) DeleteJobs(ctx context.Context, processID string) error {
	reg.mtx.Lock()
	defer reg.mtx.Unlock()
	if err := reg.fail("DeleteJobs", processID); err != nil {
		return err
	}
	reg.DeletedJobs = append(reg.DeletedJobs, processID)
	return nil
}

func (reg *StubRegistry) GetExperiment(ctx context.Context, experimentID string) (*metascheduler.Experiment, error) {
	reg.mtx.Lock()
	defer reg.mtx.Unlock()
	if err := reg.fail("GetExperiment", experimentID); err != nil {
		return nil, err
	}
	exp, ok := reg.Experiments[experimentID]
	if !ok {
		return nil, notFound("experiment", experimentID)
	}
	exp = copyExperiment(exp)
	return &exp, nil
}

func (reg *StubRegistry) GetComputeResource(ctx context.Context, computeResourceID string) (*metascheduler.ComputeResourceDescription, error) {
	reg.mtx.Lock()
	defer reg.mtx.Unlock()
	if err := reg.fail("GetComputeResource", computeResourceID); err != nil {
		return nil, err
	}
	crd, ok := reg.ComputeResources[computeResourceID]
	if !ok {
		return nil, notFound("compute resource", computeResourceID)
	}
	return &crd, nil
}

func (reg *StubRegistry) GetSSHJobSubmission(ctx context.Context, jobSubmissionInterfaceID string) (*metascheduler.SSHJobSubmission, error) {
	reg.mtx.Lock()
	defer reg.mtx.Unlock()
	if err := reg.fail("GetSSHJobSubmission", jobSubmissionInterfaceID); err != nil {
		return nil, err
	}
	sjs, ok := reg.SSHJobSubmissions[jobSubmissionInterfaceID]
	if !ok {
		return nil, notFound("ssh job submission", jobSubmissionInterfaceID)
	}
	return &sjs, nil
}

func (reg *StubRegistry) GetGatewayResourceProfile(ctx context.Context, gatewayID string) (*metascheduler.GatewayResourceProfile, error) {
	reg.mtx.Lock()
	defer reg.mtx.Unlock()
	if err := reg.fail("GetGatewayResourceProfile", gatewayID); err != nil {
		return nil, err
	}
	gwrp, ok := reg.GatewayProfiles[gatewayID]
	if !ok {
		return nil, notFound("gateway resource profile", gatewayID)
	}
	return &gwrp, nil
}

func (reg *StubRegistry) GetAllGatewayComputeResourcePreferences(ctx context.Context, gatewayID string) ([]metascheduler.ComputeResourcePreference, error) {
	reg.mtx.Lock()
	defer reg.mtx.Unlock()
	if err := reg.fail("GetAllGatewayComputeResourcePreferences", gatewayID); err != nil {
		return nil, err
	}
	gwrp, ok := reg.GatewayProfiles[gatewayID]
	if !ok {
		return nil, notFound("gateway resource profile", gatewayID)
	}
	return append([]metascheduler.ComputeResourcePreference(nil), gwrp.ComputeResourcePreferences...), nil
}

func (reg *StubRegistry) GetGroupResourceProfile(ctx context.Context, groupResourceProfileID string) (*metascheduler.GroupResourceProfile, error) {
	reg.mtx.Lock()
	defer reg.mtx.Unlock()
	if err := reg.fail("GetGroupResourceProfile", groupResourceProfileID); err != nil {
		return nil, err
	}
	grp, ok := reg.GroupProfiles[groupResourceProfileID]
	if !ok {
		return nil, notFound("group resource profile", groupResourceProfileID)
	}
	return &grp, nil
}

func (reg *StubRegistry) GetGroupComputeResourcePreference(ctx context.Context, computeResourceID, groupResourceProfileID string) (*metascheduler.GroupComputeResourcePreference, error) {
	reg.mtx.Lock()
	defer reg.mtx.Unlock()
	if err := reg.fail("GetGroupComputeResourcePreference", computeResourceID); err != nil {
		return nil, err
	}
	grp, ok := reg.GroupProfiles[groupResourceProfileID]
	if ok {
		for _, pref := range grp.ComputePreferences {
			if pref.ComputeResourceID == computeResourceID {
				return &pref, nil
			}
		}
	}
	return nil, notFound("group compute resource preference", groupResourceProfileID+"/"+computeResourceID)
}

func (reg *StubRegistry) GetUserResourceProfile(ctx context.Context, username, gatewayID string) (*metascheduler.UserResourceProfile, error) {
	reg.mtx.Lock()
	defer reg.mtx.Unlock()
	if err := reg.fail("GetUserResourceProfile", username); err != nil {
		return nil, err
	}
	urp, ok := reg.UserProfiles[username]
	if !ok || urp.GatewayID != gatewayID {
		return nil, notFound("user resource profile", username)
	}
	return &urp, nil
}

func (reg *StubRegistry) GetUserComputeResourcePreference(ctx context.Context, username, gatewayID, computeResourceID string) (*metascheduler.UserComputeResourcePreference, error) {
	reg.mtx.Lock()
	defer reg.mtx.Unlock()
	if err := reg.fail("GetUserComputeResourcePreference", username); err != nil {
		return nil, err
	}
	pref, ok := reg.UserPreferences[username+"/"+computeResourceID]
	if !ok {
		return nil, notFound("user compute resource preference", username+"/"+computeResourceID)
	}
	return &pref, nil
}

func (reg *StubRegistry) RegisterQueueStatuses(ctx context.Context, statuses []metascheduler.QueueStatus) error {
	reg.mtx.Lock()
	defer reg.mtx.Unlock()
	if err := reg.fail("RegisterQueueStatuses", ""); err != nil {
		return err
	}
	if reg.QueueStatuses == nil {
		reg.QueueStatuses = map[string]metascheduler.QueueStatus{}
	}
	for _, qs := range statuses {
		reg.QueueStatuses[qs.HostName+"/"+qs.QueueName] = qs
	}
	reg.QueueStatusBatches = append(reg.QueueStatusBatches, append([]metascheduler.QueueStatus(nil), statuses...))
	return nil
}

func (reg *StubRegistry) GetQueueStatus(ctx context.Context, hostName, queueName string) (*metascheduler.QueueStatus, error) {
	reg.mtx.Lock()
	defer reg.mtx.Unlock()
	if err := reg.fail("GetQueueStatus", hostName); err != nil {
		return nil, err
	}
	qs, ok := reg.QueueStatuses[hostName+"/"+queueName]
	if !ok {
		qs = metascheduler.QueueStatus{HostName: hostName, QueueName: queueName}
	}
	return &qs, nil
}

// Snapshot returns a copy of the stored process.
func (reg *StubRegistry) Snapshot(processID string) metascheduler.Process {
	reg.mtx.Lock()
	defer reg.mtx.Unlock()
	return copyProcess(reg.Processes[processID])
}

func copyProcess(proc metascheduler.Process) metascheduler.Process {
	proc.StatusHistory = append([]metascheduler.ProcessStatus(nil), proc.StatusHistory...)
	proc.Inputs = append([]metascheduler.InputDataObject(nil), proc.Inputs...)
	return proc
}

func copyExperiment(exp metascheduler.Experiment) metascheduler.Experiment {
	exp.Inputs = append([]metascheduler.InputDataObject(nil), exp.Inputs...)
	exp.Processes = append([]metascheduler.Process(nil), exp.Processes...)
	exp.UserConfigurationData.AutoScheduledCompResourceSchedulingList = append([]metascheduler.ComputationalResourceScheduling(nil), exp.UserConfigurationData.AutoScheduledCompResourceSchedulingList...)
	return exp
}
