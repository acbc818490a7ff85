// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package metascheduler

// UserConfigurationData carries the user's scheduling choices for an
// experiment.
type UserConfigurationData struct {
	ComputeResourceScheduling ComputationalResourceScheduling `json:"compute_resource_scheduling"`
	// Candidate placements the selection policy may choose from
	// when the experiment is auto-scheduled.
	AutoScheduledCompResourceSchedulingList []ComputationalResourceScheduling `json:"auto_scheduled_comp_resource_scheduling_list,omitempty"`
	GroupResourceProfileID                  string                            `json:"group_resource_profile_id"`
	UseUserCRPref                           bool                              `json:"use_user_cr_pref"`
	AiravataAutoSchedule                    bool                              `json:"airavata_auto_schedule"`
}

// Experiment is a user-submitted unit of work.
type Experiment struct {
	ID                    string                `json:"id"`
	GatewayID             string                `json:"gateway_id"`
	UserName              string                `json:"user_name"`
	UserConfigurationData UserConfigurationData `json:"user_configuration_data"`
	Inputs                []InputDataObject     `json:"inputs"`
	Processes             []Process             `json:"processes,omitempty"`
}

// ComputeResourceSelection is the result of a selection policy.
type ComputeResourceSelection struct {
	ResourceHostID string
	QueueName      string
	WallTimeLimit  int
	NodeCount      int
	TotalCPUCount  int
	GroupCount     int
}

// Scheduling returns the selection as a ComputationalResourceScheduling.
func (sel ComputeResourceSelection) Scheduling() ComputationalResourceScheduling {
	return ComputationalResourceScheduling{
		ResourceHostID: sel.ResourceHostID,
		QueueName:      sel.QueueName,
		WallTimeLimit:  sel.WallTimeLimit,
		NodeCount:      sel.NodeCount,
		TotalCPUCount:  sel.TotalCPUCount,
		GroupCount:     sel.GroupCount,
	}
}
