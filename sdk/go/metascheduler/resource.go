// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package metascheduler

import "time"

// JobSubmissionProtocol identifies how jobs reach a compute resource.
type JobSubmissionProtocol string

const (
	JobSubmissionProtocolLocal     = JobSubmissionProtocol("LOCAL")
	JobSubmissionProtocolSSH       = JobSubmissionProtocol("SSH")
	JobSubmissionProtocolGlobus    = JobSubmissionProtocol("GLOBUS")
	JobSubmissionProtocolUNICORE   = JobSubmissionProtocol("UNICORE")
	JobSubmissionProtocolCloud     = JobSubmissionProtocol("CLOUD")
	JobSubmissionProtocolSSHFork   = JobSubmissionProtocol("SSH_FORK")
	JobSubmissionProtocolLocalFork = JobSubmissionProtocol("LOCAL_FORK")
)

// ResourceJobManagerType is the batch scheduler running on a compute
// resource.
type ResourceJobManagerType string

const (
	ResourceJobManagerFork     = ResourceJobManagerType("FORK")
	ResourceJobManagerPBS      = ResourceJobManagerType("PBS")
	ResourceJobManagerSLURM    = ResourceJobManagerType("SLURM")
	ResourceJobManagerLSF      = ResourceJobManagerType("LSF")
	ResourceJobManagerUGE      = ResourceJobManagerType("UGE")
	ResourceJobManagerCloud    = ResourceJobManagerType("CLOUD")
	ResourceJobManagerAiravata = ResourceJobManagerType("AIRAVATA_CUSTOM")
	ResourceJobManagerHTCondor = ResourceJobManagerType("HTCONDOR")
)

// BatchQueue is a queue (partition) offered by a compute resource.
type BatchQueue struct {
	QueueName      string `json:"queue_name"`
	MaxRunTime     int    `json:"max_run_time,omitempty"`
	MaxNodes       int    `json:"max_nodes,omitempty"`
	MaxProcessors  int    `json:"max_processors,omitempty"`
	MaxJobsInQueue int    `json:"max_jobs_in_queue,omitempty"`
	IsDefaultQueue bool   `json:"is_default_queue,omitempty"`
}

// JobSubmissionInterface points to the protocol-specific submission
// record of a compute resource.
type JobSubmissionInterface struct {
	JobSubmissionInterfaceID string                `json:"job_submission_interface_id"`
	JobSubmissionProtocol    JobSubmissionProtocol `json:"job_submission_protocol"`
	PriorityOrder            int                   `json:"priority_order"`
}

// ComputeResourceDescription describes a remote HPC cluster.
type ComputeResourceDescription struct {
	ComputeResourceID       string                   `json:"compute_resource_id"`
	HostName                string                   `json:"host_name"`
	BatchQueues             []BatchQueue             `json:"batch_queues"`
	JobSubmissionInterfaces []JobSubmissionInterface `json:"job_submission_interfaces"`
	Enabled                 bool                     `json:"enabled"`
}

// PrimaryJobSubmissionInterface returns the interface with the lowest
// priority order, i.e., the one jobs are submitted through first.
func (crd *ComputeResourceDescription) PrimaryJobSubmissionInterface() (JobSubmissionInterface, bool) {
	var best JobSubmissionInterface
	found := false
	for _, jsi := range crd.JobSubmissionInterfaces {
		if !found || jsi.PriorityOrder < best.PriorityOrder {
			best, found = jsi, true
		}
	}
	return best, found
}

// ResourceJobManager describes the batch scheduler reached through a
// job submission interface.
type ResourceJobManager struct {
	ResourceJobManagerType ResourceJobManagerType `json:"resource_job_manager_type"`
	PushMonitoringEndpoint string                 `json:"push_monitoring_endpoint,omitempty"`
	JobManagerBinPath      string                 `json:"job_manager_bin_path,omitempty"`
}

// SSHJobSubmission is the SSH-specific submission record.
type SSHJobSubmission struct {
	JobSubmissionInterfaceID string             `json:"job_submission_interface_id"`
	ResourceJobManager       ResourceJobManager `json:"resource_job_manager"`
	AlternativeSSHHostName   string             `json:"alternative_ssh_host_name,omitempty"`
	SSHPort                  int                `json:"ssh_port,omitempty"`
}

// ComputeResourcePreference is a gateway-level preference for one
// compute resource.
type ComputeResourcePreference struct {
	ComputeResourceID                    string `json:"compute_resource_id"`
	LoginUserName                        string `json:"login_user_name"`
	ResourceSpecificCredentialStoreToken string `json:"resource_specific_credential_store_token"`
	PreferredBatchQueue                  string `json:"preferred_batch_queue,omitempty"`
}

// GatewayResourceProfile holds a gateway's default credential and
// per-resource preferences.
type GatewayResourceProfile struct {
	GatewayID                  string                      `json:"gateway_id"`
	CredentialStoreToken       string                      `json:"credential_store_token"`
	ComputeResourcePreferences []ComputeResourcePreference `json:"compute_resource_preferences"`
}

// GroupComputeResourcePreference is a group-level preference for one
// compute resource.
type GroupComputeResourcePreference struct {
	ComputeResourceID                    string `json:"compute_resource_id"`
	GroupResourceProfileID               string `json:"group_resource_profile_id"`
	LoginUserName                        string `json:"login_user_name"`
	ResourceSpecificCredentialStoreToken string `json:"resource_specific_credential_store_token"`
	PreferredBatchQueue                  string `json:"preferred_batch_queue,omitempty"`
}

// GroupResourceProfile groups preferences shared by a set of users.
type GroupResourceProfile struct {
	GroupResourceProfileID      string                           `json:"group_resource_profile_id"`
	GatewayID                   string                           `json:"gateway_id"`
	GroupResourceProfileName    string                           `json:"group_resource_profile_name"`
	DefaultCredentialStoreToken string                           `json:"default_credential_store_token"`
	ComputePreferences          []GroupComputeResourcePreference `json:"compute_preferences"`
}

// UserComputeResourcePreference is a user-level preference for one
// compute resource.
type UserComputeResourcePreference struct {
	ComputeResourceID                    string `json:"compute_resource_id"`
	LoginUserName                        string `json:"login_user_name"`
	ResourceSpecificCredentialStoreToken string `json:"resource_specific_credential_store_token"`
}

// UserResourceProfile holds a user's default credential.
type UserResourceProfile struct {
	UserID               string `json:"user_id"`
	GatewayID            string `json:"gateway_id"`
	CredentialStoreToken string `json:"credential_store_token"`
}

// QueueStatus is a point-in-time snapshot of a batch queue.
type QueueStatus struct {
	HostName    string    `json:"host_name" db:"host_name"`
	QueueName   string    `json:"queue_name" db:"queue_name"`
	QueueUp     bool      `json:"queue_up" db:"queue_up"`
	RunningJobs int       `json:"running_jobs" db:"running_jobs"`
	QueuedJobs  int       `json:"queued_jobs" db:"queued_jobs"`
	Time        time.Time `json:"time" db:"observed_at"`
}

// SSHCredential is the key material returned by the credential store.
type SSHCredential struct {
	Token      string `json:"token"`
	GatewayID  string `json:"gateway_id"`
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
	Passphrase string `json:"passphrase"`
}
