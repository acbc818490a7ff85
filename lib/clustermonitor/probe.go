// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package clustermonitor probes the batch queues of compute resources
// over SSH and records their availability in the registry.
package clustermonitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/apache/airavata-metascheduler/lib/credential"
	"github.com/apache/airavata-metascheduler/lib/sshexecutor"
	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/ssh"
)

// Registry is the subset of the registry used by the monitors.
type Registry interface {
	credential.Registry
	GetGatewayResourceProfile(ctx context.Context, gatewayID string) (*metascheduler.GatewayResourceProfile, error)
	GetAllGatewayComputeResourcePreferences(ctx context.Context, gatewayID string) ([]metascheduler.ComputeResourcePreference, error)
	GetComputeResource(ctx context.Context, computeResourceID string) (*metascheduler.ComputeResourceDescription, error)
	GetSSHJobSubmission(ctx context.Context, jobSubmissionInterfaceID string) (*metascheduler.SSHJobSubmission, error)
	RegisterQueueStatuses(ctx context.Context, statuses []metascheduler.QueueStatus) error
}

// Executor runs commands on a remote login node.
type Executor interface {
	Execute(ctx context.Context, cmd string) (stdout, stderr []byte, err error)
	Close()
}

// ExecutorFunc opens an Executor for a target.
type ExecutorFunc func(target sshexecutor.Target, signers ...ssh.Signer) Executor

// SSHExecutorFunc returns an ExecutorFunc that uses factory.
func SSHExecutorFunc(factory *sshexecutor.Factory) ExecutorFunc {
	return func(target sshexecutor.Target, signers ...ssh.Signer) Executor {
		return factory.NewExecutor(target, signers...)
	}
}

// Deps are the collaborators shared by both monitors.
type Deps struct {
	Registry    Registry
	Credentials credential.Store
	NewExecutor ExecutorFunc
	// Defaults to time.Now.
	Now func() time.Time
	// Metrics are registered here if not nil.
	Metrics *prometheus.Registry
}

func (deps *Deps) now() time.Time {
	if deps.Now == nil {
		return time.Now()
	}
	return deps.Now()
}

// skipError means the resource is out of scope for the monitor.
type skipError struct {
	reason string
}

func (e *skipError) Error() string {
	return e.reason
}

// resource is a compute resource that can be probed over SSH.
type resource struct {
	crd     *metascheduler.ComputeResourceDescription
	manager metascheduler.ResourceJobManagerType
	// Connection endpoint, without user.
	target sshexecutor.Target
}

// resolveResource looks up the compute resource and its primary job
// submission interface. It returns a *skipError if the primary
// interface is not SSH or the job manager is not one of managers.
func resolveResource(ctx context.Context, reg Registry, computeResourceID string, managers ...metascheduler.ResourceJobManagerType) (*resource, error) {
	crd, err := reg.GetComputeResource(ctx, computeResourceID)
	if err != nil {
		return nil, fmt.Errorf("get compute resource: %w", err)
	}
	jsi, ok := crd.PrimaryJobSubmissionInterface()
	if !ok {
		return nil, &skipError{"no job submission interface"}
	}
	if jsi.JobSubmissionProtocol != metascheduler.JobSubmissionProtocolSSH {
		return nil, &skipError{fmt.Sprintf("primary job submission protocol is %s", jsi.JobSubmissionProtocol)}
	}
	sjs, err := reg.GetSSHJobSubmission(ctx, jsi.JobSubmissionInterfaceID)
	if err != nil {
		return nil, fmt.Errorf("get ssh job submission: %w", err)
	}
	manager := sjs.ResourceJobManager.ResourceJobManagerType
	supported := false
	for _, m := range managers {
		supported = supported || m == manager
	}
	if !supported {
		return nil, &skipError{fmt.Sprintf("resource job manager %q is not supported", manager)}
	}
	host := crd.HostName
	if sjs.AlternativeSSHHostName != "" {
		host = sjs.AlternativeSSHHostName
	}
	port := sjs.SSHPort
	if port == 0 {
		port = sshexecutor.DefaultPort
	}
	return &resource{
		crd:     crd,
		manager: manager,
		target:  sshexecutor.Target{Host: host, Port: port},
	}, nil
}

// connect fetches the key for token and opens an executor for the
// resource as the given login user.
func (deps *Deps) connect(ctx context.Context, res *resource, gatewayID, token, login string) (Executor, error) {
	cred, err := deps.Credentials.GetCredential(ctx, token, gatewayID)
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	signer, err := credential.Signer(cred)
	if err != nil {
		return nil, err
	}
	target := res.target
	target.User = login
	return deps.NewExecutor(target, signer), nil
}

// run executes cmd and returns its stdout, adding stderr to the
// error if it fails.
func run(ctx context.Context, exr Executor, cmd string) (string, error) {
	stdout, stderr, err := exr.Execute(ctx, cmd)
	if err != nil {
		if msg := strings.TrimSpace(string(stderr)); msg != "" {
			return "", fmt.Errorf("%q: %w (%q)", cmd, err, msg)
		}
		return "", fmt.Errorf("%q: %w", cmd, err)
	}
	return string(stdout), nil
}
