// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package clustermonitor

import (
	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
)

// ResourceResult is the outcome of probing one compute resource.
type ResourceResult struct {
	ComputeResourceID string
	HostName          string
	// Non-empty if the resource cannot be probed by this monitor
	// (e.g., it is not reachable over SSH).
	Skipped string
	// Snapshots of the queues that were probed successfully.
	Statuses []metascheduler.QueueStatus
	// Errors from individual queues. The other queues' statuses
	// are still reported.
	QueueErrors map[string]error
	// Error that prevented probing the resource at all.
	Err error
}

// Failed reports whether any part of the probe failed.
func (rr ResourceResult) Failed() bool {
	return rr.Err != nil || len(rr.QueueErrors) > 0
}

// Result aggregates the per-resource results of a monitor cycle.
type Result struct {
	Resources []ResourceResult
	// Error from the final batch registration, if any.
	RegisterErr error
}

// Statuses returns all snapshots collected in the cycle, in resource
// order.
func (r Result) Statuses() []metascheduler.QueueStatus {
	var all []metascheduler.QueueStatus
	for _, rr := range r.Resources {
		all = append(all, rr.Statuses...)
	}
	return all
}

// Failures returns the resources whose probe failed in whole or in
// part.
func (r Result) Failures() []ResourceResult {
	var failed []ResourceResult
	for _, rr := range r.Resources {
		if rr.Failed() {
			failed = append(failed, rr)
		}
	}
	return failed
}

// Skipped returns the resources that were not probed.
func (r Result) Skipped() []ResourceResult {
	var skipped []ResourceResult
	for _, rr := range r.Resources {
		if rr.Skipped != "" {
			skipped = append(skipped, rr)
		}
	}
	return skipped
}
