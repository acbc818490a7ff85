// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package test

import (
	"context"
	"sync"

	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
)

// StubPolicy is a selection policy that returns Selection for every
// process, or nothing if Selection.ResourceHostID is empty.
// Errors[processID] makes that process fail.
type StubPolicy struct {
	Selection metascheduler.ComputeResourceSelection
	Errors    map[string]error

	mtx   sync.Mutex
	calls []string
}

func (sp *StubPolicy) SelectComputeResource(ctx context.Context, processID string) (metascheduler.ComputeResourceSelection, bool, error) {
	sp.mtx.Lock()
	defer sp.mtx.Unlock()
	sp.calls = append(sp.calls, processID)
	if err := sp.Errors[processID]; err != nil {
		return metascheduler.ComputeResourceSelection{}, false, err
	}
	if sp.Selection.ResourceHostID == "" {
		return metascheduler.ComputeResourceSelection{}, false, nil
	}
	return sp.Selection, true, nil
}

// Calls returns the process IDs passed to SelectComputeResource so
// far.
func (sp *StubPolicy) Calls() []string {
	sp.mtx.Lock()
	defer sp.mtx.Unlock()
	return append([]string(nil), sp.calls...)
}
