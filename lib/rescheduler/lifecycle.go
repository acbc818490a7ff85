// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package rescheduler

import (
	"context"
	"time"

	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
	"github.com/looplab/fsm"
)

const (
	eventDequeue = "dequeue"
	eventFail    = "fail"
)

// transition applies the named lifecycle event to proc, appending
// the resulting state to its status history. It returns an error if
// the event is not valid in proc's current state.
func transition(ctx context.Context, proc *metascheduler.Process, event string, now time.Time, reason string) error {
	machine := fsm.NewFSM(
		string(proc.State()),
		fsm.Events{
			{
				Name: eventDequeue,
				Src:  []string{string(metascheduler.ProcessStateQueued), string(metascheduler.ProcessStateRequeued)},
				Dst:  string(metascheduler.ProcessStateDequeuing),
			},
			{
				Name: eventFail,
				Src:  []string{string(metascheduler.ProcessStateRequeued)},
				Dst:  string(metascheduler.ProcessStateFailed),
			},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				proc.AppendStatus(metascheduler.ProcessState(e.Dst), now, reason)
			},
		},
	)
	return machine.Event(ctx, event)
}
