// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type statusRow struct {
	ProcessID string `db:"process_id"`
	metascheduler.ProcessStatus
}

// Status history is stored in process_statuses, not in the document.
func processDoc(proc *metascheduler.Process) metascheduler.Process {
	doc := *proc
	doc.StatusHistory = nil
	return doc
}

// PutProcess creates or replaces proc, including its status
// history.
func (reg *Registry) PutProcess(ctx context.Context, proc *metascheduler.Process) error {
	return reg.transaction(ctx, func(tx *sqlx.Tx) error {
		err := putDoc(ctx, tx, processDoc(proc), `insert into processes (id, experiment_id, doc) values ($1, $2, $3)
			on conflict (id) do update set experiment_id=excluded.experiment_id, doc=excluded.doc`,
			proc.ID, proc.ExperimentID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `delete from process_statuses where process_id=$1`, proc.ID)
		if err != nil {
			return err
		}
		return insertStatuses(ctx, tx, proc.ID, proc.StatusHistory)
	})
}

func insertStatuses(ctx context.Context, tx *sqlx.Tx, processID string, statuses []metascheduler.ProcessStatus) error {
	for _, st := range statuses {
		_, err := tx.ExecContext(ctx, `insert into process_statuses (process_id, state, time_of_state_change, reason) values ($1, $2, $3, $4)`,
			processID, st.State, st.TimeOfStateChange, st.Reason)
		if err != nil {
			return fmt.Errorf("error inserting status %s for process %s: %w", st.State, processID, err)
		}
	}
	return nil
}

// GetProcess returns the process with the given ID, with its full
// status history.
func (reg *Registry) GetProcess(ctx context.Context, processID string) (*metascheduler.Process, error) {
	procs, err := reg.loadProcesses(ctx, []string{processID})
	if err != nil {
		return nil, err
	}
	if len(procs) == 0 {
		return nil, fmt.Errorf("process %q: %w", processID, metascheduler.ErrNotFound)
	}
	return &procs[0], nil
}

// loadProcesses returns the processes with the given IDs, in the
// same order. Missing IDs are skipped.
func (reg *Registry) loadProcesses(ctx context.Context, ids []string) ([]metascheduler.Process, error) {
	db, err := reg.DB(ctx)
	if err != nil {
		return nil, err
	}
	var docs []struct {
		ID  string `db:"id"`
		Doc []byte `db:"doc"`
	}
	err = db.SelectContext(ctx, &docs, `select id, doc from processes where id = any($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("error loading processes: %w", err)
	}
	var statuses []statusRow
	err = db.SelectContext(ctx, &statuses, `select process_id, state, time_of_state_change, reason
		from process_statuses where process_id = any($1) order by process_id, seq`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("error loading process statuses: %w", err)
	}
	byID := make(map[string]*metascheduler.Process, len(docs))
	for _, d := range docs {
		var proc metascheduler.Process
		if err := decode(d.Doc, &proc, "process"); err != nil {
			return nil, err
		}
		byID[d.ID] = &proc
	}
	for _, st := range statuses {
		if proc, ok := byID[st.ProcessID]; ok {
			proc.StatusHistory = append(proc.StatusHistory, st.ProcessStatus)
		}
	}
	procs := make([]metascheduler.Process, 0, len(byID))
	for _, id := range ids {
		if proc, ok := byID[id]; ok {
			procs = append(procs, *proc)
		}
	}
	return procs, nil
}

// GetProcessListInState returns all processes whose most recent
// status is state.
func (reg *Registry) GetProcessListInState(ctx context.Context, state metascheduler.ProcessState) ([]metascheduler.Process, error) {
	db, err := reg.DB(ctx)
	if err != nil {
		return nil, err
	}
	var procs []metascheduler.Process
	after := ""
	for {
		var ids []string
		err := db.SelectContext(ctx, &ids, `select p.id from processes p
			join lateral (select state from process_statuses s where s.process_id=p.id order by seq desc limit 1) latest on true
			where latest.state=$1 and p.id > $2
			order by p.id limit $3`, state, after, processListPageSize)
		if err != nil {
			return nil, fmt.Errorf("error listing %s processes: %w", state, err)
		}
		if len(ids) == 0 {
			return procs, nil
		}
		page, err := reg.loadProcesses(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, proc := range page {
			// The state may have changed since the id query.
			if proc.State() == state {
				procs = append(procs, proc)
			}
		}
		if len(ids) < processListPageSize {
			return procs, nil
		}
		after = ids[len(ids)-1]
	}
}

// GetProcessStatus returns the most recent status of a process.
func (reg *Registry) GetProcessStatus(ctx context.Context, processID string) (*metascheduler.ProcessStatus, error) {
	db, err := reg.DB(ctx)
	if err != nil {
		return nil, err
	}
	var st metascheduler.ProcessStatus
	err = db.QueryRowxContext(ctx, `select state, time_of_state_change, reason from process_statuses
		where process_id=$1 order by seq desc limit 1`, processID).Scan(&st.State, &st.TimeOfStateChange, &st.Reason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("status of process %q: %w", processID, metascheduler.ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("error loading status of process %q: %w", processID, err)
	}
	return &st, nil
}

// UpdateProcess stores proc, which must already exist. Statuses
// beyond the stored history are appended; stored statuses are never
// rewritten. If the stored history is not a prefix of
// proc.StatusHistory, i.e., another writer changed the process after
// proc was loaded, nothing is written and the returned error wraps
// metascheduler.ErrConflict.
func (reg *Registry) UpdateProcess(ctx context.Context, proc *metascheduler.Process) error {
	return reg.transaction(ctx, func(tx *sqlx.Tx) error {
		return updateProcess(ctx, tx, proc)
	})
}

// UpdateExperimentAndProcess stores exp and proc in a single
// transaction, with the same rules as UpdateExperiment and
// UpdateProcess. Either both are written or neither is.
func (reg *Registry) UpdateExperimentAndProcess(ctx context.Context, exp *metascheduler.Experiment, proc *metascheduler.Process) error {
	return reg.transaction(ctx, func(tx *sqlx.Tx) error {
		// Lock the process row first, so a conflict is detected
		// before anything is written.
		if err := updateProcess(ctx, tx, proc); err != nil {
			return err
		}
		return updateExperiment(ctx, tx, exp)
	})
}

func updateProcess(ctx context.Context, tx *sqlx.Tx, proc *metascheduler.Process) error {
	var locked int
	err := tx.GetContext(ctx, &locked, `select 1 from processes where id=$1 for update`, proc.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("process %q: %w", proc.ID, metascheduler.ErrNotFound)
	} else if err != nil {
		return fmt.Errorf("error locking process %q: %w", proc.ID, err)
	}
	var stored []metascheduler.ProcessStatus
	err = tx.SelectContext(ctx, &stored, `select state, time_of_state_change, reason from process_statuses
		where process_id=$1 order by seq`, proc.ID)
	if err != nil {
		return fmt.Errorf("error loading status history of process %q: %w", proc.ID, err)
	}
	if !proc.Extends(stored) {
		return fmt.Errorf("process %q has %d stored statuses (latest %s) not reflected in update: %w",
			proc.ID, len(stored), latestState(stored), metascheduler.ErrConflict)
	}
	doc, err := encode(processDoc(proc))
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `update processes set experiment_id=$2, doc=$3 where id=$1`, proc.ID, proc.ExperimentID, doc)
	if err != nil {
		return fmt.Errorf("error updating process %q: %w", proc.ID, err)
	}
	return insertStatuses(ctx, tx, proc.ID, proc.StatusHistory[len(stored):])
}

func latestState(history []metascheduler.ProcessStatus) metascheduler.ProcessState {
	if len(history) == 0 {
		return ""
	}
	return history[len(history)-1].State
}

// PutJob records a job submitted for a process.
func (reg *Registry) PutJob(ctx context.Context, processID, jobID, jobName string) error {
	db, err := reg.DB(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `insert into jobs (job_id, process_id, job_name) values ($1, $2, $3)
		on conflict (job_id) do update set process_id=excluded.process_id, job_name=excluded.job_name`,
		jobID, processID, jobName)
	return err
}

// CountJobs returns the number of jobs recorded for a process.
func (reg *Registry) CountJobs(ctx context.Context, processID string) (int, error) {
	db, err := reg.DB(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	err = db.GetContext(ctx, &n, `select count(*) from jobs where process_id=$1`, processID)
	return n, err
}

// DeleteJobs deletes all job records of a process.
func (reg *Registry) DeleteJobs(ctx context.Context, processID string) error {
	db, err := reg.DB(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `delete from jobs where process_id=$1`, processID)
	if err != nil {
		return fmt.Errorf("error deleting jobs of process %q: %w", processID, err)
	}
	return nil
}
