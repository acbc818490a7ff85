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
)

// RegisterQueueStatuses records a batch of queue status snapshots in
// a single transaction. Earlier snapshots are kept.
func (reg *Registry) RegisterQueueStatuses(ctx context.Context, statuses []metascheduler.QueueStatus) error {
	if len(statuses) == 0 {
		return nil
	}
	return reg.transaction(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `insert into queue_statuses
			(host_name, queue_name, queue_up, running_jobs, queued_jobs, observed_at)
			values (:host_name, :queue_name, :queue_up, :running_jobs, :queued_jobs, :observed_at)`, statuses)
		if err != nil {
			return fmt.Errorf("error inserting %d queue statuses: %w", len(statuses), err)
		}
		return nil
	})
}

// GetQueueStatus returns the most recent snapshot of a queue. If
// the queue has never been observed, it returns a status with
// QueueUp false and zero counts.
func (reg *Registry) GetQueueStatus(ctx context.Context, hostName, queueName string) (*metascheduler.QueueStatus, error) {
	db, err := reg.DB(ctx)
	if err != nil {
		return nil, err
	}
	var qs metascheduler.QueueStatus
	err = db.GetContext(ctx, &qs, `select host_name, queue_name, queue_up, running_jobs, queued_jobs, observed_at
		from queue_statuses where host_name=$1 and queue_name=$2
		order by observed_at desc limit 1`, hostName, queueName)
	if errors.Is(err, sql.ErrNoRows) {
		return &metascheduler.QueueStatus{HostName: hostName, QueueName: queueName}, nil
	} else if err != nil {
		return nil, fmt.Errorf("error loading status of queue %s/%s: %w", hostName, queueName, err)
	}
	return &qs, nil
}
