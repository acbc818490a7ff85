// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package dblock provides cluster-wide locks for periodic tasks, so
// that only one metascheduler instance runs a given task at a time.
package dblock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/apache/airavata-metascheduler/sdk/go/ctxlog"
	"github.com/jmoiron/sqlx"
)

// Advisory lock keys of the periodic tasks.
const (
	ProcessScannerKey = 20001
	ClusterMonitorKey = 20002
	QueueMonitorKey   = 20003
)

const defaultRetryDelay = 5 * time.Second

// GetDB returns a database handle.
type GetDB func(context.Context) (*sqlx.DB, error)

// Locker uses pg_try_advisory_lock to hold a cluster-wide lock on
// one database session.
type Locker struct {
	key        int
	getdb      GetDB
	retryDelay time.Duration

	mtx  sync.Mutex
	ctx  context.Context
	conn *sql.Conn // != nil if the lock is held
}

// New returns a Locker for the given key. The returned Locker is not
// held.
func New(key int, getdb GetDB) *Locker {
	return &Locker{key: key, getdb: getdb, retryDelay: defaultRetryDelay}
}

func canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Lock acquires the lock, waiting and reconnecting as needed.
//
// Returns false if ctx is done before the lock is acquired.
func (dbl *Locker) Lock(ctx context.Context) bool {
	logger := ctxlog.FromContext(ctx).WithField("LockID", dbl.key)
	var lastHeldBy string
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(dbl.retryDelay):
			}
		}
		if ctx.Err() != nil {
			return false
		}
		locked, heldBy, err := dbl.tryLock(ctx)
		if canceled(err) {
			return false
		} else if err != nil {
			logger.WithError(err).Info("error acquiring lock")
			continue
		} else if !locked {
			if heldBy != lastHeldBy {
				logger.WithField("DBClient", heldBy).Info("waiting for other process to release lock")
				lastHeldBy = heldBy
			}
			continue
		}
		logger.Debug("acquired pg_advisory_lock")
		return true
	}
}

func (dbl *Locker) tryLock(ctx context.Context) (locked bool, heldBy string, err error) {
	dbl.mtx.Lock()
	defer dbl.mtx.Unlock()
	if dbl.conn != nil {
		// Held by another goroutine in this process.
		return false, "self", nil
	}
	db, err := dbl.getdb(ctx)
	if err != nil {
		return false, "", fmt.Errorf("error getting database pool: %w", err)
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return false, "", fmt.Errorf("error getting database connection: %w", err)
	}
	err = conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, dbl.key).Scan(&locked)
	if err != nil {
		conn.Close()
		return false, "", fmt.Errorf("error calling pg_try_advisory_lock: %w", err)
	}
	if !locked {
		defer conn.Close()
		var host string
		var port int
		err = conn.QueryRowContext(ctx, `SELECT coalesce(host(client_addr), ''), coalesce(client_port, 0) FROM pg_stat_activity WHERE pid IN
			(SELECT pid FROM pg_locks
			 WHERE locktype = $1 AND objid = $2)`, "advisory", dbl.key).Scan(&host, &port)
		if err != nil {
			ctxlog.FromContext(ctx).WithError(err).Debug("error getting other client info")
			return false, "", nil
		}
		return false, net.JoinHostPort(host, fmt.Sprintf("%d", port)), nil
	}
	dbl.ctx, dbl.conn = ctx, conn
	return true, "", nil
}

// Check confirms that the lock is still held (i.e., the session is
// still alive), and re-acquires it if needed. Lock must be called
// first.
//
// Returns false if the context passed to Lock is done before the
// lock is confirmed or reacquired.
func (dbl *Locker) Check() bool {
	dbl.mtx.Lock()
	ctx := dbl.ctx
	if dbl.conn == nil {
		dbl.mtx.Unlock()
		return dbl.Lock(ctx)
	}
	err := dbl.conn.PingContext(ctx)
	if err == nil {
		dbl.mtx.Unlock()
		return true
	} else if canceled(err) {
		dbl.mtx.Unlock()
		return false
	}
	ctxlog.FromContext(ctx).WithError(err).WithField("LockID", dbl.key).Info("database connection ping failed")
	dbl.conn.Close()
	dbl.conn = nil
	dbl.mtx.Unlock()
	return dbl.Lock(ctx)
}

// Unlock releases the lock, if held.
func (dbl *Locker) Unlock() {
	dbl.mtx.Lock()
	defer dbl.mtx.Unlock()
	if dbl.conn == nil {
		return
	}
	logger := ctxlog.FromContext(dbl.ctx).WithField("LockID", dbl.key)
	_, err := dbl.conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, dbl.key)
	if err != nil {
		logger.WithError(err).Info("error releasing pg_advisory_lock")
	} else {
		logger.Debug("released pg_advisory_lock")
	}
	dbl.conn.Close()
	dbl.conn = nil
}
