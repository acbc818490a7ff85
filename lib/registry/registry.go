// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package registry stores processes, experiments, resource
// descriptions, preferences and queue statuses in PostgreSQL.
package registry

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/apache/airavata-metascheduler/sdk/go/ctxlog"
	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
	"github.com/jmoiron/sqlx"

	// sqlx needs lib/pq to talk to PostgreSQL
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// processListPageSize is the number of candidate processes loaded
// per query by GetProcessListInState.
const processListPageSize = 100

// Registry is a PostgreSQL-backed registry. The database connection
// is opened on first use.
type Registry struct {
	dsn      string
	poolSize int

	mtx sync.Mutex
	db  *sqlx.DB
}

// New returns a Registry for the database configured in cluster.
func New(cluster *metascheduler.Cluster) *Registry {
	return NewWithDSN(cluster.PostgreSQL.Connection.String(), cluster.PostgreSQL.ConnectionPool)
}

// NewWithDSN returns a Registry for the given connection string.
func NewWithDSN(dsn string, poolSize int) *Registry {
	return &Registry{dsn: dsn, poolSize: poolSize}
}

// DB returns the database handle, connecting if needed. It is
// suitable for use as a dblock getdb func.
func (reg *Registry) DB(ctx context.Context) (*sqlx.DB, error) {
	reg.mtx.Lock()
	defer reg.mtx.Unlock()
	if reg.db != nil {
		return reg.db, nil
	}
	db, err := sqlx.Open("postgres", reg.dsn)
	if err != nil {
		return nil, err
	}
	if reg.poolSize <= 0 {
		ctxlog.FromContext(ctx).Warn("no database connection limit configured -- consider setting PostgreSQL.ConnectionPool>0")
	}
	db.SetMaxOpenConns(reg.poolSize)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgresql connect failed: %w", err)
	}
	reg.db = db
	return db, nil
}

// Close closes the database handle, if open.
func (reg *Registry) Close() error {
	reg.mtx.Lock()
	defer reg.mtx.Unlock()
	if reg.db == nil {
		return nil
	}
	err := reg.db.Close()
	reg.db = nil
	return err
}

// Migrate creates any missing tables and indexes.
func (reg *Registry) Migrate(ctx context.Context) error {
	db, err := reg.DB(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, schema)
	return err
}

// transaction runs fn in a transaction, committing if fn returns
// nil.
func (reg *Registry) transaction(ctx context.Context, fn func(*sqlx.Tx) error) (err error) {
	db, err := reg.DB(ctx)
	if err != nil {
		return err
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}

// getDoc loads the JSON document selected by query into dst. It
// returns an error wrapping metascheduler.ErrNotFound if there is no
// such row.
func getDoc(ctx context.Context, q sqlx.QueryerContext, dst interface{}, what string, query string, args ...interface{}) error {
	var doc []byte
	err := q.QueryRowxContext(ctx, query, args...).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", what, args, metascheduler.ErrNotFound)
	} else if err != nil {
		return fmt.Errorf("error loading %s: %w", what, err)
	}
	return decode(doc, dst, what)
}

// putDoc stores src as the JSON document of a row using an upsert
// query whose last parameter is the document.
func putDoc(ctx context.Context, e sqlx.ExecerContext, src interface{}, query string, args ...interface{}) error {
	doc, err := encode(src)
	if err != nil {
		return err
	}
	_, err = e.ExecContext(ctx, query, append(args, doc)...)
	return err
}

func encode(src interface{}) ([]byte, error) {
	return json.Marshal(src)
}

func decode(doc []byte, dst interface{}, what string) error {
	err := json.Unmarshal(doc, dst)
	if err != nil {
		return fmt.Errorf("error decoding %s: %w", what, err)
	}
	return nil
}
