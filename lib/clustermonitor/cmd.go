// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package clustermonitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/airavata-metascheduler/lib/cmd"
	"github.com/apache/airavata-metascheduler/lib/credential"
	"github.com/apache/airavata-metascheduler/lib/dblock"
	"github.com/apache/airavata-metascheduler/lib/registry"
	"github.com/apache/airavata-metascheduler/lib/service"
	"github.com/apache/airavata-metascheduler/lib/sshexecutor"
	"github.com/apache/airavata-metascheduler/sdk/go/ctxlog"
	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Command      cmd.Handler = service.Command(metascheduler.ServiceNameClusterMonitor, newClusterMonitorHandler)
	QueueCommand cmd.Handler = service.Command(metascheduler.ServiceNameQueueMonitor, newQueueMonitorHandler)
)

// newDeps builds the registry, credential store client and SSH
// executor factory shared by both monitors.
func newDeps(ctx context.Context, cluster *metascheduler.Cluster, reg *prometheus.Registry) (Deps, *registry.Registry, error) {
	if !cluster.Monitor.Cluster.Enable {
		return Deps{}, nil, errors.New("Monitor.Cluster.Enable is false")
	}
	db := registry.New(cluster)
	if err := db.Migrate(ctx); err != nil {
		return Deps{}, nil, fmt.Errorf("error initializing registry database: %w", err)
	}
	store, err := credential.NewClient(cluster, ctxlog.FromContext(ctx))
	if err != nil {
		return Deps{}, nil, fmt.Errorf("error initializing credential store client: %w", err)
	}
	factory, err := sshexecutor.NewFactory(cluster.Monitor.Cluster)
	if err != nil {
		return Deps{}, nil, err
	}
	return Deps{
		Registry:    db,
		Credentials: store,
		NewExecutor: SSHExecutorFunc(factory),
		Metrics:     reg,
	}, db, nil
}

func newClusterMonitorHandler(ctx context.Context, cluster *metascheduler.Cluster, reg *prometheus.Registry) service.Handler {
	deps, db, err := newDeps(ctx, cluster, reg)
	if err != nil {
		return service.ErrorHandler(ctx, err)
	}
	sc := cluster.Scheduler
	if sc.Gateway == "" {
		return service.ErrorHandler(ctx, errors.New("Scheduler.Gateway is not configured"))
	}
	mon := NewClusterStatusMonitor(deps, sc.Gateway)
	var lock service.Locker
	if sc.UseDatabaseLock {
		lock = dblock.New(dblock.ClusterMonitorKey, db.DB)
	}
	return service.StartPeriodic(ctx, string(metascheduler.ServiceNameClusterMonitor), sc.ClusterScanningInterval.Duration(), func(ctx context.Context) error {
		_, err := mon.Run(ctx)
		return err
	}, lock, reg)
}

func newQueueMonitorHandler(ctx context.Context, cluster *metascheduler.Cluster, reg *prometheus.Registry) service.Handler {
	deps, db, err := newDeps(ctx, cluster, reg)
	if err != nil {
		return service.ErrorHandler(ctx, err)
	}
	sc := cluster.Scheduler
	if sc.GroupResourceProfile == "" || sc.Username == "" || sc.Gateway == "" {
		return service.ErrorHandler(ctx, errors.New("Scheduler.Gateway, Scheduler.GroupResourceProfile and Scheduler.Username must be configured"))
	}
	mon := NewShardedQueueMonitor(deps, sc, cluster.Monitor.Cluster.JobManagerCommands)
	var lock service.Locker
	if sc.UseDatabaseLock {
		// Each shard holds its own lock.
		lock = dblock.New(dblock.QueueMonitorKey*1000+sc.ClusterScanningJobID, db.DB)
	}
	return service.StartPeriodic(ctx, string(metascheduler.ServiceNameQueueMonitor), sc.ClusterScanningInterval.Duration(), func(ctx context.Context) error {
		_, err := mon.Run(ctx)
		return err
	}, lock, reg)
}
