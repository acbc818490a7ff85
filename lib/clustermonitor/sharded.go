// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package clustermonitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apache/airavata-metascheduler/lib/credential"
	"github.com/apache/airavata-metascheduler/sdk/go/ctxlog"
	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
	"github.com/sirupsen/logrus"
)

var defaultSLURMCommands = metascheduler.JobManagerCommands{
	RunningJobs: "squeue -h -t running -r | wc -l",
	PendingJobs: "squeue -h -t pending -r | wc -l",
}

// Shard returns the index range [start, end) of a list of the given
// size that is covered by shard jobID out of parallelJobs. Shards are
// contiguous and equally sized, except that the last shard also
// covers the remainder.
func Shard(size, parallelJobs, jobID int) (start, end int) {
	if parallelJobs < 1 || jobID < 0 || jobID >= parallelJobs {
		return 0, 0
	}
	chunk := size / parallelJobs
	start = jobID * chunk
	end = start + chunk
	if jobID == parallelJobs-1 {
		end = size
	}
	return start, end
}

// ShardedQueueMonitor probes one shard of the SLURM resources in a
// group resource profile, including exact running and pending job
// counts.
type ShardedQueueMonitor struct {
	deps     Deps
	resolver *credential.Resolver
	config   metascheduler.SchedulerConfig
	commands metascheduler.JobManagerCommands
	metrics  *metrics
}

// NewShardedQueueMonitor returns a monitor for the shard, group
// profile and user named in config. Job count commands default to
// squeue unless overridden in commands.
func NewShardedQueueMonitor(deps Deps, config metascheduler.SchedulerConfig, commands map[metascheduler.ResourceJobManagerType]metascheduler.JobManagerCommands) *ShardedQueueMonitor {
	cmds := defaultSLURMCommands
	if override, ok := commands[metascheduler.ResourceJobManagerSLURM]; ok {
		if override.RunningJobs != "" {
			cmds.RunningJobs = override.RunningJobs
		}
		if override.PendingJobs != "" {
			cmds.PendingJobs = override.PendingJobs
		}
	}
	return &ShardedQueueMonitor{
		deps:     deps,
		resolver: &credential.Resolver{Registry: deps.Registry},
		config:   config,
		commands: cmds,
		metrics:  newMetrics("queue_monitor", deps.Metrics),
	}
}

// Run probes the resources in this monitor's shard and registers one
// queue status per resource in a single batch.
func (mon *ShardedQueueMonitor) Run(ctx context.Context) (Result, error) {
	t0 := time.Now()
	defer func() { mon.metrics.cycleDuration.Observe(time.Since(t0).Seconds()) }()
	logger := ctxlog.FromContext(ctx).WithFields(logrus.Fields{
		"GroupResourceProfileID": mon.config.GroupResourceProfile,
		"Shard":                  fmt.Sprintf("%d/%d", mon.config.ClusterScanningJobID, mon.config.ClusterScanningParallelJobs),
	})

	grp, err := mon.deps.Registry.GetGroupResourceProfile(ctx, mon.config.GroupResourceProfile)
	if err != nil {
		return Result{}, fmt.Errorf("error loading group resource profile: %w", err)
	}
	prefs := grp.ComputePreferences
	start, end := Shard(len(prefs), mon.config.ClusterScanningParallelJobs, mon.config.ClusterScanningJobID)
	logger.WithFields(logrus.Fields{
		"Start": start,
		"End":   end,
		"Total": len(prefs),
	}).Debug("probing shard")

	var result Result
	for _, pref := range prefs[start:end] {
		if ctx.Err() != nil {
			break
		}
		rr := mon.probe(ctx, pref)
		logResult(logger, rr)
		mon.metrics.observe(rr)
		result.Resources = append(result.Resources, rr)
	}
	return result, register(ctx, logger, mon.deps.Registry, &result)
}

func (mon *ShardedQueueMonitor) probe(ctx context.Context, pref metascheduler.GroupComputeResourcePreference) ResourceResult {
	rr := ResourceResult{ComputeResourceID: pref.ComputeResourceID}
	res, err := resolveResource(ctx, mon.deps.Registry, pref.ComputeResourceID, metascheduler.ResourceJobManagerSLURM)
	var skip *skipError
	if errors.As(err, &skip) {
		rr.Skipped = skip.reason
		return rr
	} else if err != nil {
		rr.Err = err
		return rr
	}
	rr.HostName = res.crd.HostName

	queue := pref.PreferredBatchQueue
	if queue == "" && len(res.crd.BatchQueues) > 0 {
		queue = res.crd.BatchQueues[0].QueueName
	}
	if queue == "" {
		rr.Skipped = "no batch queue"
		return rr
	}

	ident, err := mon.resolver.Resolve(ctx, credential.Request{
		GatewayID:              mon.config.Gateway,
		Username:               mon.config.Username,
		ComputeResourceID:      pref.ComputeResourceID,
		UseUserPref:            true,
		UseGroupProfile:        true,
		GroupResourceProfileID: mon.config.GroupResourceProfile,
	})
	if err != nil {
		rr.Err = err
		return rr
	}
	exr, err := mon.deps.connect(ctx, res, mon.config.Gateway, ident.Token, ident.LoginUserName)
	if err != nil {
		rr.Err = err
		return rr
	}
	defer exr.Close()

	qs, err := mon.queueStatus(ctx, exr, res, queue)
	if err != nil {
		rr.Err = err
		return rr
	}
	rr.Statuses = []metascheduler.QueueStatus{qs}
	return rr
}

func (mon *ShardedQueueMonitor) queueStatus(ctx context.Context, exr Executor, res *resource, queue string) (metascheduler.QueueStatus, error) {
	qs := metascheduler.QueueStatus{HostName: res.crd.HostName, QueueName: queue}
	cmd, err := statusCommand(res.manager, queue)
	if err != nil {
		return qs, err
	}
	out, err := run(ctx, exr, cmd)
	if err != nil {
		return qs, err
	}
	st, err := parseStatus(res.manager, out)
	if err != nil {
		return qs, err
	}
	qs.QueueUp = st.up
	if st.up {
		out, err = run(ctx, exr, mon.commands.RunningJobs)
		if err == nil {
			qs.RunningJobs, err = parseCount(out)
		}
		if err != nil {
			return qs, fmt.Errorf("running job count: %w", err)
		}
		out, err = run(ctx, exr, mon.commands.PendingJobs)
		if err == nil {
			qs.QueuedJobs, err = parseCount(out)
		}
		if err != nil {
			return qs, fmt.Errorf("pending job count: %w", err)
		}
	}
	qs.Time = mon.deps.now()
	return qs, nil
}
