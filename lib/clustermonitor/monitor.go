// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package clustermonitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apache/airavata-metascheduler/sdk/go/ctxlog"
	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

// ClusterStatusMonitor probes every queue of every compute resource
// in a gateway's resource profile.
type ClusterStatusMonitor struct {
	deps      Deps
	gatewayID string
	metrics   *metrics
}

// NewClusterStatusMonitor returns a monitor for the given gateway.
func NewClusterStatusMonitor(deps Deps, gatewayID string) *ClusterStatusMonitor {
	return &ClusterStatusMonitor{
		deps:      deps,
		gatewayID: gatewayID,
		metrics:   newMetrics("cluster_monitor", deps.Metrics),
	}
}

// Run probes all resources once and registers the collected queue
// statuses in a single batch. Failures of individual resources are
// reported in the result. An error is returned only if the resource
// list cannot be loaded or the batch cannot be registered.
func (mon *ClusterStatusMonitor) Run(ctx context.Context) (Result, error) {
	t0 := time.Now()
	defer func() { mon.metrics.cycleDuration.Observe(time.Since(t0).Seconds()) }()
	logger := ctxlog.FromContext(ctx).WithField("GatewayID", mon.gatewayID)

	prefs, err := mon.deps.Registry.GetAllGatewayComputeResourcePreferences(ctx, mon.gatewayID)
	if err != nil {
		return Result{}, fmt.Errorf("error loading compute resource preferences: %w", err)
	}
	defaultToken := mon.gatewayTokenFunc()

	var result Result
	for _, pref := range prefs {
		if ctx.Err() != nil {
			break
		}
		rr := mon.probe(ctx, pref, defaultToken)
		logResult(logger, rr)
		mon.metrics.observe(rr)
		result.Resources = append(result.Resources, rr)
	}
	return result, register(ctx, logger, mon.deps.Registry, &result)
}

// gatewayTokenFunc returns a func that fetches the gateway's default
// credential token the first time it is called.
func (mon *ClusterStatusMonitor) gatewayTokenFunc() func(context.Context) (string, error) {
	var token string
	var err error
	done := false
	return func(ctx context.Context) (string, error) {
		if !done {
			var gwrp *metascheduler.GatewayResourceProfile
			gwrp, err = mon.deps.Registry.GetGatewayResourceProfile(ctx, mon.gatewayID)
			if err == nil {
				token = gwrp.CredentialStoreToken
			}
			done = true
		}
		return token, err
	}
}

func (mon *ClusterStatusMonitor) probe(ctx context.Context, pref metascheduler.ComputeResourcePreference, defaultToken func(context.Context) (string, error)) ResourceResult {
	rr := ResourceResult{ComputeResourceID: pref.ComputeResourceID}
	res, err := resolveResource(ctx, mon.deps.Registry, pref.ComputeResourceID,
		metascheduler.ResourceJobManagerSLURM, metascheduler.ResourceJobManagerPBS)
	var skip *skipError
	if errors.As(err, &skip) {
		rr.Skipped = skip.reason
		return rr
	} else if err != nil {
		rr.Err = err
		return rr
	}
	rr.HostName = res.crd.HostName

	token := pref.ResourceSpecificCredentialStoreToken
	if strings.TrimSpace(token) == "" {
		token, err = defaultToken(ctx)
		if err != nil {
			rr.Err = fmt.Errorf("get gateway resource profile: %w", err)
			return rr
		}
	}
	if strings.TrimSpace(token) == "" {
		rr.Err = fmt.Errorf("no credential token for gateway %q", mon.gatewayID)
		return rr
	}
	if strings.TrimSpace(pref.LoginUserName) == "" {
		rr.Err = errors.New("no login username in compute resource preference")
		return rr
	}
	exr, err := mon.deps.connect(ctx, res, mon.gatewayID, token, pref.LoginUserName)
	if err != nil {
		rr.Err = err
		return rr
	}
	defer exr.Close()

	for _, q := range res.crd.BatchQueues {
		cmd, err := statusCommand(res.manager, q.QueueName)
		if err != nil {
			rr.Err = err
			return rr
		}
		out, err := run(ctx, exr, cmd)
		var exiterr *ssh.ExitError
		if err != nil && !errors.As(err, &exiterr) {
			// Not a command failure, so the connection is
			// unusable for the remaining queues too.
			rr.Err = err
			return rr
		}
		var st queueState
		if err == nil {
			st, err = parseStatus(res.manager, out)
		}
		if err != nil {
			if rr.QueueErrors == nil {
				rr.QueueErrors = map[string]error{}
			}
			rr.QueueErrors[q.QueueName] = err
			continue
		}
		rr.Statuses = append(rr.Statuses, metascheduler.QueueStatus{
			HostName:    res.crd.HostName,
			QueueName:   q.QueueName,
			QueueUp:     st.up,
			RunningJobs: st.running,
			QueuedJobs:  st.queued,
			Time:        mon.deps.now(),
		})
	}
	return rr
}

func logResult(logger logrus.FieldLogger, rr ResourceResult) {
	logger = logger.WithFields(logrus.Fields{
		"ComputeResourceID": rr.ComputeResourceID,
		"Host":              rr.HostName,
	})
	switch {
	case rr.Skipped != "":
		logger.WithField("Reason", rr.Skipped).Debug("skipped compute resource")
	case rr.Err != nil:
		logger.WithError(rr.Err).Warn("compute resource probe failed")
	default:
		for queue, err := range rr.QueueErrors {
			logger.WithError(err).WithField("Queue", queue).Warn("queue probe failed")
		}
		for _, qs := range rr.Statuses {
			logger.WithFields(logrus.Fields{
				"Queue":       qs.QueueName,
				"QueueUp":     qs.QueueUp,
				"RunningJobs": qs.RunningJobs,
				"QueuedJobs":  qs.QueuedJobs,
			}).Debug("queue status")
		}
	}
}

// register submits all statuses in result to the registry as one
// batch.
func register(ctx context.Context, logger logrus.FieldLogger, reg Registry, result *Result) error {
	statuses := result.Statuses()
	logger = logger.WithFields(logrus.Fields{
		"Resources": len(result.Resources),
		"Failed":    len(result.Failures()),
		"Skipped":   len(result.Skipped()),
		"Statuses":  len(statuses),
	})
	if len(statuses) == 0 {
		logger.Info("monitor cycle finished, no queue statuses to register")
		return nil
	}
	err := reg.RegisterQueueStatuses(ctx, statuses)
	if err != nil {
		result.RegisterErr = err
		return fmt.Errorf("error registering queue statuses: %w", err)
	}
	logger.Info("monitor cycle finished")
	return nil
}
