// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package scanner

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/airavata-metascheduler/lib/cmd"
	"github.com/apache/airavata-metascheduler/lib/dblock"
	"github.com/apache/airavata-metascheduler/lib/registry"
	"github.com/apache/airavata-metascheduler/lib/rescheduler"
	"github.com/apache/airavata-metascheduler/lib/selection"
	"github.com/apache/airavata-metascheduler/lib/service"
	"github.com/apache/airavata-metascheduler/sdk/go/ctxlog"
	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
	"github.com/prometheus/client_golang/prometheus"
)

var Command cmd.Handler = service.Command(metascheduler.ServiceNameProcessScanner, newHandler)

func newHandler(ctx context.Context, cluster *metascheduler.Cluster, reg *prometheus.Registry) service.Handler {
	sc := cluster.Scheduler
	if !sc.Enabled {
		return service.ErrorHandler(ctx, errors.New("Scheduler.Enabled is false"))
	}
	db := registry.New(cluster)
	if err := db.Migrate(ctx); err != nil {
		return service.ErrorHandler(ctx, fmt.Errorf("error initializing registry database: %w", err))
	}
	policy, err := selection.New(sc.ComputeResourceSelectionPolicy, db, ctxlog.FromContext(ctx))
	if err != nil {
		return service.ErrorHandler(ctx, err)
	}
	rs, err := rescheduler.New(sc.ComputeResourceReschedulerPolicy, rescheduler.Deps{
		Registry: db,
		Policy:   policy,
		Config: rescheduler.Config{
			MaximumReschedulerThreshold: sc.MaximumReschedulerThreshold,
			JobScanningInterval:         sc.JobScanningInterval.Duration(),
		},
	})
	if err != nil {
		return service.ErrorHandler(ctx, err)
	}
	scanner := New(db, rs, reg)
	var lock service.Locker
	if sc.UseDatabaseLock {
		lock = dblock.New(dblock.ProcessScannerKey, db.DB)
	}
	return service.StartPeriodic(ctx, string(metascheduler.ServiceNameProcessScanner), sc.JobScanningInterval.Duration(), func(ctx context.Context) error {
		_, err := scanner.Scan(ctx)
		return err
	}, lock, reg)
}
