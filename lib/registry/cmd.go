// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/apache/airavata-metascheduler/lib/cmd"
	"github.com/apache/airavata-metascheduler/lib/config"
	"github.com/apache/airavata-metascheduler/sdk/go/ctxlog"
)

// MigrateCommand creates the registry tables in the configured
// database.
var MigrateCommand cmd.Handler = migrateCommand{}

type migrateCommand struct{}

func (migrateCommand) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	logger := ctxlog.New(stderr, "text", "info")
	var err error
	defer func() {
		if err != nil {
			logger.WithError(err).Error("migration failed")
		}
	}()

	loader := config.NewLoader(stdin, logger)
	flags := flag.NewFlagSet(prog, flag.ContinueOnError)
	loader.SetupFlags(flags)
	if ok, code := cmd.ParseFlags(flags, prog, args, "", stderr); !ok {
		return code
	}
	cfg, err := loader.Load()
	if err != nil {
		return 1
	}
	cluster, err := cfg.GetCluster("")
	if err != nil {
		return 1
	}
	if len(cluster.PostgreSQL.Connection) == 0 {
		err = fmt.Errorf("PostgreSQL.Connection is not configured")
		return 1
	}
	reg := New(cluster)
	defer reg.Close()
	ctx := ctxlog.Context(context.Background(), logger)
	if err = reg.Migrate(ctx); err != nil {
		return 1
	}
	logger.Info("registry schema is up to date")
	return 0
}
