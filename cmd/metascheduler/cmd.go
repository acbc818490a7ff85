// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/apache/airavata-metascheduler/lib/clustermonitor"
	"github.com/apache/airavata-metascheduler/lib/cmd"
	"github.com/apache/airavata-metascheduler/lib/config"
	"github.com/apache/airavata-metascheduler/lib/registry"
	"github.com/apache/airavata-metascheduler/lib/scanner"
)

var (
	handler = cmd.Multi(map[string]cmd.Handler{
		"version":   cmd.Version,
		"-version":  cmd.Version,
		"--version": cmd.Version,

		"config-dump":     config.DumpCommand,
		"config-defaults": config.DumpDefaultsCommand,
		"migrate":         registry.MigrateCommand,
		"process-scanner": scanner.Command,
		"cluster-monitor": clustermonitor.Command,
		"queue-monitor":   clustermonitor.QueueCommand,
	})
)

func main() {
	cmd.Exit(handler)
}
