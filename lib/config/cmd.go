// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/apache/airavata-metascheduler/lib/cmd"
	"github.com/apache/airavata-metascheduler/sdk/go/ctxlog"
	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
	"github.com/ghodss/yaml"
)

const redacted = "xxxxxxxx"

// DumpCommand writes the loaded config, with defaults applied, to
// stdout as YAML. Secrets are redacted unless -include-secrets is
// given.
var DumpCommand cmd.Handler = dumpCommand{}

type dumpCommand struct{}

func (dumpCommand) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()

	loader := NewLoader(stdin, ctxlog.New(stderr, "text", "info"))
	flags := flag.NewFlagSet(prog, flag.ContinueOnError)
	loader.SetupFlags(flags)
	includeSecrets := flags.Bool("include-secrets", false, "Do not redact tokens and passwords")
	if ok, code := cmd.ParseFlags(flags, prog, args, "", stderr); !ok {
		return code
	}
	cfg, err := loader.Load()
	if err != nil {
		return 1
	}
	if !*includeSecrets {
		redactSecrets(cfg)
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return 1
	}
	_, err = stdout.Write(out)
	if err != nil {
		return 1
	}
	return 0
}

func redactSecrets(cfg *metascheduler.Config) {
	redact := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	for id, cc := range cfg.Clusters {
		redact(&cc.ManagementToken)
		redact(&cc.CredentialStore.Token)
		conn := metascheduler.PostgreSQLConnection{}
		for k, v := range cc.PostgreSQL.Connection {
			if strings.EqualFold(k, "password") {
				redact(&v)
			}
			conn[k] = v
		}
		cc.PostgreSQL.Connection = conn
		cfg.Clusters[id] = cc
	}
}

// DumpDefaultsCommand writes the built-in default config to stdout.
var DumpDefaultsCommand cmd.Handler = cmd.HandlerFunc(func(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if _, err := stdout.Write(DefaultYAML); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
})
