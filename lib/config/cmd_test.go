// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"

	check "gopkg.in/check.v1"
)

var _ = check.Suite(&CommandSuite{})

type CommandSuite struct{}

func (s *CommandSuite) TestDump(c *check.C) {
	var stdout, stderr bytes.Buffer
	in := `Clusters: {z1234: {Scheduler: {Gateway: seagrid}}}`
	code := DumpCommand.RunCommand("config-dump", []string{"-config", "-"}, bytes.NewBufferString(in), &stdout, &stderr)
	c.Check(code, check.Equals, 0)
	c.Check(stdout.String(), check.Matches, `(?ms).*Gateway: seagrid.*`)
	c.Check(stdout.String(), check.Matches, `(?ms).*MaximumReschedulerThreshold: 5.*`)
}

func (s *CommandSuite) TestDumpRedactsSecrets(c *check.C) {
	in := `Clusters: {z1234: {ManagementToken: mgmt-secret, CredentialStore: {Token: cs-secret}, PostgreSQL: {Connection: {host: db.example, password: pg-secret}}}}`
	var stdout, stderr bytes.Buffer
	code := DumpCommand.RunCommand("config-dump", []string{"-config", "-"}, bytes.NewBufferString(in), &stdout, &stderr)
	c.Check(code, check.Equals, 0)
	c.Check(stdout.String(), check.Not(check.Matches), `(?ms).*secret.*`)
	c.Check(stdout.String(), check.Matches, `(?ms).*host: db.example.*`)
	c.Check(stdout.String(), check.Matches, `(?ms).*ManagementToken: xxxxxxxx.*`)

	stdout.Reset()
	code = DumpCommand.RunCommand("config-dump", []string{"-config", "-", "-include-secrets"}, bytes.NewBufferString(in), &stdout, &stderr)
	c.Check(code, check.Equals, 0)
	c.Check(stdout.String(), check.Matches, `(?ms).*password: pg-secret.*`)
}

func (s *CommandSuite) TestDumpBadConfig(c *check.C) {
	var stdout, stderr bytes.Buffer
	code := DumpCommand.RunCommand("config-dump", []string{"-config", "-"}, bytes.NewBufferString(`Clusters: {}`), &stdout, &stderr)
	c.Check(code, check.Equals, 1)
	c.Check(stderr.String(), check.Matches, `config does not define any clusters\n`)
}

func (s *CommandSuite) TestDumpDefaults(c *check.C) {
	var stdout, stderr bytes.Buffer
	code := DumpDefaultsCommand.RunCommand("config-defaults", nil, nil, &stdout, &stderr)
	c.Check(code, check.Equals, 0)
	c.Check(stdout.Bytes(), check.DeepEquals, DefaultYAML)
}
