// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	check "gopkg.in/check.v1"
)

var _ = check.Suite(&cmdSuite{})

type cmdSuite struct{}

func (s *cmdSuite) TestMigrateWithoutDatabase(c *check.C) {
	var stdout, stderr bytes.Buffer
	code := MigrateCommand.RunCommand("migrate", []string{"-config", "-"}, bytes.NewBufferString(`Clusters: {z1111: {}}`), &stdout, &stderr)
	c.Check(code, check.Equals, 1)
	c.Check(stderr.String(), check.Matches, `(?ms).*PostgreSQL.Connection is not configured.*`)
}

func (s *cmdSuite) TestMigrate(c *check.C) {
	dsn := os.Getenv("METASCHEDULER_TEST_DATABASE")
	if dsn == "" {
		c.Skip("METASCHEDULER_TEST_DATABASE not set")
	}
	// Convert "key=value key=value" to a Connection map.
	var conn []string
	for _, kv := range strings.Fields(dsn) {
		k, v, _ := strings.Cut(kv, "=")
		conn = append(conn, fmt.Sprintf("%s: %q", k, strings.Trim(v, "'")))
	}
	cfg := fmt.Sprintf("Clusters: {z1111: {PostgreSQL: {Connection: {%s}}}}", strings.Join(conn, ", "))
	var stdout, stderr bytes.Buffer
	code := MigrateCommand.RunCommand("migrate", []string{"-config", "-"}, bytes.NewBufferString(cfg), &stdout, &stderr)
	c.Check(code, check.Equals, 0, check.Commentf("%s", stderr.String()))
	c.Check(stderr.String(), check.Matches, `(?ms).*registry schema is up to date.*`)
}
