// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package clustermonitor

import (
	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
	check "gopkg.in/check.v1"
)

var _ = check.Suite(&parseSuite{})

type parseSuite struct{}

func (*parseSuite) TestStatusCommand(c *check.C) {
	cmd, err := statusCommand(metascheduler.ResourceJobManagerSLURM, "normal")
	c.Check(err, check.IsNil)
	c.Check(cmd, check.Equals, `sinfo -s -p normal -o "%a %F" | tail -1`)
	cmd, err = statusCommand(metascheduler.ResourceJobManagerPBS, "workq")
	c.Check(err, check.IsNil)
	c.Check(cmd, check.Equals, `qstat -Q workq | tail -1`)
	cmd, err = statusCommand(metascheduler.ResourceJobManagerSLURM, "it's; rm -rf /")
	c.Check(err, check.IsNil)
	c.Check(cmd, check.Equals, `sinfo -s -p 'it'\''s; rm -rf /' -o "%a %F" | tail -1`)
	_, err = statusCommand(metascheduler.ResourceJobManagerLSF, "normal")
	c.Check(err, check.ErrorMatches, `unsupported resource job manager "LSF"`)
}

func (*parseSuite) TestParseSLURM(c *check.C) {
	for _, trial := range []struct {
		output string
		expect queueState
	}{
		{"up 3/2", queueState{up: true, running: 3, queued: 2}},
		{"up 3/2\n", queueState{up: true, running: 3, queued: 2}},
		{"UP 10/0/2/12", queueState{up: true, running: 10, queued: 0}},
		{"down 0/0/4/4", queueState{up: false, running: 0, queued: 0}},
		{"AVAIL NODES(A/I/O/T)\ninact 1/5/0/6", queueState{up: false, running: 1, queued: 5}},
	} {
		st, err := parseSLURM(trial.output)
		c.Check(err, check.IsNil, check.Commentf("%q", trial.output))
		c.Check(st, check.Equals, trial.expect, check.Commentf("%q", trial.output))
	}
	for _, bad := range []string{"", "up", "up 3", "up x/2", "up 3/y"} {
		_, err := parseSLURM(bad)
		c.Check(err, check.NotNil, check.Commentf("%q", bad))
	}
}

func (*parseSuite) TestParsePBS(c *check.C) {
	st, err := parsePBS("workq     0    12  yes   yes     7     5     0     0     0     0 E\n")
	c.Check(err, check.IsNil)
	c.Check(st, check.Equals, queueState{up: true, running: 5, queued: 7})

	st, err = parsePBS("Queue Max Tot Ena Str Que Run Hld Wat Trn Ext T\n---\nbatch 0 0 NO no 0 0 0 0 0 0 E")
	c.Check(err, check.IsNil)
	c.Check(st, check.Equals, queueState{up: false})

	for _, bad := range []string{"", "workq 0 12 yes yes 7", "workq 0 12 yes yes x 5", "workq 0 12 yes yes 7 y"} {
		_, err := parsePBS(bad)
		c.Check(err, check.NotNil, check.Commentf("%q", bad))
	}
}

func (*parseSuite) TestParseCount(c *check.C) {
	for output, expect := range map[string]int{
		"0\n":        0,
		"   42\n":    42,
		"17 jobs":    17,
		"8\nignored": 8,
	} {
		n, err := parseCount(output)
		c.Check(err, check.IsNil)
		c.Check(n, check.Equals, expect)
	}
	for _, bad := range []string{"", "\n", "jobs: 4"} {
		_, err := parseCount(bad)
		c.Check(err, check.NotNil, check.Commentf("%q", bad))
	}
}

func (*parseSuite) TestShard(c *check.C) {
	type span struct{ start, end int }
	for _, trial := range []struct {
		size, parallel int
		expect         []span
	}{
		{10, 3, []span{{0, 3}, {3, 6}, {6, 10}}},
		{10, 1, []span{{0, 10}}},
		{9, 3, []span{{0, 3}, {3, 6}, {6, 9}}},
		{2, 3, []span{{0, 0}, {0, 0}, {0, 2}}},
		{0, 2, []span{{0, 0}, {0, 0}}},
	} {
		for jobID, expect := range trial.expect {
			start, end := Shard(trial.size, trial.parallel, jobID)
			c.Check(span{start, end}, check.Equals, expect, check.Commentf("size %d parallel %d job %d", trial.size, trial.parallel, jobID))
		}
	}
	start, end := Shard(10, 3, 3)
	c.Check(end-start, check.Equals, 0)
	start, end = Shard(10, 0, 0)
	c.Check(end-start, check.Equals, 0)
}
