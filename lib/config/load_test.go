// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/apache/airavata-metascheduler/sdk/go/ctxlog"
	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	check "gopkg.in/check.v1"
)

// Gocheck boilerplate
func Test(t *testing.T) {
	check.TestingT(t)
}

var _ = check.Suite(&LoadSuite{})

var emptyConfigYAML = `Clusters: {"z1111": {}}`

// Return a new Loader that reads cluster config from configdata
// (instead of the usual default /etc/airavata/metascheduler.yml),
// and logs to logdst or (if that's nil) c.Log.
func testLoader(c *check.C, configdata string, logdst io.Writer) *Loader {
	logger := ctxlog.TestLogger(c)
	if logdst != nil {
		lgr := logrus.New()
		lgr.Out = logdst
		logger = lgr
	}
	ldr := NewLoader(bytes.NewBufferString(configdata), logger)
	ldr.Path = "-"
	return ldr
}

type LoadSuite struct{}

func (s *LoadSuite) TestEmpty(c *check.C) {
	cfg, err := testLoader(c, "", nil).Load()
	c.Check(cfg, check.IsNil)
	c.Assert(err, check.ErrorMatches, `config does not define any clusters`)
}

func (s *LoadSuite) TestDefaults(c *check.C) {
	cfg, err := testLoader(c, emptyConfigYAML, nil).Load()
	c.Assert(err, check.IsNil)
	c.Assert(cfg.Clusters, check.HasLen, 1)
	cc, err := cfg.GetCluster("")
	c.Assert(err, check.IsNil)
	c.Check(cc.ClusterID, check.Equals, "z1111")
	c.Check(cc.Scheduler.MaximumReschedulerThreshold, check.Equals, 5)
	c.Check(cc.Scheduler.JobScanningInterval.Duration(), check.Equals, 30*time.Minute)
	c.Check(cc.Scheduler.ClusterScanningParallelJobs, check.Equals, 1)
	c.Check(cc.Scheduler.ComputeResourceSelectionPolicy, check.Equals, "MultipleComputeResourcePolicy")
	c.Check(cc.Scheduler.ComputeResourceReschedulerPolicy, check.Equals, "ExponentialBackOffReScheduler")
	c.Check(cc.Monitor.Cluster.CommandTimeout.Duration(), check.Equals, 2*time.Minute)
	c.Check(cc.Monitor.Cluster.HostKeyPolicy, check.Equals, "insecure-ignore")
	c.Check(cc.Monitor.Cluster.JobManagerCommands[metascheduler.ResourceJobManagerSLURM].RunningJobs, check.Equals, "squeue -h -t running -r | wc -l")
	c.Check(cc.Services.ProcessScanner.InternalURLs, check.HasLen, 0)
	c.Check(cc.PostgreSQL.Connection, check.HasLen, 0)
	c.Check(cc.PostgreSQL.ConnectionPool, check.Equals, 32)
}

func (s *LoadSuite) TestOverrideDefaults(c *check.C) {
	cfg, err := testLoader(c, `
Clusters:
  z1111:
    Scheduler:
      MaximumReschedulerThreshold: 3
      JobScanningInterval: 90s
      ClusterScanningParallelJobs: 4
      ClusterScanningJobID: 3
    Monitor:
      Cluster:
        JobManagerCommands:
          PBS:
            RunningJobs: "qstat -r | wc -l"
    Services:
      ProcessScanner:
        InternalURLs:
          "http://localhost:9010": {}
`, nil).Load()
	c.Assert(err, check.IsNil)
	cc, err := cfg.GetCluster("z1111")
	c.Assert(err, check.IsNil)
	c.Check(cc.Scheduler.MaximumReschedulerThreshold, check.Equals, 3)
	c.Check(cc.Scheduler.JobScanningInterval.Duration(), check.Equals, 90*time.Second)
	c.Check(cc.Scheduler.ClusterScanningJobID, check.Equals, 3)
	c.Check(cc.Monitor.Cluster.JobManagerCommands, check.HasLen, 2)
	c.Check(cc.Monitor.Cluster.JobManagerCommands[metascheduler.ResourceJobManagerPBS].RunningJobs, check.Equals, "qstat -r | wc -l")
	c.Check(cc.Services.ProcessScanner.InternalURLs, check.HasLen, 1)
	for u := range cc.Services.ProcessScanner.InternalURLs {
		c.Check(u.Host, check.Equals, "localhost:9010")
	}
}

func (s *LoadSuite) TestExplicitZeroValues(c *check.C) {
	cfg, err := testLoader(c, `
Clusters:
  z1111:
    Scheduler:
      MaximumReschedulerThreshold: 0
    CredentialStore:
      CacheSize: 0
      Retries: 0
    PostgreSQL:
      ConnectionPool: 0
`, nil).Load()
	c.Assert(err, check.IsNil)
	cc, err := cfg.GetCluster("z1111")
	c.Assert(err, check.IsNil)
	c.Check(cc.Scheduler.MaximumReschedulerThreshold, check.Equals, 0)
	c.Check(cc.CredentialStore.CacheSize, check.Equals, 0)
	c.Check(cc.CredentialStore.Retries, check.Equals, 0)
	c.Check(cc.PostgreSQL.ConnectionPool, check.Equals, 0)
	// Siblings of explicit values still get defaults.
	c.Check(cc.Scheduler.JobScanningInterval.Duration(), check.Equals, 30*time.Minute)
	c.Check(cc.Scheduler.ComputeResourceSelectionPolicy, check.Equals, "MultipleComputeResourcePolicy")
}

func (s *LoadSuite) TestExplicitZeroIsValidated(c *check.C) {
	cfg, err := testLoader(c, `{"Clusters":{"z1111":{"Scheduler":{"ClusterScanningParallelJobs":0}}}}`, nil).Load()
	c.Check(cfg, check.IsNil)
	c.Check(err, check.ErrorMatches, `.*ClusterScanningParallelJobs must be at least 1 \(got 0\).*`)
}

func (s *LoadSuite) TestNullSectionKeepsDefaults(c *check.C) {
	cfg, err := testLoader(c, `
Clusters:
  z1111:
    Scheduler:
    Monitor:
      Cluster:
`, nil).Load()
	c.Assert(err, check.IsNil)
	cc := cfg.Clusters["z1111"]
	c.Check(cc.Scheduler.MaximumReschedulerThreshold, check.Equals, 5)
	c.Check(cc.Monitor.Cluster.HostKeyPolicy, check.Equals, "insecure-ignore")
}

func (s *LoadSuite) TestNumericDurationIsSeconds(c *check.C) {
	cfg, err := testLoader(c, `{"Clusters":{"z1111":{"Scheduler":{"JobScanningInterval":1800}}}}`, nil).Load()
	c.Assert(err, check.IsNil)
	c.Check(cfg.Clusters["z1111"].Scheduler.JobScanningInterval.Duration(), check.Equals, 30*time.Minute)
}

func (s *LoadSuite) TestInvalidShard(c *check.C) {
	for _, trial := range []struct {
		yaml string
		err  string
	}{
		{`{"Clusters":{"z1111":{"Scheduler":{"ClusterScanningParallelJobs":2,"ClusterScanningJobID":2}}}}`, `.*ClusterScanningJobID 2 is outside \[0, 2\).*`},
		{`{"Clusters":{"z1111":{"Scheduler":{"ClusterScanningJobID":-1}}}}`, `.*ClusterScanningJobID -1 is outside.*`},
		{`{"Clusters":{"z1111":{"Scheduler":{"MaximumReschedulerThreshold":-2}}}}`, `.*must not be negative.*`},
		{`{"Clusters":{"z1111":{"Monitor":{"Cluster":{"HostKeyPolicy":"known-hosts"}}}}}`, `.*KnownHostsFile is empty.*`},
		{`{"Clusters":{"z1111":{"Monitor":{"Cluster":{"HostKeyPolicy":"trust-me"}}}}}`, `.*"trust-me" is not supported.*`},
	} {
		c.Logf("trial: %s", trial.yaml)
		_, err := testLoader(c, trial.yaml, nil).Load()
		c.Check(err, check.ErrorMatches, trial.err)
	}
}

func (s *LoadSuite) TestInsecureHostKeyWarning(c *check.C) {
	var logbuf bytes.Buffer
	_, err := testLoader(c, `{"Clusters":{"z1111":{"Monitor":{"Cluster":{"Enable":true}}}}}`, &logbuf).Load()
	c.Assert(err, check.IsNil)
	c.Check(logbuf.String(), check.Matches, `(?ms).*host keys will not be verified.*`)
}

func (s *LoadSuite) TestMultipleClusters(c *check.C) {
	cfg, err := testLoader(c, `{"Clusters":{"z1111":{},"z2222":{}}}`, nil).Load()
	c.Assert(err, check.IsNil)
	_, err = cfg.GetCluster("")
	c.Check(err, check.ErrorMatches, `multiple clusters configured, cannot choose`)
	cc, err := cfg.GetCluster("z2222")
	c.Assert(err, check.IsNil)
	c.Check(cc.Scheduler.MaximumReschedulerThreshold, check.Equals, 5)
}

func (s *LoadSuite) TestLoadFromFile(c *check.C) {
	conffile := c.MkDir() + "/config.yml"
	err := os.WriteFile(conffile, []byte(emptyConfigYAML), 0644)
	c.Assert(err, check.IsNil)
	os.Setenv("METASCHEDULER_CONFIG", conffile)
	defer os.Unsetenv("METASCHEDULER_CONFIG")
	ldr := NewLoader(nil, ctxlog.TestLogger(c))
	cfg, err := ldr.Load()
	c.Assert(err, check.IsNil)
	c.Check(ldr.Path, check.Equals, conffile)
	c.Check(cfg.Clusters, check.HasLen, 1)
}

func (s *LoadSuite) TestRegisterMetrics(c *check.C) {
	ldr := testLoader(c, emptyConfigYAML, nil)
	_, err := ldr.Load()
	c.Assert(err, check.IsNil)
	reg := prometheus.NewRegistry()
	ldr.RegisterMetrics(reg)
	mfs, err := reg.Gather()
	c.Assert(err, check.IsNil)
	var names []string
	for _, mf := range mfs {
		names = append(names, mf.GetName())
		c.Check(mf.GetMetric()[0].GetGauge().GetValue() > 0, check.Equals, true)
	}
	c.Check(strings.Join(names, ","), check.Equals, "airavata_config_load_timestamp_seconds,airavata_config_source_timestamp_seconds")
}
