// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package metascheduler

import (
	"encoding/json"
	"time"

	check "gopkg.in/check.v1"
)

var _ = check.Suite(&configSuite{})

type configSuite struct{}

func (s *configSuite) TestDuration(c *check.C) {
	var d struct{ D Duration }
	c.Check(json.Unmarshal([]byte(`{"D":"1h30m"}`), &d), check.IsNil)
	c.Check(d.D.Duration(), check.Equals, 90*time.Minute)
	c.Check(json.Unmarshal([]byte(`{"D":2.5}`), &d), check.IsNil)
	c.Check(d.D.Duration(), check.Equals, 2500*time.Millisecond)
	c.Check(json.Unmarshal([]byte(`{"D":true}`), &d), check.ErrorMatches, `duration must be given as .*`)
	buf, err := json.Marshal(d)
	c.Check(err, check.IsNil)
	c.Check(string(buf), check.Equals, `{"D":"2.5s"}`)
}

func (s *configSuite) TestURL(c *check.C) {
	var u URL
	c.Check(u.UnmarshalText([]byte("https://creds.example:8443")), check.IsNil)
	c.Check(u.String(), check.Equals, "https://creds.example:8443/")
	c.Check(u.UnmarshalText([]byte("")), check.IsNil)
	c.Check(u.String(), check.Equals, "")

	var m map[URL]ServiceInstance
	c.Check(json.Unmarshal([]byte(`{"http://localhost:9999/": {}}`), &m), check.IsNil)
	c.Check(m, check.HasLen, 1)
}

func (s *configSuite) TestPostgreSQLConnection(c *check.C) {
	conn := PostgreSQLConnection{"DBName": `it's`}
	c.Check(conn.String(), check.Equals, `dbname='it\'s' `)
}

func (s *configSuite) TestGetCluster(c *check.C) {
	cfg := Config{Clusters: map[string]Cluster{"z1111": {}}}
	cc, err := cfg.GetCluster("")
	c.Assert(err, check.IsNil)
	c.Check(cc.ClusterID, check.Equals, "z1111")
	_, err = cfg.GetCluster("z2222")
	c.Check(err, check.ErrorMatches, `cluster "z2222" is not configured`)
	cfg.Clusters["z2222"] = Cluster{}
	_, err = cfg.GetCluster("")
	c.Check(err, check.ErrorMatches, `multiple clusters configured, cannot choose`)
	_, err = (&Config{}).GetCluster("")
	c.Check(err, check.ErrorMatches, `no clusters configured`)
}
