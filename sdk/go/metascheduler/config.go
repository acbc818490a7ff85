// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package metascheduler

import (
	"fmt"
	"net/url"
	"strings"
)

const DefaultConfigFile = "/etc/airavata/metascheduler.yml"

type Config struct {
	Clusters map[string]Cluster
}

// GetCluster returns the cluster ID and config for the given
// cluster, or the default/only configured cluster if clusterID is "".
func (sc *Config) GetCluster(clusterID string) (*Cluster, error) {
	if clusterID == "" {
		if len(sc.Clusters) == 0 {
			return nil, fmt.Errorf("no clusters configured")
		} else if len(sc.Clusters) > 1 {
			return nil, fmt.Errorf("multiple clusters configured, cannot choose")
		} else {
			for id, cc := range sc.Clusters {
				cc.ClusterID = id
				return &cc, nil
			}
		}
	}
	cc, ok := sc.Clusters[clusterID]
	if !ok {
		return nil, fmt.Errorf("cluster %q is not configured", clusterID)
	}
	cc.ClusterID = clusterID
	return &cc, nil
}

type Cluster struct {
	ClusterID       string `json:"-"`
	ManagementToken string
	SystemLogs      struct {
		Format   string
		LogLevel string
	}
	PostgreSQL struct {
		Connection     PostgreSQLConnection
		ConnectionPool int
	}
	CredentialStore struct {
		URL       URL
		Token     string
		Insecure  bool
		CacheSize int
		Retries   int
	}
	Services  Services
	Scheduler SchedulerConfig
	Monitor   struct {
		Cluster ClusterMonitorConfig
	}
}

type SchedulerConfig struct {
	Enabled              bool
	Gateway              string
	GroupResourceProfile string
	Username             string

	JobScanningInterval     Duration
	ClusterScanningInterval Duration

	// Shard of the group preference list handled by this
	// queue-monitor process.
	ClusterScanningParallelJobs int
	ClusterScanningJobID        int

	MaximumReschedulerThreshold      int
	ComputeResourceSelectionPolicy   string
	ComputeResourceReschedulerPolicy string

	// Hold a database advisory lock while running, so only one
	// process in the deployment runs each periodic task.
	UseDatabaseLock bool
}

type ClusterMonitorConfig struct {
	Enable         bool
	CommandTimeout Duration
	ConnectTimeout Duration
	// "insecure-ignore" or "known-hosts"
	HostKeyPolicy  string
	KnownHostsFile string
	// Per job manager type (e.g., "SLURM") overrides of the job
	// count commands used by the queue monitor.
	JobManagerCommands map[ResourceJobManagerType]JobManagerCommands
}

type JobManagerCommands struct {
	RunningJobs string
	PendingJobs string
}

type PostgreSQLConnection map[string]string

// String returns a libpq-style connection string.
func (c PostgreSQLConnection) String() string {
	s := ""
	for k, v := range c {
		s += strings.ToLower(k)
		s += "='"
		s += strings.Replace(
			strings.Replace(v, `\`, `\\`, -1),
			`'`, `\'`, -1)
		s += "' "
	}
	return s
}

type ServiceName string

const (
	ServiceNameProcessScanner ServiceName = "process-scanner"
	ServiceNameClusterMonitor ServiceName = "cluster-monitor"
	ServiceNameQueueMonitor   ServiceName = "queue-monitor"
)

type Services struct {
	ProcessScanner Service
	ClusterMonitor Service
	QueueMonitor   Service
}

// Map returns all services as a map, suitable for iterating over all
// services or looking up a service by name.
func (svcs Services) Map() map[ServiceName]Service {
	return map[ServiceName]Service{
		ServiceNameProcessScanner: svcs.ProcessScanner,
		ServiceNameClusterMonitor: svcs.ClusterMonitor,
		ServiceNameQueueMonitor:   svcs.QueueMonitor,
	}
}

type Service struct {
	InternalURLs map[URL]ServiceInstance
}

type ServiceInstance struct{}

// URL is a url.URL that is also usable as a JSON key/value.
type URL url.URL

// UnmarshalText implements encoding.TextUnmarshaler so URL can be
// used as a JSON key/value.
func (su *URL) UnmarshalText(text []byte) error {
	u, err := url.Parse(string(text))
	if err == nil {
		*su = URL(*u)
		if su.Path == "" && su.Host != "" {
			su.Path = "/"
		}
	}
	return err
}

func (su URL) MarshalText() ([]byte, error) {
	return []byte(su.String()), nil
}

func (su URL) String() string {
	return (*url.URL)(&su).String()
}
