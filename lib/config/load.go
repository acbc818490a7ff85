// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
	"github.com/ghodss/yaml"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type Loader struct {
	Logger logrus.FieldLogger

	// Config file path; "-" means stdin.
	Path string

	stdin           io.Reader
	configdata      []byte
	sourceTimestamp time.Time
	loadTimestamp   time.Time
}

// NewLoader returns a new Loader with Path set to the default config
// file location (or $METASCHEDULER_CONFIG, if set).
func NewLoader(stdin io.Reader, logger logrus.FieldLogger) *Loader {
	ldr := &Loader{stdin: stdin, Logger: logger}
	ldr.SetupFlags(flag.NewFlagSet("", flag.ContinueOnError))
	ldr.Path = "" // unset so Load() can use $METASCHEDULER_CONFIG
	return ldr
}

// SetupFlags configures a flagset so arguments like -config X can be
// used to change the loader's Path field.
//
//	ldr := NewLoader(os.Stdin, logrus.StandardLogger())
//	flagset := flag.NewFlagSet("", flag.ContinueOnError)
//	ldr.SetupFlags(flagset)
//	// ldr.Path == "/etc/airavata/metascheduler.yml"
//	flagset.Parse([]string{"-config", "/tmp/c.yaml"})
//	// ldr.Path == "/tmp/c.yaml"
func (ldr *Loader) SetupFlags(flagset *flag.FlagSet) {
	flagset.StringVar(&ldr.Path, "config", metascheduler.DefaultConfigFile, "Site configuration `file` (default may be overridden by setting a METASCHEDULER_CONFIG environment variable)")
}

func (ldr *Loader) loadBytes(path string) (buf []byte, sourceTime time.Time, err error) {
	if path == "-" {
		buf, err = io.ReadAll(ldr.stdin)
		sourceTime = time.Now()
		return
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, time.Time{}, err
	}
	buf, err = io.ReadAll(f)
	return buf, fi.ModTime(), err
}

// Load reads the config file, applies defaults to every cluster
// defined there, and checks the result.
func (ldr *Loader) Load() (*metascheduler.Config, error) {
	if ldr.configdata == nil {
		if ldr.Path == "" {
			ldr.Path = os.Getenv("METASCHEDULER_CONFIG")
		}
		if ldr.Path == "" {
			ldr.Path = metascheduler.DefaultConfigFile
		}
		buf, sourceTime, err := ldr.loadBytes(ldr.Path)
		if err != nil {
			return nil, err
		}
		ldr.configdata = buf
		ldr.sourceTimestamp = sourceTime.UTC()
	}

	// Load the config into a dummy map to get the cluster ID
	// keys, discarding the values; then set up defaults for each
	// cluster ID; then merge the real config on top of the
	// defaults. Keys present in the site config win even when the
	// value is zero, false, or empty.
	var dummy struct {
		Clusters map[string]struct{}
	}
	err := yaml.Unmarshal(ldr.configdata, &dummy)
	if err != nil {
		return nil, err
	}
	if len(dummy.Clusters) == 0 {
		return nil, errors.New("config does not define any clusters")
	}

	site, err := loadYAMLMap(ldr.configdata)
	if err != nil {
		return nil, err
	}
	siteClusters, _ := site["Clusters"].(map[string]interface{})
	merged := map[string]interface{}{}
	for id := range dummy.Clusters {
		dflt, err := loadYAMLMap(DefaultYAML)
		if err != nil {
			return nil, fmt.Errorf("loading defaults for %s: %w", id, err)
		}
		cc, _ := dflt["Clusters"].(map[string]interface{})["xxxxx"].(map[string]interface{})
		removeSampleKeys(cc)
		if sc, ok := siteClusters[id].(map[string]interface{}); ok {
			mergeConfig(cc, sc)
		}
		merged[id] = cc
	}
	site["Clusters"] = merged
	buf, err := json.Marshal(site)
	if err != nil {
		return nil, err
	}
	var cfg metascheduler.Config
	err = json.Unmarshal(buf, &cfg)
	if err != nil {
		return nil, err
	}
	for id, cc := range cfg.Clusters {
		cc.ClusterID = id
		cfg.Clusters[id] = cc
	}

	for id, cc := range cfg.Clusters {
		if err := checkClusterID(fmt.Sprintf("Clusters.%s", id), id); err != nil {
			return nil, err
		}
		if err := ldr.checkCluster(&cc); err != nil {
			return nil, fmt.Errorf("Clusters.%s: %w", id, err)
		}
	}
	ldr.loadTimestamp = time.Now().UTC()
	return &cfg, nil
}

// loadYAMLMap decodes a YAML document into generic maps, keeping
// numbers as json.Number.
func loadYAMLMap(buf []byte) (map[string]interface{}, error) {
	j, err := yaml.YAMLToJSON(buf)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(j))
	dec.UseNumber()
	err = dec.Decode(&m)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]interface{}{}
	}
	return m, nil
}

// mergeConfig copies src into dst, descending into maps that exist
// on both sides. A null in src leaves the dst value alone.
func mergeConfig(dst, src map[string]interface{}) {
	for k, sv := range src {
		if sv == nil {
			continue
		}
		if sm, ok := sv.(map[string]interface{}); ok {
			if dm, ok := dst[k].(map[string]interface{}); ok {
				mergeConfig(dm, sm)
				continue
			}
		}
		dst[k] = sv
	}
}

// removeSampleKeys deletes the "SAMPLE" entries that document the
// shape of map-valued settings in the default config.
func removeSampleKeys(m map[string]interface{}) {
	delete(m, "SAMPLE")
	for _, v := range m {
		if sub, ok := v.(map[string]interface{}); ok {
			removeSampleKeys(sub)
		}
	}
}

func checkClusterID(label, clusterID string) error {
	if clusterID == "" {
		return fmt.Errorf("%s: cluster ID must not be empty", label)
	}
	if strings.ContainsAny(clusterID, " \t\n/") {
		return fmt.Errorf("%s: cluster ID %q must not contain whitespace or slashes", label, clusterID)
	}
	return nil
}

func (ldr *Loader) checkCluster(cc *metascheduler.Cluster) error {
	sched := cc.Scheduler
	if sched.MaximumReschedulerThreshold < 0 {
		return fmt.Errorf("Scheduler.MaximumReschedulerThreshold must not be negative (got %d)", sched.MaximumReschedulerThreshold)
	}
	if sched.JobScanningInterval <= 0 {
		return fmt.Errorf("Scheduler.JobScanningInterval must be positive (got %s)", sched.JobScanningInterval)
	}
	if sched.ClusterScanningInterval <= 0 {
		return fmt.Errorf("Scheduler.ClusterScanningInterval must be positive (got %s)", sched.ClusterScanningInterval)
	}
	if sched.ClusterScanningParallelJobs < 1 {
		return fmt.Errorf("Scheduler.ClusterScanningParallelJobs must be at least 1 (got %d)", sched.ClusterScanningParallelJobs)
	}
	if sched.ClusterScanningJobID < 0 || sched.ClusterScanningJobID >= sched.ClusterScanningParallelJobs {
		return fmt.Errorf("Scheduler.ClusterScanningJobID %d is outside [0, %d)", sched.ClusterScanningJobID, sched.ClusterScanningParallelJobs)
	}
	switch cc.Monitor.Cluster.HostKeyPolicy {
	case "insecure-ignore":
		if ldr.Logger != nil && cc.Monitor.Cluster.Enable {
			ldr.Logger.Warn("Monitor.Cluster.HostKeyPolicy is insecure-ignore: remote host keys will not be verified")
		}
	case "known-hosts":
		if cc.Monitor.Cluster.KnownHostsFile == "" {
			return errors.New("Monitor.Cluster.HostKeyPolicy is known-hosts but KnownHostsFile is empty")
		}
	default:
		return fmt.Errorf("Monitor.Cluster.HostKeyPolicy %q is not supported", cc.Monitor.Cluster.HostKeyPolicy)
	}
	return nil
}

// RegisterMetrics registers metrics showing the timestamp and content
// hash of the currently loaded config.
//
// Must not be called before Load().
func (ldr *Loader) RegisterMetrics(reg *prometheus.Registry) {
	hash := fmt.Sprintf("%x", sha256.Sum256(ldr.configdata))
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "airavata",
		Subsystem: "config",
		Name:      "source_timestamp_seconds",
		Help:      "Timestamp of config file when it was loaded.",
	}, []string{"sha256"})
	vec.WithLabelValues(hash).Set(float64(ldr.sourceTimestamp.UnixNano()) / 1e9)
	reg.MustRegister(vec)

	vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "airavata",
		Subsystem: "config",
		Name:      "load_timestamp_seconds",
		Help:      "Time when config file was loaded.",
	}, []string{"sha256"})
	vec.WithLabelValues(hash).Set(float64(ldr.loadTimestamp.UnixNano()) / 1e9)
	reg.MustRegister(vec)
}

// SetConfigData replaces the config file content, e.g., for tests.
func (ldr *Loader) SetConfigData(buf []byte) {
	ldr.configdata = bytes.Clone(buf)
	ldr.sourceTimestamp = time.Now().UTC()
}
