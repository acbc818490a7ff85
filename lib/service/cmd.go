// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package service provides a cmd.Handler that brings up a
// metascheduler service.
package service

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	_ "net/http/pprof"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/apache/airavata-metascheduler/lib/cmd"
	"github.com/apache/airavata-metascheduler/lib/config"
	"github.com/apache/airavata-metascheduler/sdk/go/ctxlog"
	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
	"github.com/coreos/go-systemd/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// A Handler is a running service.
type Handler interface {
	// CheckHealth returns an error if the service is not
	// working.
	CheckHealth() error
	// Done returns a channel that closes when the handler shuts
	// itself down, or nil if this never happens.
	Done() <-chan struct{}
}

// NewHandlerFunc starts a service. The service should stop when ctx
// is canceled.
type NewHandlerFunc func(_ context.Context, _ *metascheduler.Cluster, registry *prometheus.Registry) Handler

type command struct {
	newHandler NewHandlerFunc
	svcName    metascheduler.ServiceName
	ctx        context.Context // enables tests to shutdown service; no public API yet
}

// Command returns a cmd.Handler that loads site config, starts the
// service returned by newHandler, and serves health checks and
// metrics at the service's internal URL until the service stops.
func Command(svcName metascheduler.ServiceName, newHandler NewHandlerFunc) cmd.Handler {
	return &command{
		newHandler: newHandler,
		svcName:    svcName,
		ctx:        context.Background(),
	}
}

func (c *command) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	log := ctxlog.New(stderr, "json", "info")

	var err error
	defer func() {
		if err != nil {
			log.WithError(err).Error("exiting")
		}
	}()

	flags := flag.NewFlagSet("", flag.ContinueOnError)
	loader := config.NewLoader(stdin, log)
	loader.SetupFlags(flags)
	versionFlag := flags.Bool("version", false, "Write version information to stdout and exit 0")
	pprofAddr := flags.String("pprof", "", "Serve Go profile data at `[addr]:port`")
	if ok, code := cmd.ParseFlags(flags, prog, args, "", stderr); !ok {
		return code
	} else if *versionFlag {
		return cmd.Version.RunCommand(prog, args, stdin, stdout, stderr)
	}
	if *pprofAddr != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	cfg, err := loader.Load()
	if err != nil {
		return 1
	}
	cluster, err := cfg.GetCluster("")
	if err != nil {
		return 1
	}

	// Now that we've read the config, replace the bootstrap
	// logger with one that follows the logging config.
	log = ctxlog.New(stderr, cluster.SystemLogs.Format, cluster.SystemLogs.LogLevel)
	logger := log.WithFields(logrus.Fields{
		"PID":       os.Getpid(),
		"ClusterID": cluster.ClusterID,
		"Service":   c.svcName,
	})
	ctx, cancel := context.WithCancel(ctxlog.Context(c.ctx, logger))
	defer cancel()

	listenURL, err := getListenAddr(cluster.Services, c.svcName)
	if err != nil {
		return 1
	}
	// Listen before starting the handler, so a port conflict
	// doesn't leave a half-started service behind.
	ln, err := net.Listen("tcp", listenURL.Host)
	if err != nil {
		return 1
	}
	defer ln.Close()

	reg := newMetricsRegistry(loader)
	handler := c.newHandler(ctx, cluster, reg)
	if err = handler.CheckHealth(); err != nil {
		return 1
	}

	srv := &http.Server{
		Handler:     managementHandler(cluster.ManagementToken, reg, handler.CheckHealth, logger),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	logger.WithFields(logrus.Fields{
		"URL":     listenURL,
		"Listen":  ln.Addr().String(),
		"Version": cmd.Version.String(),
	}).Info("listening")
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.WithError(err).Errorf("error notifying init daemon")
	}
	go func() {
		select {
		case <-ctx.Done():
		case <-handler.Done():
		}
		srv.Close()
	}()
	if err = srv.Serve(ln); errors.Is(err, http.ErrServerClosed) {
		err = nil
	} else if err != nil {
		return 1
	}
	if err = handler.CheckHealth(); err != nil {
		return 1
	}
	return 0
}

// newMetricsRegistry returns a registry with the config and version
// metrics already registered.
func newMetricsRegistry(loader *config.Loader) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	loader.RegisterMetrics(reg)
	// airavata_metascheduler_version_running{version="1.2.3~4"} 1.0
	mVersion := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "airavata",
		Subsystem: "metascheduler",
		Name:      "version_running",
		Help:      "Indicated version is running.",
	}, []string{"version"})
	mVersion.WithLabelValues(cmd.Version.String()).Set(1)
	reg.MustRegister(mVersion)
	return reg
}

// getListenAddr returns $METASCHEDULER_SERVICE_INTERNAL_URL if set,
// otherwise the first of the service's internal URLs that can be
// bound on this host.
func getListenAddr(svcs metascheduler.Services, svcName metascheduler.ServiceName) (metascheduler.URL, error) {
	svc, ok := svcs.Map()[svcName]
	if !ok {
		return metascheduler.URL{}, fmt.Errorf("unknown service name %q", svcName)
	}
	if want := os.Getenv("METASCHEDULER_SERVICE_INTERNAL_URL"); want != "" {
		u, err := url.Parse(want)
		if err != nil {
			return metascheduler.URL{}, fmt.Errorf("$METASCHEDULER_SERVICE_INTERNAL_URL (%q): %w", want, err)
		}
		if u.Path == "" {
			u.Path = "/"
		}
		return metascheduler.URL(*u), nil
	}

	var candidates []metascheduler.URL
	for u := range svc.InternalURLs {
		candidates = append(candidates, u)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].String() < candidates[j].String() })
	var errs []string
	for _, u := range candidates {
		ln, err := net.Listen("tcp", u.Host)
		if err == nil {
			ln.Close()
			return u, nil
		}
		// An address owned by a different host fails with
		// "cannot assign requested address". That URL is for
		// another node, not an error.
		if !strings.Contains(err.Error(), "cannot assign requested address") {
			errs = append(errs, fmt.Sprintf("tried %v, got %v", u, err))
		}
	}
	if len(errs) > 0 {
		return metascheduler.URL{}, fmt.Errorf("could not enable the %q service on this host: %s", svcName, strings.Join(errs, "; "))
	}
	return metascheduler.URL{}, fmt.Errorf("configuration does not enable the %q service on this host", svcName)
}
