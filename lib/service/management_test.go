// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/apache/airavata-metascheduler/sdk/go/ctxlog"
	"github.com/prometheus/client_golang/prometheus"
	check "gopkg.in/check.v1"
)

var _ = check.Suite(&managementSuite{})

type managementSuite struct {
	reg *prometheus.Registry
}

func (s *managementSuite) SetUpTest(c *check.C) {
	s.reg = prometheus.NewRegistry()
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "test"})
	g.Set(3)
	s.reg.MustRegister(g)
}

func (s *managementSuite) do(c *check.C, h http.Handler, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func (s *managementSuite) TestAuth(c *check.C) {
	h := managementHandler("secret", s.reg, func() error { return nil }, ctxlog.TestLogger(c))
	for _, trial := range []struct {
		path   string
		auth   string
		status int
	}{
		{"/_health/ping", "", http.StatusUnauthorized},
		{"/_health/ping", "Bearer wrong", http.StatusForbidden},
		{"/_health/ping", "Bearer secret", http.StatusOK},
		{"/metrics", "", http.StatusUnauthorized},
		{"/metrics", "Bearer wrong", http.StatusForbidden},
		{"/metrics", "Bearer secret", http.StatusOK},
		{"/other", "Bearer secret", http.StatusNotFound},
	} {
		resp := s.do(c, h, trial.path, trial.auth)
		c.Check(resp.Code, check.Equals, trial.status, check.Commentf("%+v", trial))
	}
	resp := s.do(c, h, "/metrics", "Bearer secret")
	c.Check(resp.Body.String(), check.Matches, `(?ms).*test_gauge 3.*`)
}

func (s *managementSuite) TestDisabledWithoutToken(c *check.C) {
	h := managementHandler("", s.reg, func() error { return nil }, ctxlog.TestLogger(c))
	c.Check(s.do(c, h, "/_health/ping", "Bearer ").Code, check.Equals, http.StatusNotFound)
	c.Check(s.do(c, h, "/metrics", "Bearer ").Code, check.Equals, http.StatusNotFound)
}

func (s *managementSuite) TestUnhealthy(c *check.C) {
	h := managementHandler("secret", s.reg, func() error { return errors.New("stuck") }, ctxlog.TestLogger(c))
	resp := s.do(c, h, "/_health/ping", "Bearer secret")
	c.Check(resp.Code, check.Equals, http.StatusOK)
	c.Check(resp.Body.String(), check.Equals, `{"error":"stuck","health":"ERROR"}`+"\n")
}
