// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var healthyBody = []byte(`{"health":"OK"}` + "\n")

// managementHandler serves /_health/ping and /metrics to clients
// presenting the management token. If the token is empty, both
// endpoints are disabled.
func managementHandler(token string, reg *prometheus.Registry, checkHealth func() error, logger logrus.FieldLogger) http.Handler {
	mux := httprouter.New()
	mux.Handler("GET", "/_health/ping", requireToken(token, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := checkHealth(); err != nil {
			json.NewEncoder(w).Encode(map[string]string{
				"health": "ERROR",
				"error":  err.Error(),
			})
			return
		}
		w.Write(healthyBody)
	})))
	mux.Handler("GET", "/metrics", requireToken(token, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorLog: logger,
	})))
	return mux
}

func requireToken(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token == "" {
			http.Error(w, "disabled", http.StatusNotFound)
		} else if ah := r.Header.Get("Authorization"); ah == "" {
			http.Error(w, "authorization required", http.StatusUnauthorized)
		} else if ah != "Bearer "+token {
			http.Error(w, "authorization error", http.StatusForbidden)
		} else {
			next.ServeHTTP(w, r)
		}
	})
}
