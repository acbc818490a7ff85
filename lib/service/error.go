// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"

	"github.com/apache/airavata-metascheduler/sdk/go/ctxlog"
)

// ErrorHandler returns a Handler for a service that could not start:
// it is already done, and CheckHealth returns err. The error is
// logged once.
func ErrorHandler(ctx context.Context, err error) Handler {
	ctxlog.FromContext(ctx).WithError(err).Error("unhealthy service")
	done := make(chan struct{})
	close(done)
	return &failedHandler{err: err, done: done}
}

type failedHandler struct {
	err  error
	done chan struct{}
}

func (fh *failedHandler) CheckHealth() error    { return fh.err }
func (fh *failedHandler) Done() <-chan struct{} { return fh.done }
