// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package metascheduler

import "errors"

// ErrNotFound is returned (possibly wrapped) by registry and
// credential store lookups when the requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned (possibly wrapped) by registry updates when
// the stored record changed after the caller loaded it.
var ErrConflict = errors.New("conflict")
