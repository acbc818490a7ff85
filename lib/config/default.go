// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	_ "embed"
)

//go:embed config.default.yml
var DefaultYAML []byte
