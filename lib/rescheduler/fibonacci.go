// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package rescheduler

import (
	"math"
	"time"
)

// Fibonacci returns fib(n), with fib(0)=0 and fib(1)=1. Results that
// would overflow an int64 are capped at math.MaxInt64.
func Fibonacci(n int) int64 {
	if n <= 0 {
		return 0
	}
	var a, b int64 = 0, 1
	for i := 1; i < n; i++ {
		if b > math.MaxInt64-a {
			return math.MaxInt64
		}
		a, b = b, a+b
	}
	return b
}

// Backoff returns the minimum time a process that has been requeued
// n times must wait before it is rescheduled: fib(n) scanning
// intervals.
func Backoff(n int, interval time.Duration) time.Duration {
	f := Fibonacci(n)
	if interval <= 0 || f == 0 {
		return 0
	}
	if f > int64(math.MaxInt64/interval) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(f) * interval
}
