// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package clustermonitor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
)

// queueState is the parsed output of a queue status command.
type queueState struct {
	up      bool
	running int
	queued  int
}

// statusCommand returns the command that reports the state of queue
// under the given job manager.
func statusCommand(manager metascheduler.ResourceJobManagerType, queue string) (string, error) {
	switch manager {
	case metascheduler.ResourceJobManagerSLURM:
		return `sinfo -s -p ` + shellQuote(queue) + ` -o "%a %F" | tail -1`, nil
	case metascheduler.ResourceJobManagerPBS:
		return `qstat -Q ` + shellQuote(queue) + ` | tail -1`, nil
	default:
		return "", fmt.Errorf("unsupported resource job manager %q", manager)
	}
}

// parseStatus parses the output of statusCommand.
func parseStatus(manager metascheduler.ResourceJobManagerType, output string) (queueState, error) {
	switch manager {
	case metascheduler.ResourceJobManagerSLURM:
		return parseSLURM(output)
	case metascheduler.ResourceJobManagerPBS:
		return parsePBS(output)
	default:
		return queueState{}, fmt.Errorf("unsupported resource job manager %q", manager)
	}
}

// parseSLURM parses a summary line from sinfo, like "up 3/2/0/5".
// The first field is the partition availability; the second starts
// with the running and queued counts.
func parseSLURM(output string) (queueState, error) {
	fields := strings.Fields(lastLine(output))
	if len(fields) < 2 {
		return queueState{}, fmt.Errorf("cannot parse sinfo output %q", output)
	}
	counts := strings.Split(fields[1], "/")
	if len(counts) < 2 {
		return queueState{}, fmt.Errorf("cannot parse sinfo counts %q", fields[1])
	}
	running, err := strconv.Atoi(counts[0])
	if err != nil {
		return queueState{}, fmt.Errorf("cannot parse sinfo running count: %w", err)
	}
	queued, err := strconv.Atoi(counts[1])
	if err != nil {
		return queueState{}, fmt.Errorf("cannot parse sinfo queued count: %w", err)
	}
	return queueState{
		up:      strings.EqualFold(fields[0], "up"),
		running: running,
		queued:  queued,
	}, nil
}

// parsePBS parses a queue line from qstat -Q:
//
//	Queue Max Tot Ena Str Que Run Hld Wat Trn Ext Type
func parsePBS(output string) (queueState, error) {
	fields := strings.Fields(lastLine(output))
	if len(fields) < 7 {
		return queueState{}, fmt.Errorf("cannot parse qstat output %q", output)
	}
	queued, err := strconv.Atoi(fields[5])
	if err != nil {
		return queueState{}, fmt.Errorf("cannot parse qstat queued count: %w", err)
	}
	running, err := strconv.Atoi(fields[6])
	if err != nil {
		return queueState{}, fmt.Errorf("cannot parse qstat running count: %w", err)
	}
	return queueState{
		up:      strings.EqualFold(fields[3], "yes"),
		running: running,
		queued:  queued,
	}, nil
}

var firstIntegerRe = regexp.MustCompile(`^\d+`)

// parseCount parses the output of a job count command like
// "squeue ... | wc -l".
func parseCount(output string) (int, error) {
	fields := strings.Fields(output)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty output from job count command")
	}
	digits := firstIntegerRe.FindString(fields[0])
	if digits == "" {
		return 0, fmt.Errorf("cannot parse job count %q", fields[0])
	}
	return strconv.Atoi(digits)
}

func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

var safeShellWord = regexp.MustCompile(`^[A-Za-z0-9_.,:=@%+-]+$`)

func shellQuote(s string) string {
	if safeShellWord.MatchString(s) {
		return s
	}
	return "'" + strings.Replace(s, "'", `'\''`, -1) + "'"
}
