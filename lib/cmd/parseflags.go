// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"flag"
	"fmt"
	"io"
)

// Exit codes returned by ParseFlags.
const (
	ExitOK    = 0
	ExitUsage = 2
)

// ParseFlags parses args using f, and reports whether the program
// should keep running. If not, exitCode is ExitOK after printing the
// -help message, or ExitUsage after a usage error.
//
// Positional arguments are rejected unless positional is non-empty,
// in which case it describes them in the usage message ("Usage:
// {prog} [options] {positional}").
func ParseFlags(f FlagSet, prog string, args []string, positional string, stderr io.Writer) (ok bool, exitCode int) {
	f.Init(prog, flag.ContinueOnError)
	// Errors are reported below, not by f.
	f.SetOutput(io.Discard)
	err := f.Parse(args)
	if errors.Is(err, flag.ErrHelp) {
		printUsage(f, prog, positional, stderr)
		return false, ExitOK
	} else if err != nil {
		return usageError(stderr, "error parsing command line arguments: %s", err)
	} else if positional == "" && f.NArg() > 0 {
		return usageError(stderr, "unrecognized command line arguments: %v", f.Args())
	}
	return true, ExitOK
}

func usageError(stderr io.Writer, format string, args ...interface{}) (bool, int) {
	fmt.Fprintf(stderr, format+" (try -help)\n", args...)
	return false, ExitUsage
}

func printUsage(f FlagSet, prog, positional string, stderr io.Writer) {
	f.SetOutput(stderr)
	if fs, ok := f.(*flag.FlagSet); ok && fs.Usage != nil {
		fs.Usage()
		return
	}
	fmt.Fprintf(stderr, "Usage: %s [options] %s\n", prog, positional)
	f.PrintDefaults()
}
