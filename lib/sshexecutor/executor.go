// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package sshexecutor runs commands on cluster login nodes over SSH.
package sshexecutor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	HostKeyPolicyInsecureIgnore = "insecure-ignore"
	HostKeyPolicyKnownHosts     = "known-hosts"

	DefaultPort = 22
)

var ErrNoAddress = errors.New("target has no address")

// Target identifies a remote login node and account.
type Target struct {
	Host string
	Port int
	User string
}

func (t Target) String() string {
	return t.User + "@" + t.address()
}

func (t Target) address() string {
	port := t.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

// Factory creates Executors that share host key verification and
// timeout settings.
type Factory struct {
	connectTimeout  time.Duration
	commandTimeout  time.Duration
	hostKeyCallback ssh.HostKeyCallback
}

// NewFactory returns a Factory for the given monitor configuration.
//
// With HostKeyPolicy "insecure-ignore" (the default) any host key is
// accepted. With "known-hosts", keys are checked against
// KnownHostsFile.
func NewFactory(cfg metascheduler.ClusterMonitorConfig) (*Factory, error) {
	f := &Factory{
		connectTimeout: cfg.ConnectTimeout.Duration(),
		commandTimeout: cfg.CommandTimeout.Duration(),
	}
	switch cfg.HostKeyPolicy {
	case "", HostKeyPolicyInsecureIgnore:
		f.hostKeyCallback = ssh.InsecureIgnoreHostKey()
	case HostKeyPolicyKnownHosts:
		cb, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("error loading known hosts: %w", err)
		}
		f.hostKeyCallback = cb
	default:
		return nil, fmt.Errorf("unsupported host key policy %q", cfg.HostKeyPolicy)
	}
	return f, nil
}

// NewExecutor returns an Executor that authenticates to target with
// the given keys. No connection is made until the first command.
func (f *Factory) NewExecutor(target Target, signers ...ssh.Signer) *Executor {
	return &Executor{
		target:          target,
		signers:         signers,
		connectTimeout:  f.connectTimeout,
		commandTimeout:  f.commandTimeout,
		hostKeyCallback: f.hostKeyCallback,
	}
}

// An Executor runs commands on one target, reusing a single SSH
// connection for successive commands. It is safe for concurrent
// use.
type Executor struct {
	target          Target
	signers         []ssh.Signer
	connectTimeout  time.Duration
	commandTimeout  time.Duration
	hostKeyCallback ssh.HostKeyCallback

	mtx    sync.Mutex
	client *ssh.Client
}

// Target returns the executor's target.
func (exr *Executor) Target() Target {
	return exr.target
}

// Execute runs cmd and returns its stdout and stderr. It returns an
// error if the command exits non-zero, or if ctx is done or the
// command timeout expires first. In the latter case the connection
// is closed and the output received so far is returned.
func (exr *Executor) Execute(ctx context.Context, cmd string) ([]byte, []byte, error) {
	if exr.commandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, exr.commandTimeout)
		defer cancel()
	}
	session, err := exr.newSession(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer session.Close()
	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()
	select {
	case err = <-done:
		return stdout.Bytes(), stderr.Bytes(), err
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		session.Close()
		// The remote end might not honor the signal or close the
		// channel, so drop the whole connection before waiting for
		// Run to return.
		exr.Close()
		<-done
		return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("%s: %q did not finish: %w", exr.target, cmd, ctx.Err())
	}
}

// Close shuts down the connection, if any.
func (exr *Executor) Close() {
	exr.mtx.Lock()
	defer exr.mtx.Unlock()
	if exr.client != nil {
		exr.client.Close()
		exr.client = nil
	}
}

// Create a new session, reconnecting if the existing connection is
// not usable.
func (exr *Executor) newSession(ctx context.Context) (*ssh.Session, error) {
	exr.mtx.Lock()
	defer exr.mtx.Unlock()
	if exr.client != nil {
		session, err := exr.client.NewSession()
		if err == nil {
			return session, nil
		}
		go exr.client.Close()
		exr.client = nil
	}
	client, err := exr.dial(ctx)
	if err != nil {
		return nil, err
	}
	exr.client = client
	return client.NewSession()
}

func (exr *Executor) dial(ctx context.Context) (*ssh.Client, error) {
	if exr.target.Host == "" {
		return nil, ErrNoAddress
	}
	if exr.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, exr.connectTimeout)
		defer cancel()
	}
	addr := exr.target.address()
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", exr.target, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	sshconn, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            exr.target.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(exr.signers...)},
		HostKeyCallback: exr.hostKeyCallback,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: %w", exr.target, err)
	}
	// The deadline applies to the handshake only.
	conn.SetDeadline(time.Time{})
	return ssh.NewClient(sshconn, chans, reqs), nil
}
