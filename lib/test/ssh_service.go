// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package test

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	check "gopkg.in/check.v1"
)

// GenerateKey returns a new ed25519 keypair and the PEM encoding of
// the private key, encrypted with passphrase if it is not empty.
func GenerateKey(c *check.C, passphrase string) (ssh.PublicKey, ssh.Signer, string) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	c.Assert(err, check.IsNil)
	var block *pem.Block
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(priv, "")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "", []byte(passphrase))
	}
	c.Assert(err, check.IsNil)
	signer, err := ssh.NewSignerFromKey(priv)
	c.Assert(err, check.IsNil)
	return signer.PublicKey(), signer, string(pem.EncodeToMemory(block))
}

// An SSHExecFunc runs the command of an "exec" session and returns
// its exit status.
type SSHExecFunc func(user, command string, stdout, stderr io.Writer) uint32

// SSHService is an in-process SSH server listening on a loopback
// port. Clients authenticate with one of AuthorizedKeys as
// AuthorizedUser; their "exec" requests are passed to Exec.
type SSHService struct {
	Exec           SSHExecFunc
	HostKey        ssh.Signer
	AuthorizedUser string
	AuthorizedKeys []ssh.PublicKey
	Logger         logrus.FieldLogger

	listener net.Listener
	setup    sync.Once
	mtx      sync.Mutex
	started  chan bool
	closed   bool
	commands []string
	err      error
}

// Address returns the host:port where the server is listening, or ""
// if it has not started.
func (ss *SSHService) Address() string {
	ss.mtx.Lock()
	defer ss.mtx.Unlock()
	if ss.listener == nil {
		return ""
	}
	return ss.listener.Addr().String()
}

// Port returns the TCP port where the server is listening.
func (ss *SSHService) Port() int {
	ss.mtx.Lock()
	defer ss.mtx.Unlock()
	if ss.listener == nil {
		return 0
	}
	return ss.listener.Addr().(*net.TCPAddr).Port
}

// Commands returns the commands received so far, in order.
func (ss *SSHService) Commands() []string {
	ss.mtx.Lock()
	defer ss.mtx.Unlock()
	return append([]string(nil), ss.commands...)
}

// Close stops accepting connections. Established connections are
// unaffected.
func (ss *SSHService) Close() {
	ss.Start()
	ss.mtx.Lock()
	ln := ss.listener
	ss.closed = true
	ss.mtx.Unlock()
	if ln != nil {
		ln.Close()
	}
}

// Start returns when the server is ready to accept connections.
func (ss *SSHService) Start() error {
	ss.setup.Do(func() {
		ss.started = make(chan bool)
		go ss.run()
	})
	<-ss.started
	return ss.err
}

func (ss *SSHService) logger() logrus.FieldLogger {
	if ss.Logger == nil {
		return logrus.StandardLogger()
	}
	return ss.Logger
}

func (ss *SSHService) run() {
	defer close(ss.started)
	config := &ssh.ServerConfig{
		PublicKeyCallback: func(c ssh.ConnMetadata, pubKey ssh.PublicKey) (*ssh.Permissions, error) {
			if c.User() != ss.AuthorizedUser {
				return nil, fmt.Errorf("unknown user %q", c.User())
			}
			for _, ak := range ss.AuthorizedKeys {
				if bytes.Equal(ak.Marshal(), pubKey.Marshal()) {
					return &ssh.Permissions{}, nil
				}
			}
			return nil, fmt.Errorf("unknown public key for %q", c.User())
		},
	}
	config.AddHostKey(ss.HostKey)

	listener, err := net.Listen("tcp", "127.0.0.1:")
	if err != nil {
		ss.err = err
		return
	}
	ss.mtx.Lock()
	ss.listener = listener
	ss.mtx.Unlock()

	go func() {
		for {
			nConn, err := listener.Accept()
			if err != nil {
				ss.mtx.Lock()
				closed := ss.closed
				ss.mtx.Unlock()
				if !closed || !errors.Is(err, net.ErrClosed) {
					ss.logger().WithError(err).Warn("accept failed")
				}
				return
			}
			go ss.serveConn(nConn, config)
		}
	}()
}

func (ss *SSHService) serveConn(nConn net.Conn, config *ssh.ServerConfig) {
	defer nConn.Close()
	conn, newchans, reqs, err := ssh.NewServerConn(nConn, config)
	if err != nil {
		ss.logger().WithError(err).Info("ssh handshake failed")
		return
	}
	defer conn.Close()
	go ssh.DiscardRequests(reqs)
	for newch := range newchans {
		if newch.ChannelType() != "session" {
			newch.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, reqs, err := newch.Accept()
		if err != nil {
			ss.logger().WithError(err).Warn("accept channel failed")
			return
		}
		go ss.serveSession(conn.User(), ch, reqs)
	}
}

func (ss *SSHService) serveSession(user string, ch ssh.Channel, reqs <-chan *ssh.Request) {
	didExec := false
	for req := range reqs {
		if didExec || req.Type != "exec" {
			req.Reply(false, nil)
			continue
		}
		didExec = true
		var execReq struct {
			Command string
		}
		if err := ssh.Unmarshal(req.Payload, &execReq); err != nil {
			req.Reply(false, nil)
			continue
		}
		req.Reply(true, nil)
		ss.mtx.Lock()
		ss.commands = append(ss.commands, execReq.Command)
		ss.mtx.Unlock()
		go func() {
			var resp struct {
				Status uint32
			}
			resp.Status = ss.Exec(user, execReq.Command, ch, ch.Stderr())
			ch.SendRequest("exit-status", false, ssh.Marshal(&resp))
			ch.Close()
		}()
	}
}
