// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package test

import (
	"context"
	"fmt"
	"sync"

	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
)

// StubCredentialStore returns credentials from an in-memory map keyed
// by token.
type StubCredentialStore struct {
	Credentials map[string]metascheduler.SSHCredential
	Errors      map[string]error

	mtx      sync.Mutex
	requests []string
}

func (cs *StubCredentialStore) GetCredential(ctx context.Context, token, gatewayID string) (*metascheduler.SSHCredential, error) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	cs.requests = append(cs.requests, token)
	if err := cs.Errors[token]; err != nil {
		return nil, err
	}
	cred, ok := cs.Credentials[token]
	if !ok || cred.GatewayID != gatewayID {
		return nil, fmt.Errorf("credential %q in gateway %q: %w", token, gatewayID, metascheduler.ErrNotFound)
	}
	return &cred, nil
}

// Requests returns the tokens requested so far.
func (cs *StubCredentialStore) Requests() []string {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	return append([]string(nil), cs.requests...)
}
