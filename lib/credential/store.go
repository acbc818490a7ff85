// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
	"github.com/hashicorp/go-retryablehttp"
	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

// Store fetches key material by credential store token.
type Store interface {
	GetCredential(ctx context.Context, token, gatewayID string) (*metascheduler.SSHCredential, error)
}

// Client is a Store backed by the credential store service's HTTP
// API. Decoded credentials are cached in memory.
type Client struct {
	baseURL   *url.URL
	authToken string
	client    *retryablehttp.Client
	cache     *lru.TwoQueueCache
}

// NewClient returns a Client for the credential store configured in
// cluster.
func NewClient(cluster *metascheduler.Cluster, logger logrus.FieldLogger) (*Client, error) {
	cfg := cluster.CredentialStore
	if cfg.URL.Host == "" {
		return nil, errors.New("CredentialStore.URL is not configured")
	}
	base := url.URL(cfg.URL)
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.Retries
	client.Logger = logger
	if cfg.Insecure {
		client.HTTPClient = &http.Client{
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}
	}
	size := cfg.CacheSize
	if size < 1 {
		size = 1
	}
	cache, err := lru.New2Q(size)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL:   &base,
		authToken: cfg.Token,
		client:    client,
		cache:     cache,
	}, nil
}

type cacheKey struct {
	token     string
	gatewayID string
}

// GetCredential implements Store.
func (cl *Client) GetCredential(ctx context.Context, token, gatewayID string) (*metascheduler.SSHCredential, error) {
	key := cacheKey{token, gatewayID}
	if cred, ok := cl.cache.Get(key); ok {
		return cred.(*metascheduler.SSHCredential), nil
	}
	u := cl.baseURL.ResolveReference(&url.URL{
		Path:     "credentials/ssh/" + url.PathEscape(token),
		RawQuery: url.Values{"gateway_id": {gatewayID}}.Encode(),
	})
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if cl.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+cl.authToken)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := cl.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("credential store request failed: %w", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("credential %q for gateway %q: %w", token, gatewayID, metascheduler.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("credential store returned %s", resp.Status)
	}
	var cred metascheduler.SSHCredential
	err = json.NewDecoder(resp.Body).Decode(&cred)
	if err != nil {
		return nil, fmt.Errorf("error decoding credential store response: %w", err)
	}
	if cred.Token == "" {
		cred.Token = token
	}
	if cred.GatewayID == "" {
		cred.GatewayID = gatewayID
	}
	cl.cache.Add(key, &cred)
	return &cred, nil
}

// Signer returns an ssh.Signer for the credential's private key,
// decrypting it with the passphrase if one is set.
func Signer(cred *metascheduler.SSHCredential) (ssh.Signer, error) {
	if cred.PrivateKey == "" {
		return nil, fmt.Errorf("credential %q has no private key", cred.Token)
	}
	if cred.Passphrase != "" {
		signer, err := ssh.ParsePrivateKeyWithPassphrase([]byte(cred.PrivateKey), []byte(cred.Passphrase))
		if err != nil {
			return nil, fmt.Errorf("credential %q: %w", cred.Token, err)
		}
		return signer, nil
	}
	signer, err := ssh.ParsePrivateKey([]byte(cred.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("credential %q: %w", cred.Token, err)
	}
	return signer, nil
}
