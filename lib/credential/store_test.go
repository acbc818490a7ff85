// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"

	"github.com/apache/airavata-metascheduler/lib/test"
	"github.com/apache/airavata-metascheduler/sdk/go/ctxlog"
	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
	check "gopkg.in/check.v1"
)

var _ = check.Suite(&storeSuite{})

type storeSuite struct {
	srv      *httptest.Server
	requests int64
	privkey  string
}

func (s *storeSuite) SetUpTest(c *check.C) {
	_, _, s.privkey = test.GenerateKey(c, "")
	atomic.StoreInt64(&s.requests, 0)
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt64(&s.requests, 1)
		if req.Header.Get("Authorization") != "Bearer storetoken" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch req.URL.Path {
		case "/credentials/ssh/good":
			json.NewEncoder(w).Encode(metascheduler.SSHCredential{
				GatewayID:  req.URL.Query().Get("gateway_id"),
				PrivateKey: s.privkey,
				PublicKey:  "ssh-ed25519 AAAA",
			})
		case "/credentials/ssh/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func (s *storeSuite) TearDownTest(c *check.C) {
	s.srv.Close()
}

func (s *storeSuite) client(c *check.C) *Client {
	var cluster metascheduler.Cluster
	u, err := url.Parse(s.srv.URL + "/")
	c.Assert(err, check.IsNil)
	cluster.CredentialStore.URL = metascheduler.URL(*u)
	cluster.CredentialStore.Token = "storetoken"
	cluster.CredentialStore.CacheSize = 4
	cl, err := NewClient(&cluster, ctxlog.TestLogger(c))
	c.Assert(err, check.IsNil)
	return cl
}

func (s *storeSuite) TestGetAndCache(c *check.C) {
	cl := s.client(c)
	for i := 0; i < 3; i++ {
		cred, err := cl.GetCredential(context.Background(), "good", test.GatewayID)
		c.Assert(err, check.IsNil)
		c.Check(cred.Token, check.Equals, "good")
		c.Check(cred.GatewayID, check.Equals, test.GatewayID)
		signer, err := Signer(cred)
		c.Check(err, check.IsNil)
		c.Check(signer, check.NotNil)
	}
	c.Check(atomic.LoadInt64(&s.requests), check.Equals, int64(1))
}

func (s *storeSuite) TestNotFound(c *check.C) {
	_, err := s.client(c).GetCredential(context.Background(), "missing", test.GatewayID)
	c.Check(errors.Is(err, metascheduler.ErrNotFound), check.Equals, true)
}

func (s *storeSuite) TestServerError(c *check.C) {
	_, err := s.client(c).GetCredential(context.Background(), "broken", test.GatewayID)
	c.Check(err, check.NotNil)
	c.Check(errors.Is(err, metascheduler.ErrNotFound), check.Equals, false)
}

func (s *storeSuite) TestURLRequired(c *check.C) {
	_, err := NewClient(&metascheduler.Cluster{}, ctxlog.TestLogger(c))
	c.Check(err, check.ErrorMatches, `CredentialStore.URL is not configured`)
}

func (s *storeSuite) TestSignerWithPassphrase(c *check.C) {
	pub, _, pem := test.GenerateKey(c, "secret")
	signer, err := Signer(&metascheduler.SSHCredential{Token: "t", PrivateKey: pem, Passphrase: "secret"})
	c.Assert(err, check.IsNil)
	c.Check(signer.PublicKey().Marshal(), check.DeepEquals, pub.Marshal())

	_, err = Signer(&metascheduler.SSHCredential{Token: "t", PrivateKey: pem, Passphrase: "wrong"})
	c.Check(err, check.NotNil)

	_, err = Signer(&metascheduler.SSHCredential{Token: "t"})
	c.Check(err, check.ErrorMatches, `credential "t" has no private key`)
}
