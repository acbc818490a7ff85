// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package credential resolves the identity (credential store token
// and login name) used to reach a compute resource on behalf of a
// user, and fetches the corresponding key material.
package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
)

// Registry is the subset of the registry used to look up resource
// preferences. Lookups of missing records return an error wrapping
// metascheduler.ErrNotFound.
type Registry interface {
	GetUserComputeResourcePreference(ctx context.Context, username, gatewayID, computeResourceID string) (*metascheduler.UserComputeResourcePreference, error)
	GetUserResourceProfile(ctx context.Context, username, gatewayID string) (*metascheduler.UserResourceProfile, error)
	GetGroupComputeResourcePreference(ctx context.Context, computeResourceID, groupResourceProfileID string) (*metascheduler.GroupComputeResourcePreference, error)
	GetGroupResourceProfile(ctx context.Context, groupResourceProfileID string) (*metascheduler.GroupResourceProfile, error)
}

const (
	KindCredentialToken = "credential token"
	KindLoginUserName   = "login username"
)

// ResolutionError means none of the user, group, or gateway
// preferences supplied a usable value.
type ResolutionError struct {
	Kind              string
	GatewayID         string
	Username          string
	ComputeResourceID string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("could not resolve %s for user %q in gateway %q on compute resource %q", e.Kind, e.Username, e.GatewayID, e.ComputeResourceID)
}

// Request identifies whose identity to resolve, and which preference
// layers may contribute.
type Request struct {
	GatewayID              string
	Username               string
	ComputeResourceID      string
	UseUserPref            bool
	UseGroupProfile        bool
	GroupResourceProfileID string
	// Used when the user preference has no login name.
	OverrideLoginUsername string
}

// Identity is the connection identity for a compute resource.
type Identity struct {
	Token         string
	LoginUserName string
}

// Resolver applies the user > group > gateway default precedence to
// resource preferences.
type Resolver struct {
	Registry Registry
}

// CredentialToken returns the credential store token to use.
//
// Precedence: the user's resource-specific token, then the user's
// profile token (both only if req.UseUserPref), then the group's
// resource-specific token (only if req.UseGroupProfile), then the
// group profile's default token.
func (r *Resolver) CredentialToken(ctx context.Context, req Request) (string, error) {
	return r.newLookup(req).credentialToken(ctx)
}

// LoginUserName returns the login name to use.
//
// Precedence: the user's resource-specific login name (only if
// req.UseUserPref), then req.OverrideLoginUsername, then the group's
// resource-specific login name (only if req.UseGroupProfile).
func (r *Resolver) LoginUserName(ctx context.Context, req Request) (string, error) {
	return r.newLookup(req).loginUserName(ctx)
}

// Resolve returns both the credential token and the login name,
// looking up each preference record at most once.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Identity, error) {
	lk := r.newLookup(req)
	token, err := lk.credentialToken(ctx)
	if err != nil {
		return Identity{}, err
	}
	login, err := lk.loginUserName(ctx)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Token: token, LoginUserName: login}, nil
}

func (r *Resolver) newLookup(req Request) *lookup {
	return &lookup{reg: r.Registry, req: req}
}

// lookup memoizes preference records for the duration of a single
// resolution.
type lookup struct {
	reg Registry
	req Request

	userPref     *metascheduler.UserComputeResourcePreference
	userPrefDone bool
	userProf     *metascheduler.UserResourceProfile
	userProfDone bool
	grpPref      *metascheduler.GroupComputeResourcePreference
	grpPrefDone  bool
	grpProf      *metascheduler.GroupResourceProfile
	grpProfDone  bool
}

func (lk *lookup) credentialToken(ctx context.Context) (string, error) {
	if lk.req.UseUserPref {
		pref, err := lk.userPreference(ctx)
		if err != nil {
			return "", err
		}
		if pref != nil && !isBlank(pref.ResourceSpecificCredentialStoreToken) {
			return pref.ResourceSpecificCredentialStoreToken, nil
		}
		prof, err := lk.userProfile(ctx)
		if err != nil {
			return "", err
		}
		if prof != nil && !isBlank(prof.CredentialStoreToken) {
			return prof.CredentialStoreToken, nil
		}
	}
	if lk.req.UseGroupProfile {
		pref, err := lk.groupPreference(ctx)
		if err != nil {
			return "", err
		}
		if pref != nil && !isBlank(pref.ResourceSpecificCredentialStoreToken) {
			return pref.ResourceSpecificCredentialStoreToken, nil
		}
	}
	prof, err := lk.groupProfile(ctx)
	if err != nil {
		return "", err
	}
	if prof != nil && !isBlank(prof.DefaultCredentialStoreToken) {
		return prof.DefaultCredentialStoreToken, nil
	}
	return "", lk.fail(KindCredentialToken)
}

func (lk *lookup) loginUserName(ctx context.Context) (string, error) {
	if lk.req.UseUserPref {
		pref, err := lk.userPreference(ctx)
		if err != nil {
			return "", err
		}
		if pref != nil && !isBlank(pref.LoginUserName) {
			return pref.LoginUserName, nil
		}
	}
	if !isBlank(lk.req.OverrideLoginUsername) {
		return lk.req.OverrideLoginUsername, nil
	}
	if lk.req.UseGroupProfile {
		pref, err := lk.groupPreference(ctx)
		if err != nil {
			return "", err
		}
		if pref != nil && !isBlank(pref.LoginUserName) {
			return pref.LoginUserName, nil
		}
	}
	return "", lk.fail(KindLoginUserName)
}

func (lk *lookup) fail(kind string) error {
	return &ResolutionError{
		Kind:              kind,
		GatewayID:         lk.req.GatewayID,
		Username:          lk.req.Username,
		ComputeResourceID: lk.req.ComputeResourceID,
	}
}

func (lk *lookup) userPreference(ctx context.Context) (*metascheduler.UserComputeResourcePreference, error) {
	if !lk.userPrefDone {
		pref, err := lk.reg.GetUserComputeResourcePreference(ctx, lk.req.Username, lk.req.GatewayID, lk.req.ComputeResourceID)
		if err != nil && !errors.Is(err, metascheduler.ErrNotFound) {
			return nil, fmt.Errorf("looking up user compute resource preference: %w", err)
		}
		lk.userPref, lk.userPrefDone = pref, true
	}
	return lk.userPref, nil
}

func (lk *lookup) userProfile(ctx context.Context) (*metascheduler.UserResourceProfile, error) {
	if !lk.userProfDone {
		prof, err := lk.reg.GetUserResourceProfile(ctx, lk.req.Username, lk.req.GatewayID)
		if err != nil && !errors.Is(err, metascheduler.ErrNotFound) {
			return nil, fmt.Errorf("looking up user resource profile: %w", err)
		}
		lk.userProf, lk.userProfDone = prof, true
	}
	return lk.userProf, nil
}

func (lk *lookup) groupPreference(ctx context.Context) (*metascheduler.GroupComputeResourcePreference, error) {
	if !lk.grpPrefDone {
		var pref *metascheduler.GroupComputeResourcePreference
		if lk.req.GroupResourceProfileID != "" {
			var err error
			pref, err = lk.reg.GetGroupComputeResourcePreference(ctx, lk.req.ComputeResourceID, lk.req.GroupResourceProfileID)
			if err != nil && !errors.Is(err, metascheduler.ErrNotFound) {
				return nil, fmt.Errorf("looking up group compute resource preference: %w", err)
			}
		}
		lk.grpPref, lk.grpPrefDone = pref, true
	}
	return lk.grpPref, nil
}

func (lk *lookup) groupProfile(ctx context.Context) (*metascheduler.GroupResourceProfile, error) {
	if !lk.grpProfDone {
		var prof *metascheduler.GroupResourceProfile
		if lk.req.GroupResourceProfileID != "" {
			var err error
			prof, err = lk.reg.GetGroupResourceProfile(ctx, lk.req.GroupResourceProfileID)
			if err != nil && !errors.Is(err, metascheduler.ErrNotFound) {
				return nil, fmt.Errorf("looking up group resource profile: %w", err)
			}
		}
		lk.grpProf, lk.grpProfDone = prof, true
	}
	return lk.grpProf, nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
