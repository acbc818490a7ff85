// Copyright (C) The Apache Airavata Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"fmt"

	"github.com/apache/airavata-metascheduler/sdk/go/metascheduler"
	"github.com/jmoiron/sqlx"
)

// PutExperiment creates or replaces exp. Its processes are not
// stored; use PutProcess.
func (reg *Registry) PutExperiment(ctx context.Context, exp *metascheduler.Experiment) error {
	db, err := reg.DB(ctx)
	if err != nil {
		return err
	}
	doc := *exp
	doc.Processes = nil
	return putDoc(ctx, db, doc, `insert into experiments (id, doc) values ($1, $2)
		on conflict (id) do update set doc=excluded.doc`, exp.ID)
}

// GetExperiment returns the experiment with the given ID.
func (reg *Registry) GetExperiment(ctx context.Context, experimentID string) (*metascheduler.Experiment, error) {
	db, err := reg.DB(ctx)
	if err != nil {
		return nil, err
	}
	var exp metascheduler.Experiment
	err = getDoc(ctx, db, &exp, "experiment", `select doc from experiments where id=$1`, experimentID)
	if err != nil {
		return nil, err
	}
	return &exp, nil
}

// UpdateExperiment stores exp, which must already exist.
func (reg *Registry) UpdateExperiment(ctx context.Context, exp *metascheduler.Experiment) error {
	db, err := reg.DB(ctx)
	if err != nil {
		return err
	}
	return updateExperiment(ctx, db, exp)
}

func updateExperiment(ctx context.Context, e sqlx.ExecerContext, exp *metascheduler.Experiment) error {
	doc := *exp
	doc.Processes = nil
	buf, err := encode(doc)
	if err != nil {
		return err
	}
	res, err := e.ExecContext(ctx, `update experiments set doc=$2 where id=$1`, exp.ID, buf)
	if err != nil {
		return fmt.Errorf("error updating experiment %q: %w", exp.ID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("experiment %q: %w", exp.ID, metascheduler.ErrNotFound)
	}
	return nil
}

// PutComputeResource creates or replaces crd.
func (reg *Registry) PutComputeResource(ctx context.Context, crd *metascheduler.ComputeResourceDescription) error {
	db, err := reg.DB(ctx)
	if err != nil {
		return err
	}
	return putDoc(ctx, db, crd, `insert into compute_resources (id, doc) values ($1, $2)
		on conflict (id) do update set doc=excluded.doc`, crd.ComputeResourceID)
}

func (reg *Registry) GetComputeResource(ctx context.Context, computeResourceID string) (*metascheduler.ComputeResourceDescription, error) {
	db, err := reg.DB(ctx)
	if err != nil {
		return nil, err
	}
	var crd metascheduler.ComputeResourceDescription
	err = getDoc(ctx, db, &crd, "compute resource", `select doc from compute_resources where id=$1`, computeResourceID)
	if err != nil {
		return nil, err
	}
	return &crd, nil
}

// PutSSHJobSubmission creates or replaces sjs.
func (reg *Registry) PutSSHJobSubmission(ctx context.Context, sjs *metascheduler.SSHJobSubmission) error {
	db, err := reg.DB(ctx)
	if err != nil {
		return err
	}
	return putDoc(ctx, db, sjs, `insert into ssh_job_submissions (id, doc) values ($1, $2)
		on conflict (id) do update set doc=excluded.doc`, sjs.JobSubmissionInterfaceID)
}

func (reg *Registry) GetSSHJobSubmission(ctx context.Context, jobSubmissionInterfaceID string) (*metascheduler.SSHJobSubmission, error) {
	db, err := reg.DB(ctx)
	if err != nil {
		return nil, err
	}
	var sjs metascheduler.SSHJobSubmission
	err = getDoc(ctx, db, &sjs, "SSH job submission", `select doc from ssh_job_submissions where id=$1`, jobSubmissionInterfaceID)
	if err != nil {
		return nil, err
	}
	return &sjs, nil
}

// PutGatewayResourceProfile creates or replaces grp, including its
// compute resource preferences.
func (reg *Registry) PutGatewayResourceProfile(ctx context.Context, grp *metascheduler.GatewayResourceProfile) error {
	db, err := reg.DB(ctx)
	if err != nil {
		return err
	}
	return putDoc(ctx, db, grp, `insert into gateway_resource_profiles (gateway_id, doc) values ($1, $2)
		on conflict (gateway_id) do update set doc=excluded.doc`, grp.GatewayID)
}

func (reg *Registry) GetGatewayResourceProfile(ctx context.Context, gatewayID string) (*metascheduler.GatewayResourceProfile, error) {
	db, err := reg.DB(ctx)
	if err != nil {
		return nil, err
	}
	var grp metascheduler.GatewayResourceProfile
	err = getDoc(ctx, db, &grp, "gateway resource profile", `select doc from gateway_resource_profiles where gateway_id=$1`, gatewayID)
	if err != nil {
		return nil, err
	}
	return &grp, nil
}

// GetAllGatewayComputeResourcePreferences returns the compute
// resource preferences of a gateway's profile.
func (reg *Registry) GetAllGatewayComputeResourcePreferences(ctx context.Context, gatewayID string) ([]metascheduler.ComputeResourcePreference, error) {
	grp, err := reg.GetGatewayResourceProfile(ctx, gatewayID)
	if err != nil {
		return nil, err
	}
	return grp.ComputeResourcePreferences, nil
}

// PutGroupResourceProfile creates or replaces grp, including its
// compute preferences.
func (reg *Registry) PutGroupResourceProfile(ctx context.Context, grp *metascheduler.GroupResourceProfile) error {
	db, err := reg.DB(ctx)
	if err != nil {
		return err
	}
	return putDoc(ctx, db, grp, `insert into group_resource_profiles (id, doc) values ($1, $2)
		on conflict (id) do update set doc=excluded.doc`, grp.GroupResourceProfileID)
}

func (reg *Registry) GetGroupResourceProfile(ctx context.Context, groupResourceProfileID string) (*metascheduler.GroupResourceProfile, error) {
	db, err := reg.DB(ctx)
	if err != nil {
		return nil, err
	}
	var grp metascheduler.GroupResourceProfile
	err = getDoc(ctx, db, &grp, "group resource profile", `select doc from group_resource_profiles where id=$1`, groupResourceProfileID)
	if err != nil {
		return nil, err
	}
	return &grp, nil
}

// GetGroupComputeResourcePreference returns the preference for a
// compute resource in a group resource profile.
func (reg *Registry) GetGroupComputeResourcePreference(ctx context.Context, computeResourceID, groupResourceProfileID string) (*metascheduler.GroupComputeResourcePreference, error) {
	grp, err := reg.GetGroupResourceProfile(ctx, groupResourceProfileID)
	if err != nil {
		return nil, err
	}
	for _, pref := range grp.ComputePreferences {
		if pref.ComputeResourceID == computeResourceID {
			pref := pref
			return &pref, nil
		}
	}
	return nil, fmt.Errorf("group %q preference for %q: %w", groupResourceProfileID, computeResourceID, metascheduler.ErrNotFound)
}

// PutUserResourceProfile creates or replaces urp.
func (reg *Registry) PutUserResourceProfile(ctx context.Context, urp *metascheduler.UserResourceProfile) error {
	db, err := reg.DB(ctx)
	if err != nil {
		return err
	}
	return putDoc(ctx, db, urp, `insert into user_resource_profiles (user_id, gateway_id, doc) values ($1, $2, $3)
		on conflict (user_id, gateway_id) do update set doc=excluded.doc`, urp.UserID, urp.GatewayID)
}

func (reg *Registry) GetUserResourceProfile(ctx context.Context, username, gatewayID string) (*metascheduler.UserResourceProfile, error) {
	db, err := reg.DB(ctx)
	if err != nil {
		return nil, err
	}
	var urp metascheduler.UserResourceProfile
	err = getDoc(ctx, db, &urp, "user resource profile", `select doc from user_resource_profiles where user_id=$1 and gateway_id=$2`, username, gatewayID)
	if err != nil {
		return nil, err
	}
	return &urp, nil
}

// PutUserComputeResourcePreference creates or replaces a user's
// preference for pref.ComputeResourceID.
func (reg *Registry) PutUserComputeResourcePreference(ctx context.Context, username, gatewayID string, pref *metascheduler.UserComputeResourcePreference) error {
	db, err := reg.DB(ctx)
	if err != nil {
		return err
	}
	return putDoc(ctx, db, pref, `insert into user_compute_resource_preferences (user_id, gateway_id, compute_resource_id, doc) values ($1, $2, $3, $4)
		on conflict (user_id, gateway_id, compute_resource_id) do update set doc=excluded.doc`,
		username, gatewayID, pref.ComputeResourceID)
}

func (reg *Registry) GetUserComputeResourcePreference(ctx context.Context, username, gatewayID, computeResourceID string) (*metascheduler.UserComputeResourcePreference, error) {
	db, err := reg.DB(ctx)
	if err != nil {
		return nil, err
	}
	var pref metascheduler.UserComputeResourcePreference
	err = getDoc(ctx, db, &pref, "user compute resource preference",
		`select doc from user_compute_resource_preferences where user_id=$1 and gateway_id=$2 and compute_resource_id=$3`,
		username, gatewayID, computeResourceID)
	if err != nil {
		return nil, err
	}
	return &pref, nil
}
