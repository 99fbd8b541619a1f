// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"strconv"

	"github.com/NREL/torc-service/pkg/apierror"
	"github.com/NREL/torc-service/pkg/schema"
	sq "github.com/Masterminds/squirrel"
)

var workflowActionColumns = []string{
	"id", "workflow_id", "trigger_type", "payload", "created_at",
	"claimed_by_compute_node_id", "claimed_at", "rev",
}

// WorkflowActionRepository is C6's store for broadcast directives. Claim
// uses the same conditional-single-winner update primitive as C4's job CAS
// (§9 "share a helper abstraction").
type WorkflowActionRepository struct {
	DB DBTX
}

func NewWorkflowActionRepository(db DBTX) *WorkflowActionRepository {
	return &WorkflowActionRepository{DB: db}
}

func scanWorkflowAction(row interface{ Scan(...interface{}) error }) (*schema.WorkflowAction, error) {
	a := &schema.WorkflowAction{}
	err := row.Scan(&a.ID, &a.WorkflowID, &a.TriggerType, &a.Payload, &a.CreatedAt,
		&a.ClaimedByComputeNodeID, &a.ClaimedAt, &a.Rev)
	return a, err
}

func (r *WorkflowActionRepository) Create(a *schema.WorkflowAction) (*schema.WorkflowAction, error) {
	a.CreatedAt = nowUnixMilli()
	res, err := statementBuilder.Insert("workflow_action").
		Columns("workflow_id", "trigger_type", "payload", "created_at", "rev").
		Values(a.WorkflowID, a.TriggerType, a.Payload, a.CreatedAt, 0).
		RunWith(r.DB).Exec()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	a.ID = id
	return a, nil
}

func (r *WorkflowActionRepository) Get(workflowID, id int64) (*schema.WorkflowAction, error) {
	row := statementBuilder.Select(workflowActionColumns...).From("workflow_action").
		Where(sq.Eq{"id": id, "workflow_id": workflowID}).RunWith(r.DB).QueryRow()
	a, err := scanWorkflowAction(row)
	if err != nil {
		return nil, mapScanErr(err, "workflow_action", strconv.FormatInt(id, 10))
	}
	return a, nil
}

// Pending returns unclaimed actions for a workflow, optionally filtered by
// trigger type (§4.6 `get_pending_actions`).
func (r *WorkflowActionRepository) Pending(workflowID int64, triggerTypes []string) ([]*schema.WorkflowAction, error) {
	q := statementBuilder.Select(workflowActionColumns...).From("workflow_action").
		Where(sq.Eq{"workflow_id": workflowID}).
		Where("claimed_by_compute_node_id IS NULL").
		OrderBy("id ASC")
	if len(triggerTypes) > 0 {
		q = q.Where(sq.Eq{"trigger_type": triggerTypes})
	}
	rows, err := q.RunWith(r.DB).Query()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	defer rows.Close()
	var out []*schema.WorkflowAction
	for rows.Next() {
		a, err := scanWorkflowAction(rows)
		if err != nil {
			return nil, apierror.Internal(err.Error())
		}
		out = append(out, a)
	}
	return out, nil
}

// Claim performs the conditional update `claimed_by IS NULL → computeNodeID`
// (§4.6). Returns apierror.KindConflict when another compute node
// already won.
func (r *WorkflowActionRepository) Claim(workflowID, actionID, computeNodeID int64) (*schema.WorkflowAction, error) {
	now := nowUnixMilli()
	res, err := statementBuilder.Update("workflow_action").
		Set("claimed_by_compute_node_id", computeNodeID).
		Set("claimed_at", now).
		Set("rev", sq.Expr("rev + 1")).
		Where(sq.Eq{"id": actionID, "workflow_id": workflowID}).
		Where("claimed_by_compute_node_id IS NULL").
		RunWith(r.DB).Exec()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	if n == 0 {
		if _, err := r.Get(workflowID, actionID); err != nil {
			return nil, err
		}
		return nil, apierror.Conflict("workflow_action", "action already claimed")
	}
	return r.Get(workflowID, actionID)
}

func (r *WorkflowActionRepository) List(workflowID int64, page schema.PageRequest) ([]*schema.WorkflowAction, int64, error) {
	var total int64
	if err := statementBuilder.Select("count(*)").From("workflow_action").
		Where(sq.Eq{"workflow_id": workflowID}).RunWith(r.DB).QueryRow().Scan(&total); err != nil {
		return nil, 0, apierror.Internal(err.Error())
	}
	q := applyPage(statementBuilder.Select(workflowActionColumns...).From("workflow_action").
		Where(sq.Eq{"workflow_id": workflowID}).OrderBy("id ASC"), page)
	rows, err := q.RunWith(r.DB).Query()
	if err != nil {
		return nil, 0, apierror.Internal(err.Error())
	}
	defer rows.Close()
	out := make([]*schema.WorkflowAction, 0, page.Limit)
	for rows.Next() {
		a, err := scanWorkflowAction(rows)
		if err != nil {
			return nil, 0, apierror.Internal(err.Error())
		}
		out = append(out, a)
	}
	return out, total, nil
}
