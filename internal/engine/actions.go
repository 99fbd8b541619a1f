// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package engine

import (
	"github.com/NREL/torc-service/internal/repository"
	"github.com/NREL/torc-service/pkg/schema"
	"github.com/jmoiron/sqlx"
)

// CreateWorkflowAction implements `create_workflow_action(workflow,
// trigger_type, payload)`: it appends a broadcast directive row that at most
// one compute node can claim (§4.6).
func (e *Engine) CreateWorkflowAction(workflowID int64, triggerType, payload string) (*schema.WorkflowAction, error) {
	return e.Actions.Create(&schema.WorkflowAction{
		WorkflowID:  workflowID,
		TriggerType: triggerType,
		Payload:     payload,
	})
}

// GetPendingActions implements `get_pending_actions(workflow,
// trigger_types?)`: unclaimed actions matching an optional trigger-type
// filter.
func (e *Engine) GetPendingActions(workflowID int64, triggerTypes []string) ([]*schema.WorkflowAction, error) {
	return e.Actions.Pending(workflowID, triggerTypes)
}

// ClaimAction implements `claim_action(workflow, action, compute_node)`: the
// conditional update `claimed_by IS NULL -> claimed_by := compute_node`
// (§4.6, §8 invariant 4 "at most one node ever claims an action").
// A lost claim surfaces apierror.KindConflict (409), matching §8 scenario 4.
func (e *Engine) ClaimAction(workflowID, actionID, computeNodeID int64) (*schema.WorkflowAction, error) {
	var action *schema.WorkflowAction
	err := repository.WithRetry(e.DB, func(tx *sqlx.Tx) error {
		a, err := repository.NewWorkflowActionRepository(tx).Claim(workflowID, actionID, computeNodeID)
		if err != nil {
			return err
		}
		if a.TriggerType == schema.ActionCancel {
			if err := repository.NewWorkflowRepository(tx).SetCancelBroadcast(workflowID); err != nil {
				return err
			}
		}
		action = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return action, nil
}
