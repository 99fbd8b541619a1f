// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"testing"

	"github.com/NREL/torc-service/pkg/apierror"
	"github.com/NREL/torc-service/pkg/schema"
	"github.com/stretchr/testify/require"
)

func TestWorkflowActionClaimIsAtMostOnce(t *testing.T) {
	db := OpenTestDB(t)
	wfRepo := NewWorkflowRepository(db)
	wf, err := wfRepo.Create(&schema.Workflow{Name: "wf", User: "tester"})
	require.NoError(t, err)

	repo := NewWorkflowActionRepository(db)
	action, err := repo.Create(&schema.WorkflowAction{WorkflowID: wf.ID, TriggerType: "cancel", Payload: "{}"})
	require.NoError(t, err)

	nodes := NewComputeNodeRepository(db)
	n1, err := nodes.Create(&schema.ComputeNode{WorkflowID: wf.ID, Hostname: "n1"})
	require.NoError(t, err)
	n2, err := nodes.Create(&schema.ComputeNode{WorkflowID: wf.ID, Hostname: "n2"})
	require.NoError(t, err)

	claimed, err := repo.Claim(wf.ID, action.ID, n1.ID)
	require.NoError(t, err)
	require.Equal(t, n1.ID, *claimed.ClaimedByComputeNodeID)

	_, err = repo.Claim(wf.ID, action.ID, n2.ID)
	require.Error(t, err, "a second compute node must not win the same action")
	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, apierror.KindConflict, apiErr.Kind)
}

func TestWorkflowActionPendingExcludesClaimed(t *testing.T) {
	db := OpenTestDB(t)
	wfRepo := NewWorkflowRepository(db)
	wf, err := wfRepo.Create(&schema.Workflow{Name: "wf", User: "tester"})
	require.NoError(t, err)

	repo := NewWorkflowActionRepository(db)
	a1, err := repo.Create(&schema.WorkflowAction{WorkflowID: wf.ID, TriggerType: "cancel", Payload: "{}"})
	require.NoError(t, err)
	_, err = repo.Create(&schema.WorkflowAction{WorkflowID: wf.ID, TriggerType: "reset", Payload: "{}"})
	require.NoError(t, err)

	n1, err := NewComputeNodeRepository(db).Create(&schema.ComputeNode{WorkflowID: wf.ID, Hostname: "n1"})
	require.NoError(t, err)

	_, err = repo.Claim(wf.ID, a1.ID, n1.ID)
	require.NoError(t, err)

	pending, err := repo.Pending(wf.ID, nil)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "reset", pending[0].TriggerType)
}
