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

func TestWorkflowCreateGet(t *testing.T) {
	db := OpenTestDB(t)
	repo := NewWorkflowRepository(db)

	w, err := repo.Create(&schema.Workflow{Name: "wf1", User: "alice"})
	require.NoError(t, err)
	require.NotZero(t, w.ID)
	require.Equal(t, int64(0), w.Rev)
	require.NotZero(t, w.HeartbeatIntervalSeconds, "defaults should be filled in on create")

	got, err := repo.Get(w.ID)
	require.NoError(t, err)
	require.Equal(t, "wf1", got.Name)
}

func TestWorkflowCreateDuplicateConflict(t *testing.T) {
	db := OpenTestDB(t)
	repo := NewWorkflowRepository(db)

	_, err := repo.Create(&schema.Workflow{Name: "wf1", User: "alice"})
	require.NoError(t, err)

	_, err = repo.Create(&schema.Workflow{Name: "wf1", User: "alice"})
	require.Error(t, err)
	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, apierror.KindConflict, apiErr.Kind)
}

func TestWorkflowUpdateRequiresMatchingRev(t *testing.T) {
	db := OpenTestDB(t)
	repo := NewWorkflowRepository(db)

	w, err := repo.Create(&schema.Workflow{Name: "wf1", User: "alice"})
	require.NoError(t, err)

	w.Description = "updated"
	w, err = repo.Update(w)
	require.NoError(t, err)
	require.Equal(t, int64(1), w.Rev)

	// Stale caller still holds rev 0: the update must be rejected.
	stale := &schema.Workflow{ID: w.ID, Name: w.Name, Rev: 0}
	_, err = repo.Update(stale)
	require.Error(t, err)
	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, apierror.KindStale, apiErr.Kind)
}

func TestWorkflowListFiltersByUserAndArchived(t *testing.T) {
	db := OpenTestDB(t)
	repo := NewWorkflowRepository(db)

	_, err := repo.Create(&schema.Workflow{Name: "a", User: "alice"})
	require.NoError(t, err)
	bWf, err := repo.Create(&schema.Workflow{Name: "b", User: "bob"})
	require.NoError(t, err)
	bWf.Archived = true
	_, err = repo.Update(bWf)
	require.NoError(t, err)

	alice := "alice"
	items, total, err := repo.List(WorkflowFilter{User: &alice}, schema.PageRequest{Limit: 10})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, items, 1)
	require.Equal(t, "a", items[0].Name)

	archived := true
	items, total, err = repo.List(WorkflowFilter{Archived: &archived}, schema.PageRequest{Limit: 10})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, "b", items[0].Name)
}

func TestWorkflowCancelBroadcastRoundtrip(t *testing.T) {
	db := OpenTestDB(t)
	repo := NewWorkflowRepository(db)

	w, err := repo.Create(&schema.Workflow{Name: "wf1", User: "alice"})
	require.NoError(t, err)
	require.False(t, w.CancelBroadcast)

	require.NoError(t, repo.SetCancelBroadcast(w.ID))
	got, err := repo.Get(w.ID)
	require.NoError(t, err)
	require.True(t, got.CancelBroadcast)

	require.NoError(t, repo.ClearCancelBroadcast(w.ID))
	got, err = repo.Get(w.ID)
	require.NoError(t, err)
	require.False(t, got.CancelBroadcast)
}

func TestWorkflowDeleteNotFound(t *testing.T) {
	db := OpenTestDB(t)
	repo := NewWorkflowRepository(db)

	w, err := repo.Create(&schema.Workflow{Name: "wf1", User: "alice"})
	require.NoError(t, err)
	require.NoError(t, repo.Delete(w.ID))

	_, err = repo.Get(w.ID)
	require.Error(t, err)

	err = repo.Delete(w.ID)
	require.Error(t, err)
	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, apierror.KindNotFound, apiErr.Kind)
}
