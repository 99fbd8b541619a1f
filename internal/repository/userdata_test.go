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

func TestUserDataSetRequiresMatchingRev(t *testing.T) {
	db := OpenTestDB(t)
	wfRepo := NewWorkflowRepository(db)
	wf, err := wfRepo.Create(&schema.Workflow{Name: "wf", User: "tester"})
	require.NoError(t, err)

	repo := NewUserDataRepository(db)
	u, err := repo.Create(&schema.UserData{WorkflowID: wf.ID, Name: "k", Value: "v1"})
	require.NoError(t, err)

	u.Value = "v2"
	u, err = repo.Set(u)
	require.NoError(t, err)
	require.Equal(t, int64(1), u.Rev)

	stale := &schema.UserData{ID: u.ID, Value: "v3", Rev: 0}
	_, err = repo.Set(stale)
	require.Error(t, err)
	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, apierror.KindStale, apiErr.Kind)
}

func TestUserDataGetOrCreateByName(t *testing.T) {
	db := OpenTestDB(t)
	wfRepo := NewWorkflowRepository(db)
	wf, err := wfRepo.Create(&schema.Workflow{Name: "wf", User: "tester"})
	require.NoError(t, err)

	repo := NewUserDataRepository(db)
	u, err := repo.GetOrCreateByName(wf.ID, "k")
	require.NoError(t, err)

	again, err := repo.GetOrCreateByName(wf.ID, "k")
	require.NoError(t, err)
	require.Equal(t, u.ID, again.ID)
}
