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

// newWorkflowWithResource sets up a workflow and a resource_requirements row
// so Create can satisfy job's foreign keys.
func newWorkflowWithResource(t *testing.T, db DBTX) (int64, int64) {
	t.Helper()
	wfRepo := NewWorkflowRepository(db)
	wf, err := wfRepo.Create(&schema.Workflow{Name: "wf", User: "tester"})
	require.NoError(t, err)

	rrRepo := NewResourceRequirementsRepository(db)
	rr, err := rrRepo.Create(&schema.ResourceRequirements{WorkflowID: wf.ID, Name: "small", MemoryBytes: 1024, NumCPUs: 1})
	require.NoError(t, err)
	return wf.ID, rr.ID
}

func TestJobCreateGetByName(t *testing.T) {
	db := OpenTestDB(t)
	wfID, rrID := newWorkflowWithResource(t, db)
	repo := NewJobRepository(db)

	j, err := repo.Create(&schema.Job{WorkflowID: wfID, Name: "j1", Command: "echo hi", ResourceRequirementsID: rrID})
	require.NoError(t, err)
	require.Equal(t, schema.JobUninitialized, j.Status)

	got, err := repo.GetByName(wfID, "j1")
	require.NoError(t, err)
	require.Equal(t, j.ID, got.ID)
}

func TestJobCreateDuplicateNameConflict(t *testing.T) {
	db := OpenTestDB(t)
	wfID, rrID := newWorkflowWithResource(t, db)
	repo := NewJobRepository(db)

	_, err := repo.Create(&schema.Job{WorkflowID: wfID, Name: "j1", Command: "echo hi", ResourceRequirementsID: rrID})
	require.NoError(t, err)

	_, err = repo.Create(&schema.Job{WorkflowID: wfID, Name: "j1", Command: "echo hi", ResourceRequirementsID: rrID})
	require.Error(t, err)
	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, apierror.KindConflict, apiErr.Kind)
}

func TestJobCASStatusRejectsStaleRev(t *testing.T) {
	db := OpenTestDB(t)
	wfID, rrID := newWorkflowWithResource(t, db)
	repo := NewJobRepository(db)

	j, err := repo.Create(&schema.Job{WorkflowID: wfID, Name: "j1", Command: "echo hi", ResourceRequirementsID: rrID})
	require.NoError(t, err)

	tx, err := db.Beginx()
	require.NoError(t, err)
	defer tx.Rollback()

	ok, newRev, err := repo.CASStatus(tx, j.ID, schema.JobUninitialized, schema.JobReady, j.Rev, false)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, j.Rev+1, newRev)

	// Retrying with the same (now-stale) expected rev must lose the CAS.
	ok, _, err = repo.CASStatus(tx, j.ID, schema.JobReady, schema.JobSubmittedPending, j.Rev, false)
	require.NoError(t, err)
	require.False(t, ok, "expected rev no longer matches, CAS must report false rather than error")
}

func TestJobAdjustBlockingCount(t *testing.T) {
	db := OpenTestDB(t)
	wfID, rrID := newWorkflowWithResource(t, db)
	repo := NewJobRepository(db)

	j, err := repo.Create(&schema.Job{WorkflowID: wfID, Name: "j1", Command: "echo hi", ResourceRequirementsID: rrID})
	require.NoError(t, err)

	tx, err := db.Beginx()
	require.NoError(t, err)
	defer tx.Rollback()

	count, err := repo.AdjustBlockingCount(tx, j.ID, 2)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	count, err = repo.AdjustBlockingCount(tx, j.ID, -1)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestJobListFilterByStatus(t *testing.T) {
	db := OpenTestDB(t)
	wfID, rrID := newWorkflowWithResource(t, db)
	repo := NewJobRepository(db)

	_, err := repo.Create(&schema.Job{WorkflowID: wfID, Name: "j1", Command: "echo hi", ResourceRequirementsID: rrID})
	require.NoError(t, err)
	_, err = repo.Create(&schema.Job{WorkflowID: wfID, Name: "j2", Command: "echo hi", ResourceRequirementsID: rrID})
	require.NoError(t, err)

	status := schema.JobUninitialized
	items, total, err := repo.List(wfID, JobFilter{Status: &status}, schema.PageRequest{Limit: 10})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, items, 2)
}

func TestJobDeleteNotFound(t *testing.T) {
	db := OpenTestDB(t)
	wfID, rrID := newWorkflowWithResource(t, db)
	repo := NewJobRepository(db)

	j, err := repo.Create(&schema.Job{WorkflowID: wfID, Name: "j1", Command: "echo hi", ResourceRequirementsID: rrID})
	require.NoError(t, err)
	require.NoError(t, repo.Delete(wfID, j.ID))

	err = repo.Delete(wfID, j.ID)
	require.Error(t, err)
	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, apierror.KindNotFound, apiErr.Kind)
}
