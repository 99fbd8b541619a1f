// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"testing"

	"github.com/NREL/torc-service/pkg/schema"
	"github.com/stretchr/testify/require"
)

func TestFileGetOrCreateByNameCreatesOnFirstReference(t *testing.T) {
	db := OpenTestDB(t)
	wfRepo := NewWorkflowRepository(db)
	wf, err := wfRepo.Create(&schema.Workflow{Name: "wf", User: "tester"})
	require.NoError(t, err)

	repo := NewFileRepository(db)
	f, err := repo.GetOrCreateByName(wf.ID, "out.dat", "/tmp/out.dat")
	require.NoError(t, err)
	require.NotZero(t, f.ID)

	again, err := repo.GetOrCreateByName(wf.ID, "out.dat", "/tmp/out.dat")
	require.NoError(t, err)
	require.Equal(t, f.ID, again.ID, "second reference must resolve to the same row, not create a duplicate")
}

func TestFileSetProducerMarksOutput(t *testing.T) {
	db := OpenTestDB(t)
	wfRepo := NewWorkflowRepository(db)
	wf, err := wfRepo.Create(&schema.Workflow{Name: "wf", User: "tester"})
	require.NoError(t, err)

	rrRepo := NewResourceRequirementsRepository(db)
	rr, err := rrRepo.Create(&schema.ResourceRequirements{WorkflowID: wf.ID, Name: "small", MemoryBytes: 1, NumCPUs: 1})
	require.NoError(t, err)

	jobRepo := NewJobRepository(db)
	job, err := jobRepo.Create(&schema.Job{WorkflowID: wf.ID, Name: "producer", Command: "echo", ResourceRequirementsID: rr.ID})
	require.NoError(t, err)

	fileRepo := NewFileRepository(db)
	f, err := fileRepo.Create(&schema.File{WorkflowID: wf.ID, Name: "out.dat", Path: "/tmp/out.dat"})
	require.NoError(t, err)
	require.False(t, f.IsOutput)

	require.NoError(t, fileRepo.SetProducer(f.ID, job.ID))

	got, err := fileRepo.Get(wf.ID, f.ID)
	require.NoError(t, err)
	require.True(t, got.IsOutput)
	require.Equal(t, job.ID, *got.ProducerJobID)
}

func TestFileByProducer(t *testing.T) {
	db := OpenTestDB(t)
	wfRepo := NewWorkflowRepository(db)
	wf, err := wfRepo.Create(&schema.Workflow{Name: "wf", User: "tester"})
	require.NoError(t, err)

	rrRepo := NewResourceRequirementsRepository(db)
	rr, err := rrRepo.Create(&schema.ResourceRequirements{WorkflowID: wf.ID, Name: "small", MemoryBytes: 1, NumCPUs: 1})
	require.NoError(t, err)

	jobRepo := NewJobRepository(db)
	a, err := jobRepo.Create(&schema.Job{WorkflowID: wf.ID, Name: "a", Command: "echo", ResourceRequirementsID: rr.ID})
	require.NoError(t, err)
	b, err := jobRepo.Create(&schema.Job{WorkflowID: wf.ID, Name: "b", Command: "echo", ResourceRequirementsID: rr.ID})
	require.NoError(t, err)

	fileRepo := NewFileRepository(db)
	f, err := fileRepo.Create(&schema.File{WorkflowID: wf.ID, Name: "out.dat", Path: "/tmp/out.dat"})
	require.NoError(t, err)
	require.NoError(t, fileRepo.SetProducer(f.ID, a.ID))

	produced, err := fileRepo.ByProducer(db, a.ID)
	require.NoError(t, err)
	require.Len(t, produced, 1)
	require.Equal(t, f.ID, produced[0].ID)

	none, err := fileRepo.ByProducer(db, b.ID)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestFileTouchBumpsUpdatedAt(t *testing.T) {
	db := OpenTestDB(t)
	wfRepo := NewWorkflowRepository(db)
	wf, err := wfRepo.Create(&schema.Workflow{Name: "wf", User: "tester"})
	require.NoError(t, err)

	fileRepo := NewFileRepository(db)
	f, err := fileRepo.Create(&schema.File{WorkflowID: wf.ID, Name: "out.dat", Path: "/tmp/out.dat"})
	require.NoError(t, err)
	firstUpdated := f.UpdatedAt

	require.NoError(t, fileRepo.Touch(f.ID))
	got, err := fileRepo.Get(wf.ID, f.ID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, got.UpdatedAt, firstUpdated)
}

func TestFileListAndDelete(t *testing.T) {
	db := OpenTestDB(t)
	wfRepo := NewWorkflowRepository(db)
	wf, err := wfRepo.Create(&schema.Workflow{Name: "wf", User: "tester"})
	require.NoError(t, err)

	fileRepo := NewFileRepository(db)
	f, err := fileRepo.Create(&schema.File{WorkflowID: wf.ID, Name: "a.dat", Path: "/tmp/a.dat"})
	require.NoError(t, err)
	_, err = fileRepo.Create(&schema.File{WorkflowID: wf.ID, Name: "b.dat", Path: "/tmp/b.dat"})
	require.NoError(t, err)

	items, total, err := fileRepo.List(wf.ID, schema.PageRequest{Limit: 10})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, items, 2)

	require.NoError(t, fileRepo.Delete(wf.ID, f.ID))
	_, err = fileRepo.Get(wf.ID, f.ID)
	require.Error(t, err)
}
