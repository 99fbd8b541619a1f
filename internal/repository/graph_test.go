// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"testing"

	"github.com/NREL/torc-service/pkg/apierror"
	"github.com/NREL/torc-service/pkg/schema"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newThreeJobs(t *testing.T, db *sqlx.DB) (int64, int64, int64, int64) {
	t.Helper()
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
	c, err := jobRepo.Create(&schema.Job{WorkflowID: wf.ID, Name: "c", Command: "echo", ResourceRequirementsID: rr.ID})
	require.NoError(t, err)
	return wf.ID, a.ID, b.ID, c.ID
}

func TestGraphAddJobDependencyRejectsSelfLoop(t *testing.T) {
	db := OpenTestDB(t)
	wfID, a, _, _ := newThreeJobs(t, db)
	g := NewGraphRepository(db)

	tx, err := db.Beginx()
	require.NoError(t, err)
	defer tx.Rollback()

	err = g.AddJobDependency(tx, wfID, a, a)
	require.Error(t, err)
	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, apierror.KindInvalidTransition, apiErr.Kind)
}

func TestGraphAddJobDependencyRejectsCycle(t *testing.T) {
	db := OpenTestDB(t)
	wfID, a, b, c := newThreeJobs(t, db)
	g := NewGraphRepository(db)

	tx, err := db.Beginx()
	require.NoError(t, err)
	defer tx.Rollback()

	require.NoError(t, g.AddJobDependency(tx, wfID, a, b))
	require.NoError(t, g.AddJobDependency(tx, wfID, b, c))

	// c -> a would close the a->b->c->a cycle.
	err = g.AddJobDependency(tx, wfID, c, a)
	require.Error(t, err)
	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, apierror.KindInvalidTransition, apiErr.Kind)
}

func TestGraphUpstreamDownstreamJobIDs(t *testing.T) {
	db := OpenTestDB(t)
	wfID, a, b, c := newThreeJobs(t, db)
	g := NewGraphRepository(db)

	tx, err := db.Beginx()
	require.NoError(t, err)
	require.NoError(t, g.AddJobDependency(tx, wfID, a, b))
	require.NoError(t, g.AddJobDependency(tx, wfID, b, c))
	require.NoError(t, tx.Commit())

	down, err := g.DownstreamJobIDs(db, a)
	require.NoError(t, err)
	require.Equal(t, []int64{b}, down)

	up, err := g.UpstreamJobIDs(db, c)
	require.NoError(t, err)
	require.Equal(t, []int64{b}, up)
}
