// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package engine

import (
	"testing"

	"github.com/NREL/torc-service/internal/repository"
	"github.com/NREL/torc-service/pkg/schema"
	"github.com/stretchr/testify/require"
)

// newTestEngine opens a fresh in-memory, migrated database and a Workflow
// plus a default resource profile every test in this file reuses.
func newTestEngine(t *testing.T) (*Engine, int64) {
	t.Helper()
	db := repository.OpenTestDB(t)
	e := New(db)

	wf, err := e.Workflows.Create(&schema.Workflow{Name: "wf", User: "tester"})
	require.NoError(t, err)

	_, err = e.ResourceRequirements.Create(&schema.ResourceRequirements{
		WorkflowID: wf.ID, Name: "small", MemoryBytes: 1024, NumCPUs: 1,
	})
	require.NoError(t, err)

	return e, wf.ID
}

func newJobReq(name string, upstream ...string) *schema.NewJobRequest {
	return &schema.NewJobRequest{
		Name:                 name,
		Command:              "echo " + name,
		ResourceRequirements: "small",
		UpstreamJobNames:     upstream,
	}
}

func TestCreateJobsRejectsCycle(t *testing.T) {
	e, wfID := newTestEngine(t)

	// x depends on y and y depends on x in the same batch: the second edge
	// closes a cycle, and the whole batch must roll back.
	_, err := e.CreateJobs(wfID, []*schema.NewJobRequest{
		{Name: "x", Command: "echo x", ResourceRequirements: "small", UpstreamJobNames: []string{"y"}},
		{Name: "y", Command: "echo y", ResourceRequirements: "small", UpstreamJobNames: []string{"x"}},
	})
	require.Error(t, err)

	_, err = e.Jobs.GetByName(wfID, "x")
	require.Error(t, err, "the batch must have rolled back entirely")
}

func TestInitializeClaimCompleteCascade(t *testing.T) {
	e, wfID := newTestEngine(t)

	jobs, err := e.CreateJobs(wfID, []*schema.NewJobRequest{
		newJobReq("upstream"),
		newJobReq("downstream", "upstream"),
	})
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	n, err := e.InitializeJobs(wfID)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	upstream, err := e.Jobs.GetByName(wfID, "upstream")
	require.NoError(t, err)
	require.Equal(t, schema.JobReady, upstream.Status)

	downstream, err := e.Jobs.GetByName(wfID, "downstream")
	require.NoError(t, err)
	require.Equal(t, schema.JobBlocked, downstream.Status)
	require.EqualValues(t, 1, downstream.BlockingCount)

	claimed, err := e.ClaimNextJobs(wfID, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, "upstream", claimed[0].Name)
	require.Equal(t, schema.JobSubmittedPending, claimed[0].Status)

	_, err = e.ManageStatusChange(wfID, claimed[0].ID, claimed[0].RunID, schema.JobSubmitted)
	require.NoError(t, err)

	started, err := e.StartJob(wfID, claimed[0].ID, claimed[0].RunID, "")
	require.NoError(t, err)
	require.Equal(t, schema.JobRunning, started.Status)

	_, err = e.CompleteJob(wfID, started.ID, started.RunID, schema.JobDone, nil, 0, 1000, 2000)
	require.NoError(t, err)

	downstream, err = e.Jobs.GetByName(wfID, "downstream")
	require.NoError(t, err)
	require.Equal(t, schema.JobReady, downstream.Status)
	require.EqualValues(t, 0, downstream.BlockingCount)
}

func TestClaimJobsBasedOnResourcesRespectsBudget(t *testing.T) {
	e, wfID := newTestEngine(t)

	_, err := e.CreateJobs(wfID, []*schema.NewJobRequest{
		newJobReq("a"),
		newJobReq("b"),
	})
	require.NoError(t, err)
	_, err = e.InitializeJobs(wfID)
	require.NoError(t, err)

	// Each job needs 1024 bytes; a budget of 1024 can only fit one.
	claimed, err := e.ClaimJobsBasedOnResources(wfID, schema.ResourceBudget{MemoryBytes: 1024, NumCPUs: 4, NumNodes: 4}, 10, schema.SortSubmissionOrder)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
}

func TestCancelWorkflowTransitionsNonTerminalJobs(t *testing.T) {
	e, wfID := newTestEngine(t)

	_, err := e.CreateJobs(wfID, []*schema.NewJobRequest{newJobReq("only")})
	require.NoError(t, err)
	_, err = e.InitializeJobs(wfID)
	require.NoError(t, err)

	n, err := e.Cancel(wfID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	job, err := e.Jobs.GetByName(wfID, "only")
	require.NoError(t, err)
	require.Equal(t, schema.JobCanceled, job.Status)

	status, err := e.WorkflowStatus(wfID)
	require.NoError(t, err)
	require.Equal(t, schema.WorkflowCanceled, status)
}

func TestResetJobStatusReinitializes(t *testing.T) {
	e, wfID := newTestEngine(t)

	_, err := e.CreateJobs(wfID, []*schema.NewJobRequest{newJobReq("solo")})
	require.NoError(t, err)
	_, err = e.InitializeJobs(wfID)
	require.NoError(t, err)

	claimed, err := e.ClaimNextJobs(wfID, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	_, err = e.ManageStatusChange(wfID, claimed[0].ID, claimed[0].RunID, schema.JobSubmitted)
	require.NoError(t, err)
	started, err := e.StartJob(wfID, claimed[0].ID, claimed[0].RunID, "")
	require.NoError(t, err)
	_, err = e.CompleteJob(wfID, started.ID, started.RunID, schema.JobFailed, nil, 1, 1000, 2000)
	require.NoError(t, err)

	n, err := e.ResetJobStatus(wfID, true)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	job, err := e.Jobs.GetByName(wfID, "solo")
	require.NoError(t, err)
	require.Equal(t, schema.JobReady, job.Status)
}
