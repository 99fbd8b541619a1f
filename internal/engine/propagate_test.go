// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package engine

import (
	"testing"

	"github.com/NREL/torc-service/pkg/schema"
	"github.com/stretchr/testify/require"
)

// TestProcessChangedJobInputsRevertsOnProducedFileTouch covers the case
// where a job's own output, not one of its declared inputs, is what moved:
// J produced file F and finished; F's metadata is touched after J's result
// was recorded; process_changed_job_inputs must revert J to ready.
func TestProcessChangedJobInputsRevertsOnProducedFileTouch(t *testing.T) {
	e, wfID := newTestEngine(t)

	req := newJobReq("producer")
	req.ProducesFiles = []string{"out.dat"}
	_, err := e.CreateJobs(wfID, []*schema.NewJobRequest{req})
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
	_, err = e.CompleteJob(wfID, started.ID, started.RunID, schema.JobDone, nil, 0, 1000, 2000)
	require.NoError(t, err)

	job, err := e.Jobs.GetByName(wfID, "producer")
	require.NoError(t, err)
	require.Equal(t, schema.JobDone, job.Status)

	f, err := e.Files.GetByName(wfID, "out.dat")
	require.NoError(t, err)
	require.NoError(t, e.Files.Touch(f.ID))

	changed, err := e.ProcessChangedJobInputs(wfID, false)
	require.NoError(t, err)
	require.Len(t, changed, 1)
	require.Equal(t, "producer", changed[0].Job.Name)
	require.Equal(t, schema.JobReady, changed[0].RevertedTo)
	require.Contains(t, changed[0].ChangedInputs, "file:out.dat")

	job, err = e.Jobs.GetByName(wfID, "producer")
	require.NoError(t, err)
	require.Equal(t, schema.JobReady, job.Status)
}

// TestProcessChangedJobInputsDryRunDoesNotWrite verifies dry_run reports
// the same affected set without mutating job status.
func TestProcessChangedJobInputsDryRunDoesNotWrite(t *testing.T) {
	e, wfID := newTestEngine(t)

	req := newJobReq("producer")
	req.ProducesFiles = []string{"out.dat"}
	_, err := e.CreateJobs(wfID, []*schema.NewJobRequest{req})
	require.NoError(t, err)
	_, err = e.InitializeJobs(wfID)
	require.NoError(t, err)

	claimed, err := e.ClaimNextJobs(wfID, 10)
	require.NoError(t, err)
	_, err = e.ManageStatusChange(wfID, claimed[0].ID, claimed[0].RunID, schema.JobSubmitted)
	require.NoError(t, err)
	started, err := e.StartJob(wfID, claimed[0].ID, claimed[0].RunID, "")
	require.NoError(t, err)
	_, err = e.CompleteJob(wfID, started.ID, started.RunID, schema.JobDone, nil, 0, 1000, 2000)
	require.NoError(t, err)

	f, err := e.Files.GetByName(wfID, "out.dat")
	require.NoError(t, err)
	require.NoError(t, e.Files.Touch(f.ID))

	changed, err := e.ProcessChangedJobInputs(wfID, true)
	require.NoError(t, err)
	require.Len(t, changed, 1)

	job, err := e.Jobs.GetByName(wfID, "producer")
	require.NoError(t, err)
	require.Equal(t, schema.JobDone, job.Status, "dry_run must not mutate job status")
}
