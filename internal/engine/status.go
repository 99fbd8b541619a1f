// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package engine

import (
	"fmt"

	"github.com/NREL/torc-service/internal/metrics"
	"github.com/NREL/torc-service/internal/repository"
	"github.com/NREL/torc-service/pkg/apierror"
	"github.com/NREL/torc-service/pkg/schema"
	"github.com/jmoiron/sqlx"
)

// applyTransition validates one job status transition against the state
// machine (pkg/schema/status.go), CASes the row, and appends the status
// Event every successful transition emits (§4.3). Every caller in this
// package passes bumpRunID=false; the claim protocol (C4) bumps run_id
// through JobRepository.CASStatus directly.
func applyTransition(tx *sqlx.Tx, workflowID int64, jobs *repository.JobRepository, job *schema.Job, toStatus schema.JobStatus, bumpRunID bool) (*schema.Job, error) {
	if !schema.CanTransition(job.Status, toStatus) {
		return nil, apierror.InvalidTransition("job", fmt.Sprintf("%s -> %s is not permitted", job.Status, toStatus))
	}
	ok, newRev, err := jobs.CASStatus(tx, job.ID, job.Status, toStatus, job.Rev, bumpRunID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apierror.Stale("job", fmt.Sprintf("%d", job.ID))
	}
	fromStatus := job.Status
	job.Status = toStatus
	job.Rev = newRev
	if bumpRunID {
		job.RunID++
	}
	if _, err := appendEvent(tx, workflowID, int64Ptr(job.ID), nil, "status",
		fmt.Sprintf("%s -> %s", fromStatus, toStatus)); err != nil {
		return nil, err
	}
	return job, nil
}

// collectDependents returns every job gated on jobID across all three edge
// types: direct job->job downstream, consumers of files jobID produces, and
// consumers of user_data jobID produces (§4.2 "sum across all three
// edge types").
func collectDependents(tx *sqlx.Tx, graph *repository.GraphRepository, files *repository.FileRepository, jobID int64) ([]int64, error) {
	seen := make(map[int64]bool)
	var out []int64
	add := func(ids []int64) {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}

	downstream, err := graph.DownstreamJobIDs(tx, jobID)
	if err != nil {
		return nil, err
	}
	add(downstream)

	produced, err := files.ByProducer(tx, jobID)
	if err != nil {
		return nil, err
	}
	for _, f := range produced {
		consumers, err := graph.ConsumingJobIDsForFile(tx, f.ID)
		if err != nil {
			return nil, err
		}
		add(consumers)
	}

	producedUD, err := graph.ProducedUserDataIDs(tx, jobID)
	if err != nil {
		return nil, err
	}
	for _, udID := range producedUD {
		consumers, err := graph.ConsumingJobIDsForUserData(tx, udID)
		if err != nil {
			return nil, err
		}
		add(consumers)
	}

	return out, nil
}

// promoteDownstream decrements blocking_count on every dependent of a job
// that just reached `done`, promoting blocked->ready wherever the count
// reaches zero (§4.2 "reaching zero is the signal for C3 to promote
// blocked->ready").
func promoteDownstream(tx *sqlx.Tx, workflowID int64, jobs *repository.JobRepository, graph *repository.GraphRepository, files *repository.FileRepository, doneJobID int64) error {
	dependents, err := collectDependents(tx, graph, files, doneJobID)
	if err != nil {
		return err
	}
	for _, depID := range dependents {
		count, err := jobs.AdjustBlockingCount(tx, depID, -1)
		if err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		dep, err := jobs.GetForUpdate(tx, depID)
		if err != nil {
			return err
		}
		if dep.Status == schema.JobBlocked {
			if _, err := applyTransition(tx, workflowID, jobs, dep, schema.JobReady, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// StartJob implements `start_job`: submitted -> running, reported by the
// worker that picked up the claimed job. node is the hostname the worker
// reports itself as, recorded on the status Event since the job row has no
// column of its own for it (§4.3).
func (e *Engine) StartJob(workflowID, jobID, runID int64, node string) (*schema.Job, error) {
	var out *schema.Job
	err := repository.WithRetry(e.DB, func(tx *sqlx.Tx) error {
		jobs := repository.NewJobRepository(tx)
		job, err := jobs.GetForUpdate(tx, jobID)
		if err != nil {
			return err
		}
		if job.WorkflowID != workflowID {
			return apierror.NotFound("job", fmt.Sprintf("%d", jobID))
		}
		if job.RunID != runID {
			return apierror.Stale("job", fmt.Sprintf("%d", jobID))
		}
		job, err = applyTransition(tx, workflowID, jobs, job, schema.JobRunning, false)
		if err != nil {
			return err
		}
		if node != "" {
			if _, err := appendEvent(tx, workflowID, int64Ptr(jobID), nil, "started_on_node", node); err != nil {
				return err
			}
		}
		out = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ManageStatusChange implements `manage_status_change`: an intermediate
// transition report (e.g. `submitted_pending` -> `submitted` once the
// external scheduler accepts the job) that carries no Result (§4.3).
func (e *Engine) ManageStatusChange(workflowID, jobID, runID int64, toStatus schema.JobStatus) (*schema.Job, error) {
	var out *schema.Job
	err := repository.WithRetry(e.DB, func(tx *sqlx.Tx) error {
		jobs := repository.NewJobRepository(tx)
		job, err := jobs.GetForUpdate(tx, jobID)
		if err != nil {
			return err
		}
		if job.WorkflowID != workflowID {
			return apierror.NotFound("job", fmt.Sprintf("%d", jobID))
		}
		if job.RunID != runID {
			return apierror.Stale("job", fmt.Sprintf("%d", jobID))
		}
		job, err = applyTransition(tx, workflowID, jobs, job, toStatus, false)
		if err != nil {
			return err
		}
		out = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CompleteJob implements `complete_job`: running -> a terminal status,
// appends the immutable Result row for the run, and on success cascades the
// blocking_count decrement to every dependent (§4.3 row
// "running -> done/failed", §4.2 "blocking count").
func (e *Engine) CompleteJob(workflowID, jobID, runID int64, toStatus schema.JobStatus, computeNodeID *int64, returnCode int32, startTime, endTime int64) (*schema.Job, error) {
	var out *schema.Job
	err := repository.WithRetry(e.DB, func(tx *sqlx.Tx) error {
		jobs := repository.NewJobRepository(tx)
		graph := repository.NewGraphRepository(tx)
		files := repository.NewFileRepository(tx)
		results := repository.NewResultRepository(tx)

		job, err := jobs.GetForUpdate(tx, jobID)
		if err != nil {
			return err
		}
		if job.WorkflowID != workflowID {
			return apierror.NotFound("job", fmt.Sprintf("%d", jobID))
		}
		if job.RunID != runID {
			return apierror.Stale("job", fmt.Sprintf("%d", jobID))
		}

		job, err = applyTransition(tx, workflowID, jobs, job, toStatus, false)
		if err != nil {
			return err
		}

		if _, err := results.Create(tx, &schema.Result{
			JobID:         jobID,
			RunID:         runID,
			ReturnCode:    returnCode,
			Status:        toStatus,
			ComputeNodeID: computeNodeID,
			StartTime:     startTime,
			EndTime:       endTime,
		}); err != nil {
			return err
		}

		if toStatus == schema.JobDone {
			if err := promoteDownstream(tx, workflowID, jobs, graph, files, jobID); err != nil {
				return err
			}
		}

		out = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.JobsCompletedTotal.WithLabelValues(string(toStatus)).Inc()
	return out, nil
}

// Cancel implements the workflow `cancel` verb: it records a cancel
// WorkflowAction, sets the workflow's cancel_broadcast flag, and transitions
// every non-terminal job to `canceled` (§4.3 "any non-terminal ->
// canceled", §9 "treat a claimed cancel action and a direct status write as
// equivalent signals").
func (e *Engine) Cancel(workflowID int64) (int, error) {
	count := 0
	err := repository.WithRetry(e.DB, func(tx *sqlx.Tx) error {
		count = 0
		workflows := repository.NewWorkflowRepository(tx)
		jobs := repository.NewJobRepository(tx)
		actions := repository.NewWorkflowActionRepository(tx)

		if _, err := actions.Create(&schema.WorkflowAction{WorkflowID: workflowID, TriggerType: schema.ActionCancel}); err != nil {
			return err
		}
		if err := workflows.SetCancelBroadcast(workflowID); err != nil {
			return err
		}

		all, _, err := jobs.List(workflowID, repository.JobFilter{}, schema.PageRequest{Limit: maxPageSize})
		if err != nil {
			return err
		}
		for _, job := range all {
			if job.Status.Terminal() {
				continue
			}
			if _, err := applyTransition(tx, workflowID, jobs, job, schema.JobCanceled, false); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func isFailureStatus(s schema.JobStatus) bool {
	return s == schema.JobFailed || s == schema.JobTimedOut || s == schema.JobOutOfMemory
}

// ResetJobStatus implements `reset_job_status(workflow, failed_only?)`
// (§4.3 "Reset semantics"): matching jobs move back to
// `uninitialized`, their Result history is deleted, and every dependent
// gated on them gains back one blocking prerequisite — a `ready` dependent
// reverts to `blocked`. Each reset job is then immediately re-initialized
// against current upstream state, landing in `blocked` or `ready` exactly
// as `initialize_jobs` would.
func (e *Engine) ResetJobStatus(workflowID int64, failedOnly bool) (int, error) {
	count := 0
	err := repository.WithRetry(e.DB, func(tx *sqlx.Tx) error {
		count = 0
		jobs := repository.NewJobRepository(tx)
		graph := repository.NewGraphRepository(tx)
		files := repository.NewFileRepository(tx)
		results := repository.NewResultRepository(tx)

		all, _, err := jobs.List(workflowID, repository.JobFilter{}, schema.PageRequest{Limit: maxPageSize})
		if err != nil {
			return err
		}

		resetting := make(map[int64]bool)
		for _, job := range all {
			if failedOnly {
				if !isFailureStatus(job.Status) {
					continue
				}
			} else if !job.Status.Terminal() {
				continue
			}
			if err := results.DeleteForJob(tx, job.ID); err != nil {
				return err
			}
			if err := jobs.SetStatusUnconditional(tx, job.ID, schema.JobUninitialized); err != nil {
				return err
			}
			if job.BlockingCount != 0 {
				if _, err := jobs.AdjustBlockingCount(tx, job.ID, -job.BlockingCount); err != nil {
					return err
				}
			}
			if _, err := appendEvent(tx, workflowID, int64Ptr(job.ID), nil, "reset", "reset to uninitialized"); err != nil {
				return err
			}
			resetting[job.ID] = true
			count++
		}

		for id := range resetting {
			dependents, err := collectDependents(tx, graph, files, id)
			if err != nil {
				return err
			}
			for _, depID := range dependents {
				if resetting[depID] {
					continue
				}
				dep, err := jobs.GetForUpdate(tx, depID)
				if err != nil {
					return err
				}
				if dep.Status.Terminal() {
					continue
				}
				if _, err := jobs.AdjustBlockingCount(tx, depID, 1); err != nil {
					return err
				}
				if dep.Status == schema.JobReady {
					if _, err := applyTransition(tx, workflowID, jobs, dep, schema.JobBlocked, false); err != nil {
						return err
					}
				}
			}
		}

		for id := range resetting {
			blocking, err := computeBlockingCount(tx, jobs, graph, files, id)
			if err != nil {
				return err
			}
			if blocking != 0 {
				if _, err := jobs.AdjustBlockingCount(tx, id, blocking); err != nil {
					return err
				}
			}
			target := schema.JobBlocked
			if blocking == 0 {
				target = schema.JobReady
			}
			if err := jobs.SetStatusUnconditional(tx, id, target); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ResetWorkflowStatus implements `reset_workflow_status(force?)`: it
// requires every job to already be terminal unless force is set, in which
// case non-terminal jobs are pushed to `terminated` first; every job is
// then returned to `uninitialized` and immediately re-initialized against
// current upstream state (§4.3, scenario 6).
func (e *Engine) ResetWorkflowStatus(workflowID int64, force bool) error {
	return repository.WithRetry(e.DB, func(tx *sqlx.Tx) error {
		jobs := repository.NewJobRepository(tx)
		graph := repository.NewGraphRepository(tx)
		files := repository.NewFileRepository(tx)
		workflows := repository.NewWorkflowRepository(tx)

		all, _, err := jobs.List(workflowID, repository.JobFilter{}, schema.PageRequest{Limit: maxPageSize})
		if err != nil {
			return err
		}

		hasNonTerminal := false
		for _, job := range all {
			if !job.Status.Terminal() {
				hasNonTerminal = true
				break
			}
		}
		if hasNonTerminal && !force {
			return apierror.InvalidTransition("workflow", "workflow has non-terminal jobs; pass force=true to override")
		}

		for _, job := range all {
			if !job.Status.Terminal() {
				if _, err := applyTransition(tx, workflowID, jobs, job, schema.JobTerminated, false); err != nil {
					return err
				}
			}
			if err := jobs.SetStatusUnconditional(tx, job.ID, schema.JobUninitialized); err != nil {
				return err
			}
			if job.BlockingCount != 0 {
				if _, err := jobs.AdjustBlockingCount(tx, job.ID, -job.BlockingCount); err != nil {
					return err
				}
			}
		}

		for _, job := range all {
			blocking, err := computeBlockingCount(tx, jobs, graph, files, job.ID)
			if err != nil {
				return err
			}
			if blocking != 0 {
				if _, err := jobs.AdjustBlockingCount(tx, job.ID, blocking); err != nil {
					return err
				}
			}
			target := schema.JobBlocked
			if blocking == 0 {
				target = schema.JobReady
			}
			if err := jobs.SetStatusUnconditional(tx, job.ID, target); err != nil {
				return err
			}
		}

		return workflows.ClearCancelBroadcast(workflowID)
	})
}

// WorkflowStatus computes the derived reduction over job statuses (
// §4.3); it is never cached, only recomputed on demand.
func (e *Engine) WorkflowStatus(workflowID int64) (schema.WorkflowStatus, error) {
	wf, err := repository.NewWorkflowRepository(e.DB).Get(workflowID)
	if err != nil {
		return "", err
	}
	counts, err := repository.NewJobRepository(e.DB).StatusCounts(workflowID)
	if err != nil {
		return "", err
	}
	return reduceWorkflowStatus(wf, counts), nil
}

func reduceWorkflowStatus(wf *schema.Workflow, counts map[schema.JobStatus]int64) schema.WorkflowStatus {
	if counts[schema.JobUninitialized] > 0 {
		return schema.WorkflowUninitialized
	}

	var total, terminalCount, doneCount int64
	for status, n := range counts {
		total += n
		if status.Terminal() {
			terminalCount += n
		}
		if status == schema.JobDone {
			doneCount += n
		}
	}

	if total > 0 && terminalCount == total {
		switch {
		case doneCount > 0:
			return schema.WorkflowDone
		case wf.CancelBroadcast, counts[schema.JobCanceled] > 0:
			return schema.WorkflowCanceled
		default:
			return schema.WorkflowFailed
		}
	}

	if counts[schema.JobSubmittedPending]+counts[schema.JobSubmitted]+counts[schema.JobRunning] > 0 {
		return schema.WorkflowInProgress
	}
	return schema.WorkflowReady
}

// IsComplete reports whether every job in the workflow is `done` (
// §6 `is_complete`).
func (e *Engine) IsComplete(workflowID int64) (bool, error) {
	counts, err := repository.NewJobRepository(e.DB).StatusCounts(workflowID)
	if err != nil {
		return false, err
	}
	var total, done int64
	for status, n := range counts {
		total += n
		if status == schema.JobDone {
			done += n
		}
	}
	return total > 0 && done == total, nil
}

// IsUninitialized reports whether every job in the workflow is still
// `uninitialized` (§6 `is_uninitialized`).
func (e *Engine) IsUninitialized(workflowID int64) (bool, error) {
	counts, err := repository.NewJobRepository(e.DB).StatusCounts(workflowID)
	if err != nil {
		return false, err
	}
	var total, uninit int64
	for status, n := range counts {
		total += n
		if status == schema.JobUninitialized {
			uninit += n
		}
	}
	return total > 0 && uninit == total, nil
}
