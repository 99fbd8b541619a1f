// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package engine

import (
	"github.com/NREL/torc-service/internal/metrics"
	"github.com/NREL/torc-service/internal/repository"
	"github.com/NREL/torc-service/pkg/schema"
	"github.com/jmoiron/sqlx"
)

// ReadyJobRequirement is one row of the materialized view
// `ready_job_requirements` exposes: a distinct resource profile among ready
// jobs and how many ready jobs currently reference it (§4.4).
type ReadyJobRequirement struct {
	ResourceRequirements *schema.ResourceRequirements `json:"resourceRequirements"`
	Count                int64                        `json:"count"`
}

// ReadyJobRequirements implements `ready_job_requirements(workflow,
// scheduler_config?)`: distinct resource profiles among ready jobs, counted,
// optionally filtered to a single scheduler binding.
func (e *Engine) ReadyJobRequirements(workflowID int64, schedulerType string, schedulerID *int64) ([]*ReadyJobRequirement, error) {
	jobs := repository.NewJobRepository(e.DB)
	resourceReqs := repository.NewResourceRequirementsRepository(e.DB)

	ready, _, err := jobs.List(workflowID, repository.JobFilter{Status: statusPtr(schema.JobReady)}, schema.PageRequest{Limit: maxPageSize})
	if err != nil {
		return nil, err
	}
	metrics.ReadyJobsGauge.Set(float64(len(ready)))
	if _, blockedTotal, err := jobs.List(workflowID, repository.JobFilter{Status: statusPtr(schema.JobBlocked)}, schema.PageRequest{Limit: 1}); err == nil {
		metrics.BlockedJobsGauge.Set(float64(blockedTotal))
	}

	counts := make(map[int64]int64)
	order := make([]int64, 0)
	for _, job := range ready {
		if job.BlockingCount != 0 {
			continue
		}
		if schedulerType != "" && job.SchedulerType != schedulerType {
			continue
		}
		if schedulerID != nil && (job.SchedulerID == nil || *job.SchedulerID != *schedulerID) {
			continue
		}
		if _, ok := counts[job.ResourceRequirementsID]; !ok {
			order = append(order, job.ResourceRequirementsID)
		}
		counts[job.ResourceRequirementsID]++
	}

	out := make([]*ReadyJobRequirement, 0, len(order))
	for _, rrID := range order {
		rr, err := resourceReqs.Get(workflowID, rrID)
		if err != nil {
			return nil, err
		}
		out = append(out, &ReadyJobRequirement{ResourceRequirements: rr, Count: counts[rrID]})
	}
	return out, nil
}

// ClaimJobsBasedOnResources implements `claim_jobs_based_on_resources`
// (§4.4 claim protocol): it re-reads the ready set ordered per
// sortMethod, greedily bin-packs jobs against budget, CASes each picked job
// ready->submitted_pending guarded by its read revision, and bumps run_id on
// every job the CAS actually wins. A lost CAS silently drops that job from
// the claim rather than failing the whole request; the caller's budget
// arithmetic is repeated entirely inside one transaction so no two
// concurrent claimers can overcommit the same units of capacity.
func (e *Engine) ClaimJobsBasedOnResources(workflowID int64, budget schema.ResourceBudget, limit int, sortMethod schema.ClaimSortMethod) ([]*schema.Job, error) {
	var claimed []*schema.Job
	err := repository.WithRetry(e.DB, func(tx *sqlx.Tx) error {
		claimed = nil
		jobs := repository.NewJobRepository(tx)
		resourceReqs := repository.NewResourceRequirementsRepository(tx)

		candidates, err := jobs.ReadyJobs(tx, workflowID, sortMethod)
		if err != nil {
			return err
		}

		remaining := budget
		for _, job := range candidates {
			if limit > 0 && len(claimed) >= limit {
				break
			}
			rr, err := resourceReqs.Get(workflowID, job.ResourceRequirementsID)
			if err != nil {
				return err
			}
			if !rr.Fits(&remaining) {
				continue
			}

			ok, newRev, err := jobs.CASStatus(tx, job.ID, schema.JobReady, schema.JobSubmittedPending, job.Rev, true)
			if err != nil {
				return err
			}
			if !ok {
				// Another claimer or status writer won this job since the
				// read above; drop it from this claim and keep the budget
				// it would have consumed.
				continue
			}
			rr.Subtract(&remaining)

			job.Status = schema.JobSubmittedPending
			job.Rev = newRev
			job.RunID++
			if _, err := appendEvent(tx, workflowID, int64Ptr(job.ID), nil, "status",
				"ready -> submitted_pending (claimed)"); err != nil {
				return err
			}
			claimed = append(claimed, job)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.JobsClaimedTotal.WithLabelValues("resources").Add(float64(len(claimed)))
	return claimed, nil
}

// ClaimNextJobs implements `claim_next_jobs(limit)`: claim up to limit ready
// jobs ignoring resource fit, the caller having already vouched for capacity
// (§4.4).
func (e *Engine) ClaimNextJobs(workflowID int64, limit int) ([]*schema.Job, error) {
	var claimed []*schema.Job
	err := repository.WithRetry(e.DB, func(tx *sqlx.Tx) error {
		claimed = nil
		jobs := repository.NewJobRepository(tx)

		candidates, err := jobs.ReadyJobs(tx, workflowID, schema.SortSubmissionOrder)
		if err != nil {
			return err
		}

		for _, job := range candidates {
			if limit > 0 && len(claimed) >= limit {
				break
			}
			ok, newRev, err := jobs.CASStatus(tx, job.ID, schema.JobReady, schema.JobSubmittedPending, job.Rev, true)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			job.Status = schema.JobSubmittedPending
			job.Rev = newRev
			job.RunID++
			if _, err := appendEvent(tx, workflowID, int64Ptr(job.ID), nil, "status",
				"ready -> submitted_pending (claimed)"); err != nil {
				return err
			}
			claimed = append(claimed, job)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(claimed) == 0 {
		return nil, nil
	}
	metrics.JobsClaimedTotal.WithLabelValues("next").Add(float64(len(claimed)))
	return claimed, nil
}
