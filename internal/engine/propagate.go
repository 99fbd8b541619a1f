// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package engine

import (
	"github.com/NREL/torc-service/internal/repository"
	"github.com/NREL/torc-service/pkg/schema"
	"github.com/jmoiron/sqlx"
)

// ChangedJob describes one job process_changed_job_inputs found or reverted:
// the input (file or user_data) whose mutation timestamp moved past the
// job's last Result is what triggered the revert.
type ChangedJob struct {
	Job            *schema.Job `json:"job"`
	RevertedTo     schema.JobStatus `json:"revertedTo"`
	ChangedInputs  []string    `json:"changedInputs"`
}

// ProcessChangedJobInputs implements `process_changed_job_inputs(workflow,
// dry_run?)` (§4.5): it compares every terminal job's last Result
// timestamp against the updated_at of every file/user_data it depends on,
// reverts affected jobs from terminal to `ready` (or `blocked` if the
// revert also leaves it with unmet prerequisites), adjusts downstream
// blocking_counts the same way a fresh completion or reset would, and emits
// one Event per reverted job. dry_run computes and returns the same set
// without writing anything.
func (e *Engine) ProcessChangedJobInputs(workflowID int64, dryRun bool) ([]*ChangedJob, error) {
	var changed []*ChangedJob
	err := repository.WithRetry(e.DB, func(tx *sqlx.Tx) error {
		changed = nil
		jobs := repository.NewJobRepository(tx)
		graph := repository.NewGraphRepository(tx)
		files := repository.NewFileRepository(tx)
		results := repository.NewResultRepository(tx)

		all, _, err := jobs.List(workflowID, repository.JobFilter{}, schema.PageRequest{Limit: maxPageSize})
		if err != nil {
			return err
		}

		affected := make(map[int64]*ChangedJob)
		for _, job := range all {
			if !job.Status.Terminal() {
				continue
			}
			latest, err := results.LatestForJob(tx, job.ID)
			if err != nil {
				continue // no prior result: nothing to compare against
			}

			var changedInputs []string

			neededFileIDs, err := graph.NeededFileIDs(tx, job.ID)
			if err != nil {
				return err
			}
			for _, fid := range neededFileIDs {
				f, err := files.GetByID(tx, fid)
				if err != nil {
					return err
				}
				if f.UpdatedAt > latest.StartTime {
					changedInputs = append(changedInputs, "file:"+f.Name)
				}
			}

			producedFiles, err := files.ByProducer(tx, job.ID)
			if err != nil {
				return err
			}
			for _, f := range producedFiles {
				if f.UpdatedAt > latest.StartTime {
					changedInputs = append(changedInputs, "file:"+f.Name)
				}
			}

			consumedUDIDs, err := graph.ConsumedUserDataIDs(tx, job.ID)
			if err != nil {
				return err
			}
			userData := repository.NewUserDataRepository(tx)
			for _, udID := range consumedUDIDs {
				u, err := userData.GetByID(tx, udID)
				if err != nil {
					return err
				}
				if u.UpdatedAt > latest.StartTime {
					changedInputs = append(changedInputs, "user_data:"+u.Name)
				}
			}

			if len(changedInputs) > 0 {
				affected[job.ID] = &ChangedJob{Job: job, ChangedInputs: changedInputs}
			}
		}

		if len(affected) == 0 || dryRun {
			for _, c := range affected {
				c.RevertedTo = schema.JobBlocked
				if c.Job.BlockingCount == 0 {
					c.RevertedTo = schema.JobReady
				}
				changed = append(changed, c)
			}
			return nil
		}

		for _, c := range affected {
			blocking, err := computeBlockingCount(tx, jobs, graph, files, c.Job.ID)
			if err != nil {
				return err
			}
			target := schema.JobBlocked
			if blocking == 0 {
				target = schema.JobReady
			}

			if c.Job.BlockingCount != blocking {
				delta := blocking - c.Job.BlockingCount
				if _, err := jobs.AdjustBlockingCount(tx, c.Job.ID, delta); err != nil {
					return err
				}
			}
			if err := jobs.SetStatusUnconditional(tx, c.Job.ID, target); err != nil {
				return err
			}
			if _, err := appendEvent(tx, workflowID, int64Ptr(c.Job.ID), nil, "invalidated",
				"inputs changed since last result"); err != nil {
				return err
			}
			c.RevertedTo = target
			changed = append(changed, c)
		}

		for id := range affected {
			dependents, err := collectDependents(tx, graph, files, id)
			if err != nil {
				return err
			}
			for _, depID := range dependents {
				if _, ok := affected[depID]; ok {
					continue
				}
				dep, err := jobs.GetForUpdate(tx, depID)
				if err != nil {
					return err
				}
				if dep.Status.Terminal() || dep.Status == schema.JobUninitialized {
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

		return nil
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}
