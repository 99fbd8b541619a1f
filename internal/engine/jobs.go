// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package engine

import (
	"fmt"

	"github.com/NREL/torc-service/internal/repository"
	"github.com/NREL/torc-service/pkg/apierror"
	"github.com/NREL/torc-service/pkg/log"
	"github.com/NREL/torc-service/pkg/schema"
	"github.com/jmoiron/sqlx"
)

// CreateJobs implements `bulk_jobs`: it inserts every job in reqs plus its
// file/user-data/job edges in one transaction, rejects the whole batch on
// any cycle or unresolvable reference, and leaves every new job
// `uninitialized` (§3 "Lifecycle", §4.2 "bulk job creation folds
// edges into a single topological validation").
func (e *Engine) CreateJobs(workflowID int64, reqs []*schema.NewJobRequest) ([]*schema.Job, error) {
	if len(reqs) == 0 {
		return nil, apierror.BadRequest("jobs must not be empty")
	}

	var created []*schema.Job
	err := repository.WithRetry(e.DB, func(tx *sqlx.Tx) error {
		created = nil
		jobs := repository.NewJobRepository(tx)
		graph := repository.NewGraphRepository(tx)
		files := repository.NewFileRepository(tx)
		userData := repository.NewUserDataRepository(tx)
		resourceReqs := repository.NewResourceRequirementsRepository(tx)
		schedulers := repository.NewSchedulerRepository(tx)

		byName := make(map[string]*schema.Job, len(reqs))
		for _, req := range reqs {
			rr, err := resourceReqs.GetByName(workflowID, req.ResourceRequirements)
			if err != nil {
				return err
			}

			var schedulerID *int64
			if req.SchedulerName != "" {
				ref, err := resolveSchedulerByName(schedulers, workflowID, req.SchedulerType, req.SchedulerName)
				if err != nil {
					return err
				}
				schedulerID = &ref.ID
			}

			job := &schema.Job{
				WorkflowID:             workflowID,
				Name:                   req.Name,
				Command:                req.Command,
				InvocationScript:       req.InvocationScript,
				ResourceRequirementsID: rr.ID,
				SchedulerType:          req.SchedulerType,
				SchedulerID:            schedulerID,
			}
			job, err = jobs.Create(job)
			if err != nil {
				return err
			}
			byName[job.Name] = job
			created = append(created, job)
		}

		// Second pass: edges reference sibling jobs by name, so every job
		// row must already exist before any edge is inserted.
		for _, req := range reqs {
			job := byName[req.Name]

			for _, upstreamName := range req.UpstreamJobNames {
				upstream, ok := byName[upstreamName]
				if !ok {
					upstream, err = jobs.GetByName(workflowID, upstreamName)
					if err != nil {
						return err
					}
				}
				if err := graph.AddJobDependency(tx, workflowID, upstream.ID, job.ID); err != nil {
					return err
				}
			}

			for _, fileName := range req.NeedsFiles {
				f, err := files.GetOrCreateByName(workflowID, fileName, "")
				if err != nil {
					return err
				}
				if err := graph.AddJobFile(tx, workflowID, job.ID, f.ID); err != nil {
					return err
				}
			}
			for _, fileName := range req.ProducesFiles {
				f, err := files.GetOrCreateByName(workflowID, fileName, "")
				if err != nil {
					return err
				}
				if err := files.SetProducer(f.ID, job.ID); err != nil {
					return err
				}
			}

			for _, name := range req.ConsumesUserData {
				u, err := userData.GetOrCreateByName(workflowID, name)
				if err != nil {
					return err
				}
				if err := graph.AddJobUserData(tx, workflowID, job.ID, u.ID, "consumes"); err != nil {
					return err
				}
			}
			for _, name := range req.ProducesUserData {
				u, err := userData.GetOrCreateByName(workflowID, name)
				if err != nil {
					return err
				}
				if err := graph.AddJobUserData(tx, workflowID, job.ID, u.ID, "produces"); err != nil {
					return err
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func resolveSchedulerByName(s *repository.SchedulerRepository, workflowID int64, kind, name string) (*schema.SchedulerRef, error) {
	switch schema.SchedulerKind(kind) {
	case schema.SchedulerSlurm:
		sched, err := s.GetSlurmByName(workflowID, name)
		if err != nil {
			return nil, err
		}
		return &schema.SchedulerRef{Kind: schema.SchedulerSlurm, ID: sched.ID, WorkflowID: sched.WorkflowID, Name: sched.Name}, nil
	case schema.SchedulerLocal, "":
		sched, err := s.GetLocalByName(workflowID, name)
		if err != nil {
			return nil, err
		}
		return &schema.SchedulerRef{Kind: schema.SchedulerLocal, ID: sched.ID, WorkflowID: sched.WorkflowID, Name: sched.Name}, nil
	default:
		return nil, apierror.BadRequest(fmt.Sprintf("unknown scheduler type %q", kind))
	}
}

// InitializeJobs computes each uninitialized job's blocking_count from its
// upstream/file/user-data edges and promotes it to `blocked` or `ready`
// (§4.3 "uninitialized -> blocked|ready").
func (e *Engine) InitializeJobs(workflowID int64) (int, error) {
	count := 0
	err := repository.WithRetry(e.DB, func(tx *sqlx.Tx) error {
		count = 0
		jobs := repository.NewJobRepository(tx)
		graph := repository.NewGraphRepository(tx)
		files := repository.NewFileRepository(tx)

		uninitialized, _, err := jobs.List(workflowID, repository.JobFilter{Status: statusPtr(schema.JobUninitialized)},
			schema.PageRequest{Limit: maxPageSize})
		if err != nil {
			return err
		}

		for _, job := range uninitialized {
			blocking, err := computeBlockingCount(tx, jobs, graph, files, job.ID)
			if err != nil {
				return err
			}
			if _, err := jobs.AdjustBlockingCount(tx, job.ID, blocking); err != nil {
				return err
			}
			target := schema.JobBlocked
			if blocking == 0 {
				target = schema.JobReady
			}
			if err := jobs.SetStatusUnconditional(tx, job.ID, target); err != nil {
				return err
			}
			if _, err := appendEvent(tx, workflowID, int64Ptr(job.ID), nil, "initialized", fmt.Sprintf("initialized to %s", target)); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.Infof("engine: initialized %d jobs in workflow %d", count, workflowID)
	return count, nil
}

// computeBlockingCount sums unsatisfied prerequisites across all three edge
// types (§4.2 "Blocking count"): an upstream job not yet `done`, a
// needed file with an unfinished producer, and user-data with an unfinished
// producer job.
func computeBlockingCount(tx *sqlx.Tx, jobs *repository.JobRepository, graph *repository.GraphRepository, files *repository.FileRepository, jobID int64) (int64, error) {
	var blocking int64

	upstreamIDs, err := graph.UpstreamJobIDs(tx, jobID)
	if err != nil {
		return 0, err
	}
	for _, id := range upstreamIDs {
		u, err := jobs.GetForUpdate(tx, id)
		if err != nil {
			return 0, err
		}
		if u.Status != schema.JobDone {
			blocking++
		}
	}

	neededFileIDs, err := graph.NeededFileIDs(tx, jobID)
	if err != nil {
		return 0, err
	}
	for _, fid := range neededFileIDs {
		f, err := files.GetByID(tx, fid)
		if err != nil {
			return 0, err
		}
		if f.ProducerJobID == nil {
			continue // required-existing file, not blocking
		}
		p, err := jobs.GetForUpdate(tx, *f.ProducerJobID)
		if err != nil {
			return 0, err
		}
		if p.Status != schema.JobDone {
			blocking++
		}
	}

	producerIDs, err := graph.ConsumedUserDataProducerJobIDs(tx, jobID)
	if err != nil {
		return 0, err
	}
	for _, pid := range producerIDs {
		p, err := jobs.GetForUpdate(tx, pid)
		if err != nil {
			return 0, err
		}
		if p.Status != schema.JobDone {
			blocking++
		}
	}

	return blocking, nil
}

func statusPtr(s schema.JobStatus) *schema.JobStatus { return &s }

const maxPageSize = 1_000_000
