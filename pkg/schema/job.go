// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

// Job is a unit of work within a Workflow. Its current status, blocking
// count and run id are mutated exclusively through the repository and
// engine packages so that every change happens inside a transaction that
// also advances Rev (§3, invariant 1/4).
type Job struct {
	ID                      int64     `json:"id" db:"id"`
	WorkflowID              int64     `json:"workflowId" db:"workflow_id"`
	Name                    string    `json:"name" db:"name" validate:"required"`
	Command                 string    `json:"command" db:"command" validate:"required"`
	InvocationScript        string    `json:"invocationScript,omitempty" db:"invocation_script"`
	ResourceRequirementsID  int64     `json:"resourceRequirementsId" db:"resource_requirements_id"`
	SchedulerType           string    `json:"schedulerType,omitempty" db:"scheduler_type" enums:"local,slurm,"`
	SchedulerID             *int64    `json:"schedulerId,omitempty" db:"scheduler_id"`
	Status                  JobStatus `json:"status" db:"status"`
	RunID                   int64     `json:"runId" db:"run_id"`
	BlockingCount           int64     `json:"blockingCount" db:"blocking_count"`
	NumberOfCompletedInputs int64     `json:"numberOfCompletedInputs" db:"number_of_completed_inputs"`
	Rev                     int64     `json:"rev" db:"rev"`
	CreatedAt               int64     `json:"createdAt" db:"created_at"`
}

// NewJobRequest is the shape accepted by create_job / bulk_jobs. Dependency
// fields are resolved to edges by the dependency graph (C2) in the same
// transaction as the insert.
type NewJobRequest struct {
	Name                   string   `json:"name" validate:"required"`
	Command                string   `json:"command" validate:"required"`
	InvocationScript       string   `json:"invocationScript,omitempty"`
	ResourceRequirements   string   `json:"resourceRequirements" validate:"required"`
	SchedulerType          string   `json:"schedulerType,omitempty"`
	SchedulerName          string   `json:"schedulerName,omitempty"`
	UpstreamJobNames       []string `json:"upstreamJobs,omitempty"`
	NeedsFiles             []string `json:"needsFiles,omitempty"`
	ProducesFiles          []string `json:"producesFiles,omitempty"`
	ConsumesUserData       []string `json:"consumesUserData,omitempty"`
	ProducesUserData       []string `json:"producesUserData,omitempty"`
}

// BulkJobsRequest is the body of POST /bulk_jobs: an atomic, topologically
// validated multi-job create (§4.2 "bulk job creation folds edges
// into a single topological validation").
type BulkJobsRequest struct {
	WorkflowID int64             `json:"workflowId" validate:"required"`
	Jobs       []*NewJobRequest  `json:"jobs" validate:"required"`
}
