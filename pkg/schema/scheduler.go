// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

// SchedulerKind discriminates the scheduler-config variants. Per §9
// design notes, variants are tagged structs dispatched on this
// discriminator rather than modeled with interface inheritance.
type SchedulerKind string

const (
	SchedulerLocal SchedulerKind = "local"
	SchedulerSlurm SchedulerKind = "slurm"
)

// LocalScheduler is a named capacity profile for jobs placed on the
// submitting host itself.
type LocalScheduler struct {
	ID         int64  `json:"id" db:"id"`
	WorkflowID int64  `json:"workflowId" db:"workflow_id"`
	Name       string `json:"name" db:"name" validate:"required"`
	NumCPUs    int32  `json:"numCpus" db:"num_cpus"`
	MemoryBytes int64 `json:"memoryBytes" db:"memory_bytes"`
	NumGPUs    int32  `json:"numGpus" db:"num_gpus"`
	Rev        int64  `json:"rev" db:"rev"`
}

// SlurmScheduler is a named capacity profile describing a Slurm submission
// (account, partition, walltime) jobs reference for placement hinting.
type SlurmScheduler struct {
	ID         int64  `json:"id" db:"id"`
	WorkflowID int64  `json:"workflowId" db:"workflow_id"`
	Name       string `json:"name" db:"name" validate:"required"`
	Account    string `json:"account,omitempty" db:"account"`
	Partition  string `json:"partition,omitempty" db:"partition"`
	Walltime   int64  `json:"walltimeSeconds" db:"walltime"`
	NumNodes   int32  `json:"numNodes" db:"num_nodes"`
	MemoryBytes int64 `json:"memoryBytes" db:"memory_bytes"`
	Gres       string `json:"gres,omitempty" db:"gres"`
	Rev        int64  `json:"rev" db:"rev"`
}

// SchedulerRef resolves the common capability set {id, name,
// resource_profile, workflow_id} shared by both variants, used by the claim
// engine when filtering ready_job_requirements by scheduler binding.
type SchedulerRef struct {
	Kind       SchedulerKind
	ID         int64
	WorkflowID int64
	Name       string
}

// ComputeNode is a worker process instance.
type ComputeNode struct {
	ID                     int64  `json:"id" db:"id"`
	WorkflowID             int64  `json:"workflowId" db:"workflow_id"`
	Hostname               string `json:"hostname" db:"hostname" validate:"required"`
	PID                    int32  `json:"pid" db:"pid"`
	StartTime              int64  `json:"startTime" db:"start_time"`
	IsActive               bool   `json:"isActive" db:"is_active"`
	MemoryBytes            int64  `json:"memoryBytes" db:"memory_bytes"`
	NumCPUs                int32  `json:"numCpus" db:"num_cpus"`
	NumGPUs                int32  `json:"numGpus" db:"num_gpus"`
	ScheduledComputeNodeID *int64 `json:"scheduledComputeNodeId,omitempty" db:"scheduled_compute_node_id"`
	HeartbeatAt            int64  `json:"heartbeatAt" db:"heartbeat_at"`
	Rev                    int64  `json:"rev" db:"rev"`
}

// ScheduledComputeNode is an allocation slot issued by an external
// scheduler (e.g. a Slurm job) within which one or more ComputeNodes run.
type ScheduledComputeNode struct {
	ID            int64         `json:"id" db:"id"`
	WorkflowID    int64         `json:"workflowId" db:"workflow_id"`
	SchedulerType SchedulerKind `json:"schedulerType" db:"scheduler_type"`
	SchedulerID   int64         `json:"schedulerId" db:"scheduler_id"`
	Status        string        `json:"status" db:"status"`
	MemoryBytes   int64         `json:"memoryBytes" db:"memory_bytes"`
	NumCPUs       int32         `json:"numCpus" db:"num_cpus"`
	NumGPUs       int32         `json:"numGpus" db:"num_gpus"`
	NumNodes      int32         `json:"numNodes" db:"num_nodes"`
	Rev           int64         `json:"rev" db:"rev"`
}
