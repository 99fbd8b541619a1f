// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

// File is a named artifact a Job needs or produces. When IsOutput is true,
// exactly one Job in the same workflow may be its producer (§3).
type File struct {
	ID            int64  `json:"id" db:"id"`
	WorkflowID    int64  `json:"workflowId" db:"workflow_id"`
	Name          string `json:"name" db:"name" validate:"required"`
	Path          string `json:"path" db:"path" validate:"required"`
	IsOutput      bool   `json:"isOutput" db:"is_output"`
	ProducerJobID *int64 `json:"producerJobId,omitempty" db:"producer_job_id"`

	// UpdatedAt is the metadata timestamp process_changed_job_inputs
	// compares against a job's last Result (§4.5 / §9).
	UpdatedAt int64 `json:"updatedAt" db:"updated_at"`
	Rev       int64 `json:"rev" db:"rev"`
}

// UserData is a named, schema-free value. Names are unique per workflow.
type UserData struct {
	ID          int64  `json:"id" db:"id"`
	WorkflowID  int64  `json:"workflowId" db:"workflow_id"`
	Name        string `json:"name" db:"name" validate:"required"`
	IsEphemeral bool   `json:"isEphemeral" db:"is_ephemeral"`
	Value       string `json:"value" db:"value"`
	UpdatedAt   int64  `json:"updatedAt" db:"updated_at"`
	Rev         int64  `json:"rev" db:"rev"`
}

// ResourceRequirements is a named resource profile. Uniqueness is by
// (workflow_id, name).
type ResourceRequirements struct {
	ID             int64  `json:"id" db:"id"`
	WorkflowID     int64  `json:"workflowId" db:"workflow_id"`
	Name           string `json:"name" db:"name" validate:"required"`
	MemoryBytes    int64  `json:"memoryBytes" db:"memory_bytes"`
	NumCPUs        int32  `json:"numCpus" db:"num_cpus"`
	NumGPUs        int32  `json:"numGpus" db:"num_gpus"`
	NumNodes       int32  `json:"numNodes" db:"num_nodes"`
	RuntimeSeconds int64  `json:"runtimeSeconds" db:"runtime_seconds"`
	Rev            int64  `json:"rev" db:"rev"`
}

// Fits reports whether this profile's requirements are covered by budget.
func (rr *ResourceRequirements) Fits(budget *ResourceBudget) bool {
	return rr.MemoryBytes <= budget.MemoryBytes &&
		int64(rr.NumCPUs) <= budget.NumCPUs &&
		int64(rr.NumGPUs) <= budget.NumGPUs &&
		int64(rr.NumNodes) <= budget.NumNodes
}

// Subtract decrements budget by this profile's requirements. Callers must
// have already checked Fits.
func (rr *ResourceRequirements) Subtract(budget *ResourceBudget) {
	budget.MemoryBytes -= rr.MemoryBytes
	budget.NumCPUs -= int64(rr.NumCPUs)
	budget.NumGPUs -= int64(rr.NumGPUs)
	budget.NumNodes -= int64(rr.NumNodes)
}

// ResourceBudget is the aggregate capacity a claimer offers across one or
// more compute nodes (§4.4).
type ResourceBudget struct {
	MemoryBytes int64 `json:"memoryBytes"`
	NumCPUs     int64 `json:"numCpus"`
	NumGPUs     int64 `json:"numGpus"`
	NumNodes    int64 `json:"numNodes"`
}
