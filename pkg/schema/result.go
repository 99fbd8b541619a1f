// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

// Result is an immutable record of one job attempt. Results are appended,
// never overwritten; deleting a job always deletes its results (ON DELETE
// CASCADE on result.job_id); there is no option to preserve them.
type Result struct {
	ID             int64     `json:"id" db:"id"`
	JobID          int64     `json:"jobId" db:"job_id"`
	RunID          int64     `json:"runId" db:"run_id"`
	ReturnCode     int32     `json:"returnCode" db:"return_code"`
	Status         JobStatus `json:"status" db:"status"`
	ComputeNodeID  *int64    `json:"computeNodeId,omitempty" db:"compute_node_id"`
	StartTime      int64     `json:"startTime" db:"start_time"`
	EndTime        int64     `json:"endTime" db:"end_time"`
	ExecTimeSeconds int64    `json:"execTimeSeconds" db:"exec_time"`
}

// Event is a totally-ordered (per workflow) audit record. Seq breaks ties
// between events sharing a timestamp (§5 ordering guarantees).
type Event struct {
	ID            int64  `json:"id" db:"id"`
	WorkflowID    int64  `json:"workflowId" db:"workflow_id"`
	Seq           int64  `json:"seq" db:"seq"`
	Category      string `json:"category" db:"category"`
	Name          string `json:"name" db:"name"`
	Timestamp     int64  `json:"timestamp" db:"timestamp"`
	Message       string `json:"message,omitempty" db:"message"`
	JobID         *int64 `json:"jobId,omitempty" db:"job_id"`
	ComputeNodeID *int64 `json:"computeNodeId,omitempty" db:"compute_node_id"`
}

// WorkflowAction is a broadcast directive, e.g. a cancel order, that at
// most one compute node can claim (§4.6).
type WorkflowAction struct {
	ID                     int64  `json:"id" db:"id"`
	WorkflowID             int64  `json:"workflowId" db:"workflow_id"`
	TriggerType            string `json:"triggerType" db:"trigger_type"`
	Payload                string `json:"payload,omitempty" db:"payload"`
	CreatedAt              int64  `json:"createdAt" db:"created_at"`
	ClaimedByComputeNodeID *int64 `json:"claimedByComputeNodeId,omitempty" db:"claimed_by_compute_node_id"`
	ClaimedAt              *int64 `json:"claimedAt,omitempty" db:"claimed_at"`
	Rev                    int64  `json:"rev" db:"rev"`
}

// Claimed reports whether a compute node has already won this action.
func (a *WorkflowAction) Claimed() bool {
	return a.ClaimedByComputeNodeID != nil
}

// Action trigger types understood by the registry; clients may still pass
// arbitrary strings for forward compatibility ( only names "cancel").
const (
	ActionCancel      = "cancel"
	ActionRestart     = "restart"
	ActionHotReset    = "hot_reset"
)
