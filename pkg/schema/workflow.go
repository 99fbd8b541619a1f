// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

// Workflow is the root aggregate: it owns every job, file, user-data value,
// resource profile and scheduler binding created under it. Deletion
// cascades to all child entities (§3).
type Workflow struct {
	ID          int64  `json:"id" db:"id"`
	Name        string `json:"name" db:"name" validate:"required"`
	User        string `json:"user" db:"user" validate:"required"`
	Description string `json:"description,omitempty" db:"description"`
	Archived    bool   `json:"archived" db:"archived"`

	// Per-workflow runtime configuration.
	HeartbeatIntervalSeconds int64 `json:"heartbeatIntervalSeconds" db:"heartbeat_interval"`
	ComputeNodeWaitTimeout   int64 `json:"computeNodeWaitTimeoutSeconds" db:"compute_node_wait_timeout"`
	MaxSchedulerAttempts     int32 `json:"maxSchedulerAttempts" db:"max_scheduler_attempts"`

	// CancelBroadcast is set once a cancel WorkflowAction has been created;
	// it is one of the two equivalent signals used to derive
	// WorkflowStatus = canceled (§9 open question resolution).
	CancelBroadcast bool `json:"cancelBroadcast" db:"cancel_broadcast"`

	Rev       int64 `json:"rev" db:"rev"`
	CreatedAt int64 `json:"createdAt" db:"created_at"`
}

// WorkflowDefaults mirrors the defaults a freshly created Workflow receives
// when the client omits the configuration fields.
var WorkflowDefaults = Workflow{
	HeartbeatIntervalSeconds: 60,
	ComputeNodeWaitTimeout:   300,
	MaxSchedulerAttempts:     3,
}
