// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

// JobStatus is the per-job lifecycle state described in §4.3.
type JobStatus string

const (
	JobUninitialized    JobStatus = "uninitialized"
	JobBlocked          JobStatus = "blocked"
	JobReady            JobStatus = "ready"
	JobSubmittedPending  JobStatus = "submitted_pending"
	JobSubmitted         JobStatus = "submitted"
	JobRunning           JobStatus = "running"
	JobDone              JobStatus = "done"
	JobCanceled          JobStatus = "canceled"
	JobDisabled          JobStatus = "disabled"
	JobTerminated        JobStatus = "terminated"
	JobFailed            JobStatus = "failed"
	JobTimedOut          JobStatus = "timed_out"
	JobOutOfMemory       JobStatus = "out_of_memory"
)

// Valid reports whether s is one of the statuses defined above.
func (s JobStatus) Valid() bool {
	switch s {
	case JobUninitialized, JobBlocked, JobReady, JobSubmittedPending, JobSubmitted,
		JobRunning, JobDone, JobCanceled, JobDisabled, JobTerminated, JobFailed,
		JobTimedOut, JobOutOfMemory:
		return true
	}
	return false
}

// terminalStatuses is T in §4.3: no further transition is permitted
// without an explicit reset.
var terminalStatuses = map[JobStatus]bool{
	JobDone:        true,
	JobCanceled:    true,
	JobDisabled:    true,
	JobTerminated:  true,
	JobFailed:      true,
	JobTimedOut:    true,
	JobOutOfMemory: true,
}

// Terminal reports whether s is a member of T.
func (s JobStatus) Terminal() bool {
	return terminalStatuses[s]
}

// Successful reports whether s is the single "happy path" terminal status.
func (s JobStatus) Successful() bool {
	return s == JobDone
}

// allowedTransitions encodes the table in §4.3. It is consulted by
// the status state machine before every UPDATE; any pair not present here is
// rejected with apierror.KindInvalidTransition.
var allowedTransitions = map[JobStatus]map[JobStatus]bool{
	JobUninitialized: {JobBlocked: true, JobReady: true},
	JobBlocked:       {JobReady: true},
	JobReady:         {JobSubmittedPending: true},
	JobSubmittedPending: {JobSubmitted: true},
	JobSubmitted:     {JobRunning: true},
	JobRunning: {
		JobDone: true, JobFailed: true, JobTimedOut: true, JobOutOfMemory: true,
	},
}

// CanTransition reports whether moving a job from `from` to `to` is legal.
// "any non-terminal -> canceled/disabled" and "any -> terminated" are
// expressed as blanket rules rather than per-row entries.
func CanTransition(from, to JobStatus) bool {
	if to == JobCanceled || to == JobDisabled {
		return !from.Terminal()
	}
	if to == JobTerminated {
		return true
	}
	if m, ok := allowedTransitions[from]; ok && m[to] {
		return true
	}
	return false
}

// WorkflowStatus is the derived, workflow-wide reduction over job statuses
// (§4.3).
type WorkflowStatus string

const (
	WorkflowUninitialized WorkflowStatus = "uninitialized"
	WorkflowReady         WorkflowStatus = "ready"
	WorkflowInProgress    WorkflowStatus = "in_progress"
	WorkflowDone          WorkflowStatus = "done"
	WorkflowCanceled      WorkflowStatus = "canceled"
	WorkflowFailed        WorkflowStatus = "failed"
)
