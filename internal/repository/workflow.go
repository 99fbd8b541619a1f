// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"fmt"
	"strconv"

	"github.com/NREL/torc-service/pkg/apierror"
	"github.com/NREL/torc-service/pkg/schema"
	sq "github.com/Masterminds/squirrel"
)

var workflowColumns = []string{
	"id", "name", "user", "description", "archived", "heartbeat_interval",
	"compute_node_wait_timeout", "max_scheduler_attempts", "cancel_broadcast",
	"rev", "created_at",
}

// WorkflowRepository is C1's entity store for the Workflow aggregate,
// structured the way JobRepository wraps *sqlx.DB with
// squirrel query builders (internal/repository/job.go).
type WorkflowRepository struct {
	DB DBTX
}

func NewWorkflowRepository(db DBTX) *WorkflowRepository {
	return &WorkflowRepository{DB: db}
}

func scanWorkflow(row interface{ Scan(...interface{}) error }) (*schema.Workflow, error) {
	w := &schema.Workflow{}
	err := row.Scan(&w.ID, &w.Name, &w.User, &w.Description, &w.Archived,
		&w.HeartbeatIntervalSeconds, &w.ComputeNodeWaitTimeout, &w.MaxSchedulerAttempts,
		&w.CancelBroadcast, &w.Rev, &w.CreatedAt)
	return w, err
}

// Create inserts a new Workflow, rejecting a duplicate (user, name) pair
// with apierror.KindConflict (§4.1).
func (r *WorkflowRepository) Create(w *schema.Workflow) (*schema.Workflow, error) {
	w.CreatedAt = nowUnixMilli()
	w.Rev = 0
	if w.HeartbeatIntervalSeconds == 0 {
		w.HeartbeatIntervalSeconds = schema.WorkflowDefaults.HeartbeatIntervalSeconds
	}
	if w.ComputeNodeWaitTimeout == 0 {
		w.ComputeNodeWaitTimeout = schema.WorkflowDefaults.ComputeNodeWaitTimeout
	}
	if w.MaxSchedulerAttempts == 0 {
		w.MaxSchedulerAttempts = schema.WorkflowDefaults.MaxSchedulerAttempts
	}

	res, err := statementBuilder.Insert("workflow").
		Columns("name", "user", "description", "archived", "heartbeat_interval",
			"compute_node_wait_timeout", "max_scheduler_attempts", "cancel_broadcast",
			"rev", "created_at").
		Values(w.Name, w.User, w.Description, w.Archived, w.HeartbeatIntervalSeconds,
			w.ComputeNodeWaitTimeout, w.MaxSchedulerAttempts, w.CancelBroadcast,
			w.Rev, w.CreatedAt).
		RunWith(r.DB).Exec()
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apierror.Conflict("workflow", fmt.Sprintf("workflow %q already exists for user %q", w.Name, w.User))
		}
		return nil, apierror.Internal(err.Error())
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	w.ID = id
	return w, nil
}

func (r *WorkflowRepository) Get(id int64) (*schema.Workflow, error) {
	row := statementBuilder.Select(workflowColumns...).From("workflow").
		Where(sq.Eq{"id": id}).RunWith(r.DB).QueryRow()
	w, err := scanWorkflow(row)
	if err != nil {
		return nil, mapScanErr(err, "workflow", strconv.FormatInt(id, 10))
	}
	return w, nil
}

type WorkflowFilter struct {
	User     *string
	Archived *bool
}

func (r *WorkflowRepository) List(filter WorkflowFilter, page schema.PageRequest) ([]*schema.Workflow, int64, error) {
	q := statementBuilder.Select(workflowColumns...).From("workflow").OrderBy("id ASC")
	cq := statementBuilder.Select("count(*)").From("workflow")

	if filter.User != nil {
		q = q.Where(sq.Eq{"user": *filter.User})
		cq = cq.Where(sq.Eq{"user": *filter.User})
	}
	if filter.Archived != nil {
		q = q.Where(sq.Eq{"archived": *filter.Archived})
		cq = cq.Where(sq.Eq{"archived": *filter.Archived})
	}

	var total int64
	if err := cq.RunWith(r.DB).QueryRow().Scan(&total); err != nil {
		return nil, 0, apierror.Internal(err.Error())
	}

	rows, err := applyPage(q, page).RunWith(r.DB).Query()
	if err != nil {
		return nil, 0, apierror.Internal(err.Error())
	}
	defer rows.Close()

	workflows := make([]*schema.Workflow, 0, page.Limit)
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, 0, apierror.Internal(err.Error())
		}
		workflows = append(workflows, w)
	}
	return workflows, total, nil
}

// Update replaces w's mutable fields, requiring the caller's Rev to match
// the stored row (optimistic concurrency, §4.1). A mismatch returns
// apierror.KindStale and leaves the row untouched.
func (r *WorkflowRepository) Update(w *schema.Workflow) (*schema.Workflow, error) {
	nextRev := w.Rev + 1
	res, err := statementBuilder.Update("workflow").
		Set("name", w.Name).
		Set("description", w.Description).
		Set("archived", w.Archived).
		Set("heartbeat_interval", w.HeartbeatIntervalSeconds).
		Set("compute_node_wait_timeout", w.ComputeNodeWaitTimeout).
		Set("max_scheduler_attempts", w.MaxSchedulerAttempts).
		Set("cancel_broadcast", w.CancelBroadcast).
		Set("rev", nextRev).
		Where(sq.Eq{"id": w.ID, "rev": w.Rev}).
		RunWith(r.DB).Exec()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	if err := requireOneRowAffected(res, "workflow", w.ID); err != nil {
		return nil, err
	}
	w.Rev = nextRev
	return w, nil
}

// SetCancelBroadcast flips the cancel signal consulted by the workflow
// status reduction (§4.3, §9 open-question resolution).
func (r *WorkflowRepository) SetCancelBroadcast(id int64) error {
	_, err := statementBuilder.Update("workflow").
		Set("cancel_broadcast", true).
		Where(sq.Eq{"id": id}).RunWith(r.DB).Exec()
	if err != nil {
		return apierror.Internal(err.Error())
	}
	return nil
}

// ClearCancelBroadcast undoes SetCancelBroadcast, called by
// reset_workflow_status so a forced reset doesn't leave the workflow
// permanently reducible to canceled.
func (r *WorkflowRepository) ClearCancelBroadcast(id int64) error {
	_, err := statementBuilder.Update("workflow").
		Set("cancel_broadcast", false).
		Where(sq.Eq{"id": id}).RunWith(r.DB).Exec()
	if err != nil {
		return apierror.Internal(err.Error())
	}
	return nil
}

// Delete cascades to every child entity via ON DELETE CASCADE
// (§3 "Lifecycle").
func (r *WorkflowRepository) Delete(id int64) error {
	res, err := statementBuilder.Delete("workflow").Where(sq.Eq{"id": id}).RunWith(r.DB).Exec()
	if err != nil {
		return apierror.Internal(err.Error())
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apierror.NotFound("workflow", strconv.FormatInt(id, 10))
	}
	return nil
}

func requireOneRowAffected(res interface{ RowsAffected() (int64, error) }, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apierror.Internal(err.Error())
	}
	if n == 0 {
		return apierror.Stale(entity, strconv.FormatInt(id, 10))
	}
	return nil
}

// isUniqueViolation detects sqlite3's UNIQUE constraint failure without
// importing the driver's error type into every call site.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return contains(msg, "UNIQUE constraint failed")
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}
