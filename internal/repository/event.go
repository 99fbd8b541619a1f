// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"github.com/NREL/torc-service/pkg/apierror"
	"github.com/NREL/torc-service/pkg/schema"
	sq "github.com/Masterminds/squirrel"
)

var eventColumns = []string{
	"id", "workflow_id", "seq", "category", "name", "timestamp", "message", "job_id", "compute_node_id",
}

// EventRepository appends the audit trail every status transition emits
// (§4.3). Seq is a per-workflow monotonic counter that breaks ties
// when two events share a millisecond timestamp, preserving the strict
// ordering §5/§8 requires.
type EventRepository struct {
	DB DBTX
}

func NewEventRepository(db DBTX) *EventRepository {
	return &EventRepository{DB: db}
}

func scanEvent(row interface{ Scan(...interface{}) error }) (*schema.Event, error) {
	e := &schema.Event{}
	err := row.Scan(&e.ID, &e.WorkflowID, &e.Seq, &e.Category, &e.Name, &e.Timestamp,
		&e.Message, &e.JobID, &e.ComputeNodeID)
	return e, err
}

// Append inserts e with the next sequence number for its workflow, computed
// within tx so concurrent appends in different transactions still serialize
// on the (workflow_id, seq) unique constraint rather than racing in memory.
func (r *EventRepository) Append(tx DBTX, e *schema.Event) (*schema.Event, error) {
	if e.Timestamp == 0 {
		e.Timestamp = nowUnixMilli()
	}
	var maxSeq int64
	row := statementBuilder.Select("COALESCE(MAX(seq), 0)").From("event").
		Where(sq.Eq{"workflow_id": e.WorkflowID}).RunWith(tx).QueryRow()
	if err := row.Scan(&maxSeq); err != nil {
		return nil, apierror.Internal(err.Error())
	}
	e.Seq = maxSeq + 1

	res, err := statementBuilder.Insert("event").
		Columns("workflow_id", "seq", "category", "name", "timestamp", "message", "job_id", "compute_node_id").
		Values(e.WorkflowID, e.Seq, e.Category, e.Name, e.Timestamp, e.Message, e.JobID, e.ComputeNodeID).
		RunWith(tx).Exec()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	e.ID = id
	return e, nil
}

type EventFilter struct {
	JobID           *int64
	AfterTimestamp  *int64
}

func (r *EventRepository) List(workflowID int64, filter EventFilter, page schema.PageRequest) ([]*schema.Event, int64, error) {
	q := statementBuilder.Select(eventColumns...).From("event").
		Where(sq.Eq{"workflow_id": workflowID}).OrderBy("seq ASC")
	cq := statementBuilder.Select("count(*)").From("event").Where(sq.Eq{"workflow_id": workflowID})

	if filter.JobID != nil {
		q = q.Where(sq.Eq{"job_id": *filter.JobID})
		cq = cq.Where(sq.Eq{"job_id": *filter.JobID})
	}
	if filter.AfterTimestamp != nil {
		q = q.Where(sq.Gt{"timestamp": *filter.AfterTimestamp})
		cq = cq.Where(sq.Gt{"timestamp": *filter.AfterTimestamp})
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
	out := make([]*schema.Event, 0, page.Limit)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, apierror.Internal(err.Error())
		}
		out = append(out, e)
	}
	return out, total, nil
}
