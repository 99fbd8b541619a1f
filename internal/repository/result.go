// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"github.com/NREL/torc-service/pkg/apierror"
	"github.com/NREL/torc-service/pkg/schema"
	sq "github.com/Masterminds/squirrel"
)

var resultColumns = []string{
	"id", "job_id", "run_id", "return_code", "status", "compute_node_id",
	"start_time", "end_time", "exec_time",
}

// ResultRepository appends the immutable per-attempt record C3 creates on
// every complete_job (§3 "Result"); terminal transitions made by cancel or
// reset write no Result.
type ResultRepository struct {
	DB DBTX
}

func NewResultRepository(db DBTX) *ResultRepository {
	return &ResultRepository{DB: db}
}

func scanResult(row interface{ Scan(...interface{}) error }) (*schema.Result, error) {
	res := &schema.Result{}
	err := row.Scan(&res.ID, &res.JobID, &res.RunID, &res.ReturnCode, &res.Status,
		&res.ComputeNodeID, &res.StartTime, &res.EndTime, &res.ExecTimeSeconds)
	return res, err
}

func (r *ResultRepository) Create(tx DBTX, res *schema.Result) (*schema.Result, error) {
	if res.EndTime != 0 && res.StartTime != 0 {
		res.ExecTimeSeconds = (res.EndTime - res.StartTime) / 1000
	}
	out, err := statementBuilder.Insert("result").
		Columns("job_id", "run_id", "return_code", "status", "compute_node_id", "start_time", "end_time", "exec_time").
		Values(res.JobID, res.RunID, res.ReturnCode, res.Status, res.ComputeNodeID, res.StartTime, res.EndTime, res.ExecTimeSeconds).
		RunWith(tx).Exec()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	id, err := out.LastInsertId()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	res.ID = id
	return res, nil
}

// LatestForJob returns the most recent Result row for jobID, the record C5's
// change-propagation compares input timestamps against (§4.5).
func (r *ResultRepository) LatestForJob(tx DBTX, jobID int64) (*schema.Result, error) {
	row := statementBuilder.Select(resultColumns...).From("result").
		Where(sq.Eq{"job_id": jobID}).OrderBy("run_id DESC").Limit(1).RunWith(tx).QueryRow()
	res, err := scanResult(row)
	if err != nil {
		return nil, mapScanErr(err, "result", "")
	}
	return res, nil
}

func (r *ResultRepository) ListForJob(jobID int64, allRuns bool, page schema.PageRequest) ([]*schema.Result, int64, error) {
	q := statementBuilder.Select(resultColumns...).From("result").Where(sq.Eq{"job_id": jobID}).OrderBy("run_id DESC")
	cq := statementBuilder.Select("count(*)").From("result").Where(sq.Eq{"job_id": jobID})
	if !allRuns {
		q = q.Limit(1)
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
	out := make([]*schema.Result, 0, page.Limit)
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, 0, apierror.Internal(err.Error())
		}
		out = append(out, res)
	}
	return out, total, nil
}

// DeleteForJob removes every Result row for jobID, called by
// reset_job_status for each job it resets. Deleting a job removes its
// results through the ON DELETE CASCADE on result.job_id instead.
func (r *ResultRepository) DeleteForJob(tx DBTX, jobID int64) error {
	_, err := statementBuilder.Delete("result").Where(sq.Eq{"job_id": jobID}).RunWith(tx).Exec()
	if err != nil {
		return apierror.Internal(err.Error())
	}
	return nil
}
