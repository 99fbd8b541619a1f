// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/NREL/torc-service/pkg/apierror"
	"github.com/NREL/torc-service/pkg/schema"
	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

var jobColumns = []string{
	"id", "workflow_id", "name", "command", "invocation_script", "resource_requirements_id",
	"scheduler_type", "scheduler_id", "status", "run_id", "blocking_count",
	"number_of_completed_inputs", "rev", "created_at",
}

// JobRepository is C1's entity store for the Job aggregate. Status,
// blocking_count and run_id are mutated through dedicated methods
// (CASStatus, which also bumps run_id on a claim, SetStatusUnconditional
// and AdjustBlockingCount) rather than the generic
// Update, since the engine package (C3/C4) is the only caller permitted to
// touch those columns outside of initial creation.
type JobRepository struct {
	DB DBTX
}

// DBTX is satisfied by both *sqlx.DB and *sqlx.Tx (each embeds the
// matching database/sql type), letting every repository method run
// standalone or inside a caller-managed transaction.
type DBTX interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

func NewJobRepository(db DBTX) *JobRepository {
	return &JobRepository{DB: db}
}

func scanJob(row interface{ Scan(...interface{}) error }) (*schema.Job, error) {
	j := &schema.Job{}
	err := row.Scan(&j.ID, &j.WorkflowID, &j.Name, &j.Command, &j.InvocationScript,
		&j.ResourceRequirementsID, &j.SchedulerType, &j.SchedulerID, &j.Status, &j.RunID,
		&j.BlockingCount, &j.NumberOfCompletedInputs, &j.Rev, &j.CreatedAt)
	return j, err
}

// Create inserts a single job in the `uninitialized` status; edges and
// blocking_count are the dependency graph's responsibility (C2), applied in
// the same transaction by the caller (bulk_jobs handler / engine.CreateJobs).
func (r *JobRepository) Create(j *schema.Job) (*schema.Job, error) {
	j.Status = schema.JobUninitialized
	j.CreatedAt = nowUnixMilli()
	res, err := statementBuilder.Insert("job").
		Columns("workflow_id", "name", "command", "invocation_script", "resource_requirements_id",
			"scheduler_type", "scheduler_id", "status", "run_id", "blocking_count",
			"number_of_completed_inputs", "rev", "created_at").
		Values(j.WorkflowID, j.Name, j.Command, j.InvocationScript, j.ResourceRequirementsID,
			j.SchedulerType, j.SchedulerID, j.Status, 0, 0, 0, 0, j.CreatedAt).
		RunWith(r.DB).Exec()
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apierror.Conflict("job", fmt.Sprintf("%q already exists in this workflow", j.Name))
		}
		return nil, apierror.Internal(err.Error())
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	j.ID = id
	return j, nil
}

func (r *JobRepository) Get(workflowID, id int64) (*schema.Job, error) {
	row := statementBuilder.Select(jobColumns...).From("job").
		Where(sq.Eq{"id": id, "workflow_id": workflowID}).RunWith(r.DB).QueryRow()
	j, err := scanJob(row)
	if err != nil {
		return nil, mapScanErr(err, "job", strconv.FormatInt(id, 10))
	}
	return j, nil
}

func (r *JobRepository) GetByName(workflowID int64, name string) (*schema.Job, error) {
	row := statementBuilder.Select(jobColumns...).From("job").
		Where(sq.Eq{"workflow_id": workflowID, "name": name}).RunWith(r.DB).QueryRow()
	j, err := scanJob(row)
	if err != nil {
		return nil, mapScanErr(err, "job", name)
	}
	return j, nil
}

// GetForUpdate re-reads a job's row within the caller's transaction; the
// status engine (C3) uses this to obtain the revision applyTransition will
// CAS against.
func (r *JobRepository) GetForUpdate(tx *sqlx.Tx, id int64) (*schema.Job, error) {
	row := statementBuilder.Select(jobColumns...).From("job").
		Where(sq.Eq{"id": id}).RunWith(tx).QueryRow()
	j, err := scanJob(row)
	if err != nil {
		return nil, mapScanErr(err, "job", strconv.FormatInt(id, 10))
	}
	return j, nil
}

type JobFilter struct {
	Status *schema.JobStatus
}

func (r *JobRepository) List(workflowID int64, filter JobFilter, page schema.PageRequest) ([]*schema.Job, int64, error) {
	q := statementBuilder.Select(jobColumns...).From("job").Where(sq.Eq{"workflow_id": workflowID}).OrderBy("id ASC")
	cq := statementBuilder.Select("count(*)").From("job").Where(sq.Eq{"workflow_id": workflowID})
	if filter.Status != nil {
		q = q.Where(sq.Eq{"status": *filter.Status})
		cq = cq.Where(sq.Eq{"status": *filter.Status})
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
	out := make([]*schema.Job, 0, page.Limit)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, apierror.Internal(err.Error())
		}
		out = append(out, j)
	}
	return out, total, nil
}

// ReadyJobs returns jobs with status=ready and blocking_count=0, ordered per
// sortMethod (§4.4 claim protocol step 2). Columns are always
// qualified with the "job." table prefix since gpus_first/memory sorts join
// resource_requirements, which shares several column names with job.
func (r *JobRepository) ReadyJobs(tx *sqlx.Tx, workflowID int64, sortMethod schema.ClaimSortMethod) ([]*schema.Job, error) {
	q := statementBuilder.Select(prefixed("job", jobColumns)...).From("job").
		Where(sq.Eq{"job.workflow_id": workflowID, "job.status": schema.JobReady, "job.blocking_count": 0})

	switch sortMethod {
	case schema.SortGPUsFirst:
		q = q.Join("resource_requirements ON resource_requirements.id = job.resource_requirements_id").
			OrderBy("resource_requirements.num_gpus DESC", "job.id ASC")
	case schema.SortMemory:
		q = q.Join("resource_requirements ON resource_requirements.id = job.resource_requirements_id").
			OrderBy("resource_requirements.memory_bytes DESC", "job.id ASC")
	default:
		q = q.OrderBy("job.id ASC")
	}

	rows, err := q.RunWith(tx).Query()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	defer rows.Close()
	var out []*schema.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, apierror.Internal(err.Error())
		}
		out = append(out, j)
	}
	return out, nil
}

func prefixed(table string, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = table + "." + c
	}
	return out
}

// CASStatus performs the conditional update at the heart of C3/C4: it only
// applies when the row's current (status, rev) still matches expected,
// returning false (no error) when the CAS lost, so callers can drop the job
// from a claim instead of failing the whole operation (§4.4 step 4).
func (r *JobRepository) CASStatus(tx *sqlx.Tx, id int64, fromStatus, toStatus schema.JobStatus, expectedRev int64, bumpRunID bool) (bool, int64, error) {
	nextRev := expectedRev + 1
	update := statementBuilder.Update("job").
		Set("status", toStatus).
		Set("rev", nextRev)
	if bumpRunID {
		update = update.Set("run_id", sq.Expr("run_id + 1"))
	}
	res, err := update.
		Where(sq.Eq{"id": id, "status": fromStatus, "rev": expectedRev}).
		RunWith(tx).Exec()
	if err != nil {
		return false, 0, apierror.Internal(err.Error())
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, 0, apierror.Internal(err.Error())
	}
	if n == 0 {
		return false, 0, nil
	}
	return true, nextRev, nil
}

// SetStatusUnconditional is used by the initialize, reset and
// change-propagation paths, which already hold
// exclusive knowledge of the row (inside a workflow-wide transaction) and
// don't need a CAS guard beyond the transaction's own isolation.
func (r *JobRepository) SetStatusUnconditional(tx *sqlx.Tx, id int64, status schema.JobStatus) error {
	res, err := statementBuilder.Update("job").
		Set("status", status).
		Set("rev", sq.Expr("rev + 1")).
		Where(sq.Eq{"id": id}).RunWith(tx).Exec()
	if err != nil {
		return apierror.Internal(err.Error())
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apierror.NotFound("job", strconv.FormatInt(id, 10))
	}
	return nil
}

// AdjustBlockingCount applies delta (positive or negative) to a job's
// blocking_count within tx; callers clamp at zero crossing themselves by
// checking the returned value.
func (r *JobRepository) AdjustBlockingCount(tx *sqlx.Tx, id int64, delta int64) (int64, error) {
	_, err := statementBuilder.Update("job").
		Set("blocking_count", sq.Expr("blocking_count + ?", delta)).
		Where(sq.Eq{"id": id}).RunWith(tx).Exec()
	if err != nil {
		return 0, apierror.Internal(err.Error())
	}
	var count int64
	if err := statementBuilder.Select("blocking_count").From("job").Where(sq.Eq{"id": id}).
		RunWith(tx).QueryRow().Scan(&count); err != nil {
		return 0, apierror.Internal(err.Error())
	}
	return count, nil
}

func (r *JobRepository) Update(j *schema.Job) (*schema.Job, error) {
	nextRev := j.Rev + 1
	res, err := statementBuilder.Update("job").
		Set("name", j.Name).
		Set("command", j.Command).
		Set("invocation_script", j.InvocationScript).
		Set("resource_requirements_id", j.ResourceRequirementsID).
		Set("scheduler_type", j.SchedulerType).
		Set("scheduler_id", j.SchedulerID).
		Set("rev", nextRev).
		Where(sq.Eq{"id": j.ID, "rev": j.Rev}).
		RunWith(r.DB).Exec()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	if err := requireOneRowAffected(res, "job", j.ID); err != nil {
		return nil, err
	}
	j.Rev = nextRev
	return j, nil
}

func (r *JobRepository) Delete(workflowID, id int64) error {
	res, err := statementBuilder.Delete("job").
		Where(sq.Eq{"id": id, "workflow_id": workflowID}).RunWith(r.DB).Exec()
	if err != nil {
		return apierror.Internal(err.Error())
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apierror.NotFound("job", strconv.FormatInt(id, 10))
	}
	return nil
}

// JobIDs returns every job id in the workflow, used by the `job_ids` verb
// (§6).
func (r *JobRepository) JobIDs(workflowID int64) ([]int64, error) {
	rows, err := statementBuilder.Select("id").From("job").
		Where(sq.Eq{"workflow_id": workflowID}).OrderBy("id ASC").RunWith(r.DB).Query()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apierror.Internal(err.Error())
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// StatusCounts returns the number of jobs per status in a workflow, the
// basis for the workflow-status reduction (§4.3).
func (r *JobRepository) StatusCounts(workflowID int64) (map[schema.JobStatus]int64, error) {
	rows, err := statementBuilder.Select("status", "count(*)").From("job").
		Where(sq.Eq{"workflow_id": workflowID}).GroupBy("status").RunWith(r.DB).Query()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	defer rows.Close()
	counts := make(map[schema.JobStatus]int64)
	for rows.Next() {
		var status schema.JobStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, apierror.Internal(err.Error())
		}
		counts[status] = n
	}
	return counts, nil
}
