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

var fileColumns = []string{
	"id", "workflow_id", "name", "path", "is_output", "producer_job_id", "updated_at", "rev",
}

// FileRepository is C1's entity store for named artifacts. UpdatedAt is the
// field C5's change-propagation compares against a job's last Result start
// time to decide whether an input changed since the job last ran.
type FileRepository struct {
	DB DBTX
}

func NewFileRepository(db DBTX) *FileRepository {
	return &FileRepository{DB: db}
}

func scanFile(row interface{ Scan(...interface{}) error }) (*schema.File, error) {
	f := &schema.File{}
	err := row.Scan(&f.ID, &f.WorkflowID, &f.Name, &f.Path, &f.IsOutput, &f.ProducerJobID, &f.UpdatedAt, &f.Rev)
	return f, err
}

func (r *FileRepository) Create(f *schema.File) (*schema.File, error) {
	f.UpdatedAt = nowUnixMilli()
	res, err := statementBuilder.Insert("file").
		Columns("workflow_id", "name", "path", "is_output", "producer_job_id", "updated_at", "rev").
		Values(f.WorkflowID, f.Name, f.Path, f.IsOutput, f.ProducerJobID, f.UpdatedAt, 0).
		RunWith(r.DB).Exec()
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apierror.Conflict("file", fmt.Sprintf("%q already exists in this workflow", f.Name))
		}
		return nil, apierror.Internal(err.Error())
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	f.ID = id
	return f, nil
}

// GetOrCreateByName is used by bulk job creation (§4.1 "Bulk job
// creation") to resolve a needs_files/produces_files entry to a File row,
// creating one on first reference.
func (r *FileRepository) GetOrCreateByName(workflowID int64, name, path string) (*schema.File, error) {
	f, err := r.GetByName(workflowID, name)
	if err == nil {
		return f, nil
	}
	var apiErr *apierror.Error
	if !errorsAsNotFound(err, &apiErr) {
		return nil, err
	}
	return r.Create(&schema.File{WorkflowID: workflowID, Name: name, Path: path})
}

func (r *FileRepository) GetByName(workflowID int64, name string) (*schema.File, error) {
	row := statementBuilder.Select(fileColumns...).From("file").
		Where(sq.Eq{"workflow_id": workflowID, "name": name}).RunWith(r.DB).QueryRow()
	f, err := scanFile(row)
	if err != nil {
		return nil, mapScanErr(err, "file", name)
	}
	return f, nil
}

// GetByID resolves a file by id alone, for callers (the blocking-count walk,
// C5 propagation) that already hold it from an edge row scoped to a known
// workflow.
func (r *FileRepository) GetByID(tx DBTX, id int64) (*schema.File, error) {
	row := statementBuilder.Select(fileColumns...).From("file").
		Where(sq.Eq{"id": id}).RunWith(tx).QueryRow()
	f, err := scanFile(row)
	if err != nil {
		return nil, mapScanErr(err, "file", strconv.FormatInt(id, 10))
	}
	return f, nil
}

func (r *FileRepository) Get(workflowID, id int64) (*schema.File, error) {
	row := statementBuilder.Select(fileColumns...).From("file").
		Where(sq.Eq{"id": id, "workflow_id": workflowID}).RunWith(r.DB).QueryRow()
	f, err := scanFile(row)
	if err != nil {
		return nil, mapScanErr(err, "file", strconv.FormatInt(id, 10))
	}
	return f, nil
}

// SetProducer records the job that produces this output file, enforcing
// the "exactly one producer" invariant via the unique (workflow_id, name)
// constraint on the file row itself; callers serialize this under WithTx.
func (r *FileRepository) SetProducer(id, producerJobID int64) error {
	res, err := statementBuilder.Update("file").
		Set("producer_job_id", producerJobID).
		Set("is_output", true).
		Where(sq.Eq{"id": id}).RunWith(r.DB).Exec()
	if err != nil {
		return apierror.Internal(err.Error())
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apierror.NotFound("file", strconv.FormatInt(id, 10))
	}
	return nil
}

// Touch bumps updated_at to now, the metadata change that
// process_changed_job_inputs compares against a job's last Result (§4.5).
// Completing a job does not call it.
func (r *FileRepository) Touch(id int64) error {
	res, err := statementBuilder.Update("file").
		Set("updated_at", nowUnixMilli()).
		Where(sq.Eq{"id": id}).RunWith(r.DB).Exec()
	if err != nil {
		return apierror.Internal(err.Error())
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apierror.NotFound("file", strconv.FormatInt(id, 10))
	}
	return nil
}

// ByProducer returns every file produced by jobID, used by the status
// engine's downstream cascade to find consumers gated on this job's output
// (§4.2 "file edges counting only if the file has an unfinished
// producer").
func (r *FileRepository) ByProducer(tx DBTX, jobID int64) ([]*schema.File, error) {
	rows, err := statementBuilder.Select(fileColumns...).From("file").
		Where(sq.Eq{"producer_job_id": jobID}).RunWith(tx).Query()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	defer rows.Close()
	var out []*schema.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, apierror.Internal(err.Error())
		}
		out = append(out, f)
	}
	return out, nil
}

func (r *FileRepository) List(workflowID int64, page schema.PageRequest) ([]*schema.File, int64, error) {
	var total int64
	if err := statementBuilder.Select("count(*)").From("file").
		Where(sq.Eq{"workflow_id": workflowID}).RunWith(r.DB).QueryRow().Scan(&total); err != nil {
		return nil, 0, apierror.Internal(err.Error())
	}
	q := applyPage(statementBuilder.Select(fileColumns...).From("file").
		Where(sq.Eq{"workflow_id": workflowID}).OrderBy("id ASC"), page)
	rows, err := q.RunWith(r.DB).Query()
	if err != nil {
		return nil, 0, apierror.Internal(err.Error())
	}
	defer rows.Close()
	out := make([]*schema.File, 0, page.Limit)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, 0, apierror.Internal(err.Error())
		}
		out = append(out, f)
	}
	return out, total, nil
}

func (r *FileRepository) Delete(workflowID, id int64) error {
	res, err := statementBuilder.Delete("file").
		Where(sq.Eq{"id": id, "workflow_id": workflowID}).RunWith(r.DB).Exec()
	if err != nil {
		return apierror.Internal(err.Error())
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apierror.NotFound("file", strconv.FormatInt(id, 10))
	}
	return nil
}

// errorsAsNotFound reports whether err is an apierror.Error of kind
// KindNotFound, mirroring the errors.As signature so call sites read
// naturally.
func errorsAsNotFound(err error, target **apierror.Error) bool {
	e, ok := err.(*apierror.Error)
	if !ok {
		return false
	}
	if e.Kind != apierror.KindNotFound {
		return false
	}
	*target = e
	return true
}
