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

var resourceRequirementsColumns = []string{
	"id", "workflow_id", "name", "memory_bytes", "num_cpus", "num_gpus",
	"num_nodes", "runtime_seconds", "rev",
}

// ResourceRequirementsRepository is C1's entity store for the per-job
// resource footprint referenced by the claim engine's bin-packing
// decisions (§4.4, §5).
type ResourceRequirementsRepository struct {
	DB DBTX
}

func NewResourceRequirementsRepository(db DBTX) *ResourceRequirementsRepository {
	return &ResourceRequirementsRepository{DB: db}
}

func scanResourceRequirements(row interface{ Scan(...interface{}) error }) (*schema.ResourceRequirements, error) {
	rr := &schema.ResourceRequirements{}
	err := row.Scan(&rr.ID, &rr.WorkflowID, &rr.Name, &rr.MemoryBytes, &rr.NumCPUs,
		&rr.NumGPUs, &rr.NumNodes, &rr.RuntimeSeconds, &rr.Rev)
	return rr, err
}

func (r *ResourceRequirementsRepository) Create(rr *schema.ResourceRequirements) (*schema.ResourceRequirements, error) {
	if rr.NumCPUs == 0 {
		rr.NumCPUs = 1
	}
	if rr.NumNodes == 0 {
		rr.NumNodes = 1
	}
	res, err := statementBuilder.Insert("resource_requirements").
		Columns("workflow_id", "name", "memory_bytes", "num_cpus", "num_gpus", "num_nodes", "runtime_seconds", "rev").
		Values(rr.WorkflowID, rr.Name, rr.MemoryBytes, rr.NumCPUs, rr.NumGPUs, rr.NumNodes, rr.RuntimeSeconds, 0).
		RunWith(r.DB).Exec()
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apierror.Conflict("resource_requirements", fmt.Sprintf("%q already exists in this workflow", rr.Name))
		}
		return nil, apierror.Internal(err.Error())
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	rr.ID = id
	return rr, nil
}

func (r *ResourceRequirementsRepository) Get(workflowID, id int64) (*schema.ResourceRequirements, error) {
	row := statementBuilder.Select(resourceRequirementsColumns...).From("resource_requirements").
		Where(sq.Eq{"id": id, "workflow_id": workflowID}).RunWith(r.DB).QueryRow()
	rr, err := scanResourceRequirements(row)
	if err != nil {
		return nil, mapScanErr(err, "resource_requirements", strconv.FormatInt(id, 10))
	}
	return rr, nil
}

// GetByName resolves a resource requirements profile by its workflow-scoped
// name, used when bulk job creation accepts profile names rather than ids
// (§4.1 `create_job`/`bulk_jobs`).
func (r *ResourceRequirementsRepository) GetByName(workflowID int64, name string) (*schema.ResourceRequirements, error) {
	row := statementBuilder.Select(resourceRequirementsColumns...).From("resource_requirements").
		Where(sq.Eq{"workflow_id": workflowID, "name": name}).RunWith(r.DB).QueryRow()
	rr, err := scanResourceRequirements(row)
	if err != nil {
		return nil, mapScanErr(err, "resource_requirements", name)
	}
	return rr, nil
}

func (r *ResourceRequirementsRepository) List(workflowID int64, page schema.PageRequest) ([]*schema.ResourceRequirements, int64, error) {
	var total int64
	if err := statementBuilder.Select("count(*)").From("resource_requirements").
		Where(sq.Eq{"workflow_id": workflowID}).RunWith(r.DB).QueryRow().Scan(&total); err != nil {
		return nil, 0, apierror.Internal(err.Error())
	}

	q := applyPage(statementBuilder.Select(resourceRequirementsColumns...).From("resource_requirements").
		Where(sq.Eq{"workflow_id": workflowID}).OrderBy("id ASC"), page)
	rows, err := q.RunWith(r.DB).Query()
	if err != nil {
		return nil, 0, apierror.Internal(err.Error())
	}
	defer rows.Close()

	out := make([]*schema.ResourceRequirements, 0, page.Limit)
	for rows.Next() {
		rr, err := scanResourceRequirements(rows)
		if err != nil {
			return nil, 0, apierror.Internal(err.Error())
		}
		out = append(out, rr)
	}
	return out, total, nil
}

func (r *ResourceRequirementsRepository) Update(rr *schema.ResourceRequirements) (*schema.ResourceRequirements, error) {
	nextRev := rr.Rev + 1
	res, err := statementBuilder.Update("resource_requirements").
		Set("name", rr.Name).
		Set("memory_bytes", rr.MemoryBytes).
		Set("num_cpus", rr.NumCPUs).
		Set("num_gpus", rr.NumGPUs).
		Set("num_nodes", rr.NumNodes).
		Set("runtime_seconds", rr.RuntimeSeconds).
		Set("rev", nextRev).
		Where(sq.Eq{"id": rr.ID, "rev": rr.Rev}).
		RunWith(r.DB).Exec()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	if err := requireOneRowAffected(res, "resource_requirements", rr.ID); err != nil {
		return nil, err
	}
	rr.Rev = nextRev
	return rr, nil
}

func (r *ResourceRequirementsRepository) Delete(workflowID, id int64) error {
	res, err := statementBuilder.Delete("resource_requirements").
		Where(sq.Eq{"id": id, "workflow_id": workflowID}).RunWith(r.DB).Exec()
	if err != nil {
		return apierror.Internal(err.Error())
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apierror.NotFound("resource_requirements", strconv.FormatInt(id, 10))
	}
	return nil
}
