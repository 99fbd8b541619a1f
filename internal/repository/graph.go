// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"fmt"

	"github.com/NREL/torc-service/pkg/apierror"
	"github.com/NREL/torc-service/pkg/schema"
	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// GraphRepository is C2's edge store: job→job, job→file and job→user_data
// relations, plus the cycle-prevention and blocking_count bookkeeping 
// §4.2 assigns to the dependency graph. Edges are rows with composite
// indices, not an in-memory adjacency list (§9 design note).
type GraphRepository struct {
	DB DBTX
}

func NewGraphRepository(db DBTX) *GraphRepository {
	return &GraphRepository{DB: db}
}

// AddJobDependency inserts an upstream→downstream edge after confirming it
// would not close a cycle. Must run inside the caller's transaction so the
// BFS and the insert observe the same snapshot.
func (g *GraphRepository) AddJobDependency(tx *sqlx.Tx, workflowID, upstreamJobID, downstreamJobID int64) error {
	if upstreamJobID == downstreamJobID {
		return apierror.InvalidTransition("job_dependency", "a job cannot depend on itself")
	}
	reaches, err := g.jobReaches(tx, downstreamJobID, upstreamJobID)
	if err != nil {
		return err
	}
	if reaches {
		return apierror.InvalidTransition("job_dependency",
			fmt.Sprintf("adding edge %d->%d would create a cycle", upstreamJobID, downstreamJobID))
	}

	_, err = statementBuilder.Insert("job_dependency").
		Columns("workflow_id", "upstream_job_id", "downstream_job_id").
		Values(workflowID, upstreamJobID, downstreamJobID).
		RunWith(tx).Exec()
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return apierror.Internal(err.Error())
	}
	return nil
}

// jobReaches runs a bounded BFS over job_dependency forward edges to answer
// "can a path from 'from' reach 'to'?" — used by AddJobDependency to detect
// whether a proposed edge closes a cycle.
func (g *GraphRepository) jobReaches(tx *sqlx.Tx, from, to int64) (bool, error) {
	visited := map[int64]bool{from: true}
	frontier := []int64{from}

	for len(frontier) > 0 {
		rows, err := statementBuilder.Select("downstream_job_id").From("job_dependency").
			Where(sq.Eq{"upstream_job_id": frontier}).RunWith(tx).Query()
		if err != nil {
			return false, apierror.Internal(err.Error())
		}
		var next []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return false, apierror.Internal(err.Error())
			}
			if id == to {
				rows.Close()
				return true, nil
			}
			if !visited[id] {
				visited[id] = true
				next = append(next, id)
			}
		}
		rows.Close()
		frontier = next
	}
	return false, nil
}

// UpstreamJobIDs returns the jobs that must complete before jobID becomes
// eligible.
func (g *GraphRepository) UpstreamJobIDs(tx DBTX, jobID int64) ([]int64, error) {
	rows, err := statementBuilder.Select("upstream_job_id").From("job_dependency").
		Where(sq.Eq{"downstream_job_id": jobID}).RunWith(tx).Query()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apierror.Internal(err.Error())
		}
		out = append(out, id)
	}
	return out, nil
}

// DownstreamJobIDs returns the jobs gated on jobID completing.
func (g *GraphRepository) DownstreamJobIDs(tx DBTX, jobID int64) ([]int64, error) {
	rows, err := statementBuilder.Select("downstream_job_id").From("job_dependency").
		Where(sq.Eq{"upstream_job_id": jobID}).RunWith(tx).Query()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apierror.Internal(err.Error())
		}
		out = append(out, id)
	}
	return out, nil
}

// AddJobFile records that jobID needs fileID to exist before running.
// Producers are not stored here; they are recorded on the file row by
// FileRepository.SetProducer.
func (g *GraphRepository) AddJobFile(tx *sqlx.Tx, workflowID, jobID, fileID int64) error {
	_, err := statementBuilder.Insert("job_file").
		Columns("workflow_id", "job_id", "file_id").
		Values(workflowID, jobID, fileID).
		RunWith(tx).Exec()
	if err != nil && !isUniqueViolation(err) {
		return apierror.Internal(err.Error())
	}
	return nil
}

// NeededFileIDs returns the files jobID requires before it can run.
func (g *GraphRepository) NeededFileIDs(tx DBTX, jobID int64) ([]int64, error) {
	rows, err := statementBuilder.Select("file_id").From("job_file").
		Where(sq.Eq{"job_id": jobID}).RunWith(tx).Query()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apierror.Internal(err.Error())
		}
		out = append(out, id)
	}
	return out, nil
}

// ConsumingJobIDsForFile returns the jobs that list fileID as a needed
// input, used by C5 to find jobs to invalidate when a file changes.
func (g *GraphRepository) ConsumingJobIDsForFile(tx DBTX, fileID int64) ([]int64, error) {
	rows, err := statementBuilder.Select("job_id").From("job_file").
		Where(sq.Eq{"file_id": fileID}).RunWith(tx).Query()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apierror.Internal(err.Error())
		}
		out = append(out, id)
	}
	return out, nil
}

// AddJobUserData links jobID to userDataID with relation "consumes" or
// "produces" (§3 UserData).
func (g *GraphRepository) AddJobUserData(tx *sqlx.Tx, workflowID, jobID, userDataID int64, relation string) error {
	_, err := statementBuilder.Insert("job_user_data").
		Columns("workflow_id", "job_id", "user_data_id", "relation").
		Values(workflowID, jobID, userDataID, relation).
		RunWith(tx).Exec()
	if err != nil && !isUniqueViolation(err) {
		return apierror.Internal(err.Error())
	}
	return nil
}

// ProducerJobIDsForUserData returns the jobs that produce userDataID; a
// consumer is blocked until every one of them is done.
func (g *GraphRepository) ProducerJobIDsForUserData(tx DBTX, userDataID int64) ([]int64, error) {
	return g.jobIDsByUserDataRelation(tx, userDataID, "produces")
}

// ConsumingJobIDsForUserData returns the jobs that consume userDataID, used
// by C5 to find invalidation targets when a user-data value changes.
func (g *GraphRepository) ConsumingJobIDsForUserData(tx DBTX, userDataID int64) ([]int64, error) {
	return g.jobIDsByUserDataRelation(tx, userDataID, "consumes")
}

func (g *GraphRepository) jobIDsByUserDataRelation(tx DBTX, userDataID int64, relation string) ([]int64, error) {
	rows, err := statementBuilder.Select("job_id").From("job_user_data").
		Where(sq.Eq{"user_data_id": userDataID, "relation": relation}).RunWith(tx).Query()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apierror.Internal(err.Error())
		}
		out = append(out, id)
	}
	return out, nil
}

// ConsumedUserDataProducerJobIDs returns the union of producer job ids across
// every user_data row jobID consumes, used by the blocking-count walk
// (§4.2).
func (g *GraphRepository) ConsumedUserDataProducerJobIDs(tx DBTX, jobID int64) ([]int64, error) {
	consumed, err := g.ConsumedUserDataIDs(tx, jobID)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]bool)
	var out []int64
	for _, udID := range consumed {
		producers, err := g.ProducerJobIDsForUserData(tx, udID)
		if err != nil {
			return nil, err
		}
		for _, pid := range producers {
			if !seen[pid] {
				seen[pid] = true
				out = append(out, pid)
			}
		}
	}
	return out, nil
}

// ProducedUserDataIDs returns the user_data rows jobID produces, used by the
// status engine's downstream cascade.
func (g *GraphRepository) ProducedUserDataIDs(tx DBTX, jobID int64) ([]int64, error) {
	rows, err := statementBuilder.Select("user_data_id").From("job_user_data").
		Where(sq.Eq{"job_id": jobID, "relation": "produces"}).RunWith(tx).Query()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apierror.Internal(err.Error())
		}
		out = append(out, id)
	}
	return out, nil
}

// ConsumedUserDataIDs returns the user_data rows jobID consumes.
func (g *GraphRepository) ConsumedUserDataIDs(tx DBTX, jobID int64) ([]int64, error) {
	rows, err := statementBuilder.Select("user_data_id").From("job_user_data").
		Where(sq.Eq{"job_id": jobID, "relation": "consumes"}).RunWith(tx).Query()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apierror.Internal(err.Error())
		}
		out = append(out, id)
	}
	return out, nil
}

// RequiredExistingFiles returns files with no producer job — "required
// existing" inputs external tooling must stage before the workflow starts
// (§4.2).
func (g *GraphRepository) RequiredExistingFiles(workflowID int64) ([]*schema.File, error) {
	rows, err := statementBuilder.Select(fileColumns...).From("file").
		Where(sq.Eq{"workflow_id": workflowID, "producer_job_id": nil}).
		OrderBy("id ASC").RunWith(g.DB).Query()
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

// MissingUserData returns user_data rows with no producer job and an empty
// value — data external clients must supply before the workflow can proceed
// (§6 `missing_user_data` verb).
func (g *GraphRepository) MissingUserData(workflowID int64) ([]*schema.UserData, error) {
	rows, err := statementBuilder.Select(userDataColumns...).From("user_data").
		Where(sq.Eq{"workflow_id": workflowID, "value": ""}).
		Where(`id NOT IN (SELECT user_data_id FROM job_user_data WHERE relation = 'produces')`).
		OrderBy("id ASC").RunWith(g.DB).Query()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	defer rows.Close()
	var out []*schema.UserData
	for rows.Next() {
		u, err := scanUserData(rows)
		if err != nil {
			return nil, apierror.Internal(err.Error())
		}
		out = append(out, u)
	}
	return out, nil
}
