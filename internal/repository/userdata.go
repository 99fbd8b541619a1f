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

var userDataColumns = []string{"id", "workflow_id", "name", "is_ephemeral", "value", "updated_at", "rev"}

// UserDataRepository is C1's entity store for named, schema-free values
// jobs consume or produce alongside files (§3).
type UserDataRepository struct {
	DB DBTX
}

func NewUserDataRepository(db DBTX) *UserDataRepository {
	return &UserDataRepository{DB: db}
}

func scanUserData(row interface{ Scan(...interface{}) error }) (*schema.UserData, error) {
	u := &schema.UserData{}
	err := row.Scan(&u.ID, &u.WorkflowID, &u.Name, &u.IsEphemeral, &u.Value, &u.UpdatedAt, &u.Rev)
	return u, err
}

func (r *UserDataRepository) Create(u *schema.UserData) (*schema.UserData, error) {
	u.UpdatedAt = nowUnixMilli()
	res, err := statementBuilder.Insert("user_data").
		Columns("workflow_id", "name", "is_ephemeral", "value", "updated_at", "rev").
		Values(u.WorkflowID, u.Name, u.IsEphemeral, u.Value, u.UpdatedAt, 0).
		RunWith(r.DB).Exec()
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apierror.Conflict("user_data", fmt.Sprintf("%q already exists in this workflow", u.Name))
		}
		return nil, apierror.Internal(err.Error())
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	u.ID = id
	return u, nil
}

func (r *UserDataRepository) GetOrCreateByName(workflowID int64, name string) (*schema.UserData, error) {
	u, err := r.GetByName(workflowID, name)
	if err == nil {
		return u, nil
	}
	var apiErr *apierror.Error
	if !errorsAsNotFound(err, &apiErr) {
		return nil, err
	}
	return r.Create(&schema.UserData{WorkflowID: workflowID, Name: name})
}

func (r *UserDataRepository) GetByName(workflowID int64, name string) (*schema.UserData, error) {
	row := statementBuilder.Select(userDataColumns...).From("user_data").
		Where(sq.Eq{"workflow_id": workflowID, "name": name}).RunWith(r.DB).QueryRow()
	u, err := scanUserData(row)
	if err != nil {
		return nil, mapScanErr(err, "user_data", name)
	}
	return u, nil
}

// GetByID resolves a user_data row by id alone, for callers (C5's change
// propagation) that already hold it from an edge row scoped to a known
// workflow.
func (r *UserDataRepository) GetByID(tx DBTX, id int64) (*schema.UserData, error) {
	row := statementBuilder.Select(userDataColumns...).From("user_data").
		Where(sq.Eq{"id": id}).RunWith(tx).QueryRow()
	u, err := scanUserData(row)
	if err != nil {
		return nil, mapScanErr(err, "user_data", strconv.FormatInt(id, 10))
	}
	return u, nil
}

func (r *UserDataRepository) Get(workflowID, id int64) (*schema.UserData, error) {
	row := statementBuilder.Select(userDataColumns...).From("user_data").
		Where(sq.Eq{"id": id, "workflow_id": workflowID}).RunWith(r.DB).QueryRow()
	u, err := scanUserData(row)
	if err != nil {
		return nil, mapScanErr(err, "user_data", strconv.FormatInt(id, 10))
	}
	return u, nil
}

// Set updates the value and bumps updated_at, the timestamp C5 compares
// during change propagation (§4.5). Optimistic CAS on Rev.
func (r *UserDataRepository) Set(u *schema.UserData) (*schema.UserData, error) {
	nextRev := u.Rev + 1
	res, err := statementBuilder.Update("user_data").
		Set("value", u.Value).
		Set("is_ephemeral", u.IsEphemeral).
		Set("updated_at", nowUnixMilli()).
		Set("rev", nextRev).
		Where(sq.Eq{"id": u.ID, "rev": u.Rev}).
		RunWith(r.DB).Exec()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	if err := requireOneRowAffected(res, "user_data", u.ID); err != nil {
		return nil, err
	}
	u.Rev = nextRev
	return u, nil
}

func (r *UserDataRepository) List(workflowID int64, page schema.PageRequest) ([]*schema.UserData, int64, error) {
	var total int64
	if err := statementBuilder.Select("count(*)").From("user_data").
		Where(sq.Eq{"workflow_id": workflowID}).RunWith(r.DB).QueryRow().Scan(&total); err != nil {
		return nil, 0, apierror.Internal(err.Error())
	}
	q := applyPage(statementBuilder.Select(userDataColumns...).From("user_data").
		Where(sq.Eq{"workflow_id": workflowID}).OrderBy("id ASC"), page)
	rows, err := q.RunWith(r.DB).Query()
	if err != nil {
		return nil, 0, apierror.Internal(err.Error())
	}
	defer rows.Close()
	out := make([]*schema.UserData, 0, page.Limit)
	for rows.Next() {
		u, err := scanUserData(rows)
		if err != nil {
			return nil, 0, apierror.Internal(err.Error())
		}
		out = append(out, u)
	}
	return out, total, nil
}

// DeleteEphemeral removes every user_data row flagged ephemeral for a
// workflow (§3 "ephemeral user data"). Nothing in the engine calls it when
// a run completes.
func (r *UserDataRepository) DeleteEphemeral(workflowID int64) error {
	_, err := statementBuilder.Delete("user_data").
		Where(sq.Eq{"workflow_id": workflowID, "is_ephemeral": true}).
		RunWith(r.DB).Exec()
	if err != nil {
		return apierror.Internal(err.Error())
	}
	return nil
}

func (r *UserDataRepository) Delete(workflowID, id int64) error {
	res, err := statementBuilder.Delete("user_data").
		Where(sq.Eq{"id": id, "workflow_id": workflowID}).RunWith(r.DB).Exec()
	if err != nil {
		return apierror.Internal(err.Error())
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apierror.NotFound("user_data", strconv.FormatInt(id, 10))
	}
	return nil
}
