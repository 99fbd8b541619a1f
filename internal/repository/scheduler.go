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

var localSchedulerColumns = []string{"id", "workflow_id", "name", "num_cpus", "memory_bytes", "num_gpus", "rev"}
var slurmSchedulerColumns = []string{"id", "workflow_id", "name", "account", "partition", "walltime", "num_nodes", "memory_bytes", "gres", "rev"}

// SchedulerRepository is C1's entity store for the two scheduler-profile
// variants (§3 "Scheduler configuration"), kept as a single repository with
// per-kind methods (CreateLocal/CreateSlurm, GetLocal/GetSlurm, and the
// by-name lookups bulk job creation uses).
type SchedulerRepository struct {
	DB DBTX
}

func NewSchedulerRepository(db DBTX) *SchedulerRepository {
	return &SchedulerRepository{DB: db}
}

func scanLocalScheduler(row interface{ Scan(...interface{}) error }) (*schema.LocalScheduler, error) {
	s := &schema.LocalScheduler{}
	err := row.Scan(&s.ID, &s.WorkflowID, &s.Name, &s.NumCPUs, &s.MemoryBytes, &s.NumGPUs, &s.Rev)
	return s, err
}

func scanSlurmScheduler(row interface{ Scan(...interface{}) error }) (*schema.SlurmScheduler, error) {
	s := &schema.SlurmScheduler{}
	err := row.Scan(&s.ID, &s.WorkflowID, &s.Name, &s.Account, &s.Partition, &s.Walltime, &s.NumNodes, &s.MemoryBytes, &s.Gres, &s.Rev)
	return s, err
}

func (r *SchedulerRepository) CreateLocal(s *schema.LocalScheduler) (*schema.LocalScheduler, error) {
	if s.NumCPUs == 0 {
		s.NumCPUs = 1
	}
	res, err := statementBuilder.Insert("local_scheduler").
		Columns("workflow_id", "name", "num_cpus", "memory_bytes", "num_gpus", "rev").
		Values(s.WorkflowID, s.Name, s.NumCPUs, s.MemoryBytes, s.NumGPUs, 0).
		RunWith(r.DB).Exec()
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apierror.Conflict("local_scheduler", fmt.Sprintf("%q already exists in this workflow", s.Name))
		}
		return nil, apierror.Internal(err.Error())
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	s.ID = id
	return s, nil
}

func (r *SchedulerRepository) CreateSlurm(s *schema.SlurmScheduler) (*schema.SlurmScheduler, error) {
	if s.NumNodes == 0 {
		s.NumNodes = 1
	}
	res, err := statementBuilder.Insert("slurm_scheduler").
		Columns("workflow_id", "name", "account", "partition", "walltime", "num_nodes", "memory_bytes", "gres", "rev").
		Values(s.WorkflowID, s.Name, s.Account, s.Partition, s.Walltime, s.NumNodes, s.MemoryBytes, s.Gres, 0).
		RunWith(r.DB).Exec()
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apierror.Conflict("slurm_scheduler", fmt.Sprintf("%q already exists in this workflow", s.Name))
		}
		return nil, apierror.Internal(err.Error())
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	s.ID = id
	return s, nil
}

func (r *SchedulerRepository) GetLocal(workflowID, id int64) (*schema.LocalScheduler, error) {
	row := statementBuilder.Select(localSchedulerColumns...).From("local_scheduler").
		Where(sq.Eq{"id": id, "workflow_id": workflowID}).RunWith(r.DB).QueryRow()
	s, err := scanLocalScheduler(row)
	if err != nil {
		return nil, mapScanErr(err, "local_scheduler", strconv.FormatInt(id, 10))
	}
	return s, nil
}

func (r *SchedulerRepository) GetSlurm(workflowID, id int64) (*schema.SlurmScheduler, error) {
	row := statementBuilder.Select(slurmSchedulerColumns...).From("slurm_scheduler").
		Where(sq.Eq{"id": id, "workflow_id": workflowID}).RunWith(r.DB).QueryRow()
	s, err := scanSlurmScheduler(row)
	if err != nil {
		return nil, mapScanErr(err, "slurm_scheduler", strconv.FormatInt(id, 10))
	}
	return s, nil
}

// Resolve looks up the common fields of either variant by (kind, id)
// without branching on kind at the call site. The claim engine does not
// call it.
func (r *SchedulerRepository) Resolve(workflowID int64, kind schema.SchedulerKind, id int64) (*schema.SchedulerRef, error) {
	switch kind {
	case schema.SchedulerLocal:
		s, err := r.GetLocal(workflowID, id)
		if err != nil {
			return nil, err
		}
		return &schema.SchedulerRef{Kind: kind, ID: s.ID, WorkflowID: s.WorkflowID, Name: s.Name}, nil
	case schema.SchedulerSlurm:
		s, err := r.GetSlurm(workflowID, id)
		if err != nil {
			return nil, err
		}
		return &schema.SchedulerRef{Kind: kind, ID: s.ID, WorkflowID: s.WorkflowID, Name: s.Name}, nil
	default:
		return nil, apierror.BadRequest(fmt.Sprintf("unknown scheduler kind %q", kind))
	}
}

func (r *SchedulerRepository) GetLocalByName(workflowID int64, name string) (*schema.LocalScheduler, error) {
	row := statementBuilder.Select(localSchedulerColumns...).From("local_scheduler").
		Where(sq.Eq{"workflow_id": workflowID, "name": name}).RunWith(r.DB).QueryRow()
	s, err := scanLocalScheduler(row)
	if err != nil {
		return nil, mapScanErr(err, "local_scheduler", name)
	}
	return s, nil
}

func (r *SchedulerRepository) GetSlurmByName(workflowID int64, name string) (*schema.SlurmScheduler, error) {
	row := statementBuilder.Select(slurmSchedulerColumns...).From("slurm_scheduler").
		Where(sq.Eq{"workflow_id": workflowID, "name": name}).RunWith(r.DB).QueryRow()
	s, err := scanSlurmScheduler(row)
	if err != nil {
		return nil, mapScanErr(err, "slurm_scheduler", name)
	}
	return s, nil
}

func (r *SchedulerRepository) ListLocal(workflowID int64, page schema.PageRequest) ([]*schema.LocalScheduler, int64, error) {
	var total int64
	if err := statementBuilder.Select("count(*)").From("local_scheduler").
		Where(sq.Eq{"workflow_id": workflowID}).RunWith(r.DB).QueryRow().Scan(&total); err != nil {
		return nil, 0, apierror.Internal(err.Error())
	}
	q := applyPage(statementBuilder.Select(localSchedulerColumns...).From("local_scheduler").
		Where(sq.Eq{"workflow_id": workflowID}).OrderBy("id ASC"), page)
	rows, err := q.RunWith(r.DB).Query()
	if err != nil {
		return nil, 0, apierror.Internal(err.Error())
	}
	defer rows.Close()
	out := make([]*schema.LocalScheduler, 0, page.Limit)
	for rows.Next() {
		s, err := scanLocalScheduler(rows)
		if err != nil {
			return nil, 0, apierror.Internal(err.Error())
		}
		out = append(out, s)
	}
	return out, total, nil
}

func (r *SchedulerRepository) ListSlurm(workflowID int64, page schema.PageRequest) ([]*schema.SlurmScheduler, int64, error) {
	var total int64
	if err := statementBuilder.Select("count(*)").From("slurm_scheduler").
		Where(sq.Eq{"workflow_id": workflowID}).RunWith(r.DB).QueryRow().Scan(&total); err != nil {
		return nil, 0, apierror.Internal(err.Error())
	}
	q := applyPage(statementBuilder.Select(slurmSchedulerColumns...).From("slurm_scheduler").
		Where(sq.Eq{"workflow_id": workflowID}).OrderBy("id ASC"), page)
	rows, err := q.RunWith(r.DB).Query()
	if err != nil {
		return nil, 0, apierror.Internal(err.Error())
	}
	defer rows.Close()
	out := make([]*schema.SlurmScheduler, 0, page.Limit)
	for rows.Next() {
		s, err := scanSlurmScheduler(rows)
		if err != nil {
			return nil, 0, apierror.Internal(err.Error())
		}
		out = append(out, s)
	}
	return out, total, nil
}

func (r *SchedulerRepository) DeleteLocal(workflowID, id int64) error {
	res, err := statementBuilder.Delete("local_scheduler").
		Where(sq.Eq{"id": id, "workflow_id": workflowID}).RunWith(r.DB).Exec()
	if err != nil {
		return apierror.Internal(err.Error())
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apierror.NotFound("local_scheduler", strconv.FormatInt(id, 10))
	}
	return nil
}

func (r *SchedulerRepository) DeleteSlurm(workflowID, id int64) error {
	res, err := statementBuilder.Delete("slurm_scheduler").
		Where(sq.Eq{"id": id, "workflow_id": workflowID}).RunWith(r.DB).Exec()
	if err != nil {
		return apierror.Internal(err.Error())
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apierror.NotFound("slurm_scheduler", strconv.FormatInt(id, 10))
	}
	return nil
}

// ComputeNodeRepository is C1's entity store for worker process instances,
// whose heartbeat_at column the claim engine's liveness check reads
// (§4.4 "compute node timeout").
type ComputeNodeRepository struct {
	DB DBTX
}

func NewComputeNodeRepository(db DBTX) *ComputeNodeRepository {
	return &ComputeNodeRepository{DB: db}
}

var computeNodeColumns = []string{
	"id", "workflow_id", "hostname", "pid", "start_time", "is_active",
	"memory_bytes", "num_cpus", "num_gpus", "scheduled_compute_node_id", "heartbeat_at", "rev",
}

func scanComputeNode(row interface{ Scan(...interface{}) error }) (*schema.ComputeNode, error) {
	n := &schema.ComputeNode{}
	err := row.Scan(&n.ID, &n.WorkflowID, &n.Hostname, &n.PID, &n.StartTime, &n.IsActive,
		&n.MemoryBytes, &n.NumCPUs, &n.NumGPUs, &n.ScheduledComputeNodeID, &n.HeartbeatAt, &n.Rev)
	return n, err
}

func (r *ComputeNodeRepository) Create(n *schema.ComputeNode) (*schema.ComputeNode, error) {
	n.StartTime = nowUnixMilli()
	n.HeartbeatAt = n.StartTime
	n.IsActive = true
	res, err := statementBuilder.Insert("compute_node").
		Columns("workflow_id", "hostname", "pid", "start_time", "is_active", "memory_bytes",
			"num_cpus", "num_gpus", "scheduled_compute_node_id", "heartbeat_at", "rev").
		Values(n.WorkflowID, n.Hostname, n.PID, n.StartTime, n.IsActive, n.MemoryBytes,
			n.NumCPUs, n.NumGPUs, n.ScheduledComputeNodeID, n.HeartbeatAt, 0).
		RunWith(r.DB).Exec()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	n.ID = id
	return n, nil
}

func (r *ComputeNodeRepository) Get(workflowID, id int64) (*schema.ComputeNode, error) {
	row := statementBuilder.Select(computeNodeColumns...).From("compute_node").
		Where(sq.Eq{"id": id, "workflow_id": workflowID}).RunWith(r.DB).QueryRow()
	n, err := scanComputeNode(row)
	if err != nil {
		return nil, mapScanErr(err, "compute_node", strconv.FormatInt(id, 10))
	}
	return n, nil
}

func (r *ComputeNodeRepository) List(workflowID int64, activeOnly bool, page schema.PageRequest) ([]*schema.ComputeNode, int64, error) {
	cq := statementBuilder.Select("count(*)").From("compute_node").Where(sq.Eq{"workflow_id": workflowID})
	q := statementBuilder.Select(computeNodeColumns...).From("compute_node").
		Where(sq.Eq{"workflow_id": workflowID}).OrderBy("id ASC")
	if activeOnly {
		cq = cq.Where(sq.Eq{"is_active": true})
		q = q.Where(sq.Eq{"is_active": true})
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
	out := make([]*schema.ComputeNode, 0, page.Limit)
	for rows.Next() {
		n, err := scanComputeNode(rows)
		if err != nil {
			return nil, 0, apierror.Internal(err.Error())
		}
		out = append(out, n)
	}
	return out, total, nil
}

// Heartbeat bumps heartbeat_at to now, independent of Rev: a heartbeat is a
// liveness ping, not a content change callers should need to read-modify-write
// to send.
func (r *ComputeNodeRepository) Heartbeat(workflowID, id int64) error {
	res, err := statementBuilder.Update("compute_node").
		Set("heartbeat_at", nowUnixMilli()).
		Where(sq.Eq{"id": id, "workflow_id": workflowID}).RunWith(r.DB).Exec()
	if err != nil {
		return apierror.Internal(err.Error())
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apierror.NotFound("compute_node", strconv.FormatInt(id, 10))
	}
	return nil
}

func (r *ComputeNodeRepository) Deactivate(workflowID, id int64) error {
	res, err := statementBuilder.Update("compute_node").
		Set("is_active", false).
		Where(sq.Eq{"id": id, "workflow_id": workflowID}).RunWith(r.DB).Exec()
	if err != nil {
		return apierror.Internal(err.Error())
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apierror.NotFound("compute_node", strconv.FormatInt(id, 10))
	}
	return nil
}

// StaleBefore returns the active compute nodes whose heartbeat predates
// cutoff (§4.4). The claim engine does not call it.
func (r *ComputeNodeRepository) StaleBefore(workflowID, cutoff int64) ([]*schema.ComputeNode, error) {
	rows, err := statementBuilder.Select(computeNodeColumns...).From("compute_node").
		Where(sq.Eq{"workflow_id": workflowID, "is_active": true}).
		Where(sq.Lt{"heartbeat_at": cutoff}).
		RunWith(r.DB).Query()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	defer rows.Close()
	var out []*schema.ComputeNode
	for rows.Next() {
		n, err := scanComputeNode(rows)
		if err != nil {
			return nil, apierror.Internal(err.Error())
		}
		out = append(out, n)
	}
	return out, nil
}

// ScheduledComputeNodeRepository is C1's entity store for external
// scheduler allocation slots (e.g. a Slurm job ID) within which one or more
// ComputeNodes register.
type ScheduledComputeNodeRepository struct {
	DB DBTX
}

func NewScheduledComputeNodeRepository(db DBTX) *ScheduledComputeNodeRepository {
	return &ScheduledComputeNodeRepository{DB: db}
}

var scheduledComputeNodeColumns = []string{
	"id", "workflow_id", "scheduler_type", "scheduler_id", "status",
	"memory_bytes", "num_cpus", "num_gpus", "num_nodes", "rev",
}

func scanScheduledComputeNode(row interface{ Scan(...interface{}) error }) (*schema.ScheduledComputeNode, error) {
	s := &schema.ScheduledComputeNode{}
	err := row.Scan(&s.ID, &s.WorkflowID, &s.SchedulerType, &s.SchedulerID, &s.Status,
		&s.MemoryBytes, &s.NumCPUs, &s.NumGPUs, &s.NumNodes, &s.Rev)
	return s, err
}

func (r *ScheduledComputeNodeRepository) Create(s *schema.ScheduledComputeNode) (*schema.ScheduledComputeNode, error) {
	if s.Status == "" {
		s.Status = "pending"
	}
	if s.NumNodes == 0 {
		s.NumNodes = 1
	}
	res, err := statementBuilder.Insert("scheduled_compute_node").
		Columns("workflow_id", "scheduler_type", "scheduler_id", "status", "memory_bytes", "num_cpus", "num_gpus", "num_nodes", "rev").
		Values(s.WorkflowID, s.SchedulerType, s.SchedulerID, s.Status, s.MemoryBytes, s.NumCPUs, s.NumGPUs, s.NumNodes, 0).
		RunWith(r.DB).Exec()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	s.ID = id
	return s, nil
}

func (r *ScheduledComputeNodeRepository) Get(workflowID, id int64) (*schema.ScheduledComputeNode, error) {
	row := statementBuilder.Select(scheduledComputeNodeColumns...).From("scheduled_compute_node").
		Where(sq.Eq{"id": id, "workflow_id": workflowID}).RunWith(r.DB).QueryRow()
	s, err := scanScheduledComputeNode(row)
	if err != nil {
		return nil, mapScanErr(err, "scheduled_compute_node", strconv.FormatInt(id, 10))
	}
	return s, nil
}

func (r *ScheduledComputeNodeRepository) UpdateStatus(s *schema.ScheduledComputeNode) (*schema.ScheduledComputeNode, error) {
	nextRev := s.Rev + 1
	res, err := statementBuilder.Update("scheduled_compute_node").
		Set("status", s.Status).
		Set("rev", nextRev).
		Where(sq.Eq{"id": s.ID, "rev": s.Rev}).
		RunWith(r.DB).Exec()
	if err != nil {
		return nil, apierror.Internal(err.Error())
	}
	if err := requireOneRowAffected(res, "scheduled_compute_node", s.ID); err != nil {
		return nil, err
	}
	s.Rev = nextRev
	return s, nil
}

func (r *ScheduledComputeNodeRepository) List(workflowID int64, page schema.PageRequest) ([]*schema.ScheduledComputeNode, int64, error) {
	var total int64
	if err := statementBuilder.Select("count(*)").From("scheduled_compute_node").
		Where(sq.Eq{"workflow_id": workflowID}).RunWith(r.DB).QueryRow().Scan(&total); err != nil {
		return nil, 0, apierror.Internal(err.Error())
	}
	q := applyPage(statementBuilder.Select(scheduledComputeNodeColumns...).From("scheduled_compute_node").
		Where(sq.Eq{"workflow_id": workflowID}).OrderBy("id ASC"), page)
	rows, err := q.RunWith(r.DB).Query()
	if err != nil {
		return nil, 0, apierror.Internal(err.Error())
	}
	defer rows.Close()
	out := make([]*schema.ScheduledComputeNode, 0, page.Limit)
	for rows.Next() {
		s, err := scanScheduledComputeNode(rows)
		if err != nil {
			return nil, 0, apierror.Internal(err.Error())
		}
		out = append(out, s)
	}
	return out, total, nil
}
