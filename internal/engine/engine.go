// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package engine implements C2 through C6: the dependency graph, the status
// state machine, the ready-job and claim engine, change-propagation, and the
// workflow-action registry. It sits on top of internal/repository (C1) and
// never talks to *sql.DB directly except through repository methods, and
// every mutating operation here that writes more than one row runs its
// repository calls inside repository.WithTx/WithRetry.
package engine

import (
	"github.com/NREL/torc-service/internal/repository"
	"github.com/jmoiron/sqlx"
)

// Engine bundles the repositories every operation in this package needs.
// It is constructed once at startup (cmd/torc-service/main.go) and passed
// by reference to the REST layer.
type Engine struct {
	DB *sqlx.DB

	Workflows             *repository.WorkflowRepository
	Jobs                  *repository.JobRepository
	Graph                 *repository.GraphRepository
	Files                 *repository.FileRepository
	UserData              *repository.UserDataRepository
	ResourceRequirements  *repository.ResourceRequirementsRepository
	Schedulers            *repository.SchedulerRepository
	ComputeNodes          *repository.ComputeNodeRepository
	ScheduledComputeNodes *repository.ScheduledComputeNodeRepository
	Results               *repository.ResultRepository
	Events                *repository.EventRepository
	Actions               *repository.WorkflowActionRepository
}

func New(db *sqlx.DB) *Engine {
	return &Engine{
		DB:                    db,
		Workflows:             repository.NewWorkflowRepository(db),
		Jobs:                  repository.NewJobRepository(db),
		Graph:                 repository.NewGraphRepository(db),
		Files:                 repository.NewFileRepository(db),
		UserData:              repository.NewUserDataRepository(db),
		ResourceRequirements:  repository.NewResourceRequirementsRepository(db),
		Schedulers:            repository.NewSchedulerRepository(db),
		ComputeNodes:          repository.NewComputeNodeRepository(db),
		ScheduledComputeNodes: repository.NewScheduledComputeNodeRepository(db),
		Results:               repository.NewResultRepository(db),
		Events:                repository.NewEventRepository(db),
		Actions:               repository.NewWorkflowActionRepository(db),
	}
}
