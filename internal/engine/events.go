// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package engine

import (
	"github.com/NREL/torc-service/internal/repository"
	"github.com/NREL/torc-service/pkg/schema"
	"github.com/jmoiron/sqlx"
)

// appendEvent records one audit row inside tx, the shared helper every
// status-changing operation in this package calls so the event is durable
// in the same transaction as the state change it describes (§4.3
// "every successful transition emits one Event row").
func appendEvent(tx *sqlx.Tx, workflowID int64, jobID, computeNodeID *int64, name, message string) (*schema.Event, error) {
	events := repository.NewEventRepository(tx)
	return events.Append(tx, &schema.Event{
		WorkflowID:    workflowID,
		Category:      "status",
		Name:          name,
		Message:       message,
		JobID:         jobID,
		ComputeNodeID: computeNodeID,
	})
}

func int64Ptr(v int64) *int64 { return &v }
