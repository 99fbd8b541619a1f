// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/NREL/torc-service/pkg/apierror"
	"github.com/NREL/torc-service/pkg/schema"
	sq "github.com/Masterminds/squirrel"
)

// statementBuilder is shared by every repository file so all queries use
// "?" placeholders against sqlite3, the way squirrel usage
// does (internal/repository/job.go).
var statementBuilder = sq.StatementBuilder

// nowUnixMilli returns the current time in epoch-milliseconds, the
// timestamp representation §6 mandates for persisted state.
func nowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// mapScanErr turns sql.ErrNoRows into the typed not-found error every
// Get-style method returns, and anything else into apierror.Internal.
func mapScanErr(err error, entity, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apierror.NotFound(entity, id)
	}
	return apierror.Internal(err.Error())
}

// applyPage appends OFFSET/LIMIT to q using the normalized page request.
func applyPage(q sq.SelectBuilder, page schema.PageRequest) sq.SelectBuilder {
	page = page.Normalize(defaultPageLimit, maxPageLimit)
	return q.Offset(uint64(page.Offset)).Limit(uint64(page.Limit))
}

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)
