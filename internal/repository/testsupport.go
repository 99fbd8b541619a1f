// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// OpenTestDB opens a fresh in-memory, migrated sqlite3 database for one test
// case, the way repository_test package opens a scratch sqlite
// file per test (internal/repository_test/setup.go). It is exported, rather
// than living in a _test.go file, so other packages' tests (engine, api) can
// reuse it without duplicating the Connect/resetForTest dance.
func OpenTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	resetForTest()
	require.NoError(t, Connect("sqlite3", ":memory:"))
	db := GetConnection().DB
	t.Cleanup(func() {
		_ = db.Close()
		resetForTest()
	})
	return db
}
