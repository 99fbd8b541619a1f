// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/NREL/torc-service/pkg/log"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"
)

var (
	dbConnOnce     sync.Once
	dbConnInstance *DBConnection

	// driverRegisterOnce guards sql.Register, which panics if called twice
	// with the same driver name. It is intentionally never reset by
	// resetForTest: each process may open many test databases, but the
	// driver itself only needs registering once.
	driverRegisterOnce sync.Once
)

// DBConnection wraps the single *sqlx.DB every repository shares, following
// singleton-via-sync.Once pattern
// (internal/repository/dbConnection.go).
type DBConnection struct {
	DB     *sqlx.DB
	Driver string
}

// Connect opens the database exactly once per process and runs pending
// migrations. driver is currently always "sqlite3"; the signature keeps the
// (driver, dsn) shape the reference implementation uses so an additional backend can be
// added without touching callers.
func Connect(driver, dsn string) error {
	var err error
	dbConnOnce.Do(func() {
		var dbHandle *sqlx.DB
		switch driver {
		case "sqlite3":
			driverRegisterOnce.Do(func() {
				sql.Register("sqlite3_torc", sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, &Hooks{}))
			})
			dbHandle, err = sqlx.Open("sqlite3_torc", fmt.Sprintf("%s?_foreign_keys=on", dsn))
			if err != nil {
				return
			}
			// sqlite does not multiplex writers; one connection avoids
			// waiting on file locks, same reasoning as the reference implementation.
			dbHandle.SetMaxOpenConns(1)
		default:
			err = fmt.Errorf("unsupported database driver: %s", driver)
			return
		}

		dbHandle.SetConnMaxLifetime(time.Hour)
		dbConnInstance = &DBConnection{DB: dbHandle, Driver: driver}
	})
	if err != nil {
		return err
	}
	if dbConnInstance == nil {
		return fmt.Errorf("repository: connection not initialized (an earlier Connect call failed)")
	}
	if err := MigrateUp(driver, dbConnInstance.DB.DB); err != nil {
		log.Errorf("repository: migration failed: %v", err)
		return err
	}
	return nil
}

// GetConnection returns the process-wide connection. It fatals if Connect
// has not been called, matching GetConnection().
func GetConnection() *DBConnection {
	if dbConnInstance == nil {
		log.Fatalf("repository: database connection not initialized")
	}
	return dbConnInstance
}

// resetForTest drops the singleton so package tests can open a fresh
// in-memory database per test case.
func resetForTest() {
	dbConnOnce = sync.Once{}
	dbConnInstance = nil
}
