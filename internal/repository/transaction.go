// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"errors"

	"github.com/NREL/torc-service/pkg/apierror"
	"github.com/NREL/torc-service/pkg/log"
	"github.com/jmoiron/sqlx"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any error or panic. Every multi-row mutation in this service
// (bulk job create, claim, reset, cascade delete) goes through this helper
// so partial failure always rolls back entirely (§5).
func WithTx(db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.Beginx()
	if err != nil {
		return apierror.Internal("begin transaction: " + err.Error())
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Errorf("repository: rollback after error failed: %v", rbErr)
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return apierror.Internal("commit transaction: " + err.Error())
	}
	return nil
}

// maxSerializationRetries bounds the retry loop WithRetry performs on a
// sqlite "database is locked"/busy error before surfacing apierror.Internal
// (§7: "Transactions retry internally on serialization conflict up
// to a bounded count").
const maxSerializationRetries = 5

// WithRetry repeats WithTx up to maxSerializationRetries times while the
// underlying driver reports a busy/locked condition. This is sqlite3's
// analogue of retrying on a serializable-isolation conflict.
func WithRetry(db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < maxSerializationRetries; attempt++ {
		lastErr = WithTx(db, fn)
		if lastErr == nil || !isBusy(lastErr) {
			return lastErr
		}
	}
	return apierror.Internal("transaction did not commit after retries: " + lastErr.Error())
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
