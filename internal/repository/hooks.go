// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"context"
	"time"

	"github.com/NREL/torc-service/pkg/log"
)

type hookCtxKey struct{}

// Hooks satisfies sqlhooks.Hooks so every statement issued against the
// sqlite3 driver is timed and logged at Debug level, matching the reference implementation's
// internal/repository/hooks.go.
type Hooks struct{}

func (h *Hooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("sql query %s %q", query, args)
	return context.WithValue(ctx, hookCtxKey{}, time.Now()), nil
}

func (h *Hooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(hookCtxKey{}).(time.Time); ok {
		log.Debugf("sql took %s", time.Since(begin))
	}
	return ctx, nil
}
