// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and validates the on-disk JSON configuration file
// into a process-wide Keys value.
package config

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/NREL/torc-service/pkg/log"
	"github.com/NREL/torc-service/pkg/schema"
)

// Keys holds the process-wide configuration. It is populated with defaults
// at package init and optionally overridden by Init. No component mutates
// it after Init returns (§5 "Shared-resource policy").
var Keys = schema.ProgramConfig{
	Addr:                            ":8080",
	DBDriver:                        "sqlite3",
	DB:                              "./var/torc.db",
	DisableAuthentication:           false,
	LogLevel:                        "info",
	LogDate:                         false,
	DefaultHeartbeatIntervalSeconds: 60,
	DefaultComputeNodeWaitTimeout:   300,
	DefaultMaxSchedulerAttempts:     3,
	DefaultClaimLimit:               100,
	DefaultSortMethod:               "submission_order",
	MaxTransactionRetries:           5,
	Validate:                        true,
}

// Init reads flagConfigFile, validates it against the embedded JSON Schema,
// and decodes it over Keys. Validation always runs; the validate key is
// decoded into Keys.Validate but does not turn it off. A missing file is
// not an error: the defaults above apply.
// Unknown fields are rejected via DisallowUnknownFields — unlike the HTTP
// layer, which only warns on them, a malformed config file is a hard
// startup failure.
func Init(flagConfigFile string) error {
	if flagConfigFile == "" {
		return nil
	}

	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := schema.Validate(schema.ConfigSchema, bytes.NewReader(raw)); err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		return err
	}

	log.Infof("config: loaded %s", flagConfigFile)
	return nil
}
