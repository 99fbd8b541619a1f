// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

// ProgramConfig is the top-level on-disk configuration, decoded and
// validated by internal/config (§5.2).
type ProgramConfig struct {
	Addr                  string `json:"addr"`
	DBDriver              string `json:"dbDriver"`
	DB                    string `json:"db"`
	DisableAuthentication bool   `json:"disableAuthentication"`
	LogLevel              string `json:"logLevel"`
	LogDate               bool   `json:"logDate"`

	// Workflow defaults (§3). These keys are decoded and validated only: a
	// Workflow created without explicit configuration receives the values
	// in schema.WorkflowDefaults, not these.
	DefaultHeartbeatIntervalSeconds int64 `json:"defaultHeartbeatIntervalSeconds"`
	DefaultComputeNodeWaitTimeout   int64 `json:"defaultComputeNodeWaitTimeoutSeconds"`
	DefaultMaxSchedulerAttempts     int32 `json:"defaultMaxSchedulerAttempts"`

	// Claim engine defaults (§4.4). Decoded and validated only; the claim
	// endpoints take their limit and sort method from the request.
	DefaultClaimLimit int64  `json:"defaultClaimLimit"`
	DefaultSortMethod string `json:"defaultSortMethod"`

	// JWT signing secret for bearer-token auth middleware
	// (§6, out of core scope but wired as ambient infra).
	JWTSecret string `json:"jwtSecret"`

	// Transaction retry bound (§7). repository.WithRetry does not read this
	// value; it uses its fixed maxSerializationRetries (5) before surfacing
	// apierror.KindInternal.
	MaxTransactionRetries int `json:"maxTransactionRetries"`

	Validate bool `json:"validate"`
}
