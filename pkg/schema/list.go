// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

// PageRequest is the {offset, limit} pagination accepted by every list_*
// operation (§4.1, §6).
type PageRequest struct {
	Offset int64
	Limit  int64
}

// Normalize fills in sane defaults: offset 0, a bounded default page size
// when the caller passes Limit <= 0.
func (p PageRequest) Normalize(defaultLimit, maxLimit int64) PageRequest {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// Page wraps a list_* result with the total row count and page metadata,
// applied uniformly across every entity's list endpoint.
type Page[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int64 `json:"page"`
}

// ClaimSortMethod is the `sort_by` accepted by claim_jobs_based_on_resources
// (§4.4).
type ClaimSortMethod string

const (
	SortNone            ClaimSortMethod = "none"
	SortGPUsFirst       ClaimSortMethod = "gpus_first"
	SortMemory          ClaimSortMethod = "memory"
	SortSubmissionOrder ClaimSortMethod = "submission_order"
)

// Valid reports whether m is a recognized sort method.
func (m ClaimSortMethod) Valid() bool {
	switch m {
	case SortNone, SortGPUsFirst, SortMemory, SortSubmissionOrder, "":
		return true
	}
	return false
}
