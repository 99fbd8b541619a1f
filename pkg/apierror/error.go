// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package apierror defines the error kinds shared by the repository and
// engine layers and the HTTP status codes they map to at the REST boundary.
package apierror

import "net/http"

// Kind classifies an Error so the REST layer can pick a status code without
// inspecting the message.
type Kind string

const (
	KindBadRequest        Kind = "bad_request"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindInvalidTransition Kind = "invalid_transition"
	KindStale             Kind = "stale"
	KindInternal          Kind = "internal"
)

// Status returns the HTTP status code §6/§7 assigns to k.
func (k Kind) Status() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInvalidTransition:
		return http.StatusUnprocessableEntity
	case KindStale:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Error is the typed error returned by repository and engine operations.
// It carries enough structure for the REST layer to build the
// {message, detail?, entity?, id?} response body described in §7.
type Error struct {
	Kind    Kind
	Message string
	Detail  string
	Entity  string
	ID      string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Message + ": " + e.Detail
	}
	return e.Message
}

func newErr(k Kind, entity, id, msg string) *Error {
	return &Error{Kind: k, Message: msg, Entity: entity, ID: id}
}

func NotFound(entity, id string) *Error {
	return newErr(KindNotFound, entity, id, entity+" not found")
}

func Conflict(entity, detail string) *Error {
	e := newErr(KindConflict, entity, "", entity+" conflict")
	e.Detail = detail
	return e
}

func InvalidTransition(entity, detail string) *Error {
	e := newErr(KindInvalidTransition, entity, "", "invalid transition")
	e.Detail = detail
	return e
}

func Stale(entity, id string) *Error {
	e := newErr(KindStale, entity, id, entity+" revision is stale")
	return e
}

func BadRequest(detail string) *Error {
	e := newErr(KindBadRequest, "", "", "malformed request")
	e.Detail = detail
	return e
}

func Internal(detail string) *Error {
	e := newErr(KindInternal, "", "", "internal error")
	e.Detail = detail
	return e
}

// Is lets errors.Is/As match on Kind via errors.As plus a Kind comparison in
// callers; kept simple since the core never needs wrapped chains deeper than
// one level.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}
