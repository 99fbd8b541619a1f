// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api mounts the HTTP/JSON surface for the workflow engine behind
// gorilla/mux, exposing the entity store and dependency graph through a
// versioned REST API.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/NREL/torc-service/internal/engine"
	"github.com/NREL/torc-service/pkg/apierror"
	"github.com/NREL/torc-service/pkg/log"
	"github.com/NREL/torc-service/pkg/schema"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// BuildInfo carries the version/commit `GET /version` reports; main sets it
// from build-time ldflags.
type BuildInfo struct {
	Version string
	Commit  string
}

// RestApi wires the engine into HTTP handlers. Every handler method takes
// only what net/http hands it; all business logic lives in engine.Engine.
type RestApi struct {
	Engine *engine.Engine
	Build  BuildInfo
}

// MountRoutes registers every endpoint family from §6 under
// /torc-service/v1, wrapping the whole subrouter with the x-span-id
// middleware every response must carry.
func (api *RestApi) MountRoutes(r *mux.Router) {
	r = r.PathPrefix("/torc-service/v1").Subrouter()
	r.StrictSlash(true)
	r.Use(spanIDMiddleware)

	r.HandleFunc("/ping", api.ping).Methods(http.MethodGet)
	r.HandleFunc("/version", api.version).Methods(http.MethodGet)

	api.mountWorkflowRoutes(r)
	api.mountJobRoutes(r)
	api.mountEntityRoutes(r)
}

func (api *RestApi) ping(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]string{"message": "pong"})
}

func (api *RestApi) version(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]string{"version": api.Build.Version, "commit": api.Build.Commit})
}

// spanIDMiddleware echoes the inbound x-span-id header, generating one via
// google/uuid when absent, on every response (§6).
func spanIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		spanID := r.Header.Get("x-span-id")
		if spanID == "" {
			spanID = uuid.NewString()
		}
		rw.Header().Set("x-span-id", spanID)
		next.ServeHTTP(rw, r)
	})
}

// errorBody is the {message, detail?, entity?, id?} shape §7
// mandates for every non-2xx response.
type errorBody struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Entity  string `json:"entity,omitempty"`
	ID      string `json:"id,omitempty"`
}

// writeError maps err to the HTTP status §6/§7 assigns its Kind and
// writes the JSON error body. Errors that aren't *apierror.Error are
// surfaced as 500s without leaking their detail to the client.
func writeError(rw http.ResponseWriter, r *http.Request, err error) {
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		log.Warnf("api: %s %s -> %s", r.Method, r.URL.Path, apiErr.Error())
		writeJSON(rw, apiErr.Kind.Status(), errorBody{
			Message: apiErr.Message,
			Detail:  apiErr.Detail,
			Entity:  apiErr.Entity,
			ID:      apiErr.ID,
		})
		return
	}
	log.Errorf("api: %s %s -> unhandled error: %v", r.Method, r.URL.Path, err)
	writeJSON(rw, http.StatusInternalServerError, errorBody{Message: "internal error"})
}

func writeJSON(rw http.ResponseWriter, status int, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(rw).Encode(v)
	}
}

// decodeBody unmarshals the request body into v, ignoring unknown fields
// (they are never an error), and separately detects whether any were
// present so the caller can set the `warning` response header (§6
// "Unknown JSON fields ... are ignored and surfaced in a warning response
// header").
func decodeBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return apierror.BadRequest("reading request body: " + err.Error())
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apierror.BadRequest("parsing request body: " + err.Error())
	}
	if hasUnknownFields(body, v) {
		r.Header.Set("X-Warning-Unknown-Fields", "true")
	}
	return nil
}

// hasUnknownFields decodes body a second time into a fresh zero value of
// v's type with DisallowUnknownFields, purely to detect the presence of a
// field the target struct doesn't declare.
func hasUnknownFields(body []byte, v interface{}) bool {
	probe := reflect.New(reflect.TypeOf(v).Elem()).Interface()
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	err := dec.Decode(probe)
	return err != nil && strings.Contains(err.Error(), "unknown field")
}

// applyWarningHeader copies the marker decodeBody set on the request into
// the `warning` response header, the one non-fatal anomaly §7
// communicates to the client.
func applyWarningHeader(rw http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Warning-Unknown-Fields") == "true" {
		rw.Header().Set("warning", "request body contained unrecognized fields; they were ignored")
	}
}

func pathInt64(r *http.Request, name string) (int64, error) {
	v := mux.Vars(r)[name]
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, apierror.BadRequest("invalid " + name + ": " + v)
	}
	return id, nil
}

func queryInt64(r *http.Request, name string) (int64, bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, apierror.BadRequest("invalid " + name + ": " + v)
	}
	return n, true, nil
}

func requiredWorkflowID(r *http.Request) (int64, error) {
	id, ok, err := queryInt64(r, "workflow_id")
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, apierror.BadRequest("workflow_id is required")
	}
	return id, nil
}

// parsePage reads the {offset, limit} pagination §6 describes for
// every list endpoint.
func parsePage(r *http.Request) schema.PageRequest {
	offset, _, _ := queryInt64(r, "offset")
	limit, ok, _ := queryInt64(r, "limit")
	if !ok {
		limit = 0
	}
	return schema.PageRequest{Offset: offset, Limit: limit}
}

type listResponse struct {
	Items interface{} `json:"items"`
	Total int64       `json:"total"`
	Page  int64       `json:"page"`
}

// newListResponse builds the {items, total, page} body every list endpoint
// returns. Page is 1-indexed and derived from the same offset/limit the
// request was served with, defaulting and capping the limit the same way
// repository.applyPage's Normalize call does.
func newListResponse(r *http.Request, items interface{}, total int64) listResponse {
	p := parsePage(r)
	limit := p.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return listResponse{Items: items, Total: total, Page: p.Offset/limit + 1}
}

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)
