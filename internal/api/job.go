// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api

import (
	"bytes"
	"io"
	"net/http"

	"github.com/NREL/torc-service/internal/repository"
	"github.com/NREL/torc-service/pkg/apierror"
	"github.com/NREL/torc-service/pkg/schema"
	"github.com/gorilla/mux"
)

// mountJobRoutes registers job CRUD, bulk creation, and the three verbs a
// compute node drives a job through: start, intermediate status reports,
// and completion (§4.1, §4.3, §6).
func (api *RestApi) mountJobRoutes(r *mux.Router) {
	r.HandleFunc("/bulk_jobs", api.bulkJobs).Methods(http.MethodPost)
	r.HandleFunc("/jobs", api.createJob).Methods(http.MethodPost)
	r.HandleFunc("/jobs", api.listJobs).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}", api.getJob).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}", api.updateJob).Methods(http.MethodPut)
	r.HandleFunc("/jobs/{id}", api.deleteJob).Methods(http.MethodDelete)

	r.HandleFunc("/jobs/{id}/start_job/{run_id}/{node}", api.startJob).Methods(http.MethodPut)
	r.HandleFunc("/jobs/{id}/manage_status_change/{status}/{run_id}", api.manageStatusChange).Methods(http.MethodPut)
	r.HandleFunc("/jobs/{id}/complete_job/{status}/{run_id}", api.completeJob).Methods(http.MethodPost)
}

func (api *RestApi) bulkJobs(rw http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(rw, r, apierror.BadRequest("reading request body: "+err.Error()))
		return
	}
	if len(raw) > 0 {
		if err := schema.Validate(schema.BulkJobsSchema, bytes.NewReader(raw)); err != nil {
			writeError(rw, r, apierror.BadRequest(err.Error()))
			return
		}
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))

	var body schema.BulkJobsRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(rw, r, err)
		return
	}
	jobs, err := api.Engine.CreateJobs(body.WorkflowID, body.Jobs)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	applyWarningHeader(rw, r)
	writeJSON(rw, http.StatusCreated, map[string]interface{}{"items": jobs})
}

func (api *RestApi) createJob(rw http.ResponseWriter, r *http.Request) {
	workflowID, err := requiredWorkflowID(r)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	var req schema.NewJobRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(rw, r, err)
		return
	}
	jobs, err := api.Engine.CreateJobs(workflowID, []*schema.NewJobRequest{&req})
	if err != nil {
		writeError(rw, r, err)
		return
	}
	applyWarningHeader(rw, r)
	writeJSON(rw, http.StatusCreated, jobs[0])
}

func (api *RestApi) listJobs(rw http.ResponseWriter, r *http.Request) {
	workflowID, err := requiredWorkflowID(r)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	var filter repository.JobFilter
	if s := r.URL.Query().Get("status"); s != "" {
		status := schema.JobStatus(s)
		filter.Status = &status
	}
	items, total, err := api.Engine.Jobs.List(workflowID, filter, parsePage(r))
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, newListResponse(r, items, total))
}

func (api *RestApi) getJob(rw http.ResponseWriter, r *http.Request) {
	workflowID, err := requiredWorkflowID(r)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	job, err := api.Engine.Jobs.Get(workflowID, id)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, job)
}

func (api *RestApi) updateJob(rw http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	var job schema.Job
	if err := decodeBody(r, &job); err != nil {
		writeError(rw, r, err)
		return
	}
	job.ID = id
	updated, err := api.Engine.Jobs.Update(&job)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	applyWarningHeader(rw, r)
	writeJSON(rw, http.StatusOK, updated)
}

func (api *RestApi) deleteJob(rw http.ResponseWriter, r *http.Request) {
	workflowID, err := requiredWorkflowID(r)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	if err := api.Engine.Jobs.Delete(workflowID, id); err != nil {
		writeError(rw, r, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (api *RestApi) startJob(rw http.ResponseWriter, r *http.Request) {
	workflowID, err := requiredWorkflowID(r)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	runID, err := pathInt64(r, "run_id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	node := mux.Vars(r)["node"]
	job, err := api.Engine.StartJob(workflowID, id, runID, node)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, job)
}

func (api *RestApi) manageStatusChange(rw http.ResponseWriter, r *http.Request) {
	workflowID, err := requiredWorkflowID(r)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	runID, err := pathInt64(r, "run_id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	status := schema.JobStatus(mux.Vars(r)["status"])
	job, err := api.Engine.ManageStatusChange(workflowID, id, runID, status)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, job)
}

func (api *RestApi) completeJob(rw http.ResponseWriter, r *http.Request) {
	workflowID, err := requiredWorkflowID(r)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	runID, err := pathInt64(r, "run_id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	status := schema.JobStatus(mux.Vars(r)["status"])

	var body struct {
		ComputeNodeID *int64 `json:"computeNodeId,omitempty"`
		ReturnCode    int32  `json:"returnCode"`
		StartTime     int64  `json:"startTime"`
		EndTime       int64  `json:"endTime"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(rw, r, err)
		return
	}
	if body.EndTime == 0 {
		writeError(rw, r, apierror.BadRequest("endTime is required"))
		return
	}

	job, err := api.Engine.CompleteJob(workflowID, id, runID, status, body.ComputeNodeID, body.ReturnCode, body.StartTime, body.EndTime)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	applyWarningHeader(rw, r)
	writeJSON(rw, http.StatusOK, job)
}
