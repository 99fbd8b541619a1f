// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api

import (
	"net/http"

	"github.com/NREL/torc-service/internal/repository"
	"github.com/NREL/torc-service/pkg/apierror"
	"github.com/NREL/torc-service/pkg/schema"
	"github.com/gorilla/mux"
)

// mountEntityRoutes registers the plain CRUD surface for every remaining
// workflow-scoped entity: files, user data, resource requirement profiles,
// the two scheduler variants, compute nodes, scheduled compute node
// allocations, results and the event log. Each one follows the same
// {POST /x, GET /x, GET|PUT|DELETE /x/{id}} shape the workflow and job
// routes use.
func (api *RestApi) mountEntityRoutes(r *mux.Router) {
	r.HandleFunc("/files", api.createFile).Methods(http.MethodPost)
	r.HandleFunc("/files", api.listFiles).Methods(http.MethodGet)
	r.HandleFunc("/files/{id}", api.getFile).Methods(http.MethodGet)
	r.HandleFunc("/files/{id}", api.deleteFile).Methods(http.MethodDelete)

	r.HandleFunc("/user_data", api.createUserData).Methods(http.MethodPost)
	r.HandleFunc("/user_data", api.listUserData).Methods(http.MethodGet)
	r.HandleFunc("/user_data/{id}", api.getUserData).Methods(http.MethodGet)
	r.HandleFunc("/user_data/{id}", api.setUserData).Methods(http.MethodPut)
	r.HandleFunc("/user_data/{id}", api.deleteUserData).Methods(http.MethodDelete)

	r.HandleFunc("/resource_requirements", api.createResourceRequirements).Methods(http.MethodPost)
	r.HandleFunc("/resource_requirements", api.listResourceRequirements).Methods(http.MethodGet)
	r.HandleFunc("/resource_requirements/{id}", api.getResourceRequirements).Methods(http.MethodGet)
	r.HandleFunc("/resource_requirements/{id}", api.updateResourceRequirements).Methods(http.MethodPut)
	r.HandleFunc("/resource_requirements/{id}", api.deleteResourceRequirements).Methods(http.MethodDelete)

	r.HandleFunc("/local_schedulers", api.createLocalScheduler).Methods(http.MethodPost)
	r.HandleFunc("/local_schedulers", api.listLocalSchedulers).Methods(http.MethodGet)
	r.HandleFunc("/local_schedulers/{id}", api.getLocalScheduler).Methods(http.MethodGet)
	r.HandleFunc("/local_schedulers/{id}", api.deleteLocalScheduler).Methods(http.MethodDelete)

	r.HandleFunc("/slurm_schedulers", api.createSlurmScheduler).Methods(http.MethodPost)
	r.HandleFunc("/slurm_schedulers", api.listSlurmSchedulers).Methods(http.MethodGet)
	r.HandleFunc("/slurm_schedulers/{id}", api.getSlurmScheduler).Methods(http.MethodGet)
	r.HandleFunc("/slurm_schedulers/{id}", api.deleteSlurmScheduler).Methods(http.MethodDelete)

	r.HandleFunc("/compute_nodes", api.createComputeNode).Methods(http.MethodPost)
	r.HandleFunc("/compute_nodes", api.listComputeNodes).Methods(http.MethodGet)
	r.HandleFunc("/compute_nodes/{id}", api.getComputeNode).Methods(http.MethodGet)
	r.HandleFunc("/compute_nodes/{id}/heartbeat", api.heartbeatComputeNode).Methods(http.MethodPost)
	r.HandleFunc("/compute_nodes/{id}/deactivate", api.deactivateComputeNode).Methods(http.MethodPost)

	r.HandleFunc("/scheduled_compute_nodes", api.createScheduledComputeNode).Methods(http.MethodPost)
	r.HandleFunc("/scheduled_compute_nodes", api.listScheduledComputeNodes).Methods(http.MethodGet)
	r.HandleFunc("/scheduled_compute_nodes/{id}", api.getScheduledComputeNode).Methods(http.MethodGet)
	r.HandleFunc("/scheduled_compute_nodes/{id}", api.updateScheduledComputeNode).Methods(http.MethodPut)

	r.HandleFunc("/results", api.listResults).Methods(http.MethodGet)
	r.HandleFunc("/events", api.listEvents).Methods(http.MethodGet)
}

// --- files ---

func (api *RestApi) createFile(rw http.ResponseWriter, r *http.Request) {
	var f schema.File
	if err := decodeBody(r, &f); err != nil {
		writeError(rw, r, err)
		return
	}
	created, err := api.Engine.Files.Create(&f)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	applyWarningHeader(rw, r)
	writeJSON(rw, http.StatusCreated, created)
}

func (api *RestApi) listFiles(rw http.ResponseWriter, r *http.Request) {
	workflowID, err := requiredWorkflowID(r)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	items, total, err := api.Engine.Files.List(workflowID, parsePage(r))
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, newListResponse(r, items, total))
}

func (api *RestApi) getFile(rw http.ResponseWriter, r *http.Request) {
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
	f, err := api.Engine.Files.Get(workflowID, id)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, f)
}

func (api *RestApi) deleteFile(rw http.ResponseWriter, r *http.Request) {
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
	if err := api.Engine.Files.Delete(workflowID, id); err != nil {
		writeError(rw, r, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

// --- user data ---

func (api *RestApi) createUserData(rw http.ResponseWriter, r *http.Request) {
	var u schema.UserData
	if err := decodeBody(r, &u); err != nil {
		writeError(rw, r, err)
		return
	}
	created, err := api.Engine.UserData.Create(&u)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	applyWarningHeader(rw, r)
	writeJSON(rw, http.StatusCreated, created)
}

func (api *RestApi) listUserData(rw http.ResponseWriter, r *http.Request) {
	workflowID, err := requiredWorkflowID(r)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	items, total, err := api.Engine.UserData.List(workflowID, parsePage(r))
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, newListResponse(r, items, total))
}

func (api *RestApi) getUserData(rw http.ResponseWriter, r *http.Request) {
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
	u, err := api.Engine.UserData.Get(workflowID, id)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, u)
}

func (api *RestApi) setUserData(rw http.ResponseWriter, r *http.Request) {
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
	existing, err := api.Engine.UserData.Get(workflowID, id)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	var body struct {
		Value       string `json:"value"`
		IsEphemeral bool   `json:"isEphemeral"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(rw, r, err)
		return
	}
	existing.Value = body.Value
	existing.IsEphemeral = body.IsEphemeral
	updated, err := api.Engine.UserData.Set(existing)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	applyWarningHeader(rw, r)
	writeJSON(rw, http.StatusOK, updated)
}

func (api *RestApi) deleteUserData(rw http.ResponseWriter, r *http.Request) {
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
	if err := api.Engine.UserData.Delete(workflowID, id); err != nil {
		writeError(rw, r, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

// --- resource requirements ---

func (api *RestApi) createResourceRequirements(rw http.ResponseWriter, r *http.Request) {
	var rr schema.ResourceRequirements
	if err := decodeBody(r, &rr); err != nil {
		writeError(rw, r, err)
		return
	}
	created, err := api.Engine.ResourceRequirements.Create(&rr)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	applyWarningHeader(rw, r)
	writeJSON(rw, http.StatusCreated, created)
}

func (api *RestApi) listResourceRequirements(rw http.ResponseWriter, r *http.Request) {
	workflowID, err := requiredWorkflowID(r)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	items, total, err := api.Engine.ResourceRequirements.List(workflowID, parsePage(r))
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, newListResponse(r, items, total))
}

func (api *RestApi) getResourceRequirements(rw http.ResponseWriter, r *http.Request) {
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
	rr, err := api.Engine.ResourceRequirements.Get(workflowID, id)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, rr)
}

func (api *RestApi) updateResourceRequirements(rw http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	var rr schema.ResourceRequirements
	if err := decodeBody(r, &rr); err != nil {
		writeError(rw, r, err)
		return
	}
	rr.ID = id
	updated, err := api.Engine.ResourceRequirements.Update(&rr)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	applyWarningHeader(rw, r)
	writeJSON(rw, http.StatusOK, updated)
}

func (api *RestApi) deleteResourceRequirements(rw http.ResponseWriter, r *http.Request) {
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
	if err := api.Engine.ResourceRequirements.Delete(workflowID, id); err != nil {
		writeError(rw, r, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

// --- local schedulers ---

func (api *RestApi) createLocalScheduler(rw http.ResponseWriter, r *http.Request) {
	var s schema.LocalScheduler
	if err := decodeBody(r, &s); err != nil {
		writeError(rw, r, err)
		return
	}
	created, err := api.Engine.Schedulers.CreateLocal(&s)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	applyWarningHeader(rw, r)
	writeJSON(rw, http.StatusCreated, created)
}

func (api *RestApi) listLocalSchedulers(rw http.ResponseWriter, r *http.Request) {
	workflowID, err := requiredWorkflowID(r)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	items, total, err := api.Engine.Schedulers.ListLocal(workflowID, parsePage(r))
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, newListResponse(r, items, total))
}

func (api *RestApi) getLocalScheduler(rw http.ResponseWriter, r *http.Request) {
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
	s, err := api.Engine.Schedulers.GetLocal(workflowID, id)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, s)
}

func (api *RestApi) deleteLocalScheduler(rw http.ResponseWriter, r *http.Request) {
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
	if err := api.Engine.Schedulers.DeleteLocal(workflowID, id); err != nil {
		writeError(rw, r, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

// --- slurm schedulers ---

func (api *RestApi) createSlurmScheduler(rw http.ResponseWriter, r *http.Request) {
	var s schema.SlurmScheduler
	if err := decodeBody(r, &s); err != nil {
		writeError(rw, r, err)
		return
	}
	created, err := api.Engine.Schedulers.CreateSlurm(&s)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	applyWarningHeader(rw, r)
	writeJSON(rw, http.StatusCreated, created)
}

func (api *RestApi) listSlurmSchedulers(rw http.ResponseWriter, r *http.Request) {
	workflowID, err := requiredWorkflowID(r)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	items, total, err := api.Engine.Schedulers.ListSlurm(workflowID, parsePage(r))
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, newListResponse(r, items, total))
}

func (api *RestApi) getSlurmScheduler(rw http.ResponseWriter, r *http.Request) {
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
	s, err := api.Engine.Schedulers.GetSlurm(workflowID, id)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, s)
}

func (api *RestApi) deleteSlurmScheduler(rw http.ResponseWriter, r *http.Request) {
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
	if err := api.Engine.Schedulers.DeleteSlurm(workflowID, id); err != nil {
		writeError(rw, r, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

// --- compute nodes ---

func (api *RestApi) createComputeNode(rw http.ResponseWriter, r *http.Request) {
	var n schema.ComputeNode
	if err := decodeBody(r, &n); err != nil {
		writeError(rw, r, err)
		return
	}
	created, err := api.Engine.ComputeNodes.Create(&n)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	applyWarningHeader(rw, r)
	writeJSON(rw, http.StatusCreated, created)
}

func (api *RestApi) listComputeNodes(rw http.ResponseWriter, r *http.Request) {
	workflowID, err := requiredWorkflowID(r)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	activeOnly := r.URL.Query().Get("active_only") == "true"
	items, total, err := api.Engine.ComputeNodes.List(workflowID, activeOnly, parsePage(r))
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, newListResponse(r, items, total))
}

func (api *RestApi) getComputeNode(rw http.ResponseWriter, r *http.Request) {
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
	n, err := api.Engine.ComputeNodes.Get(workflowID, id)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, n)
}

func (api *RestApi) heartbeatComputeNode(rw http.ResponseWriter, r *http.Request) {
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
	if err := api.Engine.ComputeNodes.Heartbeat(workflowID, id); err != nil {
		writeError(rw, r, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (api *RestApi) deactivateComputeNode(rw http.ResponseWriter, r *http.Request) {
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
	if err := api.Engine.ComputeNodes.Deactivate(workflowID, id); err != nil {
		writeError(rw, r, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

// --- scheduled compute nodes ---

func (api *RestApi) createScheduledComputeNode(rw http.ResponseWriter, r *http.Request) {
	var s schema.ScheduledComputeNode
	if err := decodeBody(r, &s); err != nil {
		writeError(rw, r, err)
		return
	}
	created, err := api.Engine.ScheduledComputeNodes.Create(&s)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	applyWarningHeader(rw, r)
	writeJSON(rw, http.StatusCreated, created)
}

func (api *RestApi) listScheduledComputeNodes(rw http.ResponseWriter, r *http.Request) {
	workflowID, err := requiredWorkflowID(r)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	items, total, err := api.Engine.ScheduledComputeNodes.List(workflowID, parsePage(r))
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, newListResponse(r, items, total))
}

func (api *RestApi) getScheduledComputeNode(rw http.ResponseWriter, r *http.Request) {
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
	s, err := api.Engine.ScheduledComputeNodes.Get(workflowID, id)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, s)
}

func (api *RestApi) updateScheduledComputeNode(rw http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	var s schema.ScheduledComputeNode
	if err := decodeBody(r, &s); err != nil {
		writeError(rw, r, err)
		return
	}
	s.ID = id
	updated, err := api.Engine.ScheduledComputeNodes.UpdateStatus(&s)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	applyWarningHeader(rw, r)
	writeJSON(rw, http.StatusOK, updated)
}

// --- results & events (read-only; written internally by the engine) ---

func (api *RestApi) listResults(rw http.ResponseWriter, r *http.Request) {
	jobID, ok, err := queryInt64(r, "job_id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	if !ok {
		writeError(rw, r, apierror.BadRequest("job_id is required"))
		return
	}
	allRuns := r.URL.Query().Get("all_runs") == "true"
	items, total, err := api.Engine.Results.ListForJob(jobID, allRuns, parsePage(r))
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, newListResponse(r, items, total))
}

func (api *RestApi) listEvents(rw http.ResponseWriter, r *http.Request) {
	workflowID, err := requiredWorkflowID(r)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	var filter repository.EventFilter
	if jobID, ok, err := queryInt64(r, "job_id"); err != nil {
		writeError(rw, r, err)
		return
	} else if ok {
		filter.JobID = &jobID
	}
	if after, ok, err := queryInt64(r, "after_timestamp"); err != nil {
		writeError(rw, r, err)
		return
	} else if ok {
		filter.AfterTimestamp = &after
	}
	items, total, err := api.Engine.Events.List(workflowID, filter, parsePage(r))
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, newListResponse(r, items, total))
}
