// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/NREL/torc-service/internal/repository"
	"github.com/NREL/torc-service/pkg/apierror"
	"github.com/NREL/torc-service/pkg/schema"
	"github.com/gorilla/mux"
)

// mountWorkflowRoutes registers the workflow CRUD surface plus every
// workflow-scoped verb §6 names: initialization, status queries,
// reset, cancel, the claim protocol, change propagation, the dot_graph
// export and the action registry.
func (api *RestApi) mountWorkflowRoutes(r *mux.Router) {
	r.HandleFunc("/workflows", api.createWorkflow).Methods(http.MethodPost)
	r.HandleFunc("/workflows", api.listWorkflows).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id}", api.getWorkflow).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id}", api.updateWorkflow).Methods(http.MethodPut)
	r.HandleFunc("/workflows/{id}", api.deleteWorkflow).Methods(http.MethodDelete)

	r.HandleFunc("/workflows/{id}/initialize_jobs", api.initializeJobs).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}/is_complete", api.isComplete).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id}/is_uninitialized", api.isUninitialized).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id}/status", api.workflowStatus).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id}/reset_status", api.resetWorkflowStatus).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}/reset_job_status", api.resetJobStatus).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}/cancel", api.cancelWorkflow).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}/job_ids", api.jobIDs).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id}/missing_user_data", api.missingUserData).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id}/required_existing_files", api.requiredExistingFiles).Methods(http.MethodGet)

	r.HandleFunc("/workflows/{id}/ready_job_requirements", api.readyJobRequirements).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id}/claim_jobs_based_on_resources/{limit}", api.claimJobsBasedOnResources).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}/claim_next_jobs/{limit}", api.claimNextJobs).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}/process_changed_job_inputs", api.processChangedJobInputs).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}/dot_graph/{name}", api.dotGraph).Methods(http.MethodGet)

	r.HandleFunc("/workflows/{id}/actions", api.createWorkflowAction).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}/actions/pending", api.pendingActions).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id}/actions/{action_id}/claim", api.claimAction).Methods(http.MethodPost)

	r.HandleFunc("/workflows/{id}/job_dependencies", api.jobDependencies).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id}/job_file_relationships", api.jobFileRelationships).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id}/job_user_data_relationships", api.jobUserDataRelationships).Methods(http.MethodGet)
}

func (api *RestApi) createWorkflow(rw http.ResponseWriter, r *http.Request) {
	w := schema.WorkflowDefaults
	if err := decodeBody(r, &w); err != nil {
		writeError(rw, r, err)
		return
	}
	created, err := api.Engine.Workflows.Create(&w)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	applyWarningHeader(rw, r)
	writeJSON(rw, http.StatusCreated, created)
}

func (api *RestApi) listWorkflows(rw http.ResponseWriter, r *http.Request) {
	var filter repository.WorkflowFilter
	if u := r.URL.Query().Get("user"); u != "" {
		filter.User = &u
	}
	if a := r.URL.Query().Get("archived"); a != "" {
		v := a == "true"
		filter.Archived = &v
	}
	items, total, err := api.Engine.Workflows.List(filter, parsePage(r))
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, newListResponse(r, items, total))
}

func (api *RestApi) getWorkflow(rw http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	w, err := api.Engine.Workflows.Get(id)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, w)
}

func (api *RestApi) updateWorkflow(rw http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	var w schema.Workflow
	if err := decodeBody(r, &w); err != nil {
		writeError(rw, r, err)
		return
	}
	w.ID = id
	updated, err := api.Engine.Workflows.Update(&w)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	applyWarningHeader(rw, r)
	writeJSON(rw, http.StatusOK, updated)
}

func (api *RestApi) deleteWorkflow(rw http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	if err := api.Engine.Workflows.Delete(id); err != nil {
		writeError(rw, r, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (api *RestApi) initializeJobs(rw http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	n, err := api.Engine.InitializeJobs(id)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]int{"initialized": n})
}

func (api *RestApi) isComplete(rw http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	ok, err := api.Engine.IsComplete(id)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]bool{"isComplete": ok})
}

func (api *RestApi) isUninitialized(rw http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	ok, err := api.Engine.IsUninitialized(id)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]bool{"isUninitialized": ok})
}

func (api *RestApi) workflowStatus(rw http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	status, err := api.Engine.WorkflowStatus(id)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]schema.WorkflowStatus{"status": status})
}

func (api *RestApi) resetWorkflowStatus(rw http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	force := r.URL.Query().Get("force") == "true"
	if err := api.Engine.ResetWorkflowStatus(id, force); err != nil {
		writeError(rw, r, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (api *RestApi) resetJobStatus(rw http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	failedOnly := r.URL.Query().Get("failed_only") == "true"
	n, err := api.Engine.ResetJobStatus(id, failedOnly)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]int{"reset": n})
}

func (api *RestApi) cancelWorkflow(rw http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	n, err := api.Engine.Cancel(id)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]int{"canceled": n})
}

func (api *RestApi) jobIDs(rw http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	ids, err := api.Engine.Jobs.JobIDs(id)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string][]int64{"jobIds": ids})
}

func (api *RestApi) missingUserData(rw http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	items, err := api.Engine.Graph.MissingUserData(id)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]interface{}{"items": items})
}

func (api *RestApi) requiredExistingFiles(rw http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	items, err := api.Engine.Graph.RequiredExistingFiles(id)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]interface{}{"items": items})
}

func (api *RestApi) readyJobRequirements(rw http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	schedulerType := r.URL.Query().Get("scheduler_type")
	var schedulerID *int64
	if sid, ok, err := queryInt64(r, "scheduler_id"); err != nil {
		writeError(rw, r, err)
		return
	} else if ok {
		schedulerID = &sid
	}
	items, err := api.Engine.ReadyJobRequirements(id, schedulerType, schedulerID)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]interface{}{"items": items})
}

func (api *RestApi) claimJobsBasedOnResources(rw http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	limit, err := strconv.Atoi(mux.Vars(r)["limit"])
	if err != nil {
		writeError(rw, r, apierror.BadRequest("invalid limit"))
		return
	}
	var budget schema.ResourceBudget
	if err := decodeBody(r, &budget); err != nil {
		writeError(rw, r, err)
		return
	}
	sortMethod := schema.ClaimSortMethod(r.URL.Query().Get("sort_by"))
	if !sortMethod.Valid() {
		writeError(rw, r, apierror.BadRequest("invalid sort_by: "+string(sortMethod)))
		return
	}
	jobs, err := api.Engine.ClaimJobsBasedOnResources(id, budget, limit, sortMethod)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	applyWarningHeader(rw, r)
	writeJSON(rw, http.StatusOK, map[string]interface{}{"items": jobs})
}

func (api *RestApi) claimNextJobs(rw http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	limit, err := strconv.Atoi(mux.Vars(r)["limit"])
	if err != nil {
		writeError(rw, r, apierror.BadRequest("invalid limit"))
		return
	}
	jobs, err := api.Engine.ClaimNextJobs(id, limit)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]interface{}{"items": jobs})
}

func (api *RestApi) processChangedJobInputs(rw http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	dryRun := r.URL.Query().Get("dry_run") == "true"
	changed, err := api.Engine.ProcessChangedJobInputs(id, dryRun)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]interface{}{"items": changed})
}

func (api *RestApi) dotGraph(rw http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	name := mux.Vars(r)["name"]
	dot, err := api.Engine.DotGraph(id, name)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	rw.Header().Set("Content-Type", "text/vnd.graphviz")
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte(dot))
}

func (api *RestApi) createWorkflowAction(rw http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	var body struct {
		TriggerType string `json:"triggerType"`
		Payload     string `json:"payload,omitempty"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(rw, r, err)
		return
	}
	action, err := api.Engine.CreateWorkflowAction(id, body.TriggerType, body.Payload)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	applyWarningHeader(rw, r)
	writeJSON(rw, http.StatusCreated, action)
}

func (api *RestApi) pendingActions(rw http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	var triggerTypes []string
	if v := r.URL.Query().Get("trigger_types"); v != "" {
		triggerTypes = strings.Split(v, ",")
	}
	actions, err := api.Engine.GetPendingActions(id, triggerTypes)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]interface{}{"items": actions})
}

func (api *RestApi) claimAction(rw http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	actionID, err := pathInt64(r, "action_id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	cnID, ok, err := queryInt64(r, "compute_node_id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	if !ok {
		writeError(rw, r, apierror.BadRequest("compute_node_id is required"))
		return
	}
	action, err := api.Engine.ClaimAction(id, actionID, cnID)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, action)
}

func (api *RestApi) jobDependencies(rw http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	ids, err := api.Engine.Jobs.JobIDs(id)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	type edge struct {
		UpstreamJobID   int64 `json:"upstreamJobId"`
		DownstreamJobID int64 `json:"downstreamJobId"`
	}
	var edges []edge
	for _, jobID := range ids {
		downstream, err := api.Engine.Graph.DownstreamJobIDs(api.Engine.DB, jobID)
		if err != nil {
			writeError(rw, r, err)
			return
		}
		for _, d := range downstream {
			edges = append(edges, edge{UpstreamJobID: jobID, DownstreamJobID: d})
		}
	}
	writeJSON(rw, http.StatusOK, map[string]interface{}{"items": edges})
}

func (api *RestApi) jobFileRelationships(rw http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	files, _, err := api.Engine.Files.List(id, schema.PageRequest{Limit: maxPageSizeAPI})
	if err != nil {
		writeError(rw, r, err)
		return
	}
	type rel struct {
		JobID    int64  `json:"jobId"`
		FileID   int64  `json:"fileId"`
		Relation string `json:"relation"`
	}
	var rels []rel
	for _, f := range files {
		if f.ProducerJobID != nil {
			rels = append(rels, rel{JobID: *f.ProducerJobID, FileID: f.ID, Relation: "produces"})
		}
		consumers, err := api.Engine.Graph.ConsumingJobIDsForFile(api.Engine.DB, f.ID)
		if err != nil {
			writeError(rw, r, err)
			return
		}
		for _, c := range consumers {
			rels = append(rels, rel{JobID: c, FileID: f.ID, Relation: "needs"})
		}
	}
	writeJSON(rw, http.StatusOK, map[string]interface{}{"items": rels})
}

func (api *RestApi) jobUserDataRelationships(rw http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(rw, r, err)
		return
	}
	items, _, err := api.Engine.UserData.List(id, schema.PageRequest{Limit: maxPageSizeAPI})
	if err != nil {
		writeError(rw, r, err)
		return
	}
	type rel struct {
		JobID      int64  `json:"jobId"`
		UserDataID int64  `json:"userDataId"`
		Relation   string `json:"relation"`
	}
	var rels []rel
	for _, u := range items {
		producers, err := api.Engine.Graph.ProducerJobIDsForUserData(api.Engine.DB, u.ID)
		if err != nil {
			writeError(rw, r, err)
			return
		}
		for _, p := range producers {
			rels = append(rels, rel{JobID: p, UserDataID: u.ID, Relation: "produces"})
		}
		consumers, err := api.Engine.Graph.ConsumingJobIDsForUserData(api.Engine.DB, u.ID)
		if err != nil {
			writeError(rw, r, err)
			return
		}
		for _, c := range consumers {
			rels = append(rels, rel{JobID: c, UserDataID: u.ID, Relation: "consumes"})
		}
	}
	writeJSON(rw, http.StatusOK, map[string]interface{}{"items": rels})
}

const maxPageSizeAPI = 100000
