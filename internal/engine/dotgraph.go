// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/NREL/torc-service/internal/repository"
	"github.com/NREL/torc-service/pkg/schema"
)

// DotGraph implements the `dot_graph/{name}` verb: it walks C2's edge
// tables and renders a Graphviz DOT digraph of the workflow's job
// dependencies, labeling each node with its current status. name becomes
// the digraph's identifier so multiple renders stay distinguishable when
// saved to disk by the caller;  treats graphs as derived, never
// stored (§6).
func (e *Engine) DotGraph(workflowID int64, name string) (string, error) {
	jobs := repository.NewJobRepository(e.DB)
	graph := repository.NewGraphRepository(e.DB)

	all, _, err := jobs.List(workflowID, repository.JobFilter{}, schema.PageRequest{Limit: maxPageSize})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "digraph %s {\n", dotQuote(name))
	b.WriteString("  rankdir=LR;\n")

	for _, job := range all {
		fmt.Fprintf(&b, "  %s [label=%s, style=filled, fillcolor=%s];\n",
			dotID(job.ID), dotQuote(fmt.Sprintf("%s\\n%s", job.Name, job.Status)), dotColor(job.Status))
	}

	var edges [][2]int64
	for _, job := range all {
		upstream, err := graph.UpstreamJobIDs(e.DB, job.ID)
		if err != nil {
			return "", err
		}
		for _, u := range upstream {
			edges = append(edges, [2]int64{u, job.ID})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i][0] != edges[j][0] {
			return edges[i][0] < edges[j][0]
		}
		return edges[i][1] < edges[j][1]
	})
	for _, edge := range edges {
		fmt.Fprintf(&b, "  %s -> %s;\n", dotID(edge[0]), dotID(edge[1]))
	}

	b.WriteString("}\n")
	return b.String(), nil
}

func dotID(jobID int64) string {
	return fmt.Sprintf("job_%d", jobID)
}

func dotQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func dotColor(status schema.JobStatus) string {
	switch status {
	case schema.JobDone:
		return "lightgreen"
	case schema.JobFailed, schema.JobTimedOut, schema.JobOutOfMemory, schema.JobTerminated:
		return "lightcoral"
	case schema.JobCanceled, schema.JobDisabled:
		return "lightgray"
	case schema.JobRunning, schema.JobSubmitted, schema.JobSubmittedPending:
		return "lightyellow"
	case schema.JobReady:
		return "lightblue"
	default:
		return "white"
	}
}
