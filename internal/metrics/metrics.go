// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics exposes claim-engine and ready-set gauges/counters on
// /metrics via prometheus/client_golang.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsClaimedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "torc",
		Name:      "jobs_claimed_total",
		Help:      "Number of jobs claimed by compute nodes, by claim method.",
	}, []string{"method"})

	JobsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "torc",
		Name:      "jobs_completed_total",
		Help:      "Number of jobs that reached a terminal status, by status.",
	}, []string{"status"})

	ReadyJobsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "torc",
		Name:      "ready_jobs",
		Help:      "Jobs in the ready status in the workflow most recently queried through ready_job_requirements.",
	})

	BlockedJobsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "torc",
		Name:      "blocked_jobs",
		Help:      "Jobs in the blocked status in the workflow most recently queried through ready_job_requirements.",
	})
)

// Handler returns the promhttp exporter, mounted at /metrics when
// the -metrics flag is enabled.
func Handler() http.Handler {
	return promhttp.Handler()
}
