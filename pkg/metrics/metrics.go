// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// --- Run Metrics ---

var (
	Runs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "service_health_monitor_runs_total",
			Help: "Total number of snapshot runs, partitioned by result.",
		},
		[]string{"result"}, // success, partial, auth_error, overview_error, store_error
	)
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "service_health_monitor_run_duration_seconds",
			Help:    "Duration of a complete snapshot run.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// --- Upstream API Metrics ---

var (
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "service_health_monitor_api_requests_total",
			Help: "Total number of HTTP requests sent to the service health API.",
		},
		[]string{"endpoint", "code"}, // overview/issue/token, HTTP status or "error"
	)
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "service_health_monitor_api_request_duration_seconds",
			Help:    "Duration of single HTTP requests to the service health API.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
	APIErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "service_health_monitor_api_errors_total",
			Help: "Total number of failed service health API lookups after retries.",
		},
		[]string{"endpoint", "error_type"}, // overview/issue, not_found/http_status/decode/transport
	)
)

// --- Normalization Metrics ---

var (
	IncidentsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "service_health_monitor_incidents_classified_total",
			Help: "Total number of incidents classified, partitioned by classification.",
		},
		[]string{"classification"}, // active, recently_resolved, ignored
	)
	EnrichmentFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "service_health_monitor_enrichment_failures_total",
			Help: "Total number of incidents whose detail lookup failed.",
		},
		[]string{"mode", "policy"}, // active/historical, skip/stub
	)
	EnrichmentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "service_health_monitor_enrichment_duration_seconds",
			Help:    "Duration of enriching a single incident (lookup + normalization).",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)
)

// --- Snapshot Metrics ---

var (
	SnapshotActiveIssues = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "service_health_monitor_snapshot_active_issues",
			Help: "Number of active issues in the last written snapshot.",
		},
	)
	SnapshotHistoryEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "service_health_monitor_snapshot_history_entries",
			Help: "Number of history entries in the last written snapshot.",
		},
	)
	SnapshotServices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "service_health_monitor_snapshot_services",
			Help: "Number of services in the last written snapshot.",
		},
	)
	StoreWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "service_health_monitor_store_write_errors_total",
			Help: "Total number of errors persisting the snapshot.",
		},
		[]string{"store"}, // file, mongo
	)
)
