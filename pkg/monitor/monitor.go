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

// Package monitor runs the fetch, normalize and persist cycle.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/oauth2"
	klog "k8s.io/klog/v2"

	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/auth"
	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/datastore"
	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/metrics"
	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/model"
)

// Errors that end a run without a snapshot being written.
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrOverview       = errors.New("health overview unavailable")
	ErrStore          = errors.New("snapshot could not be stored")
)

// Run results recorded in metrics.Runs.
const (
	resultSuccess       = "success"
	resultPartial       = "partial"
	resultAuthError     = "auth_error"
	resultOverviewError = "overview_error"
	resultStoreError    = "store_error"
)

// OverviewFetcher is implemented by *graph.Client.
type OverviewFetcher interface {
	GetOverview(ctx context.Context) ([]model.ServiceHealth, error)
}

// SnapshotBuilder is implemented by *snapshot.Builder.
type SnapshotBuilder interface {
	Build(ctx context.Context, services []model.ServiceHealth, now time.Time) (*model.HealthSnapshot, *multierror.Error)
}

// Summary describes a completed run.
type Summary struct {
	RunID            string
	Services         int
	ActiveIssues     int
	HistoryEntries   int
	EnrichmentErrors int
	Duration         time.Duration
}

// Runner executes one complete run per call to Run.
type Runner struct {
	tokens   oauth2.TokenSource
	overview OverviewFetcher
	builder  SnapshotBuilder
	store    datastore.Store
	clock    func() time.Time
}

// NewRunner wires a Runner. tokens is the source used by the overview
// client's transport; it is asked for a token before any other call.
func NewRunner(
	tokens oauth2.TokenSource,
	overview OverviewFetcher,
	builder SnapshotBuilder,
	store datastore.Store,
) *Runner {
	return &Runner{
		tokens:   tokens,
		overview: overview,
		builder:  builder,
		store:    store,
		clock:    time.Now,
	}
}

// WithClock replaces the clock used to stamp snapshots.
func (r *Runner) WithClock(clock func() time.Time) *Runner {
	r.clock = clock
	return r
}

// Run fetches the overview, builds the snapshot and stores it. The returned
// error wraps ErrAuthentication, ErrOverview or ErrStore. Per-incident
// enrichment failures are not errors; they are counted in the summary.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	runID := uuid.NewString()
	start := time.Now()
	ctx = datastore.WithRunID(ctx, runID)

	result := resultSuccess

	defer func() {
		metrics.Runs.WithLabelValues(result).Inc()
		metrics.RunDuration.Observe(time.Since(start).Seconds())
	}()

	klog.V(1).Infof("Starting run %s", runID)

	if _, err := auth.Verify(r.tokens); err != nil {
		result = resultAuthError
		return nil, fmt.Errorf("run %s: %w: %w", runID, ErrAuthentication, err)
	}

	services, err := r.overview.GetOverview(ctx)
	if err != nil {
		result = resultOverviewError
		return nil, fmt.Errorf("run %s: %w: %w", runID, ErrOverview, err)
	}

	now := r.clock().UTC().Truncate(time.Second)

	snapshot, merr := r.builder.Build(ctx, services, now)

	summary := &Summary{
		RunID:          runID,
		Services:       len(snapshot.Services),
		HistoryEntries: len(snapshot.History),
	}

	for i := range snapshot.Services {
		summary.ActiveIssues += len(snapshot.Services[i].Issues)
	}

	if merr != nil {
		summary.EnrichmentErrors = len(merr.Errors)
		result = resultPartial

		klog.Warningf("Run %s: %d incidents could not be enriched: %v", runID, summary.EnrichmentErrors, merr)
	}

	if err := r.store.SaveSnapshot(ctx, snapshot); err != nil {
		result = resultStoreError
		return nil, fmt.Errorf("run %s: %w: %w", runID, ErrStore, err)
	}

	metrics.SnapshotServices.Set(float64(summary.Services))
	metrics.SnapshotActiveIssues.Set(float64(summary.ActiveIssues))
	metrics.SnapshotHistoryEntries.Set(float64(summary.HistoryEntries))

	summary.Duration = time.Since(start)

	klog.Infof("Run %s finished in %s: %d services, %d active issues, %d history entries, %d enrichment errors",
		runID, summary.Duration.Round(time.Millisecond), summary.Services, summary.ActiveIssues,
		summary.HistoryEntries, summary.EnrichmentErrors)

	return summary, nil
}

// StartMonitoring runs immediately and then once per interval until ctx is
// done. A failed run is logged and the next tick tries again.
func (r *Runner) StartMonitoring(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("polling interval must be positive, got %v", interval)
	}

	klog.Infof("Starting service health polling every %v", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.runAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			klog.Infof("Context cancelled, service health monitoring stopped.")
			return ctx.Err()
		case <-ticker.C:
			r.runAndLog(ctx)
		}
	}
}

func (r *Runner) runAndLog(ctx context.Context) {
	if _, err := r.Run(ctx); err != nil {
		if ctx.Err() != nil {
			klog.V(1).Infof("Run interrupted by shutdown: %v", err)
			return
		}

		klog.Errorf("Service health run failed: %v", err)
	}
}
