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

// Package snapshot assembles the HealthSnapshot document from the tenant
// health overview.
package snapshot

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
	klog "k8s.io/klog/v2"

	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/event"
	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/metrics"
	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/model"
)

const (
	DefaultHistoryLimit          = 50
	DefaultMaxConcurrentRequests = 4
)

// IncidentEnricher is implemented by *event.Enricher.
type IncidentEnricher interface {
	Enrich(ctx context.Context, summary *model.RawIncident, mode event.Mode) (*model.NormalizedIncident, error)
}

// Options tune a Builder. Zero values use the package defaults.
type Options struct {
	HistoryLimit          int
	MaxConcurrentRequests int
}

// Builder turns overview records into a HealthSnapshot.
type Builder struct {
	classifier     *event.Classifier
	enricher       IncidentEnricher
	historyLimit   int
	maxConcurrency int
}

// NewBuilder creates a Builder.
func NewBuilder(classifier *event.Classifier, enricher IncidentEnricher, opts Options) *Builder {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}

	if opts.MaxConcurrentRequests <= 0 {
		opts.MaxConcurrentRequests = DefaultMaxConcurrentRequests
	}

	return &Builder{
		classifier:     classifier,
		enricher:       enricher,
		historyLimit:   opts.HistoryLimit,
		maxConcurrency: opts.MaxConcurrentRequests,
	}
}

// task is one enrichment request. Results land in the slot at the same index,
// so completion order never affects the output order.
type task struct {
	serviceIdx  int
	serviceName string
	summary     *model.RawIncident
	mode        event.Mode
}

type result struct {
	incident *model.NormalizedIncident
	err      error
}

// Build classifies every incident of every service, enriches the selected
// ones and assembles the snapshot stamped with now.
//
// Enrichment failures never abort the build. They are collected in the
// returned *multierror.Error (nil when there were none), and the snapshot
// holds every incident that could be enriched.
func (b *Builder) Build(
	ctx context.Context,
	services []model.ServiceHealth,
	now time.Time,
) (*model.HealthSnapshot, *multierror.Error) {
	tasks := b.plan(services, now)

	klog.V(1).Infof("Enriching %d incidents across %d services (concurrency %d)",
		len(tasks), len(services), b.maxConcurrency)

	results := b.enrichAll(ctx, tasks)

	snapshot := &model.HealthSnapshot{
		LastUpdated: now,
		Services:    make([]model.ServiceEntry, 0, len(services)),
		History:     []model.HistoryIncident{},
	}

	for i := range services {
		snapshot.Services = append(snapshot.Services, model.ServiceEntry{
			Service: services[i].Service,
			Status:  services[i].Status,
			ID:      services[i].ID,
			Issues:  []model.NormalizedIncident{},
		})
	}

	var merr *multierror.Error

	for i, t := range tasks {
		res := results[i]
		if res.err != nil {
			merr = multierror.Append(merr, res.err)
		}

		if res.incident == nil {
			continue
		}

		if t.mode == event.ModeActive {
			entry := &snapshot.Services[t.serviceIdx]
			entry.Issues = append(entry.Issues, *res.incident)

			continue
		}

		snapshot.History = append(snapshot.History, model.HistoryIncident{
			NormalizedIncident: *res.incident,
			ServiceName:        t.serviceName,
		})
	}

	snapshot.History = boundHistory(snapshot.History, b.historyLimit)

	return snapshot, merr
}

// plan classifies incidents and returns the enrichment tasks in upstream
// order: per service, as listed in the overview.
func (b *Builder) plan(services []model.ServiceHealth, now time.Time) []task {
	var tasks []task

	for si := range services {
		svc := &services[si]

		var active, resolved int

		for ii := range svc.Issues {
			summary := &svc.Issues[ii]
			classification := b.classifier.ClassifyIncident(summary, now)
			metrics.IncidentsClassified.WithLabelValues(string(classification)).Inc()

			var mode event.Mode

			switch classification {
			case event.ClassificationActive:
				mode = event.ModeActive
				active++
			case event.ClassificationRecentlyResolved:
				mode = event.ModeHistorical
				resolved++
			default:
				klog.V(4).Infof("Ignoring incident %s of %s with status %q", summary.ID, svc.Service, summary.Status)
				continue
			}

			tasks = append(tasks, task{
				serviceIdx:  si,
				serviceName: svc.Service,
				summary:     summary,
				mode:        mode,
			})
		}

		klog.V(2).Infof("Service %s (%s): %d active, %d recently resolved of %d incidents",
			svc.Service, svc.Status, active, resolved, len(svc.Issues))
	}

	return tasks
}

// enrichAll runs every task on a bounded worker group. Tasks never return an
// error to the group, so one failed lookup does not cancel its siblings.
func (b *Builder) enrichAll(ctx context.Context, tasks []task) []result {
	results := make([]result, len(tasks))

	var g errgroup.Group

	g.SetLimit(b.maxConcurrency)

	for i := range tasks {
		i := i

		g.Go(func() error {
			t := tasks[i]

			defer func() {
				if r := recover(); r != nil {
					klog.Errorf("Panic recovered while enriching incident %s: %v", t.summary.ID, r)
					results[i] = result{err: fmt.Errorf("incident %s: panic during enrichment: %v", t.summary.ID, r)}
				}
			}()

			incident, err := b.enricher.Enrich(ctx, t.summary, t.mode)
			results[i] = result{incident: incident, err: err}

			return nil
		})
	}

	_ = g.Wait()

	return results
}

// boundHistory sorts by effective end time, newest first, and keeps limit entries.
func boundHistory(history []model.HistoryIncident, limit int) []model.HistoryIncident {
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].EffectiveEndTime().After(history[j].EffectiveEndTime())
	})

	if len(history) > limit {
		klog.V(2).Infof("Truncating history from %d to %d entries", len(history), limit)
		history = history[:limit]
	}

	return history
}
