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

package event

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/extractor"
	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/metrics"
	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/model"
	klog "k8s.io/klog/v2"
)

// IncidentFetcher looks up the full record of an incident, posts included.
type IncidentFetcher interface {
	GetIncident(ctx context.Context, id string) (*model.RawIncident, error)
}

// FailurePolicy decides what an Enricher returns when the detail lookup fails.
type FailurePolicy string

const (
	// FailurePolicySkip drops the incident from the snapshot.
	FailurePolicySkip FailurePolicy = "skip"
	// FailurePolicyStub keeps the incident with its overview fields only and
	// an empty update list.
	FailurePolicyStub FailurePolicy = "stub"
)

// ParseFailurePolicy validates a configured policy name. Empty means skip.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", FailurePolicySkip:
		return FailurePolicySkip, nil
	case FailurePolicyStub:
		return FailurePolicyStub, nil
	default:
		return "", fmt.Errorf("unknown enrichment failure policy %q (expected %q or %q)",
			s, FailurePolicySkip, FailurePolicyStub)
	}
}

// Enricher turns an overview summary into a NormalizedIncident by fetching
// its detail record. One Enricher serves a whole run, so its failure policy
// applies to every incident of the snapshot.
type Enricher struct {
	fetcher               IncidentFetcher
	policy                FailurePolicy
	historicalUpdateLimit int
}

// NewEnricher creates an Enricher. historicalUpdateLimit <= 0 uses
// DefaultHistoricalUpdateLimit.
func NewEnricher(fetcher IncidentFetcher, policy FailurePolicy, historicalUpdateLimit int) *Enricher {
	if policy == "" {
		policy = FailurePolicySkip
	}

	if historicalUpdateLimit <= 0 {
		historicalUpdateLimit = DefaultHistoricalUpdateLimit
	}

	return &Enricher{
		fetcher:               fetcher,
		policy:                policy,
		historicalUpdateLimit: historicalUpdateLimit,
	}
}

// Policy returns the failure policy applied by this Enricher.
func (e *Enricher) Policy() FailurePolicy {
	return e.policy
}

// Enrich fetches the detail of summary and normalizes it. It never aborts the
// caller: on lookup failure the error is logged and returned for reporting,
// together with nil (skip policy) or a stub record (stub policy). A nil
// incident means the caller must leave it out of the snapshot.
func (e *Enricher) Enrich(
	ctx context.Context,
	summary *model.RawIncident,
	mode Mode,
) (*model.NormalizedIncident, error) {
	start := time.Now()
	defer func() {
		metrics.EnrichmentDuration.WithLabelValues(mode.String()).Observe(time.Since(start).Seconds())
	}()

	klog.V(3).Infof("Enriching %s incident %s (%s)", mode, summary.ID, summary.Status)

	detail, err := e.fetcher.GetIncident(ctx, summary.ID)
	if err == nil && detail == nil {
		err = fmt.Errorf("empty detail record")
	}

	if err != nil {
		metrics.EnrichmentFailures.WithLabelValues(mode.String(), string(e.policy)).Inc()
		klog.Errorf("Failed to fetch detail for %s incident %s (policy %s): %v", mode, summary.ID, e.policy, err)

		wrapped := fmt.Errorf("incident %s: %w", summary.ID, err)

		if e.policy == FailurePolicyStub {
			return stubIncident(summary), wrapped
		}

		return nil, wrapped
	}

	return e.normalize(detail, mode), nil
}

// normalize builds the NormalizedIncident from a detail record.
func (e *Enricher) normalize(detail *model.RawIncident, mode Mode) *model.NormalizedIncident {
	var latestText string
	if n := len(detail.Posts); n > 0 {
		// last element in upstream arrival order
		latestText = updateContent(&detail.Posts[n-1])
	}

	sections := extractor.Extract(latestText)

	userImpact := sections.UserImpact
	if detail.ImpactDescription != nil && strings.TrimSpace(*detail.ImpactDescription) != "" {
		userImpact = *detail.ImpactDescription
	}

	incident := baseIncident(detail)
	incident.UserImpact = userImpact
	incident.ScopeOfImpact = sections.ScopeOfImpact
	incident.RootCause = sections.RootCause
	incident.Updates = NormalizeUpdates(detail.Posts, mode, e.historicalUpdateLimit)

	klog.V(3).Infof(
		"Normalized incident %s: %d updates, scope=%t, rootCause=%t, userImpact=%t",
		incident.ID, len(incident.Updates),
		incident.ScopeOfImpact != "", incident.RootCause != "", incident.UserImpact != "",
	)

	return incident
}

// stubIncident keeps the summary fields that were known before the lookup.
func stubIncident(summary *model.RawIncident) *model.NormalizedIncident {
	incident := baseIncident(summary)
	if summary.ImpactDescription != nil {
		incident.UserImpact = *summary.ImpactDescription
	}

	return incident
}

func baseIncident(raw *model.RawIncident) *model.NormalizedIncident {
	return &model.NormalizedIncident{
		ID:                   raw.ID,
		Title:                raw.Title,
		StartDateTime:        raw.StartDateTime,
		EndDateTime:          raw.EndDateTime,
		LastModifiedDateTime: raw.LastModifiedDateTime,
		Status:               raw.Status,
		Classification:       raw.Classification,
		Feature:              raw.Feature,
		IsResolved:           raw.IsResolved,
		Updates:              []model.NormalizedUpdate{},
	}
}
