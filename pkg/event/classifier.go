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
	"time"

	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/model"
)

// DefaultHistoryWindow is how far back a resolved incident may have ended and
// still be reported.
const DefaultHistoryWindow = 30 * 24 * time.Hour

// Classification is the bucket an incident falls into for one snapshot.
type Classification string

const (
	ClassificationActive           Classification = "active"
	ClassificationRecentlyResolved Classification = "recently_resolved"
	ClassificationIgnored          Classification = "ignored"
)

// activeStatuses are in-progress states. investigationSuspended is never active.
var activeStatuses = map[model.IssueStatus]struct{}{
	model.StatusInvestigating:       {},
	model.StatusServiceInterruption: {},
	model.StatusServiceDegradation:  {},
	model.StatusExtendedRecovery:    {},
	model.StatusRestoringService:    {},
	model.StatusVerifyingService:    {},
}

var resolvedStatuses = map[model.IssueStatus]struct{}{
	model.StatusServiceRestored:             {},
	model.StatusPostIncidentReviewPublished: {},
	model.StatusResolved:                    {},
}

// IsActiveStatus reports whether status is one of the in-progress states.
func IsActiveStatus(status string) bool {
	_, ok := activeStatuses[model.IssueStatus(status)]
	return ok
}

// IsResolvedStatus reports whether status is one of the terminal states.
func IsResolvedStatus(status string) bool {
	_, ok := resolvedStatuses[model.IssueStatus(status)]
	return ok
}

// Classifier assigns incidents to the active or recently-resolved set.
type Classifier struct {
	historyWindow time.Duration
}

// NewClassifier returns a Classifier with the given trailing window for
// resolved incidents. A non-positive window falls back to DefaultHistoryWindow.
func NewClassifier(historyWindow time.Duration) *Classifier {
	if historyWindow <= 0 {
		historyWindow = DefaultHistoryWindow
	}

	return &Classifier{historyWindow: historyWindow}
}

// Classify is a pure function of its inputs. A resolved incident is recent
// when its effective end time (end, else last modified) is no older than the
// window; the boundary itself is included. Resolved incidents without any end
// or last-modified time are ignored.
func (c *Classifier) Classify(status string, endTime, lastModified *time.Time, now time.Time) Classification {
	if IsActiveStatus(status) {
		return ClassificationActive
	}

	if !IsResolvedStatus(status) {
		return ClassificationIgnored
	}

	effectiveEnd := model.EffectiveEndTime(endTime, lastModified)
	if effectiveEnd.IsZero() {
		return ClassificationIgnored
	}

	if effectiveEnd.Before(now.Add(-c.historyWindow)) {
		return ClassificationIgnored
	}

	return ClassificationRecentlyResolved
}

// ClassifyIncident classifies an overview summary.
func (c *Classifier) ClassifyIncident(incident *model.RawIncident, now time.Time) Classification {
	return c.Classify(incident.Status, incident.EndDateTime, incident.LastModifiedDateTime, now)
}
