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

// Package model holds the upstream service-health payload shapes and the
// normalized snapshot document written for downstream consumers.
package model

import "time"

// IssueStatus is the upstream status of a service health issue.
type IssueStatus string

// Upstream status values. Only the ones the classifier cares about are listed.
const (
	StatusInvestigating               IssueStatus = "investigating"
	StatusServiceInterruption         IssueStatus = "serviceInterruption"
	StatusServiceDegradation          IssueStatus = "serviceDegradation"
	StatusExtendedRecovery            IssueStatus = "extendedRecovery"
	StatusRestoringService            IssueStatus = "restoringService"
	StatusVerifyingService            IssueStatus = "verifyingService"
	StatusInvestigationSuspended      IssueStatus = "investigationSuspended"
	StatusServiceRestored             IssueStatus = "serviceRestored"
	StatusPostIncidentReviewPublished IssueStatus = "postIncidentReviewPublished"
	StatusResolved                    IssueStatus = "resolved"
	StatusServiceOperational          IssueStatus = "serviceOperational"
	StatusFalsePositive               IssueStatus = "falsePositive"
)

// ItemBody is the rich-text body of an upstream post.
type ItemBody struct {
	Content     string `json:"content"`
	ContentType string `json:"contentType,omitempty"`
}

// RawUpdate is a single post in an issue's update history as returned upstream.
// The body is normally under Description; some payloads carry it in Content.
type RawUpdate struct {
	CreatedDateTime *time.Time `json:"createdDateTime"`
	PostType        string     `json:"postType,omitempty"`
	Description     *ItemBody  `json:"description,omitempty"`
	Content         *string    `json:"content,omitempty"`
}

// RawIncident is an upstream service health issue. Overview payloads carry a
// summary of it (usually without posts); the detail lookup returns all fields.
type RawIncident struct {
	ID                   string      `json:"id"`
	Title                string      `json:"title"`
	StartDateTime        *time.Time  `json:"startDateTime"`
	EndDateTime          *time.Time  `json:"endDateTime"`
	LastModifiedDateTime *time.Time  `json:"lastModifiedDateTime"`
	Status               string      `json:"status"`
	Classification       string      `json:"classification"`
	ImpactDescription    *string     `json:"impactDescription"`
	Feature              string      `json:"feature"`
	FeatureGroup         string      `json:"featureGroup,omitempty"`
	IsResolved           bool        `json:"isResolved"`
	Service              string      `json:"service,omitempty"`
	Posts                []RawUpdate `json:"posts,omitempty"`
}

// ServiceHealth is one entry of the tenant-wide health overview.
type ServiceHealth struct {
	ID      string        `json:"id"`
	Service string        `json:"service"`
	Status  string        `json:"status"`
	Issues  []RawIncident `json:"issues"`
}

// NormalizedUpdate is an immutable, plain-text view of one post.
type NormalizedUpdate struct {
	CreatedDateTime time.Time `json:"createdDateTime"`
	PostType        string    `json:"postType,omitempty"`
	Content         string    `json:"content"`
}

// NormalizedIncident is the per-issue record of the snapshot document.
type NormalizedIncident struct {
	ID                   string             `json:"id"`
	Title                string             `json:"title"`
	StartDateTime        *time.Time         `json:"startDateTime"`
	EndDateTime          *time.Time         `json:"endDateTime"`
	LastModifiedDateTime *time.Time         `json:"lastModifiedDateTime"`
	Status               string             `json:"status"`
	Classification       string             `json:"classification"`
	UserImpact           string             `json:"userImpact"`
	ScopeOfImpact        string             `json:"scopeOfImpact"`
	RootCause            string             `json:"rootCause"`
	Feature              string             `json:"feature"`
	IsResolved           bool               `json:"isResolved"`
	Updates              []NormalizedUpdate `json:"updates"`
}

// EffectiveEndTime returns the end time, falling back to the last-modified
// time. The zero time is returned when neither is known.
func (n *NormalizedIncident) EffectiveEndTime() time.Time {
	return EffectiveEndTime(n.EndDateTime, n.LastModifiedDateTime)
}

// HistoryIncident is a resolved incident tagged with the service it belongs to.
type HistoryIncident struct {
	NormalizedIncident
	ServiceName string `json:"serviceName"`
}

// ServiceEntry lists the currently active issues of one service.
type ServiceEntry struct {
	Service string               `json:"service"`
	Status  string               `json:"status"`
	ID      string               `json:"id"`
	Issues  []NormalizedIncident `json:"issues"`
}

// HealthSnapshot is the complete document produced by one run.
type HealthSnapshot struct {
	LastUpdated time.Time         `json:"lastUpdated"`
	Services    []ServiceEntry    `json:"services"`
	History     []HistoryIncident `json:"history"`
}

// EffectiveEndTime returns end if set, else lastModified, else the zero time.
func EffectiveEndTime(end, lastModified *time.Time) time.Time {
	if end != nil && !end.IsZero() {
		return *end
	}

	if lastModified != nil {
		return *lastModified
	}

	return time.Time{}
}
