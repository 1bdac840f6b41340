// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package event

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	incidents map[string]*model.RawIncident
	err       error
}

func (f *fakeFetcher) GetIncident(_ context.Context, id string) (*model.RawIncident, error) {
	if f.err != nil {
		return nil, f.err
	}

	incident, ok := f.incidents[id]
	if !ok {
		return nil, fmt.Errorf("incident %s not found", id)
	}

	return incident, nil
}

func strPtr(s string) *string {
	return &s
}

func newDetail(id string, impact *string, posts ...model.RawUpdate) *model.RawIncident {
	return &model.RawIncident{
		ID:                   id,
		Title:                "Users can't access Exchange Online",
		StartDateTime:        timePtr(testNow.Add(-6 * time.Hour)),
		LastModifiedDateTime: timePtr(testNow.Add(-time.Hour)),
		Status:               string(model.StatusServiceDegradation),
		Classification:       "incident",
		ImpactDescription:    impact,
		Feature:              "E-Mail and calendar access",
		Posts:                posts,
	}
}

func TestEnrich_ExtractsFromLatestPost(t *testing.T) {
	detail := newDetail("EX1", strPtr("Users may see delays."),
		newPost(1, "Scope of impact: Users in Europe\nRoot cause: network failure"),
		newPost(5, "Scope of impact: Everyone\nRoot cause: unknown"),
	)
	e := NewEnricher(&fakeFetcher{incidents: map[string]*model.RawIncident{"EX1": detail}}, FailurePolicySkip, 0)

	incident, err := e.Enrich(context.Background(), &model.RawIncident{ID: "EX1"}, ModeActive)

	require.NoError(t, err)
	require.NotNil(t, incident)
	// the last post in upstream order is the one scanned, even though it is older
	assert.Equal(t, "Everyone", incident.ScopeOfImpact)
	assert.Equal(t, "unknown", incident.RootCause)
	assert.Equal(t, "Users may see delays.", incident.UserImpact)
	assert.Equal(t, "EX1", incident.ID)
	assert.Equal(t, detail.Title, incident.Title)
	assert.Equal(t, detail.Feature, incident.Feature)
	assert.Equal(t, "incident", incident.Classification)
	assert.Len(t, incident.Updates, 2)
}

func TestEnrich_ExplicitImpactWinsOverExtracted(t *testing.T) {
	detail := newDetail("EX2", strPtr("explicit impact"),
		newPost(1, "User impact: extracted impact\nCurrent status: fixing"))
	e := NewEnricher(&fakeFetcher{incidents: map[string]*model.RawIncident{"EX2": detail}}, FailurePolicySkip, 0)

	incident, err := e.Enrich(context.Background(), &model.RawIncident{ID: "EX2"}, ModeActive)

	require.NoError(t, err)
	assert.Equal(t, "explicit impact", incident.UserImpact)
}

func TestEnrich_FallsBackToExtractedImpact(t *testing.T) {
	testCases := []struct {
		name   string
		impact *string
	}{
		{name: "impact absent", impact: nil},
		{name: "impact empty", impact: strPtr("  ")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			detail := newDetail("EX3", tc.impact,
				newPost(1, "User impact: extracted impact\nCurrent status: fixing"))
			e := NewEnricher(&fakeFetcher{incidents: map[string]*model.RawIncident{"EX3": detail}}, FailurePolicySkip, 0)

			incident, err := e.Enrich(context.Background(), &model.RawIncident{ID: "EX3"}, ModeActive)

			require.NoError(t, err)
			assert.Equal(t, "extracted impact", incident.UserImpact)
		})
	}
}

func TestEnrich_NoPostsYieldsEmptyFields(t *testing.T) {
	detail := newDetail("EX4", nil)
	e := NewEnricher(&fakeFetcher{incidents: map[string]*model.RawIncident{"EX4": detail}}, FailurePolicySkip, 0)

	incident, err := e.Enrich(context.Background(), &model.RawIncident{ID: "EX4"}, ModeHistorical)

	require.NoError(t, err)
	assert.Equal(t, "", incident.UserImpact)
	assert.Equal(t, "", incident.ScopeOfImpact)
	assert.Equal(t, "", incident.RootCause)
	assert.NotNil(t, incident.Updates)
	assert.Empty(t, incident.Updates)
}

func TestEnrich_HistoricalTruncatesUpdates(t *testing.T) {
	var posts []model.RawUpdate
	for i := 0; i < 9; i++ {
		posts = append(posts, newPost(9-i, fmt.Sprintf("post-%d", i)))
	}

	detail := newDetail("EX5", nil, posts...)
	e := NewEnricher(&fakeFetcher{incidents: map[string]*model.RawIncident{"EX5": detail}}, FailurePolicySkip, 0)

	historical, err := e.Enrich(context.Background(), &model.RawIncident{ID: "EX5"}, ModeHistorical)
	require.NoError(t, err)
	assert.Len(t, historical.Updates, 5)
	assert.Equal(t, "post-8", historical.Updates[0].Content)

	active, err := e.Enrich(context.Background(), &model.RawIncident{ID: "EX5"}, ModeActive)
	require.NoError(t, err)
	assert.Len(t, active.Updates, 9)
}

func TestEnrich_SkipPolicyReturnsNil(t *testing.T) {
	lookupErr := errors.New("connection reset")
	e := NewEnricher(&fakeFetcher{err: lookupErr}, FailurePolicySkip, 0)

	incident, err := e.Enrich(context.Background(), &model.RawIncident{ID: "EX6"}, ModeActive)

	assert.Nil(t, incident)
	require.Error(t, err)
	assert.ErrorIs(t, err, lookupErr)
	assert.Contains(t, err.Error(), "EX6")
}

func TestEnrich_StubPolicyReturnsSummaryFields(t *testing.T) {
	e := NewEnricher(&fakeFetcher{err: errors.New("503 service unavailable")}, FailurePolicyStub, 0)
	summary := &model.RawIncident{
		ID:                "EX7",
		Title:             "Teams meetings fail to start",
		StartDateTime:     timePtr(testNow.Add(-time.Hour)),
		Status:            string(model.StatusInvestigating),
		Classification:    "advisory",
		ImpactDescription: strPtr("Users can't join meetings."),
	}

	incident, err := e.Enrich(context.Background(), summary, ModeActive)

	require.Error(t, err)
	require.NotNil(t, incident)
	assert.Equal(t, "EX7", incident.ID)
	assert.Equal(t, summary.Title, incident.Title)
	assert.Equal(t, summary.Status, incident.Status)
	assert.Equal(t, "advisory", incident.Classification)
	assert.Equal(t, "Users can't join meetings.", incident.UserImpact)
	assert.Equal(t, "", incident.ScopeOfImpact)
	assert.NotNil(t, incident.Updates)
	assert.Empty(t, incident.Updates)
}

func TestEnrich_NilDetailIsFailure(t *testing.T) {
	e := NewEnricher(&fakeFetcher{incidents: map[string]*model.RawIncident{"EX8": nil}}, FailurePolicySkip, 0)

	incident, err := e.Enrich(context.Background(), &model.RawIncident{ID: "EX8"}, ModeActive)

	assert.Nil(t, incident)
	assert.Error(t, err)
}

func TestParseFailurePolicy(t *testing.T) {
	testCases := []struct {
		input       string
		expected    FailurePolicy
		expectError bool
	}{
		{input: "", expected: FailurePolicySkip},
		{input: "skip", expected: FailurePolicySkip},
		{input: " STUB ", expected: FailurePolicyStub},
		{input: "retry", expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			policy, err := ParseFailurePolicy(tc.input)
			if tc.expectError {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expected, policy)
		})
	}
}
