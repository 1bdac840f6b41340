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
package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/datastore"
	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/event"
	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/metrics"
	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/model"
	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/snapshot"
)

var testNow = time.Date(2025, time.May, 5, 14, 0, 0, 0, time.UTC)

func timePtr(t time.Time) *time.Time {
	return &t
}

type failingTokenSource struct{}

func (failingTokenSource) Token() (*oauth2.Token, error) {
	return nil, errors.New("invalid_client")
}

type fakeGraph struct {
	services    []model.ServiceHealth
	overviewErr error
	incidents   map[string]*model.RawIncident
	overviews   int32
}

func (f *fakeGraph) GetOverview(context.Context) ([]model.ServiceHealth, error) {
	atomic.AddInt32(&f.overviews, 1)

	if f.overviewErr != nil {
		return nil, f.overviewErr
	}

	return f.services, nil
}

func (f *fakeGraph) GetIncident(_ context.Context, id string) (*model.RawIncident, error) {
	incident, ok := f.incidents[id]
	if !ok {
		return nil, fmt.Errorf("incident %s not found", id)
	}

	return incident, nil
}

type recordingStore struct {
	mu     sync.Mutex
	err    error
	saved  []*model.HealthSnapshot
	runIDs []string
}

func (s *recordingStore) SaveSnapshot(ctx context.Context, snap *model.HealthSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	s.saved = append(s.saved, snap)
	s.runIDs = append(s.runIDs, datastore.RunIDFrom(ctx))

	return nil
}

func (s *recordingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.saved)
}

func newGraph() *fakeGraph {
	active := model.RawIncident{
		ID:                   "EX100",
		Title:                "Mail delays",
		Status:               "serviceDegradation",
		StartDateTime:        timePtr(testNow.Add(-2 * time.Hour)),
		LastModifiedDateTime: timePtr(testNow.Add(-time.Hour)),
	}
	recent := model.RawIncident{
		ID:            "SP200",
		Title:         "Sync failures",
		Status:        "serviceRestored",
		EndDateTime:   timePtr(testNow.Add(-48 * time.Hour)),
		StartDateTime: timePtr(testNow.Add(-72 * time.Hour)),
	}
	old := model.RawIncident{
		ID:          "EX050",
		Status:      "resolved",
		EndDateTime: timePtr(testNow.Add(-40 * 24 * time.Hour)),
	}
	missing := model.RawIncident{ID: "TM300", Status: "investigating"}

	activeDetail := active
	activeDetail.Posts = []model.RawUpdate{{
		CreatedDateTime: timePtr(testNow.Add(-time.Hour)),
		Description:     &model.ItemBody{Content: "User impact: Mail is delayed.\nCurrent status: investigating"},
	}}
	recentDetail := recent

	return &fakeGraph{
		services: []model.ServiceHealth{
			{ID: "Exchange", Service: "Exchange Online", Status: "serviceDegradation",
				Issues: []model.RawIncident{active, old}},
			{ID: "SharePoint", Service: "SharePoint Online", Status: "serviceOperational",
				Issues: []model.RawIncident{recent}},
			{ID: "Teams", Service: "Microsoft Teams", Status: "serviceDegradation",
				Issues: []model.RawIncident{missing}},
		},
		incidents: map[string]*model.RawIncident{
			"EX100": &activeDetail,
			"SP200": &recentDetail,
		},
	}
}

func newRunner(tokens oauth2.TokenSource, g *fakeGraph, store datastore.Store) *Runner {
	builder := snapshot.NewBuilder(
		event.NewClassifier(event.DefaultHistoryWindow),
		event.NewEnricher(g, event.FailurePolicySkip, 0),
		snapshot.Options{},
	)

	return NewRunner(tokens, g, builder, store).WithClock(func() time.Time { return testNow.Add(500 * time.Millisecond) })
}

func staticTokens() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "token"})
}

func TestRun_WritesSnapshot(t *testing.T) {
	g := newGraph()
	store := &recordingStore{}

	before := testutil.ToFloat64(metrics.Runs.WithLabelValues(resultPartial))

	summary, err := newRunner(staticTokens(), g, store).Run(context.Background())

	require.NoError(t, err)
	require.Equal(t, 1, store.count())

	snap := store.saved[0]
	assert.Equal(t, testNow, snap.LastUpdated)
	require.Len(t, snap.Services, 3)
	require.Len(t, snap.Services[0].Issues, 1)
	assert.Equal(t, "Mail is delayed.", snap.Services[0].Issues[0].UserImpact)
	assert.Empty(t, snap.Services[1].Issues)
	// TM300 has no detail record and is skipped
	assert.Empty(t, snap.Services[2].Issues)
	require.Len(t, snap.History, 1)
	assert.Equal(t, "SP200", snap.History[0].ID)
	assert.Equal(t, "SharePoint Online", snap.History[0].ServiceName)

	assert.Equal(t, 3, summary.Services)
	assert.Equal(t, 1, summary.ActiveIssues)
	assert.Equal(t, 1, summary.HistoryEntries)
	assert.Equal(t, 1, summary.EnrichmentErrors)

	_, parseErr := uuid.Parse(summary.RunID)
	assert.NoError(t, parseErr)
	assert.Equal(t, []string{summary.RunID}, store.runIDs)

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.Runs.WithLabelValues(resultPartial)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SnapshotActiveIssues))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SnapshotHistoryEntries))
}

func TestRun_AuthenticationFailureStopsBeforeOverview(t *testing.T) {
	g := newGraph()
	store := &recordingStore{}

	summary, err := newRunner(failingTokenSource{}, g, store).Run(context.Background())

	assert.Nil(t, summary)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.Equal(t, int32(0), atomic.LoadInt32(&g.overviews))
	assert.Equal(t, 0, store.count())
}

func TestRun_OverviewFailureIsFatal(t *testing.T) {
	g := newGraph()
	g.overviewErr = errors.New("403 forbidden")
	store := &recordingStore{}

	_, err := newRunner(staticTokens(), g, store).Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOverview)
	assert.Contains(t, err.Error(), "403 forbidden")
	assert.Equal(t, 0, store.count())
}

func TestRun_StoreFailureIsFatal(t *testing.T) {
	store := &recordingStore{err: errors.New("read-only file system")}

	_, err := newRunner(staticTokens(), newGraph(), store).Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStore)
}

func TestRun_WithFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "service-health.json")
	store := datastore.NewMultiStore(datastore.StoreFile, datastore.NewFileStore(path))

	_, err := newRunner(staticTokens(), newGraph(), store).Run(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"lastUpdated": "2025-05-05T14:00:00Z"`)
	assert.Contains(t, string(data), `"serviceName": "SharePoint Online"`)
}

func TestRun_EachRunHasNewID(t *testing.T) {
	store := &recordingStore{}
	runner := newRunner(staticTokens(), newGraph(), store)

	first, err := runner.Run(context.Background())
	require.NoError(t, err)

	second, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, 2, store.count())
}

func TestStartMonitoring_RunsUntilCancelled(t *testing.T) {
	store := &recordingStore{}
	runner := newRunner(staticTokens(), newGraph(), store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- runner.StartMonitoring(ctx, 10*time.Millisecond)
	}()

	require.Eventually(t, func() bool { return store.count() >= 3 }, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("StartMonitoring did not stop after cancellation")
	}
}

func TestStartMonitoring_KeepsPollingAfterFailure(t *testing.T) {
	g := newGraph()
	g.overviewErr = errors.New("temporarily unavailable")
	runner := newRunner(staticTokens(), g, &recordingStore{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = runner.StartMonitoring(ctx, 10*time.Millisecond)
	}()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&g.overviews) >= 3 }, 5*time.Second, 5*time.Millisecond)
}

func TestStartMonitoring_RejectsNonPositiveInterval(t *testing.T) {
	runner := newRunner(staticTokens(), newGraph(), &recordingStore{})

	assert.Error(t, runner.StartMonitoring(context.Background(), 0))
}
