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

// Package datastore persists health snapshots.
package datastore

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	klog "k8s.io/klog/v2"

	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/metrics"
	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/model"
)

// Store names used in metrics and logs.
const (
	StoreFile  = "file"
	StoreMongo = "mongo"
)

// Store persists the latest snapshot, replacing whatever was stored before.
type Store interface {
	SaveSnapshot(ctx context.Context, snapshot *model.HealthSnapshot) error
}

type runIDKey struct{}

// WithRunID attaches the id of the current run to ctx.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFrom returns the run id attached by WithRunID, or "".
func RunIDFrom(ctx context.Context) string {
	runID, _ := ctx.Value(runIDKey{}).(string)
	return runID
}

type namedStore struct {
	name  string
	store Store
}

// MultiStore writes to a primary store and any number of mirrors. Only the
// primary decides whether a save failed; mirror failures are logged and
// counted.
type MultiStore struct {
	primary namedStore
	mirrors []namedStore
}

var _ Store = (*MultiStore)(nil)

// NewMultiStore creates a MultiStore around primary.
func NewMultiStore(name string, primary Store) *MultiStore {
	return &MultiStore{primary: namedStore{name: name, store: primary}}
}

// AddMirror registers a best-effort store.
func (m *MultiStore) AddMirror(name string, store Store) {
	m.mirrors = append(m.mirrors, namedStore{name: name, store: store})
}

// SaveSnapshot writes to the primary first, then to every mirror. The returned
// error is non-nil only when the primary failed; it then also carries the
// mirror errors.
func (m *MultiStore) SaveSnapshot(ctx context.Context, snapshot *model.HealthSnapshot) error {
	var primaryErr, mirrorErrs *multierror.Error

	if err := m.primary.store.SaveSnapshot(ctx, snapshot); err != nil {
		metrics.StoreWriteErrors.WithLabelValues(m.primary.name).Inc()
		primaryErr = multierror.Append(primaryErr, fmt.Errorf("%s store: %w", m.primary.name, err))
	}

	for _, mirror := range m.mirrors {
		if err := mirror.store.SaveSnapshot(ctx, snapshot); err != nil {
			metrics.StoreWriteErrors.WithLabelValues(mirror.name).Inc()
			klog.Warningf("Failed to mirror snapshot to %s store: %v", mirror.name, err)
			mirrorErrs = multierror.Append(mirrorErrs, fmt.Errorf("%s store: %w", mirror.name, err))

			continue
		}

		klog.V(2).Infof("Mirrored snapshot to %s store", mirror.name)
	}

	if primaryErr == nil {
		return nil
	}

	return multierror.Append(primaryErr, mirrorErrs.WrappedErrors()...).ErrorOrNil()
}
