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

package datastore

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	klog "k8s.io/klog/v2"

	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/model"
)

const (
	maxRetries        = 3
	retryDelay        = 2 * time.Second
	pingRetryInterval = 5 * time.Second
)

// MongoOptions configures a MongoStore.
type MongoOptions struct {
	URI         string
	Database    string
	Collection  string
	TenantID    string
	PingTimeout time.Duration
	// ClientCertPath is a directory with tls.crt, tls.key and ca.crt.
	ClientCertPath string
}

// MongoStore mirrors the latest snapshot of a tenant into a single document.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	tenantID   string
	retryDelay time.Duration
}

var _ Store = (*MongoStore)(nil)

// snapshotDocument is the stored shape. Snapshot keeps the JSON field names of
// the file contract.
type snapshotDocument struct {
	TenantID  string    `bson:"tenantId"`
	RunID     string    `bson:"runId"`
	UpdatedAt time.Time `bson:"updatedAt"`
	Snapshot  bson.M    `bson:"snapshot"`
}

// NewMongoStore connects, waits for the server to answer a ping and ensures
// the tenant index exists.
func NewMongoStore(ctx context.Context, opts MongoOptions) (*MongoStore, error) {
	if opts.URI == "" {
		return nil, fmt.Errorf("mongo URI is required")
	}

	if opts.TenantID == "" {
		return nil, fmt.Errorf("tenant id is required to key the snapshot document")
	}

	clientOpts := options.Client().ApplyURI(opts.URI)

	if opts.ClientCertPath != "" {
		tlsConfig, err := loadTLSConfig(opts.ClientCertPath)
		if err != nil {
			return nil, err
		}

		clientOpts.SetTLSConfig(tlsConfig)
	}

	klog.Infof("Initializing MongoDB connection, Database: %s, Collection: %s", opts.Database, opts.Collection)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("error connecting to MongoDB: %w", err)
	}

	if err := pingWithRetry(ctx, client, opts.PingTimeout); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	collection := client.Database(opts.Database).Collection(opts.Collection)

	_, indexErr := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{bson.E{Key: "tenantId", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("unique_tenantid"),
	})
	if indexErr != nil {
		klog.Warningf("Failed to create index (it might already exist): %v", indexErr)
	}

	klog.Infof("MongoDB collection client initialized successfully.")

	return &MongoStore{
		client:     client,
		collection: collection,
		tenantID:   opts.TenantID,
		retryDelay: retryDelay,
	}, nil
}

func pingWithRetry(ctx context.Context, client *mongo.Client, total time.Duration) error {
	if total <= 0 {
		total = pingRetryInterval
	}

	deadline := time.Now().Add(total)

	var lastErr error

	for attempt := 1; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingRetryInterval)
		lastErr = client.Ping(pingCtx, readpref.Primary())

		cancel()

		if lastErr == nil {
			return nil
		}

		if time.Now().Add(pingRetryInterval).After(deadline) {
			break
		}

		klog.Warningf("MongoDB ping attempt %d failed: %v; retrying in %v", attempt, lastErr, pingRetryInterval)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pingRetryInterval):
		}
	}

	return fmt.Errorf("MongoDB not reachable within %v: %w", total, lastErr)
}

func loadTLSConfig(certDir string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(filepath.Join(certDir, "tls.crt"), filepath.Join(certDir, "tls.key"))
	if err != nil {
		return nil, fmt.Errorf("error loading client certificate from %s: %w", certDir, err)
	}

	caPEM, err := os.ReadFile(filepath.Join(certDir, "ca.crt"))
	if err != nil {
		return nil, fmt.Errorf("error reading CA certificate from %s: %w", certDir, err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("no valid CA certificate found in %s", certDir)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// newSnapshotDocument converts snapshot through its JSON form so the mirrored
// document has the same field names as the file.
func newSnapshotDocument(tenantID, runID string, snapshot *model.HealthSnapshot) (*snapshotDocument, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("error marshalling snapshot: %w", err)
	}

	var body bson.M
	if err := bson.UnmarshalExtJSON(data, false, &body); err != nil {
		return nil, fmt.Errorf("error converting snapshot to BSON: %w", err)
	}

	return &snapshotDocument{
		TenantID:  tenantID,
		RunID:     runID,
		UpdatedAt: snapshot.LastUpdated.UTC(),
		Snapshot:  body,
	}, nil
}

// SaveSnapshot replaces the tenant's document, inserting it on first use.
func (s *MongoStore) SaveSnapshot(ctx context.Context, snapshot *model.HealthSnapshot) error {
	if snapshot == nil {
		return fmt.Errorf("nil snapshot")
	}

	doc, err := newSnapshotDocument(s.tenantID, RunIDFrom(ctx), snapshot)
	if err != nil {
		return err
	}

	return s.executeReplace(ctx, bson.D{bson.E{Key: "tenantId", Value: s.tenantID}}, doc)
}

// executeReplace performs the upserting ReplaceOne with retries.
func (s *MongoStore) executeReplace(ctx context.Context, filter bson.D, doc *snapshotDocument) error {
	opts := options.Replace().SetUpsert(true)

	var lastErr error

	for i := 1; i <= maxRetries; i++ {
		klog.V(3).Infof("Attempt %d to store snapshot (tenant: %s, run: %s)", i, doc.TenantID, doc.RunID)

		result, err := s.collection.ReplaceOne(ctx, filter, doc, opts)
		if err == nil {
			if result.UpsertedCount > 0 {
				klog.V(2).Infof("Inserted snapshot document for tenant %s", doc.TenantID)
			} else {
				klog.V(2).Infof("Replaced snapshot document for tenant %s", doc.TenantID)
			}

			return nil
		}

		lastErr = err

		if i == maxRetries {
			break
		}

		klog.Warningf("Attempt %d failed to store snapshot (tenant: %s): %v; retrying...", i, doc.TenantID, err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("storing snapshot for tenant %s interrupted: %w", doc.TenantID, ctx.Err())
		case <-time.After(s.retryDelay):
		}
	}

	return fmt.Errorf("storing snapshot for tenant %s failed after %d retries: %w", doc.TenantID, maxRetries, lastErr)
}

// Close disconnects from the server.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
