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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"
	klog "k8s.io/klog/v2"
	"k8s.io/klog/v2/textlogger"

	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/auth"
	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/config"
	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/datastore"
	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/event"
	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/graph"
	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/monitor"
	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/snapshot"
)

const (
	defaultConfigPath  = "/etc/config/config.toml"
	defaultEnvFile     = ".env"
	defaultMetricsPort = "2112"
	shutdownTimeout    = 5 * time.Second
)

var (
	// These variables will be populated during the build process
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Initialize klog flags to allow command-line control (e.g., -v=3)
	klog.InitFlags(nil)

	configPath := flag.String("config", defaultConfigPath, "Path to the TOML configuration file.")
	envFile := flag.String("env-file", defaultEnvFile, "Optional .env file with credentials. Ignored when missing.")
	metricsPort := flag.String("metrics-port", defaultMetricsPort, "Port to expose Prometheus metrics on in polling mode.")
	once := flag.Bool("once", false, "Run a single snapshot cycle and exit, even if a polling interval is configured.")

	flag.Parse()

	logger := textlogger.NewLogger(textlogger.NewConfig()).WithValues(
		"version", version,
		"module", "service-health-monitor",
	)

	klog.SetLogger(logger)
	klog.InfoS("Starting service-health-monitor", "version", version, "commit", commit, "date", date)
	defer klog.Flush()

	if err := config.LoadDotEnv(*envFile); err != nil {
		klog.Fatalf("Failed to load env file: %v", err)
	}

	cfg, err := config.LoadConfig(*configPath, flagWasSet("config"))
	if err != nil {
		klog.Fatalf("Failed to load configuration from %s: %v", *configPath, err)
	}

	creds, err := config.LoadCredentials()
	if err != nil {
		klog.Fatalf("Failed to load credentials: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, closeStores := initRunner(ctx, cfg, creds)
	defer closeStores()

	if *once || cfg.PollingIntervalSeconds == 0 {
		if _, err := runner.Run(ctx); err != nil {
			klog.Fatalf("Service health run failed: %v", err)
		}

		klog.Info("Service health snapshot written, exiting.")

		return
	}

	var wg sync.WaitGroup

	metricsServer := newMetricsServer(*metricsPort)

	wg.Add(1)

	go func() {
		defer wg.Done()
		startMetricsServer(metricsServer)
	}()

	monitorErr := runner.StartMonitoring(ctx, cfg.PollingInterval())
	if monitorErr != nil && !errors.Is(monitorErr, context.Canceled) {
		klog.Errorf("Monitoring stopped with error: %v", monitorErr)
	}

	klog.Info("Shutdown signal received. Waiting for components to shut down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		klog.Warningf("Metrics server shutdown: %v", err)
	}

	wg.Wait()
	klog.Info("Service health monitor shut down completed.")
}

// initRunner wires the token source, Graph client, snapshot builder and
// stores. The returned func releases store connections.
func initRunner(ctx context.Context, cfg *config.Config, creds auth.Credentials) (*monitor.Runner, func()) {
	tokenHTTPClient := &http.Client{
		Transport: graph.NewInstrumentedRoundTripper(nil, graph.EndpointToken),
		Timeout:   cfg.Graph.RequestTimeout(),
	}

	provider, err := auth.NewProvider(creds, cfg.Graph.AuthorityHost, tokenHTTPClient)
	if err != nil {
		klog.Fatalf("Failed to initialize credential provider: %v", err)
	}

	tokens := provider.CachedTokenSource(ctx)

	client := graph.NewClient(
		&oauth2.Transport{
			Source: tokens,
			Base:   graph.NewInstrumentedRoundTripper(nil, ""),
		},
		graph.Options{
			BaseURL:        cfg.Graph.BaseURL,
			RequestTimeout: cfg.Graph.RequestTimeout(),
			RetryMax:       cfg.Graph.RetryMax,
			RetryWaitMin:   cfg.Graph.RetryWaitMin(),
			RetryWaitMax:   cfg.Graph.RetryWaitMax(),
		},
	)

	klog.Infof("Graph client initialized (base URL: %s, tenant: %s)", cfg.Graph.BaseURL, creds.TenantID)

	builder := snapshot.NewBuilder(
		event.NewClassifier(cfg.HistoryWindow()),
		event.NewEnricher(client, cfg.FailurePolicy(), cfg.HistoricalUpdateLimit),
		snapshot.Options{
			HistoryLimit:          cfg.HistoryLimit,
			MaxConcurrentRequests: cfg.MaxConcurrentRequests,
		},
	)

	klog.Infof("Snapshot builder initialized (history window %d days, history limit %d, failure policy %s)",
		cfg.HistoryWindowDays, cfg.HistoryLimit, cfg.FailurePolicy())

	store := datastore.NewMultiStore(datastore.StoreFile, datastore.NewFileStore(cfg.OutputPath))
	closeStores := func() {}

	if cfg.Mongo.Enabled {
		mongoStore, err := initMongoStore(ctx, cfg, creds.TenantID)
		if err != nil {
			klog.Errorf("Failed to initialize MongoDB mirror: %v. Snapshots will only be written to %s.",
				err, cfg.OutputPath)
		} else {
			store.AddMirror(datastore.StoreMongo, mongoStore)

			closeStores = func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()

				if err := mongoStore.Close(closeCtx); err != nil {
					klog.Warningf("Failed to disconnect from MongoDB: %v", err)
				}
			}
		}
	}

	return monitor.NewRunner(tokens, client, builder, store), closeStores
}

func initMongoStore(ctx context.Context, cfg *config.Config, tenantID string) (*datastore.MongoStore, error) {
	uri, database, collection, err := cfg.MongoSettings()
	if err != nil {
		return nil, err
	}

	return datastore.NewMongoStore(ctx, datastore.MongoOptions{
		URI:            uri,
		Database:       database,
		Collection:     collection,
		TenantID:       tenantID,
		PingTimeout:    time.Duration(cfg.Mongo.PingTimeoutSeconds) * time.Second,
		ClientCertPath: cfg.Mongo.ClientCertPath,
	})
}

func flagWasSet(name string) bool {
	set := false

	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})

	return set
}

func newMetricsServer(port string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
}

// startMetricsServer blocks until the server is shut down.
func startMetricsServer(server *http.Server) {
	klog.Infof("Metrics server starting to listen on %s/metrics", server.Addr)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		klog.Fatalf("Metrics server failed: %v", err)
	}

	klog.Info("Metrics server stopped.")
}
