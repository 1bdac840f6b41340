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

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	klog "k8s.io/klog/v2"

	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/event"
)

const (
	DefaultOutputPath              = "data/service-health.json"
	DefaultHistoryWindowDays       = 30
	DefaultHistoryLimit            = 50
	DefaultHistoricalUpdateLimit   = 5
	DefaultMaxConcurrentRequests   = 4
	DefaultGraphBaseURL            = "https://graph.microsoft.com/v1.0"
	DefaultAuthorityHost           = "https://login.microsoftonline.com"
	DefaultRequestTimeoutSeconds   = 30
	DefaultRetryMax                = 3
	DefaultRetryWaitMinSeconds     = 1
	DefaultRetryWaitMaxSeconds     = 10
	DefaultMongoDatabase           = "nvsentinel"
	DefaultMongoCollection         = "ServiceHealthSnapshots"
	DefaultMongoPingTimeoutSeconds = 30
)

// Config is the TOML configuration of the monitor. Secrets never live here;
// see Credentials.
type Config struct {
	OutputPath              string      `toml:"outputPath"`
	PollingIntervalSeconds  int         `toml:"pollingIntervalSeconds"`
	HistoryWindowDays       int         `toml:"historyWindowDays"`
	HistoryLimit            int         `toml:"historyLimit"`
	HistoricalUpdateLimit   int         `toml:"historicalUpdateLimit"`
	MaxConcurrentRequests   int         `toml:"maxConcurrentRequests"`
	EnrichmentFailurePolicy string      `toml:"enrichmentFailurePolicy"`
	Graph                   GraphConfig `toml:"graph"`
	Mongo                   MongoConfig `toml:"mongo"`
}

// GraphConfig holds the upstream API endpoints and HTTP behavior.
// A negative RetryMax disables retries.
type GraphConfig struct {
	BaseURL               string `toml:"baseURL"`
	AuthorityHost         string `toml:"authorityHost"`
	RequestTimeoutSeconds int    `toml:"requestTimeoutSeconds"`
	RetryMax              int    `toml:"retryMax"`
	RetryWaitMinSeconds   int    `toml:"retryWaitMinSeconds"`
	RetryWaitMaxSeconds   int    `toml:"retryWaitMaxSeconds"`
}

// MongoConfig enables the optional MongoDB mirror of the latest snapshot.
// The connection URI comes from the MONGODB_URI environment variable.
type MongoConfig struct {
	Enabled            bool   `toml:"enabled"`
	Database           string `toml:"database"`
	Collection         string `toml:"collection"`
	PingTimeoutSeconds int    `toml:"pingTimeoutSeconds"`
	// ClientCertPath is a directory holding tls.crt, tls.key and ca.crt.
	// Empty means no client TLS.
	ClientCertPath string `toml:"clientCertPath"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()

	return cfg
}

// LoadConfig reads the TOML file at path on top of the defaults. A missing
// file is tolerated only when required is false.
func LoadConfig(path string, required bool) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) || required {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		klog.Infof("Config file %s not found, using defaults", path)
	} else if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode TOML file %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills unset (zero) fields. Negative values are kept so that
// Validate can reject them.
func (c *Config) applyDefaults() {
	setDefaultString(&c.OutputPath, DefaultOutputPath)
	setDefaultInt(&c.HistoryWindowDays, DefaultHistoryWindowDays)
	setDefaultInt(&c.HistoryLimit, DefaultHistoryLimit)
	setDefaultInt(&c.HistoricalUpdateLimit, DefaultHistoricalUpdateLimit)
	setDefaultInt(&c.MaxConcurrentRequests, DefaultMaxConcurrentRequests)
	setDefaultString(&c.EnrichmentFailurePolicy, string(event.FailurePolicySkip))

	setDefaultString(&c.Graph.BaseURL, DefaultGraphBaseURL)
	setDefaultString(&c.Graph.AuthorityHost, DefaultAuthorityHost)
	setDefaultInt(&c.Graph.RequestTimeoutSeconds, DefaultRequestTimeoutSeconds)
	setDefaultInt(&c.Graph.RetryMax, DefaultRetryMax)
	setDefaultInt(&c.Graph.RetryWaitMinSeconds, DefaultRetryWaitMinSeconds)
	setDefaultInt(&c.Graph.RetryWaitMaxSeconds, DefaultRetryWaitMaxSeconds)

	setDefaultString(&c.Mongo.Database, DefaultMongoDatabase)
	setDefaultString(&c.Mongo.Collection, DefaultMongoCollection)
	setDefaultInt(&c.Mongo.PingTimeoutSeconds, DefaultMongoPingTimeoutSeconds)
}

func (c *Config) applyEnvOverrides() error {
	c.OutputPath = GetEnvString(EnvOutputPath, c.OutputPath)

	interval, err := GetEnvVar(EnvPollingIntervalSeconds, &c.PollingIntervalSeconds, nil)
	if err != nil {
		return err
	}

	c.PollingIntervalSeconds = interval

	return nil
}

// Validate rejects values the pipeline cannot work with.
func (c *Config) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"historyWindowDays", c.HistoryWindowDays},
		{"historyLimit", c.HistoryLimit},
		{"historicalUpdateLimit", c.HistoricalUpdateLimit},
		{"maxConcurrentRequests", c.MaxConcurrentRequests},
		{"graph.requestTimeoutSeconds", c.Graph.RequestTimeoutSeconds},
		{"graph.retryWaitMinSeconds", c.Graph.RetryWaitMinSeconds},
		{"graph.retryWaitMaxSeconds", c.Graph.RetryWaitMaxSeconds},
	}

	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}

	if c.PollingIntervalSeconds < 0 {
		return fmt.Errorf("pollingIntervalSeconds must not be negative, got %d", c.PollingIntervalSeconds)
	}

	if c.Graph.RetryWaitMaxSeconds < c.Graph.RetryWaitMinSeconds {
		return fmt.Errorf("graph.retryWaitMaxSeconds (%d) must not be below graph.retryWaitMinSeconds (%d)",
			c.Graph.RetryWaitMaxSeconds, c.Graph.RetryWaitMinSeconds)
	}

	if c.OutputPath == "" {
		return fmt.Errorf("outputPath must not be empty")
	}

	if _, err := event.ParseFailurePolicy(c.EnrichmentFailurePolicy); err != nil {
		return err
	}

	return nil
}

// FailurePolicy returns the parsed enrichment failure policy.
func (c *Config) FailurePolicy() event.FailurePolicy {
	policy, err := event.ParseFailurePolicy(c.EnrichmentFailurePolicy)
	if err != nil {
		return event.FailurePolicySkip
	}

	return policy
}

func (c *Config) HistoryWindow() time.Duration {
	return time.Duration(c.HistoryWindowDays) * 24 * time.Hour
}

func (c *Config) PollingInterval() time.Duration {
	return time.Duration(c.PollingIntervalSeconds) * time.Second
}

func (g *GraphConfig) RequestTimeout() time.Duration {
	return time.Duration(g.RequestTimeoutSeconds) * time.Second
}

func (g *GraphConfig) RetryWaitMin() time.Duration {
	return time.Duration(g.RetryWaitMinSeconds) * time.Second
}

func (g *GraphConfig) RetryWaitMax() time.Duration {
	return time.Duration(g.RetryWaitMaxSeconds) * time.Second
}

func setDefaultString(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func setDefaultInt(field *int, value int) {
	if *field == 0 {
		*field = value
	}
}
