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
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	klog "k8s.io/klog/v2"

	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/auth"
)

// Environment variables read by the monitor.
const (
	EnvTenantID               = "TENANT_ID"
	EnvClientID               = "CLIENT_ID"
	EnvClientSecret           = "CLIENT_SECRET"
	EnvOutputPath             = "OUTPUT_PATH"
	EnvPollingIntervalSeconds = "POLLING_INTERVAL_SECONDS"
	EnvMongoURI               = "MONGODB_URI"
	EnvMongoDatabase          = "MONGODB_DATABASE_NAME"
	EnvMongoCollection        = "MONGODB_SNAPSHOT_COLLECTION_NAME"
)

// ErrMissingCredentials is returned when a required credential variable is unset.
var ErrMissingCredentials = errors.New("missing required credentials")

// LoadDotEnv loads variables from a .env file without overriding variables
// already present in the environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		klog.V(2).Infof("No env file at %s, skipping", path)
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}

	klog.Infof("Loaded environment from %s", path)

	return nil
}

// LoadCredentials reads the application credentials from the environment.
// Every missing variable is reported in a single ErrMissingCredentials error.
func LoadCredentials() (auth.Credentials, error) {
	specs := []EnvVarSpec{
		{Name: EnvTenantID},
		{Name: EnvClientID},
		{Name: EnvClientSecret},
	}

	values, errs := ReadEnvVars(specs)
	if len(errs) > 0 {
		return auth.Credentials{}, fmt.Errorf("%w: %w", ErrMissingCredentials, errors.Join(errs...))
	}

	return auth.Credentials{
		TenantID:     values[EnvTenantID],
		ClientID:     values[EnvClientID],
		ClientSecret: values[EnvClientSecret],
	}, nil
}

// MongoSettings resolves the mirror connection settings, letting environment
// variables override the database and collection names.
func (c *Config) MongoSettings() (uri, database, collection string, err error) {
	values, errs := ReadEnvVars([]EnvVarSpec{
		{Name: EnvMongoURI},
		{Name: EnvMongoDatabase, Optional: true, DefaultValue: c.Mongo.Database},
		{Name: EnvMongoCollection, Optional: true, DefaultValue: c.Mongo.Collection},
	})
	if len(errs) > 0 {
		return "", "", "", errors.Join(errs...)
	}

	return values[EnvMongoURI], values[EnvMongoDatabase], values[EnvMongoCollection], nil
}

// EnvVarSpec describes one environment variable. Variables are required
// unless Optional is set.
type EnvVarSpec struct {
	Name     string
	Optional bool
	// DefaultValue applies to optional variables that are unset or empty.
	DefaultValue string
}

// ReadEnvVars reads every spec and returns the values found together with an
// error per missing required variable. Empty values count as missing.
func ReadEnvVars(specs []EnvVarSpec) (map[string]string, []error) {
	results := make(map[string]string, len(specs))

	var errs []error

	for _, spec := range specs {
		value := strings.TrimSpace(os.Getenv(spec.Name))
		if value != "" {
			results[spec.Name] = value
			continue
		}

		if !spec.Optional {
			errs = append(errs, fmt.Errorf("required environment variable %s is not set", spec.Name))
			continue
		}

		if spec.DefaultValue != "" {
			results[spec.Name] = spec.DefaultValue
		}
	}

	return results, errs
}

// GetEnvVar reads name and converts it to T (int, bool or string). When the
// variable is unset the default is returned; a nil default makes it required.
// The optional validator runs on the final value.
func GetEnvVar[T int | bool | string](name string, defaultValue *T, validator func(T) error) (T, error) {
	var zero T

	raw, exists := os.LookupEnv(name)
	if !exists || strings.TrimSpace(raw) == "" {
		if defaultValue == nil {
			return zero, fmt.Errorf("environment variable %s is not set", name)
		}

		return validated(name, *defaultValue, validator)
	}

	value, err := parseValue[T](strings.TrimSpace(raw))
	if err != nil {
		return zero, fmt.Errorf("error converting %s: %w", name, err)
	}

	return validated(name, value, validator)
}

// GetEnvString returns the value of key, or defaultVal when unset or empty.
func GetEnvString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}

	return defaultVal
}

func validated[T any](name string, value T, validator func(T) error) (T, error) {
	var zero T

	if validator != nil {
		if err := validator(value); err != nil {
			return zero, fmt.Errorf("validation failed for %s: %w", name, err)
		}
	}

	return value, nil
}

func parseValue[T int | bool | string](raw string) (T, error) {
	var zero T

	switch any(zero).(type) {
	case int:
		v, err := strconv.Atoi(raw)
		if err != nil {
			return zero, err
		}

		return any(v).(T), nil
	case bool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return zero, fmt.Errorf("invalid boolean value: %s", raw)
		}

		return any(v).(T), nil
	default:
		return any(raw).(T), nil
	}
}
