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

package graph

import (
	"context"
	"net/http"
	"strconv"
	"time"

	klog "k8s.io/klog/v2"

	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/metrics"
)

// Endpoint labels used for metrics and logs.
const (
	EndpointOverview = "overview"
	EndpointIssue    = "issue"
	EndpointToken    = "token"
	endpointUnknown  = "unknown"
)

type endpointKey struct{}

// WithEndpoint tags ctx so requests made with it are recorded under endpoint.
func WithEndpoint(ctx context.Context, endpoint string) context.Context {
	return context.WithValue(ctx, endpointKey{}, endpoint)
}

func endpointFrom(ctx context.Context) string {
	if endpoint, ok := ctx.Value(endpointKey{}).(string); ok && endpoint != "" {
		return endpoint
	}

	return endpointUnknown
}

// InstrumentedRoundTripper records latency and status code of every HTTP
// attempt, retries included, before handing the response back.
type InstrumentedRoundTripper struct {
	delegate http.RoundTripper
	endpoint string
}

// NewInstrumentedRoundTripper wraps delegate. Requests whose context carries
// no endpoint tag are recorded under defaultEndpoint; pass "" to use the
// request context only.
func NewInstrumentedRoundTripper(delegate http.RoundTripper, defaultEndpoint string) *InstrumentedRoundTripper {
	if delegate == nil {
		delegate = http.DefaultTransport
	}

	return &InstrumentedRoundTripper{
		delegate: delegate,
		endpoint: defaultEndpoint,
	}
}

// RoundTrip implements http.RoundTripper.
func (rt *InstrumentedRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	endpoint := endpointFrom(req.Context())
	if endpoint == endpointUnknown && rt.endpoint != "" {
		endpoint = rt.endpoint
	}

	start := time.Now()
	resp, err := rt.delegate.RoundTrip(req)
	elapsed := time.Since(start)

	metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())

	code := "error"
	if resp != nil {
		code = strconv.Itoa(resp.StatusCode)
	}

	metrics.APIRequests.WithLabelValues(endpoint, code).Inc()

	klog.V(4).Infof("%s %s -> %s (%s)", req.Method, req.URL.Redacted(), code, elapsed)

	return resp, err
}
