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

// Package graph is a minimal client for the tenant service announcement API:
// the health overview listing and the single issue lookup.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	klog "k8s.io/klog/v2"

	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/metrics"
	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/model"
)

const (
	DefaultBaseURL        = "https://graph.microsoft.com/v1.0"
	DefaultRequestTimeout = 30 * time.Second
	DefaultRetryMax       = 3
	DefaultRetryWaitMin   = 1 * time.Second
	DefaultRetryWaitMax   = 10 * time.Second

	overviewPath = "/admin/serviceAnnouncement/healthOverviews"
	issuePath    = "/admin/serviceAnnouncement/issues/"

	// maxPages stops a misbehaving server from paging forever.
	maxPages = 100
	// maxErrorBody caps how much of an error response ends up in APIError.
	maxErrorBody = 512
)

// Options configures a Client. Zero values use the package defaults.
type Options struct {
	BaseURL        string
	RequestTimeout time.Duration
	RetryMax       int
	RetryWaitMin   time.Duration
	RetryWaitMax   time.Duration
}

// Client talks to the service announcement API. Authentication is the job of
// the transport handed to NewClient.
type Client struct {
	baseURL        string
	requestTimeout time.Duration
	http           *retryablehttp.Client
}

// NewClient creates a Client sending requests through transport, typically an
// *oauth2.Transport whose base is an InstrumentedRoundTripper.
// A negative RetryMax disables retries.
func NewClient(transport http.RoundTripper, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}

	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}

	switch {
	case opts.RetryMax < 0:
		opts.RetryMax = 0
	case opts.RetryMax == 0:
		opts.RetryMax = DefaultRetryMax
	}

	if opts.RetryWaitMin <= 0 {
		opts.RetryWaitMin = DefaultRetryWaitMin
	}

	if opts.RetryWaitMax < opts.RetryWaitMin {
		opts.RetryWaitMax = DefaultRetryWaitMax
		if opts.RetryWaitMax < opts.RetryWaitMin {
			opts.RetryWaitMax = opts.RetryWaitMin
		}
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	rc.RetryWaitMin = opts.RetryWaitMin
	rc.RetryWaitMax = opts.RetryWaitMax
	rc.HTTPClient.Timeout = opts.RequestTimeout
	rc.Logger = klogLeveledLogger{}
	// hand the last response back so status codes can be mapped
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	if transport != nil {
		rc.HTTPClient.Transport = transport
	}

	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		requestTimeout: opts.RequestTimeout,
		http:           rc,
	}
}

type overviewPage struct {
	Value    []model.ServiceHealth `json:"value"`
	NextLink string                `json:"@odata.nextLink"`
}

// GetOverview returns every service health record of the tenant with its
// issue summaries, following server-side paging.
func (c *Client) GetOverview(ctx context.Context) ([]model.ServiceHealth, error) {
	ctx = WithEndpoint(ctx, EndpointOverview)
	next := c.baseURL + overviewPath + "?$expand=issues"

	var services []model.ServiceHealth

	for page := 1; next != ""; page++ {
		if page > maxPages {
			metrics.APIErrors.WithLabelValues(EndpointOverview, "paging").Inc()
			return nil, fmt.Errorf("overview paging exceeded %d pages", maxPages)
		}

		var body overviewPage
		if err := c.getJSON(ctx, EndpointOverview, next, &body); err != nil {
			return nil, fmt.Errorf("failed to fetch health overview page %d: %w", page, err)
		}

		klog.V(2).Infof("Fetched overview page %d with %d services", page, len(body.Value))

		services = append(services, body.Value...)
		next = body.NextLink
	}

	klog.V(1).Infof("Fetched health overview: %d services", len(services))

	return services, nil
}

// GetIncident returns the full record of one issue, posts included.
// ErrNotFound is returned when the issue does not exist.
func (c *Client) GetIncident(ctx context.Context, id string) (*model.RawIncident, error) {
	if id == "" {
		return nil, fmt.Errorf("empty incident id")
	}

	ctx = WithEndpoint(ctx, EndpointIssue)

	var incident model.RawIncident
	if err := c.getJSON(ctx, EndpointIssue, c.baseURL+issuePath+url.PathEscape(id), &incident); err != nil {
		return nil, err
	}

	return &incident, nil
}

// getJSON performs one GET, bounded by the request timeout, and decodes the
// 2xx body into out.
func (c *Client) getJSON(ctx context.Context, endpoint, target string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint, "request_creation").Inc()
		return fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}

		metrics.APIErrors.WithLabelValues(endpoint, "transport").Inc()

		return fmt.Errorf("error sending %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		metrics.APIErrors.WithLabelValues(endpoint, "not_found").Inc()
		return fmt.Errorf("%s request to %s: %w", endpoint, req.URL.Path, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		metrics.APIErrors.WithLabelValues(endpoint, "http_status").Inc()

		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return &APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.APIErrors.WithLabelValues(endpoint, "decode").Inc()

		if errors.Is(err, io.EOF) {
			return fmt.Errorf("error decoding %s response: empty body", endpoint)
		}

		return fmt.Errorf("error decoding %s response: %w", endpoint, err)
	}

	return nil
}
