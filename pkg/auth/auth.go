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

// Package auth obtains application tokens with the OAuth2 client credentials
// grant.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	klog "k8s.io/klog/v2"
)

const (
	DefaultAuthorityHost = "https://login.microsoftonline.com"
	DefaultScope         = "https://graph.microsoft.com/.default"
)

// Credentials identify the application registration within a tenant.
type Credentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// Validate reports which fields are missing, if any.
func (c Credentials) Validate() error {
	var missing []string

	if c.TenantID == "" {
		missing = append(missing, "tenant id")
	}

	if c.ClientID == "" {
		missing = append(missing, "client id")
	}

	if c.ClientSecret == "" {
		missing = append(missing, "client secret")
	}

	if len(missing) > 0 {
		return fmt.Errorf("incomplete credentials: missing %s", strings.Join(missing, ", "))
	}

	return nil
}

// TokenURL returns the v2.0 token endpoint of tenantID under authorityHost.
func TokenURL(authorityHost, tenantID string) string {
	if authorityHost == "" {
		authorityHost = DefaultAuthorityHost
	}

	return strings.TrimRight(authorityHost, "/") + "/" + url.PathEscape(tenantID) + "/oauth2/v2.0/token"
}

// Provider hands out cached tokens for one set of credentials.
type Provider struct {
	config *clientcredentials.Config
	// httpClient is used for token requests; nil means http.DefaultClient.
	httpClient *http.Client
}

// NewProvider creates a Provider. httpClient may be nil.
func NewProvider(creds Credentials, authorityHost string, httpClient *http.Client) (*Provider, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	return &Provider{
		config: &clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     TokenURL(authorityHost, creds.TenantID),
			Scopes:       []string{DefaultScope},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient: httpClient,
	}, nil
}

// TokenSource returns a token source that refreshes on expiry. Token requests
// made after ctx is done fail.
func (p *Provider) TokenSource(ctx context.Context) oauth2.TokenSource {
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	return p.config.TokenSource(ctx)
}

// CachedTokenSource returns a token source that reuses its token until it
// expires. Callers that want credential problems to surface before any API
// call should request a token from it once up front; see Verify.
func (p *Provider) CachedTokenSource(ctx context.Context) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, p.TokenSource(ctx))
}

// Verify fetches (or reuses) a token from ts. A failure means the credentials
// or the token endpoint are unusable.
func Verify(ts oauth2.TokenSource) (*oauth2.Token, error) {
	token, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire access token: %w", err)
	}

	if !token.Valid() {
		return nil, fmt.Errorf("failed to acquire access token: token endpoint returned an unusable token")
	}

	klog.V(2).Infof("Access token valid until %s", token.Expiry.Format("2006-01-02T15:04:05Z07:00"))

	return token, nil
}
