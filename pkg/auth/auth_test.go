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
package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCreds = Credentials{TenantID: "tenant-1", ClientID: "client-1", ClientSecret: "s3cret"}

func TestCredentialsValidate(t *testing.T) {
	testCases := []struct {
		name    string
		creds   Credentials
		missing []string
	}{
		{name: "complete", creds: testCreds},
		{name: "all missing", creds: Credentials{}, missing: []string{"tenant id", "client id", "client secret"}},
		{name: "secret missing", creds: Credentials{TenantID: "t", ClientID: "c"}, missing: []string{"client secret"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.creds.Validate()
			if len(tc.missing) == 0 {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)

			for _, m := range tc.missing {
				assert.Contains(t, err.Error(), m)
			}
		})
	}
}

func TestTokenURL(t *testing.T) {
	assert.Equal(t, "https://login.microsoftonline.com/tenant-1/oauth2/v2.0/token", TokenURL("", "tenant-1"))
	assert.Equal(t, "http://127.0.0.1:8080/t/oauth2/v2.0/token", TokenURL("http://127.0.0.1:8080/", "t"))
}

func TestNewProvider_RejectsIncompleteCredentials(t *testing.T) {
	_, err := NewProvider(Credentials{TenantID: "t"}, "", nil)
	assert.Error(t, err)
}

func TestCachedTokenSource(t *testing.T) {
	var calls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)

		assert.Equal(t, "/tenant-1/oauth2/v2.0/token", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client-1", r.PostForm.Get("client_id"))
		assert.Equal(t, "s3cret", r.PostForm.Get("client_secret"))
		assert.Equal(t, DefaultScope, r.PostForm.Get("scope"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"abc123","token_type":"Bearer","expires_in":3600}`)
	}))
	defer server.Close()

	provider, err := NewProvider(testCreds, server.URL, server.Client())
	require.NoError(t, err)

	ts := provider.CachedTokenSource(context.Background())

	token, err := Verify(ts)
	require.NoError(t, err)
	assert.Equal(t, "abc123", token.AccessToken)

	// second call is served from cache
	_, err = Verify(ts)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestVerify_RejectedCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid_client","error_description":"bad secret"}`)
	}))
	defer server.Close()

	provider, err := NewProvider(testCreds, server.URL, server.Client())
	require.NoError(t, err)

	token, err := Verify(provider.CachedTokenSource(context.Background()))

	assert.Nil(t, token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to acquire access token")
}
