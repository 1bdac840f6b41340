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
	"errors"
	"fmt"
)

// ErrNotFound is returned when the requested resource does not exist upstream.
var ErrNotFound = errors.New("resource not found")

// APIError is a non-2xx answer other than 404.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s request failed with status code %d", e.Endpoint, e.StatusCode)
	}

	return fmt.Sprintf("%s request failed with status code %d: %s", e.Endpoint, e.StatusCode, e.Body)
}
