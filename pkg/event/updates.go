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

package event

import (
	"sort"

	"github.com/nvidia/nvsentinel/health-monitors/service-health-monitor/pkg/model"
)

// DefaultHistoricalUpdateLimit is the number of most recent updates kept for
// a historical incident.
const DefaultHistoricalUpdateLimit = 5

// Mode selects whether an incident is normalized for the active set or for
// the bounded history.
type Mode int

const (
	ModeActive Mode = iota
	ModeHistorical
)

func (m Mode) String() string {
	if m == ModeHistorical {
		return "historical"
	}

	return "active"
}

// updateContent returns the post body, preferring description.content over
// the alternate content field.
func updateContent(u *model.RawUpdate) string {
	if u.Description != nil && u.Description.Content != "" {
		return u.Description.Content
	}

	if u.Content != nil {
		return *u.Content
	}

	return ""
}

// NormalizeUpdates converts raw posts into NormalizedUpdates sorted newest
// first, ties keeping upstream order. In ModeHistorical only the first limit
// entries survive; limit <= 0 uses DefaultHistoricalUpdateLimit. ModeActive
// never truncates. Posts without a creation time sort last.
func NormalizeUpdates(posts []model.RawUpdate, mode Mode, limit int) []model.NormalizedUpdate {
	updates := make([]model.NormalizedUpdate, 0, len(posts))

	for i := range posts {
		post := &posts[i]

		u := model.NormalizedUpdate{
			PostType: post.PostType,
			Content:  updateContent(post),
		}
		if post.CreatedDateTime != nil {
			u.CreatedDateTime = *post.CreatedDateTime
		}

		updates = append(updates, u)
	}

	sort.SliceStable(updates, func(i, j int) bool {
		return updates[i].CreatedDateTime.After(updates[j].CreatedDateTime)
	})

	if mode == ModeHistorical {
		if limit <= 0 {
			limit = DefaultHistoricalUpdateLimit
		}

		if len(updates) > limit {
			updates = updates[:limit]
		}
	}

	return updates
}
