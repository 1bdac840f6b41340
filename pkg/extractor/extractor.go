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

// Package extractor pulls labeled sections out of free-text incident posts.
// Posts typically look like:
//
//	Title: Users can't access mailboxes
//	User impact: Users may be unable to open their mailbox.
//	Current status: We're deploying a fix.
//	Scope of impact: Users in Europe.
//	Root cause: A network failure.
//	Next update by: Tuesday, 10:00 UTC
//
// Extraction is best effort: a missing label is an empty string, never an error.
package extractor

import (
	"regexp"
	"strings"
)

// Label identifies a section the extractor recognizes.
type Label string

const (
	LabelScopeOfImpact Label = "Scope of impact"
	LabelRootCause     Label = "Root cause"
	LabelUserImpact    Label = "User impact"
)

// Each pattern captures lazily from the label up to the first stop label or
// the end of the text. (?is) makes matching case-insensitive and lets . span
// newlines, so $ is the end of the whole text.
var patterns = map[Label]*regexp.Regexp{
	LabelScopeOfImpact: regexp.MustCompile(
		`(?is)scope of impact:(.*?)(?:root cause:|next update by:|final status:|$)`,
	),
	LabelRootCause: regexp.MustCompile(
		`(?is)root cause:(.*?)(?:next update by:|final status:|scope of impact:|$)`,
	),
	LabelUserImpact: regexp.MustCompile(
		`(?is)user impact:(.*?)(?:current status:|more info:|$)`,
	),
}

// Sections holds the extracted text per label.
type Sections struct {
	ScopeOfImpact string
	RootCause     string
	UserImpact    string
}

// Extract returns every recognized section of text.
func Extract(text string) Sections {
	return Sections{
		ScopeOfImpact: Field(text, LabelScopeOfImpact),
		RootCause:     Field(text, LabelRootCause),
		UserImpact:    Field(text, LabelUserImpact),
	}
}

// Field returns the trimmed text of a single labeled section, or "" when the
// label is absent or not one the extractor knows.
func Field(text string, label Label) string {
	re, ok := patterns[label]
	if !ok || text == "" {
		return ""
	}

	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}

	return strings.TrimSpace(m[1])
}
