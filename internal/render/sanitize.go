// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

// chromaClassRe matches the class lists chroma emits ("chroma", "line cl",
// "kd", ...).
var chromaClassRe = regexp.MustCompile(`^[a-zA-Z0-9\s\-_]+$`)

// PolicySanitizer sanitizes HTML with a bluemonday user generated content
// policy, extended to keep the CSS classes used by code highlighting.
type PolicySanitizer struct {
	policy *bluemonday.Policy
}

// NewPolicySanitizer returns a sanitizer built on bluemonday.UGCPolicy.
func NewPolicySanitizer() *PolicySanitizer {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(chromaClassRe).OnElements("pre", "code", "span")
	return &PolicySanitizer{policy: p}
}

// Sanitize implements Sanitizer.
func (s *PolicySanitizer) Sanitize(html string) string {
	return s.policy.Sanitize(html)
}
