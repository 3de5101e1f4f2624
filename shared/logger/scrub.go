// Copyright 2025 AxonFlow
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

package logger

import (
	"fmt"
	"regexp"
)

// Scrubbing runs in this order: emails are replaced before UPI handles so an
// address is never half-rewritten as a handle.
var scrubRules = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)(password|passwd|pwd|secret|token|apikey|api_key|access_key|accesskey)["']?\s*[:=]\s*["']?[^\s"'},]+`), "$1: [REDACTED]"},
	{regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`), "[EMAIL_REDACTED]"},
	{regexp.MustCompile(`\b[a-zA-Z0-9._-]{2,}@[a-zA-Z]{2,}\b`), "[UPI_REDACTED]"},
	{regexp.MustCompile(`\b[0-9]{4}[-\s]?[0-9]{4}[-\s]?[0-9]{4}[-\s]?[0-9]{4}\b`), "[CREDIT_CARD_REDACTED]"},
	{regexp.MustCompile(`\b[2-9][0-9]{3}[-\s]?[0-9]{4}[-\s]?[0-9]{4}\b`), "[AADHAAR_REDACTED]"},
	{regexp.MustCompile(`(?:\+91[-\s]?)?\b[6-9][0-9]{9}\b`), "[PHONE_REDACTED]"},
	{regexp.MustCompile(`\b[A-Z]{5}[0-9]{4}[A-Z]\b`), "[PAN_REDACTED]"},
	{regexp.MustCompile(`\b[A-Z]{4}0[A-Z0-9]{6}\b`), "[IFSC_REDACTED]"},
	{regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`), "[IP_REDACTED]"},
}

// Scrub replaces PII-shaped substrings in s with type placeholders.
func Scrub(s string) string {
	if s == "" {
		return s
	}
	for _, rule := range scrubRules {
		s = rule.pattern.ReplaceAllString(s, rule.replacement)
	}
	return s
}

// ScrubFields returns a copy of fields with every string and error value
// scrubbed. Non-string values are kept as-is.
func ScrubFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			out[k] = Scrub(val)
		case error:
			out[k] = Scrub(val.Error())
		case fmt.Stringer:
			out[k] = Scrub(val.String())
		default:
			out[k] = v
		}
	}
	return out
}
