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

package confidence

import (
	"math"
	"regexp"
	"strings"
)

// HighEntropyThreshold is the bits-per-character level above which a string
// is treated as random-looking.
const HighEntropyThreshold = 3.5

// ShannonEntropy computes H(X) = -Σ p(x)·log2 p(x) over the runes of s.
func ShannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	counts := make(map[rune]int)
	total := 0
	for _, r := range s {
		counts[r]++
		total++
	}
	h := 0.0
	for _, c := range counts {
		p := float64(c) / float64(total)
		h -= p * math.Log2(p)
	}
	return h
}

// IsHighEntropy reports whether s exceeds HighEntropyThreshold.
func IsHighEntropy(s string) bool {
	return ShannonEntropy(s) > HighEntropyThreshold
}

var assignmentPattern = regexp.MustCompile(`([a-zA-Z0-9_]+)\s*[:=]\s*["']`)

var sensitiveIdentifierWords = []string{
	"api", "key", "secret", "token", "access", "auth",
	"password", "pwd", "pass", "client_id", "client_secret",
	"private", "credential",
}

var commentMarkers = []string{"#", "//", "*", "--", "<!--"}

// LineContext describes the code shape of a single source line.
type LineContext struct {
	IsAssignment        bool
	VariableName        string
	IsComment           bool
	HasSensitiveKeyword bool
}

// AnalyzeLine classifies a source line. Comment lines are never treated as
// assignments.
func AnalyzeLine(line string) LineContext {
	var ctx LineContext
	stripped := strings.TrimSpace(line)
	for _, marker := range commentMarkers {
		if strings.HasPrefix(stripped, marker) {
			ctx.IsComment = true
			return ctx
		}
	}

	m := assignmentPattern.FindStringSubmatch(line)
	if m == nil {
		return ctx
	}
	ctx.IsAssignment = true
	ctx.VariableName = strings.ToLower(m[1])
	ctx.HasSensitiveKeyword = SensitiveIdentifier(ctx.VariableName)
	return ctx
}

// SensitiveIdentifier reports whether a variable name suggests it holds a
// credential.
func SensitiveIdentifier(name string) bool {
	lower := strings.ToLower(name)
	for _, w := range sensitiveIdentifierWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
