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

// Package content rewrites in-memory file content: CSV cells, JSON paths
// and text spans. The filesystem and object-store adapters share it so a
// blob is masked the same way wherever it lives.
package content

import (
	"path/filepath"
	"strings"

	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
	"github.com/bharat-parihar/ARC-Hawk/masking"
)

// Kind is a content format.
type Kind string

// Supported formats.
const (
	KindCSV  Kind = "csv"
	KindJSON Kind = "json"
	KindText Kind = "text"
)

// KindForPath maps a file extension to a Kind. known is false when the
// extension is not recognised and text handling is used as a fallback.
func KindForPath(path string) (kind Kind, known bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return KindCSV, true
	case ".json":
		return KindJSON, true
	case ".txt", ".log", ".md":
		return KindText, true
	default:
		return KindText, false
	}
}

// Outcome is the rewritten content and per-finding counts. Unmasked lists
// the findings counted in Failed.
type Outcome struct {
	Data     []byte
	Masked   int
	Failed   int
	Unmasked []base.MaskingFinding
}

func (o *Outcome) fail(findings ...base.MaskingFinding) {
	o.Failed += len(findings)
	o.Unmasked = append(o.Unmasked, findings...)
}

// Apply masks findings in data. The returned error means the content could
// not be parsed or re-encoded; per-finding problems are counted in Failed.
func Apply(kind Kind, data []byte, findings []base.MaskingFinding, m masking.Masker) (Outcome, error) {
	switch kind {
	case KindCSV:
		return applyCSV(data, findings, m)
	case KindJSON:
		return applyJSON(data, findings, m)
	default:
		return applyText(data, findings, m), nil
	}
}

// Residual returns the indexes of findings whose original value still
// appears in data.
func Residual(data []byte, findings []base.MaskingFinding) []int {
	text := string(data)
	var hits []int
	for i, f := range findings {
		if f.Value != "" && strings.Contains(text, f.Value) {
			hits = append(hits, i)
		}
	}
	return hits
}

// replaceIn masks value inside s. A cell equal to the value is replaced
// whole; otherwise every occurrence is replaced.
func replaceIn(s, value, masked string) (string, bool) {
	if value == "" {
		return s, false
	}
	if s == value {
		return masked, true
	}
	if !strings.Contains(s, value) {
		return s, false
	}
	return strings.ReplaceAll(s, value, masked), true
}
