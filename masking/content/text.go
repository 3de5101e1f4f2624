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

package content

import (
	"math"
	"sort"
	"strings"

	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
	"github.com/bharat-parihar/ARC-Hawk/masking"
)

// applyText replaces positioned findings from the highest offset down, so
// earlier offsets stay valid. A span must hold exactly the finding value
// and must not overlap a span already replaced. Findings without a span
// have every occurrence of their value replaced afterwards.
func applyText(data []byte, findings []base.MaskingFinding, m masking.Masker) Outcome {
	var positioned, loose []base.MaskingFinding
	for _, f := range findings {
		if f.HasSpan() {
			positioned = append(positioned, f)
		} else {
			loose = append(loose, f)
		}
	}
	sort.SliceStable(positioned, func(i, j int) bool {
		return *positioned[i].StartPos > *positioned[j].StartPos
	})

	var out Outcome
	text := string(data)
	limit := math.MaxInt
	for _, f := range positioned {
		start, end := *f.StartPos, *f.EndPos
		if start < 0 || end > len(text) || start >= end || end > limit || text[start:end] != f.Value {
			out.fail(f)
			continue
		}
		text = text[:start] + m.Mask(f.Value, f.PIIType) + text[end:]
		limit = start
		out.Masked++
	}

	for _, f := range loose {
		masked, changed := replaceIn(text, f.Value, m.Mask(f.Value, f.PIIType))
		if !changed {
			out.fail(f)
			continue
		}
		text = masked
		out.Masked++
	}

	out.Data = []byte(text)
	return out
}

// Span returns pointers suitable for MaskingFinding.StartPos/EndPos.
func Span(start, end int) (*int, *int) {
	return &start, &end
}

// FindingsFor builds positioned findings for every occurrence of value in
// text.
func FindingsFor(text, value, piiType, location string) []base.MaskingFinding {
	var out []base.MaskingFinding
	if value == "" {
		return out
	}
	for off := 0; ; {
		i := strings.Index(text[off:], value)
		if i < 0 {
			return out
		}
		start, end := Span(off+i, off+i+len(value))
		out = append(out, base.MaskingFinding{
			Value: value, PIIType: piiType, Location: location, StartPos: start, EndPos: end,
		})
		off += i + len(value)
	}
}
