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
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/bharat-parihar/ARC-Hawk/validators"
)

// Validation methods reported by the line scorer.
const (
	MethodNoValidator = "no_validator"
)

var placeholderTokens = []string{"example", "test"}

// HeuristicConfig tunes the line scorer.
type HeuristicConfig struct {
	EntropyThreshold float64
	AcceptScore      int
}

// DefaultHeuristicConfig returns the standard line-scorer parameters.
func DefaultHeuristicConfig() HeuristicConfig {
	return HeuristicConfig{EntropyThreshold: 3.0, AcceptScore: 50}
}

// LineScore is the heuristic outcome for one match on one line.
type LineScore struct {
	Score            int      `json:"score"`
	Reasons          []string `json:"reasons"`
	ValidationMethod string   `json:"validation_method"`
	Accepted         bool     `json:"accepted"`
}

// LineFinding is an accepted heuristic match. It carries a digest of the
// match, never the match text.
type LineFinding struct {
	PatternName      string   `json:"pattern_name"`
	ValueHash        string   `json:"value_hash"`
	LineNumber       int      `json:"line_number"`
	Score            int      `json:"confidence_score"`
	Reasons          []string `json:"confidence_reasons"`
	ValidationMethod string   `json:"validation_method"`
}

// LineScorer scores generic regex matches on a 0..100 scale.
type LineScorer struct {
	cfg      HeuristicConfig
	registry validators.Registry
}

// NewLineScorer builds a scorer backed by the built-in validator registry.
func NewLineScorer(cfg HeuristicConfig) *LineScorer {
	def := DefaultHeuristicConfig()
	if cfg.EntropyThreshold <= 0 {
		cfg.EntropyThreshold = def.EntropyThreshold
	}
	if cfg.AcceptScore <= 0 {
		cfg.AcceptScore = def.AcceptScore
	}
	return &LineScorer{cfg: cfg, registry: validators.Default()}
}

// HeuristicScore computes the pre-validation score for match given the
// pattern name and the analysed line.
func (s *LineScorer) HeuristicScore(match, patternName string, ctx LineContext) (int, []string) {
	score := 50
	var reasons []string

	ent := ShannonEntropy(match)
	if ent > s.cfg.EntropyThreshold {
		score += 20
		reasons = append(reasons, fmt.Sprintf("High Entropy (%.2f)", ent))
	} else {
		lowerName := strings.ToLower(patternName)
		if strings.Contains(lowerName, "key") || strings.Contains(lowerName, "secret") {
			score -= 20
			reasons = append(reasons, fmt.Sprintf("Low Entropy (%.2f)", ent))
		}
	}

	if ctx.IsAssignment {
		if ctx.HasSensitiveKeyword {
			score += 30
			reasons = append(reasons, fmt.Sprintf("Sensitive Variable Assignment (%s)", ctx.VariableName))
		} else {
			score += 10
			reasons = append(reasons, "Variable Assignment")
		}
	}
	if ctx.IsComment {
		score -= 30
		reasons = append(reasons, "In Comment")
	}

	if isPlaceholder(match) {
		score = 0
		reasons = append(reasons, "Test Data Value")
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, reasons
}

// Evaluate scores match on line and applies the checksum override: a passing
// validator forces 100, a failing one forces 0, and patterns without a
// validator keep the heuristic score.
func (s *LineScorer) Evaluate(match, patternName, line string) LineScore {
	score, reasons := s.HeuristicScore(match, patternName, AnalyzeLine(line))
	method := MethodNoValidator

	if t, ok := validators.TypeForPattern(patternName); ok {
		if v, ok := s.registry.Lookup(t); ok {
			method = v.Name
			if v.Validate(match) {
				score = 100
				reasons = append(reasons, fmt.Sprintf("Validation Passed (%s)", v.Name))
			} else {
				score = 0
				reasons = append(reasons, "Validation Failed")
			}
		}
	}

	return LineScore{
		Score:            score,
		Reasons:          reasons,
		ValidationMethod: method,
		Accepted:         score >= s.cfg.AcceptScore,
	}
}

// ScanContent runs every pattern over content line by line and returns the
// accepted matches, de-duplicated per pattern, line and value.
func (s *LineScorer) ScanContent(content string, patterns map[string]*regexp.Regexp) []LineFinding {
	names := make([]string, 0, len(patterns))
	for name := range patterns {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := strings.Split(content, "\n")
	seen := make(map[string]struct{})
	var findings []LineFinding

	for _, name := range names {
		re := patterns[name]
		for idx, line := range lines {
			for _, match := range re.FindAllString(line, -1) {
				res := s.Evaluate(match, name, line)
				if !res.Accepted {
					continue
				}
				hash := digest(match)
				key := fmt.Sprintf("%s|%d|%s", name, idx, hash)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				findings = append(findings, LineFinding{
					PatternName:      name,
					ValueHash:        hash,
					LineNumber:       idx + 1,
					Score:            res.Score,
					Reasons:          res.Reasons,
					ValidationMethod: res.ValidationMethod,
				})
			}
		}
	}
	return findings
}

func isPlaceholder(match string) bool {
	lower := strings.ToLower(match)
	for _, tok := range placeholderTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return strings.Contains(match, "12345")
}
