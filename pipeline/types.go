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

package pipeline

import (
	"time"

	"github.com/bharat-parihar/ARC-Hawk/confidence"
	"github.com/bharat-parihar/ARC-Hawk/validators"
)

// ScannerVersion is stamped on every finding and ingestion payload.
const ScannerVersion = "2.0-sdk"

// Data source kinds used in SourceInfo.
const (
	SourceFilesystem = "filesystem"
	SourcePostgres   = "postgresql"
	SourceMySQL      = "mysql"
	SourceMongoDB    = "mongodb"
	SourceS3         = "s3"
)

// SourceInfo locates where a candidate was found.
type SourceInfo struct {
	Path       string `json:"path"`
	Line       int    `json:"line,omitempty"`
	Column     string `json:"column,omitempty"`
	Table      string `json:"table,omitempty"`
	DataSource string `json:"data_source"`
	Host       string `json:"host"`
}

func (s SourceInfo) withDefaults() SourceInfo {
	if s.DataSource == "" {
		s.DataSource = SourceFilesystem
	}
	if s.Host == "" {
		s.Host = "localhost"
	}
	return s
}

// Candidate is a potential PII match produced by a connector or recognizer.
// It is never persisted.
type Candidate struct {
	RawValue    string
	PIITypeHint string
	Source      SourceInfo
	// SurroundingText is the text the match was found in. MatchStart and
	// MatchEnd are byte offsets of RawValue inside it; when they do not
	// point at RawValue the pipeline searches for it.
	SurroundingText string
	MatchStart      int
	MatchEnd        int
	// BaseConfidence is the recognizer's score; zero means none was given.
	BaseConfidence float64
	PatternName    string
	MLEntityType   string
}

// ValidationOutcome records the structural validation of one candidate.
type ValidationOutcome struct {
	IsValid         bool   `json:"is_valid"`
	ValidatorName   string `json:"validator_name,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

// Stage names the pipeline step that produced a decision.
type Stage string

const (
	StageScope     Stage = "scope"
	StageValidator Stage = "validator"
	StageDummy     Stage = "dummy"
	StageContext   Stage = "context"
	StageAccepted  Stage = "accepted"
)

// VerifiedFinding is the hash-only record of a confirmed PII instance. It has
// no field that could hold the matched value.
type VerifiedFinding struct {
	PIIType          validators.PIIType `json:"pii_type"`
	ValueHash        string             `json:"value_hash"`
	Source           SourceInfo         `json:"source"`
	ValidatorsPassed []string           `json:"validators_passed"`
	ValidationMethod string             `json:"validation_method"`
	Confidence       float64            `json:"confidence_score"`
	MLConfidence     float64            `json:"ml_confidence"`
	MLEntityType     string             `json:"ml_entity_type"`
	ContextExcerpt   string             `json:"context_excerpt"`
	ContextKeywords  []string           `json:"context_keywords"`
	PatternName      string             `json:"pattern_name"`
	DetectedAt       time.Time          `json:"detected_at"`
	ScannerVersion   string             `json:"scanner_version"`
}

// Result is the pipeline decision for one candidate. Finding is set only
// when the candidate was accepted.
type Result struct {
	Finding    *VerifiedFinding       `json:"finding,omitempty"`
	Outcome    ValidationOutcome      `json:"outcome"`
	Assessment *confidence.Assessment `json:"assessment,omitempty"`
	Stage      Stage                  `json:"stage"`
	PIIType    string                 `json:"pii_type"`
}

// Accepted reports whether the candidate produced a finding.
func (r Result) Accepted() bool { return r.Finding != nil }

// Findings collects the accepted findings from results.
func Findings(results []Result) []VerifiedFinding {
	var out []VerifiedFinding
	for _, r := range results {
		if r.Finding != nil {
			out = append(out, *r.Finding)
		}
	}
	return out
}
