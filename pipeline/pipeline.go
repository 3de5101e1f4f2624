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

// Package pipeline is the scope gate between candidate producers and the
// ingestion layer. A candidate passes through, in order: the locked-type
// allow-list, its type validator, the dummy-data detector and the context
// confidence engine. Only then is a VerifiedFinding built, carrying the
// sha256 of the value and never the value itself.
package pipeline

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bharat-parihar/ARC-Hawk/confidence"
	"github.com/bharat-parihar/ARC-Hawk/quality"
	"github.com/bharat-parihar/ARC-Hawk/shared/logger"
	"github.com/bharat-parihar/ARC-Hawk/validators"
)

var lockedTypes = func() map[validators.PIIType]struct{} {
	m := make(map[validators.PIIType]struct{})
	for _, t := range validators.AllTypes() {
		m[t] = struct{}{}
	}
	return m
}()

// Keywords that label what an identifier is; reported alongside the
// confidence keywords so reviewers can see why a finding was attributed.
var labelKeywords = map[string]struct{}{
	"aadhaar": {}, "pan": {}, "card": {}, "number": {}, "id": {}, "uid": {},
	"customer": {}, "phone": {}, "mobile": {}, "email": {}, "account": {},
	"ifsc": {}, "upi": {}, "passport": {}, "voter": {}, "license": {},
}

var excerptWords = regexp.MustCompile(`[a-z]+`)

// Types whose cleaned value is a digit string the dummy detector applies to.
var numericTypes = map[validators.PIIType]bool{
	validators.Aadhaar:     true,
	validators.CreditCard:  true,
	validators.Phone:       true,
	validators.BankAccount: true,
}

// InScope normalises a type hint and reports whether it names one of the
// locked PII types.
func InScope(hint string) (validators.PIIType, bool) {
	t := validators.PIIType(strings.ToUpper(strings.TrimSpace(hint)))
	_, ok := lockedTypes[t]
	return t, ok
}

// LockedTypes returns the allow-list in sorted order.
func LockedTypes() []validators.PIIType {
	types := validators.AllTypes()
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRegistry replaces the built-in validator registry.
func WithRegistry(r validators.Registry) Option {
	return func(p *Pipeline) { p.registry = r }
}

// WithContextValidator sets the confidence engine.
func WithContextValidator(cv *confidence.ContextValidator) Option {
	return func(p *Pipeline) { p.context = cv }
}

// WithTracker records every decision into a quality tracker.
func WithTracker(t *quality.Tracker) Option {
	return func(p *Pipeline) { p.tracker = t }
}

// WithLogger sets the structured logger.
func WithLogger(l *logger.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithPANContextCheck enables rejection of PAN values that sit inside
// source code or fixtures.
func WithPANContextCheck(enabled bool) Option {
	return func(p *Pipeline) { p.panContext = enabled }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline validates candidates. It holds only read-only state after
// construction and is safe for concurrent use.
type Pipeline struct {
	registry   validators.Registry
	context    *confidence.ContextValidator
	tracker    *quality.Tracker
	log        *logger.Logger
	panContext bool
	now        func() time.Time
}

// New builds a pipeline with the built-in validators and default
// confidence settings unless overridden.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		registry: validators.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.context == nil {
		p.context = confidence.NewContextValidator(confidence.DefaultConfig())
	}
	if p.log == nil {
		p.log = logger.New("validation-pipeline")
	}
	return p
}

// ContextValidator exposes the confidence engine, e.g. to manage the
// exclusion list.
func (p *Pipeline) ContextValidator() *confidence.ContextValidator { return p.context }

// Validate runs one candidate through the gate.
func (p *Pipeline) Validate(c Candidate) Result {
	piiType, ok := InScope(c.PIITypeHint)
	if !ok {
		p.log.Warn("", "", "policy violation: PII type outside locked scope", map[string]interface{}{
			"pii_type":     c.PIITypeHint,
			"pattern_name": c.PatternName,
		})
		return Result{
			Outcome: ValidationOutcome{RejectionReason: fmt.Sprintf("out of scope: %s", c.PIITypeHint)},
			Stage:   StageScope,
			PIIType: c.PIITypeHint,
		}
	}
	p.record(func(t *quality.Tracker) { t.RecordDetection(string(piiType)) })

	v, ok := p.registry.Lookup(piiType)
	if !ok {
		return p.reject(piiType, StageValidator, ValidationOutcome{
			RejectionReason: fmt.Sprintf("no validator registered for %s", piiType),
		}, nil, c)
	}

	text, start, end, found := p.span(c)

	if !v.Validate(c.RawValue) {
		return p.reject(piiType, StageValidator, ValidationOutcome{
			ValidatorName:   v.Name,
			RejectionReason: "failed " + v.Name,
		}, nil, c)
	}
	passed := []string{v.Name}

	if piiType == validators.PAN && p.panContext {
		if !validators.PANValidInContext(c.RawValue, text) {
			return p.reject(piiType, StageValidator, ValidationOutcome{
				ValidatorName:   "pan_context",
				RejectionReason: "failed pan_context",
			}, nil, c)
		}
		passed = append(passed, "pan_context")
	}

	if numericTypes[piiType] {
		digits := validators.CleanDigits(c.RawValue)
		if piiType == validators.Phone {
			digits = validators.NormalizePhone(c.RawValue)
		}
		if reason := validators.DetectDummy(digits); reason != validators.DummyNone {
			return p.reject(piiType, StageDummy, ValidationOutcome{
				ValidatorName:   v.Name,
				RejectionReason: fmt.Sprintf("dummy data: %s", reason),
			}, nil, c)
		}
	}

	a := p.context.Assess(c.RawValue, piiType, text, start, end, c.BaseConfidence)
	p.record(func(t *quality.Tracker) { t.RecordContextAdjustment(a.Base, a.Adjusted) })
	if !a.Accepted() {
		return p.reject(piiType, StageContext, ValidationOutcome{
			ValidatorName:   v.Name,
			RejectionReason: a.Reason,
		}, &a, c)
	}

	excerptText := ""
	if found {
		excerptText = excerpt(text, c.RawValue, start, end)
	}
	mlType := c.MLEntityType
	if mlType == "" {
		mlType = string(piiType)
	}
	finding := &VerifiedFinding{
		PIIType:          piiType,
		ValueHash:        HashValue(c.RawValue),
		Source:           c.Source.withDefaults(),
		ValidatorsPassed: passed,
		ValidationMethod: v.Method,
		Confidence:       a.Adjusted,
		MLConfidence:     c.BaseConfidence,
		MLEntityType:     mlType,
		ContextExcerpt:   excerptText,
		ContextKeywords:  contextKeywords(a.Keywords, excerptText),
		PatternName:      c.PatternName,
		DetectedAt:       p.now(),
		ScannerVersion:   ScannerVersion,
	}
	p.record(func(t *quality.Tracker) { t.RecordValidation(string(piiType), a.Adjusted) })
	p.log.Debug("", "", "verified finding", map[string]interface{}{
		"pii_type":   string(piiType),
		"value_hash": finding.ValueHash,
		"confidence": a.Adjusted,
		"validators": strings.Join(passed, ","),
	})

	return Result{
		Finding:    finding,
		Outcome:    ValidationOutcome{IsValid: true, ValidatorName: v.Name},
		Assessment: &a,
		Stage:      StageAccepted,
		PIIType:    string(piiType),
	}
}

// span resolves the text and byte offsets used for context analysis. A
// candidate without surrounding text is analysed against its own value.
func (p *Pipeline) span(c Candidate) (string, int, int, bool) {
	text := c.SurroundingText
	if text == "" {
		text = c.RawValue
	}
	start, end, found := locate(text, c.RawValue, c.MatchStart, c.MatchEnd)
	if !found {
		// The value is not in the text: analyse the whole text as context.
		return text, 0, 0, false
	}
	return text, start, end, true
}

func (p *Pipeline) reject(t validators.PIIType, stage Stage, outcome ValidationOutcome, a *confidence.Assessment, c Candidate) Result {
	p.record(func(tr *quality.Tracker) { tr.RecordRejection(string(t), outcome.RejectionReason) })
	p.log.Debug("", "", "candidate rejected", map[string]interface{}{
		"pii_type":     string(t),
		"stage":        string(stage),
		"reason":       outcome.RejectionReason,
		"value_hash":   HashValue(c.RawValue),
		"pattern_name": c.PatternName,
	})
	return Result{Outcome: outcome, Assessment: a, Stage: stage, PIIType: string(t)}
}

func (p *Pipeline) record(fn func(*quality.Tracker)) {
	if p.tracker != nil {
		fn(p.tracker)
	}
}

func contextKeywords(assessed []string, excerptText string) []string {
	set := make(map[string]struct{}, len(assessed))
	for _, k := range assessed {
		set[k] = struct{}{}
	}
	for _, w := range excerptWords.FindAllString(strings.ToLower(excerptText), -1) {
		if _, ok := labelKeywords[w]; ok {
			set[w] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
