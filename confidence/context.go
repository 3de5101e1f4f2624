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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/bharat-parihar/ARC-Hawk/validators"
)

// Verdict is the accept/reject decision of the confidence engine.
type Verdict string

const (
	Accept Verdict = "accept"
	Reject Verdict = "reject"
)

// Rejection and acceptance reasons. They are stable strings so audit
// consumers can match on them.
const (
	ReasonValid         = "Valid"
	ReasonTestData      = "Rejected: Test data pattern detected"
	ReasonExcluded      = "Rejected: In exclusion list"
	reasonLowConfidence = "Rejected: Low confidence after context analysis (keywords: %s)"
)

// Config holds the tunable parameters of the context engine.
type Config struct {
	// WindowSize is the number of characters inspected on each side of a match.
	WindowSize int
	// MinConfidence is the floor below which a candidate is rejected.
	MinConfidence float64
	// DefaultBaseConfidence is used when the caller has no ML score.
	DefaultBaseConfidence float64

	TestKeywordPenalty     float64
	ProductionKeywordBoost float64
	NegativeKeywordPenalty float64
}

// DefaultConfig returns the standard engine parameters.
func DefaultConfig() Config {
	return Config{
		WindowSize:             100,
		MinConfidence:          0.5,
		DefaultBaseConfidence:  0.95,
		TestKeywordPenalty:     0.15,
		ProductionKeywordBoost: 0.05,
		NegativeKeywordPenalty: 0.25,
	}
}

// Assessment is the outcome of context analysis for one candidate.
type Assessment struct {
	Base     float64  `json:"base"`
	Adjusted float64  `json:"adjusted"`
	Keywords []string `json:"keywords,omitempty"`
	Verdict  Verdict  `json:"verdict"`
	Reason   string   `json:"reason"`
	TestData bool     `json:"test_data,omitempty"`
}

// Accepted reports whether the verdict is Accept.
func (a Assessment) Accepted() bool { return a.Verdict == Accept }

var (
	testKeywords = []string{
		"test", "testing", "dummy", "sample", "example", "fake", "mock",
		"demo", "sandbox", "dev", "development", "staging", "qa",
	}
	productionKeywords = []string{
		"production", "prod", "live", "customer", "client", "user",
		"employee", "patient", "member", "account", "real",
	}
	negativeKeywords = []string{"invalid", "incorrect", "wrong", "error", "failed", "rejected"}

	wordPattern = regexp.MustCompile(`\w+`)
)

var defaultTestPatterns = map[validators.PIIType][]string{
	validators.Phone: {
		`^9{10}$`, `^0{10}$`, `^1{10}$`, `^1234567890$`, `^0987654321$`,
	},
	validators.Email: {
		`^test@test\.com$`, `^test@example\.com$`, `^dummy@dummy\.com$`,
		`^sample@sample\.com$`, `^foo@bar\.com$`, `^noreply@`, `^no-reply@`,
	},
	validators.Aadhaar: {
		`^1{12}$`, `^0{12}$`, `^9{12}$`, `^123456789012$`,
	},
	validators.PAN: {
		`^AAAAA0000A$`, `^ZZZZZ9999Z$`, `^TEST[A-Z]0000[A-Z]$`,
	},
	validators.CreditCard: {
		`^1{16}$`, `^0{16}$`, `^1234567890123456$`,
	},
	validators.BankAccount: {
		`^0{10,}$`, `^1{10,}$`, `^123456789012345$`,
	},
}

// KeywordMatches holds the distinct keywords found near a match.
type KeywordMatches struct {
	Test       []string
	Production []string
	Negative   []string
}

// All returns every matched keyword in sorted order.
func (k KeywordMatches) All() []string {
	all := make([]string, 0, len(k.Test)+len(k.Production)+len(k.Negative))
	all = append(all, k.Test...)
	all = append(all, k.Production...)
	all = append(all, k.Negative...)
	sort.Strings(all)
	return all
}

// Statistics summarises the engine's rule set.
type Statistics struct {
	TestPatterns       map[string]int `json:"test_patterns"`
	TotalTestPatterns  int            `json:"total_test_patterns"`
	ExclusionListSize  int            `json:"exclusion_list_size"`
	TestKeywords       int            `json:"test_keywords"`
	ProductionKeywords int            `json:"production_keywords"`
	NegativeKeywords   int            `json:"negative_keywords"`
}

// ContextValidator decides whether a structurally valid candidate is real
// data, using test-data patterns, an exclusion list and nearby keywords.
// It is safe for concurrent use.
type ContextValidator struct {
	cfg          Config
	testPatterns map[validators.PIIType][]*regexp.Regexp

	mu sync.RWMutex
	// exclusions holds sha256 digests, never the excluded values themselves.
	exclusions map[string]struct{}
}

// NewContextValidator builds a validator. Zero fields in cfg fall back to
// DefaultConfig values.
func NewContextValidator(cfg Config) *ContextValidator {
	def := DefaultConfig()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = def.MinConfidence
	}
	if cfg.DefaultBaseConfidence <= 0 {
		cfg.DefaultBaseConfidence = def.DefaultBaseConfidence
	}
	if cfg.TestKeywordPenalty <= 0 {
		cfg.TestKeywordPenalty = def.TestKeywordPenalty
	}
	if cfg.ProductionKeywordBoost <= 0 {
		cfg.ProductionKeywordBoost = def.ProductionKeywordBoost
	}
	if cfg.NegativeKeywordPenalty <= 0 {
		cfg.NegativeKeywordPenalty = def.NegativeKeywordPenalty
	}

	patterns := make(map[validators.PIIType][]*regexp.Regexp, len(defaultTestPatterns))
	for t, exprs := range defaultTestPatterns {
		for _, expr := range exprs {
			patterns[t] = append(patterns[t], regexp.MustCompile(`(?i)`+expr))
		}
	}

	return &ContextValidator{
		cfg:          cfg,
		testPatterns: patterns,
		exclusions:   make(map[string]struct{}),
	}
}

// Config returns the effective configuration.
func (v *ContextValidator) Config() Config { return v.cfg }

func normalizeForPatterns(value string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(value))
}

func digest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// IsTestData reports whether value matches a known placeholder pattern for t.
func (v *ContextValidator) IsTestData(value string, t validators.PIIType) bool {
	clean := normalizeForPatterns(value)
	for _, p := range v.testPatterns[t] {
		if p.MatchString(clean) {
			return true
		}
	}
	return false
}

// AddExclusion registers a value that must always be rejected, such as a
// well-known fixture number. Only its digest is retained.
func (v *ContextValidator) AddExclusion(value string) {
	v.mu.Lock()
	v.exclusions[digest(normalizeForPatterns(value))] = struct{}{}
	v.mu.Unlock()
}

// IsExcluded reports whether value was registered with AddExclusion.
func (v *ContextValidator) IsExcluded(value string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.exclusions[digest(normalizeForPatterns(value))]
	return ok
}

// ExtractKeywords scans the window around text[start:end] for test,
// production and negative keywords. The match itself is not scanned so a
// value cannot vote on its own context.
func (v *ContextValidator) ExtractKeywords(text string, start, end int) KeywordMatches {
	start, end = clampSpan(len(text), start, end)
	lo := start - v.cfg.WindowSize
	if lo < 0 {
		lo = 0
	}
	hi := end + v.cfg.WindowSize
	if hi > len(text) {
		hi = len(text)
	}
	window := strings.ToLower(text[lo:start] + " " + text[end:hi])

	words := make(map[string]struct{})
	for _, w := range wordPattern.FindAllString(window, -1) {
		words[w] = struct{}{}
	}

	var km KeywordMatches
	km.Test = intersect(words, testKeywords)
	km.Production = intersect(words, productionKeywords)
	km.Negative = intersect(words, negativeKeywords)
	return km
}

// AdjustConfidence compounds one factor per distinct keyword and clamps the
// result to [0, 1].
func (v *ContextValidator) AdjustConfidence(base float64, km KeywordMatches) float64 {
	c := base
	c *= math.Pow(1-v.cfg.TestKeywordPenalty, float64(len(km.Test)))
	c *= math.Pow(1+v.cfg.ProductionKeywordBoost, float64(len(km.Production)))
	c *= math.Pow(1-v.cfg.NegativeKeywordPenalty, float64(len(km.Negative)))
	return clamp01(c)
}

// Assess runs the full context analysis for a candidate located at
// text[start:end]. A non-positive base uses the configured default.
func (v *ContextValidator) Assess(value string, t validators.PIIType, text string, start, end int, base float64) Assessment {
	if base <= 0 {
		base = v.cfg.DefaultBaseConfidence
	}
	base = clamp01(base)

	if v.IsExcluded(value) {
		return Assessment{Base: base, Adjusted: 0, Verdict: Reject, Reason: ReasonExcluded}
	}
	if v.IsTestData(value, t) {
		return Assessment{Base: base, Adjusted: 0, Verdict: Reject, Reason: ReasonTestData, TestData: true}
	}

	km := v.ExtractKeywords(text, start, end)
	adjusted := v.AdjustConfidence(base, km)
	a := Assessment{
		Base:     base,
		Adjusted: adjusted,
		Keywords: km.All(),
		Verdict:  Accept,
		Reason:   ReasonValid,
	}
	if adjusted < v.cfg.MinConfidence {
		a.Verdict = Reject
		kws := "none"
		if len(a.Keywords) > 0 {
			kws = strings.Join(a.Keywords, ", ")
		}
		a.Reason = fmt.Sprintf(reasonLowConfidence, kws)
	}
	return a
}

// Statistics reports the size of the rule set.
func (v *ContextValidator) Statistics() Statistics {
	s := Statistics{
		TestPatterns:       make(map[string]int, len(v.testPatterns)),
		TestKeywords:       len(testKeywords),
		ProductionKeywords: len(productionKeywords),
		NegativeKeywords:   len(negativeKeywords),
	}
	for t, ps := range v.testPatterns {
		s.TestPatterns[string(t)] = len(ps)
		s.TotalTestPatterns += len(ps)
	}
	v.mu.RLock()
	s.ExclusionListSize = len(v.exclusions)
	v.mu.RUnlock()
	return s
}

func intersect(words map[string]struct{}, set []string) []string {
	var found []string
	for _, k := range set {
		if _, ok := words[k]; ok {
			found = append(found, k)
		}
	}
	return found
}

func clampSpan(n, start, end int) (int, int) {
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	if end < start {
		end = start
	}
	if end > n {
		end = n
	}
	return start, end
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
