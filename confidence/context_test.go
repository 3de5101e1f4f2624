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
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/bharat-parihar/ARC-Hawk/validators"
)

const aadhaarValue = "234123412346"

func assessIn(v *ContextValidator, text string, base float64) Assessment {
	start := strings.Index(text, aadhaarValue)
	return v.Assess(aadhaarValue, validators.Aadhaar, text, start, start+len(aadhaarValue), base)
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestIsTestData(t *testing.T) {
	v := NewContextValidator(DefaultConfig())
	tests := []struct {
		piiType validators.PIIType
		value   string
		want    bool
	}{
		{validators.Phone, "9999999999", true},
		{validators.Phone, "99999 99999", true},
		{validators.Phone, "1234567890", true},
		{validators.Phone, "9845012367", false},
		{validators.Email, "TEST@TEST.COM", true},
		{validators.Email, "noreply@corp.in", true},
		{validators.Email, "john@corp.in", false},
		{validators.PAN, "AAAAA0000A", true},
		{validators.PAN, "testp0000s", true},
		{validators.Aadhaar, "1111-1111-1111", true},
		{validators.Aadhaar, aadhaarValue, false},
		{validators.CreditCard, "1234567890123456", true},
		{validators.BankAccount, "00000000000", true},
		{validators.UPI, "test@upi", false},
	}

	for _, tt := range tests {
		if got := v.IsTestData(tt.value, tt.piiType); got != tt.want {
			t.Errorf("IsTestData(%q, %s) = %v, want %v", tt.value, tt.piiType, got, tt.want)
		}
	}
}

func TestAssess_TestDataRejected(t *testing.T) {
	v := NewContextValidator(DefaultConfig())
	a := v.Assess("9999999999", validators.Phone, "call 9999999999", 5, 15, 0.9)
	if a.Verdict != Reject || a.Adjusted != 0 || !a.TestData {
		t.Fatalf("Assess() = %+v, want test-data rejection", a)
	}
	if a.Reason != ReasonTestData {
		t.Errorf("Reason = %q, want %q", a.Reason, ReasonTestData)
	}
	if strings.Contains(a.Reason, "9999999999") {
		t.Error("reason must not echo the value")
	}
}

func TestAssess_KeywordAdjustment(t *testing.T) {
	v := NewContextValidator(DefaultConfig())
	tests := []struct {
		name     string
		text     string
		adjusted float64
		verdict  Verdict
		keywords []string
	}{
		{
			name:     "neutral",
			text:     "aadhaar " + aadhaarValue + " on record",
			adjusted: 0.95,
			verdict:  Accept,
		},
		{
			name:     "production keywords clamp",
			text:     "Customer account aadhaar " + aadhaarValue,
			adjusted: 1.0,
			verdict:  Accept,
			keywords: []string{"account", "customer"},
		},
		{
			name:     "three test keywords",
			text:     "dummy test sample row " + aadhaarValue,
			adjusted: 0.95 * 0.85 * 0.85 * 0.85,
			verdict:  Accept,
			keywords: []string{"dummy", "sample", "test"},
		},
		{
			name:     "four test keywords",
			text:     "dummy test sample fake row " + aadhaarValue,
			adjusted: 0.95 * 0.85 * 0.85 * 0.85 * 0.85,
			verdict:  Reject,
			keywords: []string{"dummy", "fake", "sample", "test"},
		},
		{
			name:     "negative keywords",
			text:     aadhaarValue + " invalid wrong error",
			adjusted: 0.95 * 0.75 * 0.75 * 0.75,
			verdict:  Reject,
			keywords: []string{"error", "invalid", "wrong"},
		},
		{
			name:     "mixed",
			text:     "test customer " + aadhaarValue,
			adjusted: 0.95 * 0.85 * 1.05,
			verdict:  Accept,
			keywords: []string{"customer", "test"},
		},
		{
			name:     "repeated keyword counts once",
			text:     "test test test " + aadhaarValue,
			adjusted: 0.95 * 0.85,
			verdict:  Accept,
			keywords: []string{"test"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := assessIn(v, tt.text, 0)
			if !almostEqual(a.Adjusted, tt.adjusted) {
				t.Errorf("Adjusted = %v, want %v", a.Adjusted, tt.adjusted)
			}
			if a.Verdict != tt.verdict {
				t.Errorf("Verdict = %q, want %q (reason %q)", a.Verdict, tt.verdict, a.Reason)
			}
			if len(a.Keywords) != len(tt.keywords) || (len(tt.keywords) > 0 && !reflect.DeepEqual(a.Keywords, tt.keywords)) {
				t.Errorf("Keywords = %v, want %v", a.Keywords, tt.keywords)
			}
		})
	}
}

func TestAssess_LowConfidenceReason(t *testing.T) {
	v := NewContextValidator(DefaultConfig())
	a := assessIn(v, "dummy test sample fake "+aadhaarValue, 0)
	want := "Rejected: Low confidence after context analysis (keywords: dummy, fake, sample, test)"
	if a.Reason != want {
		t.Errorf("Reason = %q, want %q", a.Reason, want)
	}

	a = v.Assess(aadhaarValue, validators.Aadhaar, aadhaarValue, 0, len(aadhaarValue), 0.3)
	if a.Reason != "Rejected: Low confidence after context analysis (keywords: none)" {
		t.Errorf("Reason = %q", a.Reason)
	}
}

func TestExtractKeywords_WindowBounds(t *testing.T) {
	v := NewContextValidator(DefaultConfig())
	text := "test" + strings.Repeat(" ", 150) + aadhaarValue
	start := strings.Index(text, aadhaarValue)
	km := v.ExtractKeywords(text, start, start+len(aadhaarValue))
	if len(km.All()) != 0 {
		t.Errorf("keywords outside the window were picked up: %v", km.All())
	}

	narrow := NewContextValidator(Config{WindowSize: 10})
	km = narrow.ExtractKeywords("customer "+aadhaarValue, 9, 21)
	if !reflect.DeepEqual(km.Production, []string{"customer"}) {
		t.Errorf("Production = %v, want [customer]", km.Production)
	}
}

func TestExtractKeywords_IgnoresMatchItself(t *testing.T) {
	v := NewContextValidator(DefaultConfig())
	text := "contact test@corp.in"
	km := v.ExtractKeywords(text, 8, len(text))
	if len(km.All()) != 0 {
		t.Errorf("match text contributed keywords: %v", km.All())
	}
}

func TestExtractKeywords_OutOfRangeSpan(t *testing.T) {
	v := NewContextValidator(DefaultConfig())
	km := v.ExtractKeywords("customer record", -5, 500)
	if len(km.All()) != 0 {
		t.Errorf("expected empty window for a span covering the whole text, got %v", km.All())
	}
}

func TestExclusionList(t *testing.T) {
	v := NewContextValidator(DefaultConfig())
	v.AddExclusion("2341 2341 2346")

	if !v.IsExcluded(aadhaarValue) {
		t.Fatal("expected normalised value to be excluded")
	}
	a := assessIn(v, "customer "+aadhaarValue, 0.9)
	if a.Verdict != Reject || a.Reason != ReasonExcluded {
		t.Errorf("Assess() = %+v, want exclusion rejection", a)
	}
	if v.Statistics().ExclusionListSize != 1 {
		t.Errorf("ExclusionListSize = %d, want 1", v.Statistics().ExclusionListSize)
	}
}

func TestStatistics(t *testing.T) {
	s := NewContextValidator(DefaultConfig()).Statistics()
	if s.TotalTestPatterns != 25 {
		t.Errorf("TotalTestPatterns = %d, want 25", s.TotalTestPatterns)
	}
	if s.TestPatterns[string(validators.Email)] != 7 {
		t.Errorf("email patterns = %d, want 7", s.TestPatterns[string(validators.Email)])
	}
	if s.TestKeywords != 13 || s.ProductionKeywords != 11 || s.NegativeKeywords != 6 {
		t.Errorf("keyword counts = %d/%d/%d, want 13/11/6", s.TestKeywords, s.ProductionKeywords, s.NegativeKeywords)
	}
}

func TestNewContextValidator_Defaults(t *testing.T) {
	cfg := NewContextValidator(Config{}).Config()
	if cfg != DefaultConfig() {
		t.Errorf("Config() = %+v, want %+v", cfg, DefaultConfig())
	}
}

func TestContextValidator_Concurrent(t *testing.T) {
	v := NewContextValidator(DefaultConfig())
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			v.AddExclusion("9845012367")
		}()
		go func() {
			defer wg.Done()
			_ = assessIn(v, "customer "+aadhaarValue, 0)
		}()
	}
	wg.Wait()
	if v.Statistics().ExclusionListSize != 1 {
		t.Errorf("ExclusionListSize = %d, want 1", v.Statistics().ExclusionListSize)
	}
}
