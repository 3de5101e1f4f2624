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

package recognizer

import (
	"context"
	"regexp"
	"strings"

	"github.com/bharat-parihar/ARC-Hawk/validators"
)

// typedPattern matches one PII type. The value is capture group 1; the
// leading group stands in for a look-behind. follow lists the bytes that may
// not directly trail a match, standing in for a negative look-ahead.
type typedPattern struct {
	piiType validators.PIIType
	name    string
	re      *regexp.Regexp
	follow  string
}

const (
	digitChars = "0123456789"
	upperAlnum = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	emailTail  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789._%+-"
	upiTail    = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789._-"
)

// Patterns are listed in priority order: when two types claim exactly the
// same span, the earlier one wins.
var defaultPatterns = []typedPattern{
	{validators.Aadhaar, "Aadhaar", regexp.MustCompile(`(?:^|[^0-9])([2-9][0-9]{3}[-\s]?[0-9]{4}[-\s]?[0-9]{4})`), digitChars},
	{validators.CreditCard, "Credit Card", regexp.MustCompile(`(?:^|[^0-9])([0-9]{4}[-\s]?[0-9]{4}[-\s]?[0-9]{4}[-\s]?[0-9]{4})`), digitChars},
	{validators.PAN, "PAN", regexp.MustCompile(`(?:^|[^A-Z])([A-Z]{5}[0-9]{4}[A-Z])`), upperAlnum},
	{validators.Email, "Email", regexp.MustCompile(`(?:^|[^A-Za-z0-9])([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`), emailTail},
	{validators.UPI, "UPI", regexp.MustCompile(`(?:^|[^a-zA-Z0-9])([a-zA-Z0-9._-]+@[a-zA-Z0-9_-]+)`), upiTail},
	{validators.IFSC, "IFSC", regexp.MustCompile(`(?:^|[^A-Z0-9])([A-Z]{4}0[A-Z0-9]{6})`), upperAlnum},
	{validators.Phone, "Phone", regexp.MustCompile(`(?:^|[^0-9+])((?:\+91[-\s]?|0)?[6-9][0-9]{9})`), digitChars},
	{validators.Passport, "Passport", regexp.MustCompile(`(?:^|[^A-Z0-9])([A-Z][0-9]{7})`), upperAlnum},
	{validators.VoterID, "Voter ID", regexp.MustCompile(`(?:^|[^A-Z0-9])([A-Z]{3}[0-9]{7})`), upperAlnum},
	{validators.DrivingLicense, "Driving License", regexp.MustCompile(`(?:^|[^A-Z0-9])([A-Z]{2}[-\s]?[0-9]{2}[-\s]?[0-9]{11})`), upperAlnum},
	{validators.BankAccount, "Bank Account", regexp.MustCompile(`(?:^|[^0-9])([0-9]{9,18})`), digitChars},
}

// RegexRecognizer finds candidates for the locked PII types with fixed
// patterns. Its spans carry no score.
type RegexRecognizer struct {
	patterns []typedPattern
}

// NewRegexRecognizer returns a recognizer over every locked type, or only
// over the listed types when any are given.
func NewRegexRecognizer(types ...validators.PIIType) *RegexRecognizer {
	if len(types) == 0 {
		return &RegexRecognizer{patterns: defaultPatterns}
	}
	want := make(map[validators.PIIType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	var ps []typedPattern
	for _, p := range defaultPatterns {
		if want[p.piiType] {
			ps = append(ps, p)
		}
	}
	return &RegexRecognizer{patterns: ps}
}

// Name implements Recognizer.
func (r *RegexRecognizer) Name() string { return "regex" }

// Analyze implements Recognizer. A span lying inside one already claimed
// by a higher-priority type is dropped, so a 12-digit ID is not reported a
// second time as a bank account.
func (r *RegexRecognizer) Analyze(ctx context.Context, text string) ([]Span, error) {
	var spans []Span

	for _, p := range r.patterns {
		if err := ctx.Err(); err != nil {
			return spans, err
		}
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[2], m[3]
			if start < 0 {
				continue
			}
			if end < len(text) && strings.IndexByte(p.follow, text[end]) >= 0 {
				continue
			}
			if covered(spans, start, end) {
				continue
			}
			spans = append(spans, Span{
				EntityType: string(p.piiType),
				Start:      start,
				End:        end,
				Recognizer: p.name,
			})
		}
	}
	SortSpans(spans)
	return spans, nil
}

func covered(spans []Span, start, end int) bool {
	for _, s := range spans {
		if s.Start <= start && end <= s.End {
			return true
		}
	}
	return false
}
