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

import "regexp"

// linePatterns are matched line by line by the heuristic scorer. Names of
// the locked types resolve to a validator; the secret patterns have none
// and are judged on the heuristic score alone.
var linePatterns = map[string]string{
	"Aadhaar":        `\b[2-9][0-9]{3}[-\s]?[0-9]{4}[-\s]?[0-9]{4}\b`,
	"Credit Card":    `\b[0-9]{4}[-\s]?[0-9]{4}[-\s]?[0-9]{4}[-\s]?[0-9]{4}\b`,
	"PAN":            `\b[A-Z]{5}[0-9]{4}[A-Z]\b`,
	"Email":          `\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`,
	"Phone":          `\b[6-9][0-9]{9}\b`,
	"IFSC":           `\b[A-Z]{4}0[A-Z0-9]{6}\b`,
	"Passport":       `\b[A-Z][0-9]{7}\b`,
	"Voter ID":       `\b[A-Z]{3}[0-9]{7}\b`,
	"AWS Access Key": `\bAKIA[0-9A-Z]{16}\b`,
	"Secret Key":     `\b(?:sk|rk)_(?:live|test)_[0-9A-Za-z]{16,}\b`,
	"GitHub Token":   `\bgh[pousr]_[0-9A-Za-z]{36}\b`,
}

var compiledLinePatterns = func() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(linePatterns))
	for name, expr := range linePatterns {
		out[name] = regexp.MustCompile(expr)
	}
	return out
}()

// LinePatterns returns the patterns used for line-level heuristic scanning.
// The map is a fresh copy; the regexps are shared and safe for concurrent
// use.
func LinePatterns() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(compiledLinePatterns))
	for name, re := range compiledLinePatterns {
		out[name] = re
	}
	return out
}
