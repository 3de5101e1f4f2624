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

package validators

import "strings"

// DummyReason names the rule that flagged a value as dummy data.
type DummyReason string

const (
	DummyNone          DummyReason = ""
	DummyAllSame       DummyReason = "all_same"
	DummySequence      DummyReason = "sequence"
	DummyRepeatedHalf  DummyReason = "repeated_half"
	DummyRepeatedBlock DummyReason = "repeated_block"
	DummyLowVariety    DummyReason = "low_variety"
)

// IsDummyData reports whether a cleaned digit string is structurally
// meaningless test data.
func IsDummyData(s string) bool {
	return DetectDummy(s) != DummyNone
}

// DetectDummy runs the dummy-data rules in order and returns the first match.
func DetectDummy(s string) DummyReason {
	if len(s) < 3 {
		return DummyNone
	}
	if allSame(s) {
		return DummyAllSame
	}
	if len(s) >= 4 && (isWrappingRun(s, true) || isWrappingRun(s, false)) {
		return DummySequence
	}
	// An odd length leaves the last byte out of the comparison.
	if half := len(s) / 2; len(s) >= 6 && s[:half] == s[half:2*half] {
		return DummyRepeatedHalf
	}
	if len(s) >= 6 && len(s)%3 == 0 && s == strings.Repeat(s[:3], len(s)/3) {
		return DummyRepeatedBlock
	}
	if len(s) >= 10 && distinctBytes(s) <= 2 {
		return DummyLowVariety
	}
	return DummyNone
}

func distinctBytes(s string) int {
	var seen [256]bool
	n := 0
	for i := 0; i < len(s); i++ {
		if !seen[s[i]] {
			seen[s[i]] = true
			n++
		}
	}
	return n
}
