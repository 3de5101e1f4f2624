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

import (
	"errors"
	"regexp"
	"strings"
)

var panPattern = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)

// Legal holder-type codes at the 4th position (P individual, C company, ...).
const panEntityCodes = "PCHFATBLJG"

var panSequentialPrefixes = []string{"ABCDE", "BCDEF", "CDEFG", "DEFGH", "EFGHI", "FGHIJ"}

// Markers that put a PAN-shaped token inside source code rather than data.
var panCodeIndicators = []string{
	"test_", "example", "sample", "demo", "dummy",
	"def ", "class ", "import ", `"""`, "'''",
	".py", ".js", ".java",
}

func panCharValue(c byte) int {
	if c >= '0' && c <= '9' {
		return int(c - '0')
	}
	return int(c-'A') + 10
}

// PANCheckLetter computes the weighted mod-26 check letter for the first nine
// characters of a tax ID.
func PANCheckLetter(first9 string) (byte, error) {
	if len(first9) != 9 {
		return 0, errors.New("PAN prefix must be 9 characters")
	}
	first9 = strings.ToUpper(first9)
	sum := 0
	for i := 0; i < 9; i++ {
		c := first9[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return 0, errors.New("PAN prefix must be alphanumeric")
		}
		sum += panCharValue(c) * (i + 1)
	}
	return byte('A' + sum%26), nil
}

// panLooksFake applies the anti-fake gates that are independent of the checksum.
func panLooksFake(pan string) bool {
	letters := pan[:5]
	if allSame(letters) {
		return true
	}
	run := 1
	for i := 1; i < len(letters); i++ {
		if letters[i] == letters[i-1] {
			run++
			if run >= 4 {
				return true
			}
		} else {
			run = 1
		}
	}
	for _, seq := range panSequentialPrefixes {
		if letters == seq {
			return true
		}
	}
	return allSame(pan[5:9])
}

var panSeparators = strings.NewReplacer(" ", "", "-", "")

// PANValid validates a 10-character tax ID of the form LLLLLDDDDL. Spaces
// and hyphens are ignored.
func PANValid(value string) bool {
	pan := strings.ToUpper(panSeparators.Replace(strings.TrimSpace(value)))
	if !panPattern.MatchString(pan) {
		return false
	}
	if !strings.ContainsRune(panEntityCodes, rune(pan[3])) {
		return false
	}
	if panLooksFake(pan) {
		return false
	}
	want, err := PANCheckLetter(pan[:9])
	if err != nil {
		return false
	}
	return pan[9] == want
}

// PANValidInContext additionally rejects a PAN whose surrounding text looks
// like source code or fixture data.
func PANValidInContext(value, context string) bool {
	if !PANValid(value) {
		return false
	}
	lower := strings.ToLower(context)
	for _, marker := range panCodeIndicators {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}
