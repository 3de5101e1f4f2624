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

var blacklistedDomains = map[string]struct{}{
	"test.com":          {},
	"example.com":       {},
	"example.org":       {},
	"example.net":       {},
	"dummy.com":         {},
	"sample.com":        {},
	"fake.com":          {},
	"mock.com":          {},
	"localhost":         {},
	"test.local":        {},
	"dev.local":         {},
	"local":             {},
	"127.0.0.1":         {},
	"mailinator.com":    {},
	"guerrillamail.com": {},
	"temp-mail.org":     {},
	"10minutemail.com":  {},
	"throwaway.email":   {},
	"test":              {},
	"invalid":           {},
}

var blacklistedDomainWords = []string{"test", "dummy", "fake", "sample", "example"}

// IsBlacklistedDomain reports whether an email domain is a known test,
// placeholder or disposable-mail domain.
func IsBlacklistedDomain(domain string) bool {
	d := strings.ToLower(strings.TrimSpace(domain))
	if _, ok := blacklistedDomains[d]; ok {
		return true
	}
	for _, w := range blacklistedDomainWords {
		if strings.Contains(d, w) {
			return true
		}
	}
	return false
}
