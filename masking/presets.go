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

package masking

import (
	"fmt"
	"sort"
)

var presets = map[string]func() *Policy{
	"default":     DefaultPolicy,
	"strict":      StrictPolicy,
	"development": DevelopmentPolicy,
}

// DefaultPolicy partially masks every type in strict mode.
func DefaultPolicy() *Policy {
	p := NewPolicy("default")
	p.Description = "Default masking policy with partial masking for all PII types"
	return p
}

// StrictPolicy redacts everything and keeps backups for 90 days.
func StrictPolicy() *Policy {
	p := NewPolicy("strict")
	p.Description = "Strict policy with full redaction for all PII types"
	p.DefaultStrategy = string(Redact)
	p.BackupRetentionDays = 90
	p.PIITypeStrategies = map[string]string{
		"IN_AADHAAR":      string(Redact),
		"IN_PAN":          string(Redact),
		"IN_PASSPORT":     string(Redact),
		"CREDIT_CARD":     string(Redact),
		"IN_BANK_ACCOUNT": string(Redact),
	}
	return p
}

// DevelopmentPolicy tokenizes values so joins survive, runs leniently and
// skips test assets.
func DevelopmentPolicy() *Policy {
	p := NewPolicy("development")
	p.Description = "Development policy with tokenization for testing"
	p.Mode = ModeLenient
	p.DefaultStrategy = string(Tokenize)
	p.RequireConfirmation = false
	p.ExcludedAssets = []string{"/data/test/*", "test_*"}
	return p
}

// Preset returns a fresh copy of a named preset.
func Preset(name string) (*Policy, error) {
	fn, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown policy preset %q", name)
	}
	return fn(), nil
}

// PresetNames lists the preset names in order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
