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
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchAsset(t *testing.T) {
	tests := []struct {
		pattern string
		asset   string
		want    bool
	}{
		{"/data/prod/users.csv", "/data/prod/users.csv", true},
		{"/data/prod/users.csv", "/data/prod/users.csv.bak", false},
		{"/data/test/*", "/data/test/file.csv", true},
		{"/data/test/*", "/data/test/nested/file.csv", true},
		{"/data/test/*", "/data/prod/file.csv", false},
		{"test_*", "test_table", true},
		{"test_*", "public.test_table", false},
		{"*.bak", "/tmp/users.bak", true},
		{"*.bak", "/tmp/users.csv", false},
		{"/data/*/archive/*", "/data/2024/archive/x.json", true},
		{"ab*b", "ab", false},
		{"*", "anything", true},
	}
	for _, tt := range tests {
		if got := MatchAsset(tt.pattern, tt.asset); got != tt.want {
			t.Errorf("MatchAsset(%q, %q) = %v, want %v", tt.pattern, tt.asset, got, tt.want)
		}
	}
}

func TestPolicy_Predicates(t *testing.T) {
	p := DevelopmentPolicy()
	p.ExcludedPIITypes = []string{"IN_PHONE"}
	p.PIITypeStrategies = map[string]string{"in_aadhaar": "redact"}

	assert.False(t, p.ShouldMaskAsset("/data/test/file.csv"))
	assert.True(t, p.ShouldMaskAsset("/data/prod/file.csv"))
	assert.False(t, p.ShouldMaskAsset("test_table"))

	assert.False(t, p.ShouldMaskPIIType("in_phone"))
	assert.True(t, p.ShouldMaskPIIType("IN_AADHAAR"))

	assert.Equal(t, "REDACT", p.StrategyFor("IN_AADHAAR"))
	assert.Equal(t, "TOKENIZE", p.StrategyFor("EMAIL_ADDRESS"))
}

func TestPolicy_Validate(t *testing.T) {
	p := NewPolicy("")
	p.Mode = "aggressive"
	p.DefaultStrategy = "HASH"
	p.PIITypeStrategies = map[string]string{"IN_PAN": "SCRAMBLE", "IN_UPI": "partial"}
	p.BackupRetentionDays = -1
	p.MaxFindingsPerRun = 0

	errs := p.Validate()
	assert.Equal(t, []string{
		"Policy name is required",
		"Invalid mode 'aggressive'",
		"Invalid strategy 'SCRAMBLE' for PII type 'IN_PAN'",
		"Invalid default strategy 'HASH'",
		"Backup retention days must be >= 0",
		"Max findings per run must be > 0",
	}, errs)

	err := p.Check()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPolicy))

	_, err = p.Masker()
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestPresets(t *testing.T) {
	assert.Equal(t, []string{"default", "development", "strict"}, PresetNames())
	for _, name := range PresetNames() {
		p, err := Preset(name)
		require.NoError(t, err)
		assert.Empty(t, p.Validate(), name)
		assert.Equal(t, name, p.Name)
	}

	def := DefaultPolicy()
	assert.Equal(t, ModeStrict, def.Mode)
	assert.Equal(t, "PARTIAL", def.DefaultStrategy)
	assert.Equal(t, 10000, def.MaxFindingsPerRun)
	assert.Equal(t, 30, def.BackupRetentionDays)

	strict := StrictPolicy()
	assert.Equal(t, "REDACT", strict.StrategyFor("IN_PHONE"))
	assert.Equal(t, 90, strict.BackupRetentionDays)

	dev := DevelopmentPolicy()
	assert.Equal(t, ModeLenient, dev.Mode)
	assert.False(t, dev.RequireConfirmation)

	_, err := Preset("paranoid")
	assert.Error(t, err)
}

func TestPolicy_Masker(t *testing.T) {
	p := DefaultPolicy()
	p.PIITypeStrategies = map[string]string{"IN_AADHAAR": "REDACT", "IN_PAN": "TOKENIZE"}
	p.SecretKey = "s3cr3t"

	m, err := p.Masker()
	require.NoError(t, err)

	assert.Equal(t, "jo****@example.com", m.Mask("john@example.com", "EMAIL_ADDRESS"))
	assert.Equal(t, Redacted, m.Mask("234567890124", "IN_AADHAAR"))
	assert.Equal(t, NewTokenizeStrategy("s3cr3t").Mask("ABCDE1234F", "IN_PAN"), m.Mask("ABCDE1234F", "IN_PAN"))

	// Later edits to the policy do not leak into an existing masker.
	p.DefaultStrategy = "REDACT"
	assert.Equal(t, "jo****@example.com", m.Mask("john@example.com", "EMAIL_ADDRESS"))
}

type mapResolver map[string]string

func (r mapResolver) Resolve(_ context.Context, ref string) (string, error) {
	if v, ok := r[ref]; ok {
		return v, nil
	}
	return "", errors.New("not found")
}

func TestPolicy_ResolveSecret(t *testing.T) {
	ctx := context.Background()

	p := DefaultPolicy()
	p.SecretKeyRef = "env://HAWK_KEY"
	require.NoError(t, p.ResolveSecret(ctx, mapResolver{"env://HAWK_KEY": "from-ref"}))
	assert.Equal(t, "from-ref", p.SecretKey)

	inline := DefaultPolicy()
	inline.SecretKey = "inline"
	inline.SecretKeyRef = "env://HAWK_KEY"
	require.NoError(t, inline.ResolveSecret(ctx, mapResolver{"env://HAWK_KEY": "from-ref"}))
	assert.Equal(t, "inline", inline.SecretKey)

	missing := DefaultPolicy()
	missing.SecretKeyRef = "env://NOPE"
	assert.Error(t, missing.ResolveSecret(ctx, mapResolver{}))
	assert.Error(t, missing.ResolveSecret(ctx, nil))

	assert.NoError(t, DefaultPolicy().ResolveSecret(ctx, nil))
}

func TestPolicy_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, file := range []string{"policy.yaml", "policy.json"} {
		t.Run(file, func(t *testing.T) {
			p := DevelopmentPolicy()
			p.PIITypeStrategies = map[string]string{"IN_PAN": "FPE"}
			p.ExcludedPIITypes = []string{"IN_PHONE"}
			p.SecretKey = "never-written"
			p.SecretKeyRef = "env://HAWK_KEY"

			path := filepath.Join(dir, file)
			require.NoError(t, p.Save(path))

			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.NotContains(t, string(raw), "never-written")
			assert.Equal(t, "never-written", p.SecretKey, "Save must not modify the policy")

			loaded, err := LoadPolicy(path)
			require.NoError(t, err)
			assert.Equal(t, p.Name, loaded.Name)
			assert.Equal(t, p.Mode, loaded.Mode)
			assert.Equal(t, p.DefaultStrategy, loaded.DefaultStrategy)
			assert.Equal(t, p.PIITypeStrategies, loaded.PIITypeStrategies)
			assert.Equal(t, p.ExcludedAssets, loaded.ExcludedAssets)
			assert.Equal(t, p.ExcludedPIITypes, loaded.ExcludedPIITypes)
			assert.Equal(t, p.RequireConfirmation, loaded.RequireConfirmation)
			assert.Equal(t, "env://HAWK_KEY", loaded.SecretKeyRef)
			assert.Empty(t, loaded.SecretKey)
		})
	}
}

func TestParsePolicy_DefaultsAndEnv(t *testing.T) {
	t.Setenv("HAWK_TEST_STRATEGY", "redact")
	doc := `
name: ops
pii_type_strategies:
  IN_AADHAAR: ${HAWK_TEST_STRATEGY}
  IN_PAN: ${HAWK_TEST_UNSET:-TOKENIZE}
secret_key: inline-key
`
	p, err := ParsePolicy([]byte(doc), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, "ops", p.Name)
	assert.Equal(t, ModeStrict, p.Mode)
	assert.Equal(t, "PARTIAL", p.DefaultStrategy)
	assert.True(t, p.BackupEnabled)
	assert.Equal(t, 30, p.BackupRetentionDays)
	assert.Equal(t, 10000, p.MaxFindingsPerRun)
	assert.Equal(t, "REDACT", p.StrategyFor("IN_AADHAAR"))
	assert.Equal(t, "TOKENIZE", p.StrategyFor("IN_PAN"))
	assert.Equal(t, "inline-key", p.SecretKey)
}

func TestParsePolicy_Errors(t *testing.T) {
	_, err := ParsePolicy([]byte(`{"name": "x", "default_strategy": "HASH"}`), FormatJSON)
	assert.ErrorIs(t, err, ErrInvalidPolicy)

	_, err = ParsePolicy([]byte(`{"name": `), FormatJSON)
	assert.Error(t, err)

	_, err = ParsePolicy([]byte(`name: x`), Format("toml"))
	assert.Error(t, err)

	_, err = LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	assert.False(t, strings.Contains(err.Error(), "HASH"))
}

func TestPolicy_ScenarioPartialEmail(t *testing.T) {
	p := NewPolicy("scenario")
	p.DefaultStrategy = "PARTIAL"
	s, err := p.StrategyInstance("EMAIL_ADDRESS")
	require.NoError(t, err)
	assert.Equal(t, Partial, s.Name())
	assert.Equal(t, "jo****@example.com", s.Mask("john@example.com", "EMAIL_ADDRESS"))
}
