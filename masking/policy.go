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
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Mode is the enforcement mode of a policy.
type Mode string

// Policy modes.
const (
	// ModeStrict fails a location when any finding cannot be masked.
	ModeStrict Mode = "strict"
	// ModeLenient completes a location with a non-zero failed count.
	ModeLenient Mode = "lenient"
	// ModeDryRun reports would-be counts without mutating anything.
	ModeDryRun Mode = "dry_run"
)

// Policy defaults.
const (
	DefaultMaxFindingsPerRun   = 10000
	DefaultBackupRetentionDays = 30
)

// ErrInvalidPolicy wraps every policy validation failure.
var ErrInvalidPolicy = errors.New("invalid masking policy")

// SecretResolver resolves a secret reference such as env://NAME.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Policy decides whether and how findings are masked.
type Policy struct {
	Name                string            `json:"name" yaml:"name"`
	Description         string            `json:"description" yaml:"description"`
	Mode                Mode              `json:"mode" yaml:"mode"`
	PIITypeStrategies   map[string]string `json:"pii_type_strategies" yaml:"pii_type_strategies"`
	DefaultStrategy     string            `json:"default_strategy" yaml:"default_strategy"`
	BackupEnabled       bool              `json:"backup_enabled" yaml:"backup_enabled"`
	BackupRetentionDays int               `json:"backup_retention_days" yaml:"backup_retention_days"`
	ExcludedAssets      []string          `json:"excluded_assets" yaml:"excluded_assets"`
	ExcludedPIITypes    []string          `json:"excluded_pii_types" yaml:"excluded_pii_types"`
	RequireConfirmation bool              `json:"require_confirmation" yaml:"require_confirmation"`
	MaxFindingsPerRun   int               `json:"max_findings_per_run" yaml:"max_findings_per_run"`
	// SecretKey keys TOKENIZE and FPE. It is read from policy documents but
	// never written back; SecretKeyRef is the persisted form.
	SecretKey    string `json:"secret_key,omitempty" yaml:"secret_key,omitempty"`
	SecretKeyRef string `json:"secret_key_ref,omitempty" yaml:"secret_key_ref,omitempty"`
}

// NewPolicy returns a policy with the documented defaults: strict mode,
// PARTIAL, backups kept 30 days, confirmation required, 10,000 findings.
func NewPolicy(name string) *Policy {
	return &Policy{
		Name:                name,
		Mode:                ModeStrict,
		PIITypeStrategies:   map[string]string{},
		DefaultStrategy:     string(Partial),
		BackupEnabled:       true,
		BackupRetentionDays: DefaultBackupRetentionDays,
		RequireConfirmation: true,
		MaxFindingsPerRun:   DefaultMaxFindingsPerRun,
	}
}

func normType(t string) string { return strings.ToUpper(strings.TrimSpace(t)) }

// ShouldMaskPIIType reports whether findings of t are masked at all.
func (p *Policy) ShouldMaskPIIType(t string) bool {
	nt := normType(t)
	for _, ex := range p.ExcludedPIITypes {
		if normType(ex) == nt {
			return false
		}
	}
	return true
}

// ShouldMaskAsset reports whether the asset is outside every exclusion.
func (p *Policy) ShouldMaskAsset(asset string) bool {
	for _, pattern := range p.ExcludedAssets {
		if MatchAsset(pattern, asset) {
			return false
		}
	}
	return true
}

// MatchAsset matches an asset against an exclusion pattern. A pattern
// without '*' must equal the asset. Otherwise each '*' stands for any run
// of characters, including '/'.
func MatchAsset(pattern, asset string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == asset
	}
	parts := strings.Split(pattern, "*")
	if !strings.HasPrefix(asset, parts[0]) {
		return false
	}
	rest := asset[len(parts[0]):]
	last := parts[len(parts)-1]
	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(rest, part)
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(part):]
	}
	return len(rest) >= len(last) && strings.HasSuffix(rest, last)
}

// StrategyFor returns the configured strategy name for t, falling back to
// the default strategy.
func (p *Policy) StrategyFor(t string) string {
	nt := normType(t)
	for k, v := range p.PIITypeStrategies {
		if normType(k) == nt {
			return strings.ToUpper(v)
		}
	}
	return strings.ToUpper(p.DefaultStrategy)
}

// StrategyInstance builds the strategy for t keyed with the policy secret.
func (p *Policy) StrategyInstance(t string) (Strategy, error) {
	return NewStrategy(p.StrategyFor(t), p.SecretKey)
}

// IsDryRun reports whether the policy runs in dry-run mode.
func (p *Policy) IsDryRun() bool { return p.Mode == ModeDryRun }

// Validate returns every validation problem, or nil.
func (p *Policy) Validate() []string {
	var errs []string
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, "Policy name is required")
	}
	switch p.Mode {
	case ModeStrict, ModeLenient, ModeDryRun:
	default:
		errs = append(errs, fmt.Sprintf("Invalid mode '%s'", p.Mode))
	}

	types := make([]string, 0, len(p.PIITypeStrategies))
	for t := range p.PIITypeStrategies {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		if s := p.PIITypeStrategies[t]; !ValidStrategy(s) {
			errs = append(errs, fmt.Sprintf("Invalid strategy '%s' for PII type '%s'", s, t))
		}
	}
	if !ValidStrategy(p.DefaultStrategy) {
		errs = append(errs, fmt.Sprintf("Invalid default strategy '%s'", p.DefaultStrategy))
	}
	if p.BackupRetentionDays < 0 {
		errs = append(errs, "Backup retention days must be >= 0")
	}
	if p.MaxFindingsPerRun <= 0 {
		errs = append(errs, "Max findings per run must be > 0")
	}
	return errs
}

// Check is Validate as an error wrapping ErrInvalidPolicy.
func (p *Policy) Check() error {
	if errs := p.Validate(); len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPolicy, strings.Join(errs, "; "))
	}
	return nil
}

// ResolveSecret fills SecretKey from SecretKeyRef when no key is set inline.
func (p *Policy) ResolveSecret(ctx context.Context, r SecretResolver) error {
	if p.SecretKey != "" || p.SecretKeyRef == "" {
		return nil
	}
	if r == nil {
		return fmt.Errorf("policy %s references a secret but no resolver is configured", p.Name)
	}
	key, err := r.Resolve(ctx, p.SecretKeyRef)
	if err != nil {
		return fmt.Errorf("failed to resolve secret for policy %s: %w", p.Name, err)
	}
	p.SecretKey = key
	return nil
}

// Clone returns a deep copy.
func (p *Policy) Clone() *Policy {
	c := *p
	c.PIITypeStrategies = make(map[string]string, len(p.PIITypeStrategies))
	for k, v := range p.PIITypeStrategies {
		c.PIITypeStrategies[k] = v
	}
	c.ExcludedAssets = append([]string(nil), p.ExcludedAssets...)
	c.ExcludedPIITypes = append([]string(nil), p.ExcludedPIITypes...)
	return &c
}

// Masker returns a Masker that applies the policy's strategy per PII type.
// The policy must be valid.
func (p *Policy) Masker() (Masker, error) {
	if err := p.Check(); err != nil {
		return nil, err
	}
	return &policyMasker{policy: p.Clone(), strategies: map[string]Strategy{}}, nil
}

type policyMasker struct {
	policy     *Policy
	mu         sync.Mutex
	strategies map[string]Strategy
}

func (m *policyMasker) Mask(value, piiType string) string {
	name := m.policy.StrategyFor(piiType)
	m.mu.Lock()
	s, ok := m.strategies[name]
	if !ok {
		// Names were validated by Check.
		s, _ = NewStrategy(name, m.policy.SecretKey)
		m.strategies[name] = s
	}
	m.mu.Unlock()
	return s.Mask(value, piiType)
}
