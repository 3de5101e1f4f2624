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

// Package masking holds the value-level masking strategies and the policy
// that selects them. Nothing here reads or writes storage.
package masking

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// StrategyName identifies a masking strategy.
type StrategyName string

// Supported strategies.
const (
	Redact   StrategyName = "REDACT"
	Partial  StrategyName = "PARTIAL"
	Tokenize StrategyName = "TOKENIZE"
	FPE      StrategyName = "FPE"
)

// Redacted replaces a fully redacted value.
const Redacted = "[REDACTED]"

const (
	defaultTokenizeKey = "default_secret_key_change_in_production"
	defaultFPEKey      = "default_fpe_key_change_in_production"
)

// ErrUnknownStrategy is returned for a strategy name outside StrategyNames.
var ErrUnknownStrategy = errors.New("unknown masking strategy")

// Masker rewrites one value of a PII type.
type Masker interface {
	Mask(value, piiType string) string
}

// Strategy is a named Masker.
type Strategy interface {
	Masker
	Name() StrategyName
}

// StrategyNames lists the supported strategies.
func StrategyNames() []StrategyName {
	return []StrategyName{Redact, Partial, Tokenize, FPE}
}

// ValidStrategy reports whether name (any case) is a supported strategy.
func ValidStrategy(name string) bool {
	n := StrategyName(strings.ToUpper(strings.TrimSpace(name)))
	for _, s := range StrategyNames() {
		if s == n {
			return true
		}
	}
	return false
}

// NewStrategy builds a strategy by name. secret keys TOKENIZE and FPE; an
// empty secret falls back to a built-in development key.
func NewStrategy(name, secret string) (Strategy, error) {
	switch StrategyName(strings.ToUpper(strings.TrimSpace(name))) {
	case Redact:
		return RedactStrategy{}, nil
	case Partial:
		return PartialStrategy{}, nil
	case Tokenize:
		return NewTokenizeStrategy(secret), nil
	case FPE:
		return NewFPEStrategy(secret), nil
	default:
		return nil, fmt.Errorf("%w: %q (valid: REDACT, PARTIAL, TOKENIZE, FPE)", ErrUnknownStrategy, name)
	}
}

// RedactStrategy replaces every value with Redacted.
type RedactStrategy struct{}

// Name implements Strategy.
func (RedactStrategy) Name() StrategyName { return Redact }

// Mask implements Masker.
func (RedactStrategy) Mask(string, string) string { return Redacted }

// PartialStrategy keeps a type-dependent part of the value visible.
type PartialStrategy struct{}

// Name implements Strategy.
func (PartialStrategy) Name() StrategyName { return Partial }

// Mask implements Masker. Values of four characters or fewer, once spaces,
// hyphens and underscores are removed, are fully redacted.
func (PartialStrategy) Mask(value, piiType string) string {
	cleaned := []rune(strings.NewReplacer(" ", "", "-", "", "_", "").Replace(value))
	n := len(cleaned)
	if n <= 4 {
		return Redacted
	}
	first := func(k int) string { return string(cleaned[:k]) }
	last := func(k int) string { return string(cleaned[n-k:]) }

	t := strings.ToUpper(piiType)
	switch {
	case strings.Contains(t, "AADHAAR"):
		if n >= 12 {
			return "XXXX-XXXX-" + last(4)
		}
		return "XXXX-" + last(4)
	case strings.Contains(t, "PAN"):
		if n >= 10 {
			return first(3) + "****" + last(4)
		}
		return first(2) + "****" + last(2)
	case strings.Contains(t, "PHONE"):
		if n >= 10 {
			return "******" + last(4)
		}
		return "****" + last(4)
	case strings.Contains(t, "EMAIL"):
		return maskHandle(value)
	case strings.Contains(t, "CARD"), strings.Contains(t, "CREDIT"):
		if n >= 16 {
			return "****-****-****-" + last(4)
		}
		return "****-" + last(4)
	case strings.Contains(t, "PASSPORT"):
		if n >= 7 {
			return first(1) + "****" + last(3)
		}
		return first(1) + "****"
	case strings.Contains(t, "VOTER"), strings.Contains(t, "LICENSE"):
		if n >= 8 {
			return first(3) + "****" + last(3)
		}
		return first(2) + "****" + last(2)
	case strings.Contains(t, "BANK"), strings.Contains(t, "ACCOUNT"):
		return strings.Repeat("*", n-4) + last(4)
	case strings.Contains(t, "UPI"):
		return maskHandle(value)
	case strings.Contains(t, "IFSC"):
		if n >= 11 {
			return first(4) + "****" + last(3)
		}
		return first(4) + "****"
	default:
		if n > 6 {
			return first(2) + strings.Repeat("*", n-6) + last(4)
		}
		return first(1) + strings.Repeat("*", n-2) + last(1)
	}
}

// maskHandle keeps the first two characters of the user part and the whole
// domain or provider of a user@host value.
func maskHandle(value string) string {
	parts := strings.Split(value, "@")
	if len(parts) < 2 {
		return Redacted
	}
	user := []rune(parts[0])
	if len(parts) == 2 && len(user) > 2 {
		return string(user[:2]) + "****@" + parts[1]
	}
	return "****@" + parts[len(parts)-1]
}

// TokenizeStrategy replaces a value with a deterministic keyed token, so the
// same value of the same type maps to the same token across a dataset.
type TokenizeStrategy struct {
	secret string
}

// NewTokenizeStrategy creates a tokenizer keyed by secret.
func NewTokenizeStrategy(secret string) TokenizeStrategy {
	if secret == "" {
		secret = defaultTokenizeKey
	}
	return TokenizeStrategy{secret: secret}
}

// Name implements Strategy.
func (TokenizeStrategy) Name() StrategyName { return Tokenize }

// Mask implements Masker: TOKEN_ + the first 16 hex digits, upper-cased, of
// sha256(secret ":" value ":" type).
func (s TokenizeStrategy) Mask(value, piiType string) string {
	sum := sha256.Sum256([]byte(s.secret + ":" + value + ":" + piiType))
	return "TOKEN_" + strings.ToUpper(hex.EncodeToString(sum[:])[:16])
}

// FPEStrategy is a keyed per-character substitution that keeps the shape
// of the value: digits stay digits, letters keep their case, everything else
// is copied. It is NOT format-preserving encryption in the cryptographic
// sense (no FF1/FF3); the offsets are the code points of the secret, cycled
// by position, and a value can be recovered by anyone who knows the secret.
type FPEStrategy struct {
	key []rune
}

// NewFPEStrategy creates a substitution keyed by secret.
func NewFPEStrategy(secret string) FPEStrategy {
	if secret == "" {
		secret = defaultFPEKey
	}
	return FPEStrategy{key: []rune(secret)}
}

// Name implements Strategy.
func (FPEStrategy) Name() StrategyName { return FPE }

// Mask implements Masker. Values with neither digits-only content (ignoring
// spaces and hyphens) nor any letter are tokenized instead.
func (s FPEStrategy) Mask(value, piiType string) string {
	if !isNumeric(value) && !hasLetter(value) {
		return NewTokenizeStrategy(string(s.key)).Mask(value, piiType)
	}
	runes := []rune(value)
	out := make([]rune, len(runes))
	for i, r := range runes {
		shift := int(s.key[i%len(s.key)])
		switch {
		case r >= '0' && r <= '9':
			out[i] = rune('0' + (int(r-'0')+shift)%10)
		case r >= 'A' && r <= 'Z':
			out[i] = rune('A' + (int(r-'A')+shift)%26)
		case r >= 'a' && r <= 'z':
			out[i] = rune('a' + (int(r-'a')+shift)%26)
		default:
			out[i] = r
		}
	}
	return string(out)
}

func isNumeric(value string) bool {
	stripped := strings.NewReplacer(" ", "", "-", "").Replace(value)
	if stripped == "" {
		return false
	}
	for _, r := range stripped {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func hasLetter(value string) bool {
	for _, r := range value {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
