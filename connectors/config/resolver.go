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

package config

import (
	"context"
	"fmt"
	"strings"
)

// Secret reference schemes.
const (
	SchemeAWS   = "aws-sm"
	SchemeEnv   = "env"
	SchemeLocal = "local"
)

// Resolver turns secret references into secret values.
type Resolver struct {
	managers map[string]SecretsManager
}

// NewResolver creates a resolver that understands env:// references. Other
// schemes are added with Register.
func NewResolver() *Resolver {
	return &Resolver{managers: map[string]SecretsManager{SchemeEnv: EnvSecretsManager{}}}
}

// Register binds a scheme to a secrets manager.
func (r *Resolver) Register(scheme string, m SecretsManager) *Resolver {
	r.managers[scheme] = m
	return r
}

// ParseRef splits "scheme://id#field" into its parts. field defaults to
// "value".
func ParseRef(ref string) (scheme, id, field string, err error) {
	idx := strings.Index(ref, "://")
	if idx <= 0 {
		return "", "", "", fmt.Errorf("invalid secret reference: missing scheme")
	}
	scheme, rest := ref[:idx], ref[idx+3:]
	field = "value"
	if h := strings.LastIndexByte(rest, '#'); h >= 0 {
		rest, field = rest[:h], rest[h+1:]
	}
	if rest == "" || field == "" {
		return "", "", "", fmt.Errorf("invalid secret reference for scheme %s", scheme)
	}
	return scheme, rest, field, nil
}

// Resolve returns the referenced secret field.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	scheme, id, field, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	m, ok := r.managers[scheme]
	if !ok {
		return "", fmt.Errorf("no secrets manager registered for scheme %s", scheme)
	}
	values, err := m.GetSecret(ctx, id)
	if err != nil {
		return "", err
	}
	v, ok := values[field]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: field %s of %s", ErrSecretNotFound, field, maskARN(id))
	}
	return v, nil
}
