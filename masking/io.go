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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bharat-parihar/ARC-Hawk/connectors/config"
)

// Format is a policy document encoding.
type Format string

// Policy document formats.
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatForPath picks the format from a file extension. Anything that is
// not .json is read as YAML.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// ParsePolicy decodes a policy document. Environment references are
// expanded first and fields absent from the document keep their defaults.
// The result is validated.
func ParsePolicy(data []byte, format Format) (*Policy, error) {
	expanded := []byte(config.ExpandEnvVars(string(data)))
	p := NewPolicy("")

	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(expanded, p)
	case FormatYAML:
		err = yaml.Unmarshal(expanded, p)
	default:
		return nil, fmt.Errorf("unsupported policy format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s policy: %w", format, err)
	}
	if p.PIITypeStrategies == nil {
		p.PIITypeStrategies = map[string]string{}
	}
	if err := p.Check(); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadPolicy reads and validates a policy file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data, FormatForPath(path))
}

// Marshal encodes the policy without its inline secret key.
func (p *Policy) Marshal(format Format) ([]byte, error) {
	out := p.Clone()
	out.SecretKey = ""
	switch format {
	case FormatJSON:
		return json.MarshalIndent(out, "", "  ")
	case FormatYAML:
		return yaml.Marshal(out)
	default:
		return nil, fmt.Errorf("unsupported policy format %q", format)
	}
}

// Save writes the policy to path in the format implied by its extension.
func (p *Policy) Save(path string) error {
	data, err := p.Marshal(FormatForPath(path))
	if err != nil {
		return fmt.Errorf("failed to encode policy: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write policy file: %w", err)
	}
	return nil
}
