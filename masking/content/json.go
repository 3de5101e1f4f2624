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

package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
	"github.com/bharat-parihar/ARC-Hawk/masking"
)

// ParsePath splits a path such as "users[0].email" into its keys.
func ParsePath(path string) []string {
	path = strings.NewReplacer("[", ".", "]", "").Replace(path)
	var keys []string
	for _, k := range strings.Split(path, ".") {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func applyJSON(data []byte, findings []base.MaskingFinding, m masking.Masker) (Outcome, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return Outcome{}, fmt.Errorf("failed to parse JSON: %w", err)
	}

	var out Outcome
	for _, f := range findings {
		if maskPath(doc, ParsePath(f.Location), f, m) {
			out.Masked++
		} else {
			out.fail(f)
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return Outcome{}, fmt.Errorf("failed to encode JSON: %w", err)
	}
	out.Data = buf.Bytes()
	return out, nil
}

// maskPath walks to the parent of the leaf and masks the leaf in place.
func maskPath(doc interface{}, keys []string, f base.MaskingFinding, m masking.Masker) bool {
	if len(keys) == 0 {
		return false
	}
	cur := doc
	for _, k := range keys[:len(keys)-1] {
		next, ok := child(cur, k)
		if !ok {
			return false
		}
		cur = next
	}

	leaf := keys[len(keys)-1]
	val, ok := child(cur, leaf)
	if !ok {
		return false
	}
	masked, ok := maskLeaf(val, f, m)
	if !ok {
		return false
	}
	switch c := cur.(type) {
	case map[string]interface{}:
		c[leaf] = masked
	case []interface{}:
		i, _ := strconv.Atoi(leaf)
		c[i] = masked
	}
	return true
}

func child(node interface{}, key string) (interface{}, bool) {
	switch n := node.(type) {
	case map[string]interface{}:
		v, ok := n[key]
		return v, ok
	case []interface{}:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(n) {
			return nil, false
		}
		return n[i], true
	}
	return nil, false
}

// maskLeaf masks a string leaf containing the value, or a number leaf equal
// to it. The masked leaf is always a string.
func maskLeaf(val interface{}, f base.MaskingFinding, m masking.Masker) (interface{}, bool) {
	switch v := val.(type) {
	case string:
		return replaceIn(v, f.Value, m.Mask(f.Value, f.PIIType))
	case json.Number:
		if f.Value != "" && v.String() == f.Value {
			return m.Mask(f.Value, f.PIIType), true
		}
	}
	return nil, false
}
