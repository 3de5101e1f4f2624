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
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
	"github.com/bharat-parihar/ARC-Hawk/masking"
)

// ParseCellLocation parses "row_<n>_column_<name>". Rows are numbered from
// zero after the header.
func ParseCellLocation(location string) (row int, column string, err error) {
	parts := strings.SplitN(location, "_", 4)
	if len(parts) != 4 || parts[0] != "row" || parts[2] != "column" || parts[3] == "" {
		return 0, "", fmt.Errorf("invalid CSV cell location")
	}
	row, err = strconv.Atoi(parts[1])
	if err != nil || row < 0 {
		return 0, "", fmt.Errorf("invalid CSV row in cell location")
	}
	return row, parts[3], nil
}

// CellLocation formats a CSV cell location.
func CellLocation(row int, column string) string {
	return fmt.Sprintf("row_%d_column_%s", row, column)
}

func applyCSV(data []byte, findings []base.MaskingFinding, m masking.Masker) (Outcome, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) == 0 {
		out := Outcome{Data: data}
		out.fail(findings...)
		return out, nil
	}

	header := records[0]
	colIndex := make(map[string]int, len(header))
	for i, name := range header {
		colIndex[name] = i
	}
	rows := records[1:]

	var out Outcome
	groups, keys := base.GroupByLocation(findings)
	for _, loc := range keys {
		group := groups[loc]
		row, column, err := ParseCellLocation(loc)
		col, ok := colIndex[column]
		if err != nil || !ok || row >= len(rows) || col >= len(rows[row]) {
			out.fail(group...)
			continue
		}
		for _, f := range group {
			cell, changed := replaceIn(rows[row][col], f.Value, m.Mask(f.Value, f.PIIType))
			if !changed {
				out.fail(f)
				continue
			}
			rows[row][col] = cell
			out.Masked++
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return Outcome{}, fmt.Errorf("failed to write CSV: %w", err)
	}
	out.Data = buf.Bytes()
	return out, nil
}
