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

package base

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Status of a masking operation on one location.
type Status string

// Masking states.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled_back"
)

// MaskingFinding is one confirmed value to mask. Location addresses the
// value inside the target: "row_<n>_column_<name>" for CSV, a JSON path
// such as "users[0].email", "table.column" for SQL stores. Text targets
// use StartPos/EndPos byte offsets.
type MaskingFinding struct {
	Value    string                 `json:"value"`
	PIIType  string                 `json:"pii_type"`
	Location string                 `json:"location"`
	StartPos *int                   `json:"start_pos,omitempty"`
	EndPos   *int                   `json:"end_pos,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// HasSpan reports whether the finding carries byte offsets.
func (f MaskingFinding) HasSpan() bool {
	return f.StartPos != nil && f.EndPos != nil
}

// MaskingResult is the outcome of masking one location.
type MaskingResult struct {
	Status         Status                 `json:"status"`
	TotalFindings  int                    `json:"total_findings"`
	MaskedCount    int                    `json:"masked_count"`
	FailedCount    int                    `json:"failed_count"`
	BackupLocation string                 `json:"backup_location,omitempty"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Duration       time.Duration          `json:"-"`
	Timestamp      time.Time              `json:"timestamp"`
	Details        map[string]interface{} `json:"details,omitempty"`

	// failed holds the values of findings counted in FailedCount. It never
	// leaves the process.
	failed map[string]struct{}
}

// NewResult starts a result for total findings.
func NewResult(status Status, total int) *MaskingResult {
	return &MaskingResult{
		Status:        status,
		TotalFindings: total,
		Timestamp:     time.Now().UTC(),
		Details:       map[string]interface{}{},
	}
}

// FailedResult reports a location that could not be masked at all.
func FailedResult(total int, backup string, err error) *MaskingResult {
	r := NewResult(StatusFailed, total)
	r.FailedCount = total
	r.BackupLocation = backup
	if err != nil {
		r.ErrorMessage = err.Error()
	}
	return r
}

// MarkFailed counts findings as not masked and remembers their values.
func (r *MaskingResult) MarkFailed(findings ...MaskingFinding) {
	r.FailedCount += len(findings)
	if len(findings) == 0 {
		return
	}
	if r.failed == nil {
		r.failed = make(map[string]struct{}, len(findings))
	}
	for _, f := range findings {
		r.failed[f.Value] = struct{}{}
	}
}

// Masked filters findings down to those whose value was never marked
// failed. A value shared with a failed finding is left out.
func (r *MaskingResult) Masked(findings []MaskingFinding) []MaskingFinding {
	out := make([]MaskingFinding, 0, len(findings))
	for _, f := range findings {
		if _, failed := r.failed[f.Value]; !failed {
			out = append(out, f)
		}
	}
	return out
}

// Clone returns a deep copy of r.
func (r *MaskingResult) Clone() *MaskingResult {
	if r == nil {
		return nil
	}
	c := *r
	if r.Details != nil {
		c.Details = make(map[string]interface{}, len(r.Details))
		for k, v := range r.Details {
			if tables, ok := v.([]string); ok {
				v = append([]string(nil), tables...)
			}
			c.Details[k] = v
		}
	}
	if r.failed != nil {
		c.failed = make(map[string]struct{}, len(r.failed))
		for k := range r.failed {
			c.failed[k] = struct{}{}
		}
	}
	return &c
}

// SuccessRate is MaskedCount as a percentage of TotalFindings, or -1 when
// there were no findings.
func (r *MaskingResult) SuccessRate() float64 {
	if r.TotalFindings == 0 {
		return -1
	}
	return float64(r.MaskedCount) / float64(r.TotalFindings) * 100
}

// MarshalJSON adds success_rate ("66.7%" or "N/A") and duration_seconds.
func (r MaskingResult) MarshalJSON() ([]byte, error) {
	type plain MaskingResult
	rate := "N/A"
	if r.TotalFindings > 0 {
		rate = fmt.Sprintf("%.1f%%", r.SuccessRate())
	}
	return json.Marshal(struct {
		plain
		SuccessRate     string  `json:"success_rate"`
		DurationSeconds float64 `json:"duration_seconds"`
	}{plain(r), rate, r.Duration.Seconds()})
}

// Finish stamps the duration measured from start.
func (r *MaskingResult) Finish(start time.Time) *MaskingResult {
	r.Duration = time.Since(start)
	return r
}

// ApplyMode settles the final status of a completed result. In strict mode
// any failed finding fails the location; in lenient mode it stays completed
// with a non-zero FailedCount. Applied changes are never undone here.
func (r *MaskingResult) ApplyMode(strict bool) *MaskingResult {
	if r.Status != StatusCompleted {
		return r
	}
	if strict && r.FailedCount > 0 {
		r.Status = StatusFailed
		if r.ErrorMessage == "" {
			r.ErrorMessage = fmt.Sprintf("%d of %d findings could not be masked", r.FailedCount, r.TotalFindings)
		}
	}
	return r
}

// GroupByLocation groups findings by Location, returning the groups and the
// locations in sorted order.
func GroupByLocation(findings []MaskingFinding) (map[string][]MaskingFinding, []string) {
	groups := make(map[string][]MaskingFinding)
	for _, f := range findings {
		groups[f.Location] = append(groups[f.Location], f)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return groups, keys
}

// SplitColumn parses "table.column" or "schema.table.column". A bare
// column name falls back to defaultTable.
func SplitColumn(location, defaultTable string) (table, column string) {
	parts := strings.Split(location, ".")
	column = parts[len(parts)-1]
	if len(parts) >= 2 {
		return strings.Join(parts[:len(parts)-1], "."), column
	}
	return defaultTable, column
}

// BackupSuffix formats the timestamp used in backup names.
func BackupSuffix(t time.Time) string {
	return t.UTC().Format("20060102_150405")
}
