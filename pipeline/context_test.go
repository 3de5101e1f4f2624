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

package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHashValue(t *testing.T) {
	if HashValue(" 234123412346\n") != HashValue("234123412346") {
		t.Error("HashValue should ignore surrounding whitespace")
	}
	if got := HashValue("234123412346"); got != sha("234123412346") || len(got) != 64 {
		t.Errorf("HashValue() = %q", got)
	}
}

func TestExcerpt(t *testing.T) {
	const v = "234123412346"
	tests := []struct {
		name string
		text string
		want string
	}{
		{"short", "Customer Aadhaar " + v + " enrolled", "Customer Aadhaar [REDACTED] enrolled"},
		{"repeated value", v + " and " + v, "[REDACTED] and [REDACTED]"},
		{"whitespace collapsed", "uid:\n\t" + v + "\n\nend", "uid: [REDACTED] end"},
		{
			"window",
			strings.Repeat("x", 300) + " " + v + " " + strings.Repeat("y", 300),
			strings.Repeat("x", 49) + " [REDACTED] " + strings.Repeat("y", 49),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := strings.Index(tt.text, v)
			if got := excerpt(tt.text, v, start, start+len(v)); got != tt.want {
				t.Errorf("excerpt() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExcerpt_NoFragmentAtEdge(t *testing.T) {
	const v = "234123412346"
	text := v + strings.Repeat(" ", 45) + v
	got := excerpt(text, v, 0, len(v))
	if strings.Contains(got, "2341") {
		t.Errorf("excerpt() leaked part of the value: %q", got)
	}
	if len(got) > maxExcerptLen {
		t.Errorf("excerpt() length = %d", len(got))
	}
}

func TestExtractLineContext(t *testing.T) {
	content := "l1\nl2\nl3\nl4\nl5\n"
	tests := []struct {
		line, window int
		want         string
	}{
		{3, 1, "l2\nl3\nl4\n"},
		{1, 1, "l1\nl2\n"},
		{5, 10, "l1\nl2\nl3\nl4\nl5\n"},
		{4, 0, "l4\n"},
	}
	for _, tt := range tests {
		got, err := ExtractLineContext(strings.NewReader(content), tt.line, tt.window)
		if err != nil {
			t.Fatalf("ExtractLineContext(%d, %d) error = %v", tt.line, tt.window, err)
		}
		if got != tt.want {
			t.Errorf("ExtractLineContext(%d, %d) = %q, want %q", tt.line, tt.window, got, tt.want)
		}
	}

	if _, err := ExtractLineContext(strings.NewReader(content), 0, 1); err == nil {
		t.Error("expected an error for line 0")
	}
}

func TestExtractFileContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("a\nb\nc\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := ExtractFileContext(path, 2, 0); got != "b\n" {
		t.Errorf("ExtractFileContext() = %q", got)
	}
	if got := ExtractFileContext(filepath.Join(t.TempDir(), "missing"), 1, 1); got != "" {
		t.Errorf("missing file context = %q, want empty", got)
	}
}

func TestRowContext(t *testing.T) {
	row := map[string]interface{}{
		"id":             123,
		"customer_name":  "John Doe",
		"aadhaar_number": "2341 2341 2346",
		"notes":          strings.Repeat("n", 80),
		"deleted_at":     nil,
	}
	cols := []string{"id", "customer_name", "aadhaar_number", "deleted_at"}
	got := RowContext(cols, row, "aadhaar_number")
	want := "id: 123 | customer_name: John Doe | aadhaar_number: 2341 2341 2346 | deleted_at: NULL"
	if got != want {
		t.Errorf("RowContext() = %q, want %q", got, want)
	}

	got = RowContext([]string{"notes", "aadhaar_number"}, row, "aadhaar_number")
	if !strings.HasPrefix(got, "notes: "+strings.Repeat("n", 50)+" | ") {
		t.Errorf("peer column not truncated: %q", got)
	}

	long := RowContext([]string{"notes", "notes", "notes", "notes", "notes"}, row, "x")
	if len(long) != RowContextLimit {
		t.Errorf("len(RowContext()) = %d, want %d", len(long), RowContextLimit)
	}
}

func TestLineOf(t *testing.T) {
	text := "one\ntwo\nthree"
	tests := []struct {
		off  int
		want int
	}{
		{-1, 1}, {0, 1}, {3, 1}, {4, 2}, {8, 3}, {100, 3},
	}
	for _, tt := range tests {
		if got := LineOf(text, tt.off); got != tt.want {
			t.Errorf("LineOf(%d) = %d, want %d", tt.off, got, tt.want)
		}
	}
}

func TestWithFileContext(t *testing.T) {
	text := "header\nnotes\nCustomer PAN AFZPK7190Y on file\nfooter\nend\n"
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		t.Fatal(err)
	}
	start := strings.Index(text, "AFZPK7190Y")
	cands := []Candidate{{RawValue: "AFZPK7190Y", PIITypeHint: "IN_PAN", SurroundingText: text, MatchStart: start, MatchEnd: start + 10}}

	WithFileContext(cands, path, text, 1)
	c := cands[0]
	if c.Source.Line != 3 || c.Source.Path != path {
		t.Errorf("Source = %+v, want line 3 of %s", c.Source, path)
	}
	if want := "notes\nCustomer PAN AFZPK7190Y on file\nfooter\n"; c.SurroundingText != want {
		t.Errorf("SurroundingText = %q, want %q", c.SurroundingText, want)
	}
	if c.SurroundingText[c.MatchStart:c.MatchEnd] != "AFZPK7190Y" {
		t.Errorf("offsets %d..%d do not point at the value", c.MatchStart, c.MatchEnd)
	}

	missing := []Candidate{{RawValue: "AFZPK7190Y", SurroundingText: text, MatchStart: start, MatchEnd: start + 10}}
	WithFileContext(missing, filepath.Join(t.TempDir(), "gone.txt"), text, 1)
	if missing[0].SurroundingText != text || missing[0].MatchStart != start || missing[0].Source.Line != 3 {
		t.Errorf("unreadable file changed the candidate: %+v", missing[0])
	}
}

func TestWithRowContext(t *testing.T) {
	row := map[string]interface{}{"id": 7, "name": "Asha", "pan": "AFZPK7190Y"}
	cands := []Candidate{{RawValue: "AFZPK7190Y", PIITypeHint: "IN_PAN", MatchStart: 0, MatchEnd: 10}}
	WithRowContext(cands, "customers", []string{"id", "name", "pan"}, row, "pan")

	c := cands[0]
	if c.SurroundingText != "id: 7 | name: Asha | pan: AFZPK7190Y" {
		t.Errorf("SurroundingText = %q", c.SurroundingText)
	}
	if c.Source.Table != "customers" || c.Source.Column != "pan" {
		t.Errorf("Source = %+v", c.Source)
	}

	r := New().Validate(c)
	if !r.Accepted() {
		t.Fatalf("row candidate rejected: %s", r.Outcome.RejectionReason)
	}
	if r.Finding.Source.Table != "customers" {
		t.Errorf("finding source = %+v", r.Finding.Source)
	}
}
