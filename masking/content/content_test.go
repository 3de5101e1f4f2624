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
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
	"github.com/bharat-parihar/ARC-Hawk/masking"
)

var partial = masking.PartialStrategy{}

func TestKindForPath(t *testing.T) {
	tests := []struct {
		path  string
		kind  Kind
		known bool
	}{
		{"/data/users.csv", KindCSV, true},
		{"/data/USERS.JSON", KindJSON, true},
		{"notes.md", KindText, true},
		{"app.log", KindText, true},
		{"dump.xml", KindText, false},
		{"Makefile", KindText, false},
	}
	for _, tt := range tests {
		kind, known := KindForPath(tt.path)
		if kind != tt.kind || known != tt.known {
			t.Errorf("KindForPath(%q) = %s, %v", tt.path, kind, known)
		}
	}
}

func TestParseCellLocation(t *testing.T) {
	row, col, err := ParseCellLocation("row_12_column_first_name")
	if err != nil || row != 12 || col != "first_name" {
		t.Errorf("ParseCellLocation() = %d, %q, %v", row, col, err)
	}
	for _, bad := range []string{"row_x_column_email", "cell_1_column_email", "row_1_col_email", "row_1_column_", "row_-1_column_a", "users.email"} {
		if _, _, err := ParseCellLocation(bad); err == nil {
			t.Errorf("ParseCellLocation(%q) expected error", bad)
		}
	}
	if CellLocation(3, "phone") != "row_3_column_phone" {
		t.Error("CellLocation() mismatch")
	}
}

func TestApplyCSV(t *testing.T) {
	data := []byte("name,email,phone\nJohn Doe,john@example.com,9876543210\nJane,\"jane@corp.in, alt john@example.com\",8765432109\n")
	findings := []base.MaskingFinding{
		{Value: "john@example.com", PIIType: "EMAIL_ADDRESS", Location: "row_0_column_email"},
		{Value: "9876543210", PIIType: "IN_PHONE", Location: "row_0_column_phone"},
		{Value: "jane@corp.in", PIIType: "EMAIL_ADDRESS", Location: "row_1_column_email"},
		{Value: "8765432109", PIIType: "IN_PHONE", Location: "row_7_column_phone"},
		{Value: "8765432109", PIIType: "IN_PHONE", Location: "row_1_column_fax"},
		{Value: "nobody@corp.in", PIIType: "EMAIL_ADDRESS", Location: "row_1_column_email"},
	}

	out, err := Apply(KindCSV, data, findings, partial)
	if err != nil {
		t.Fatal(err)
	}
	if out.Masked != 3 || out.Failed != 3 {
		t.Errorf("Masked/Failed = %d/%d, want 3/3", out.Masked, out.Failed)
	}
	want := "name,email,phone\nJohn Doe,jo****@example.com,******3210\nJane,\"ja****@corp.in, alt john@example.com\",8765432109\n"
	if string(out.Data) != want {
		t.Errorf("Data =\n%s\nwant\n%s", out.Data, want)
	}

	// The second row still carries john@example.com in free text.
	if hits := Residual(out.Data, findings[:3]); !reflect.DeepEqual(hits, []int{0}) {
		t.Errorf("Residual() = %v, want [0]", hits)
	}
}

func TestApplyCSV_Malformed(t *testing.T) {
	if _, err := Apply(KindCSV, []byte("a,\"b\n"), nil, partial); err == nil {
		t.Error("expected error for unterminated quote")
	}
	out, err := Apply(KindCSV, nil, []base.MaskingFinding{{Value: "x", Location: "row_0_column_a"}}, partial)
	if err != nil || out.Failed != 1 {
		t.Errorf("empty CSV: %+v, %v", out, err)
	}
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"users[0].email", []string{"users", "0", "email"}},
		{"a.b.c", []string{"a", "b", "c"}},
		{"[2]", []string{"2"}},
		{"", nil},
	}
	for _, tt := range tests {
		if got := ParsePath(tt.path); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParsePath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestApplyJSON(t *testing.T) {
	data := []byte(`{"users":[{"email":"john@example.com","phone":9876543210,"note":"call <john@example.com>"}],"count":1}`)
	findings := []base.MaskingFinding{
		{Value: "john@example.com", PIIType: "EMAIL_ADDRESS", Location: "users[0].email"},
		{Value: "9876543210", PIIType: "IN_PHONE", Location: "users[0].phone"},
		{Value: "john@example.com", PIIType: "EMAIL_ADDRESS", Location: "users[0].note"},
		{Value: "john@example.com", PIIType: "EMAIL_ADDRESS", Location: "users[3].email"},
		{Value: "1", PIIType: "IN_PHONE", Location: "count.x"},
		{Value: "x@y.in", PIIType: "EMAIL_ADDRESS", Location: "users[0].missing"},
	}
	out, err := Apply(KindJSON, data, findings, partial)
	if err != nil {
		t.Fatal(err)
	}
	if out.Masked != 3 || out.Failed != 3 {
		t.Errorf("Masked/Failed = %d/%d, want 3/3", out.Masked, out.Failed)
	}

	var doc struct {
		Users []map[string]interface{} `json:"users"`
		Count json.Number              `json:"count"`
	}
	if err := json.Unmarshal(out.Data, &doc); err != nil {
		t.Fatal(err)
	}
	u := doc.Users[0]
	if u["email"] != "jo****@example.com" || u["phone"] != "******3210" || u["note"] != "call <jo****@example.com>" {
		t.Errorf("user = %v", u)
	}
	if doc.Count.String() != "1" {
		t.Errorf("count changed: %v", doc.Count)
	}
	if !strings.Contains(string(out.Data), "<jo****") {
		t.Error("HTML characters should not be escaped")
	}
	if hits := Residual(out.Data, findings[:3]); len(hits) != 0 {
		t.Errorf("Residual() = %v", hits)
	}
}

func TestApplyJSON_Malformed(t *testing.T) {
	if _, err := Apply(KindJSON, []byte(`{"a":`), nil, partial); err == nil {
		t.Error("expected parse error")
	}
}

func TestApplyText(t *testing.T) {
	text := "Aadhaar 234567890124 and PAN ABCDE1234F, again 234567890124."
	findings := FindingsFor(text, "234567890124", "IN_AADHAAR", "notes.txt")
	if len(findings) != 2 {
		t.Fatalf("FindingsFor() = %d findings, want 2", len(findings))
	}
	findings = append(findings, base.MaskingFinding{Value: "ABCDE1234F", PIIType: "IN_PAN"})

	out, err := Apply(KindText, []byte(text), findings, partial)
	if err != nil {
		t.Fatal(err)
	}
	want := "Aadhaar XXXX-XXXX-0124 and PAN ABC****234F, again XXXX-XXXX-0124."
	if string(out.Data) != want {
		t.Errorf("Data = %q, want %q", out.Data, want)
	}
	if out.Masked != 3 || out.Failed != 0 {
		t.Errorf("Masked/Failed = %d/%d", out.Masked, out.Failed)
	}
}

func TestApplyText_BadSpans(t *testing.T) {
	text := "pan ABCDE1234F"
	s1, e1 := Span(4, 14)
	s2, e2 := Span(0, 3)
	s3, e3 := Span(10, 40)
	s4, e4 := Span(6, 12)
	findings := []base.MaskingFinding{
		{Value: "ABCDE1234F", PIIType: "IN_PAN", StartPos: s1, EndPos: e1},
		{Value: "ABCDE1234F", PIIType: "IN_PAN", StartPos: s2, EndPos: e2},
		{Value: "ABCDE1234F", PIIType: "IN_PAN", StartPos: s3, EndPos: e3},
		{Value: "CDE124", PIIType: "IN_PAN", StartPos: s4, EndPos: e4},
		{Value: "ZZZZZ9999Z", PIIType: "IN_PAN"},
	}
	out := applyText([]byte(text), findings, partial)
	if string(out.Data) != "pan ABC****234F" {
		t.Errorf("Data = %q", out.Data)
	}
	if out.Masked != 1 || out.Failed != 4 {
		t.Errorf("Masked/Failed = %d/%d, want 1/4", out.Masked, out.Failed)
	}
}

func TestApplyText_OverlappingSpans(t *testing.T) {
	text := "id 9876543210"
	s1, e1 := Span(3, 13)
	s2, e2 := Span(7, 13)
	findings := []base.MaskingFinding{
		{Value: "9876543210", PIIType: "IN_PHONE", StartPos: s1, EndPos: e1},
		{Value: "543210", PIIType: "IN_PHONE", StartPos: s2, EndPos: e2},
	}
	out := applyText([]byte(text), findings, masking.RedactStrategy{})
	if string(out.Data) != "id 9876[REDACTED]" || out.Masked != 1 || out.Failed != 1 {
		t.Errorf("out = %q masked=%d failed=%d", out.Data, out.Masked, out.Failed)
	}
	if hits := Residual(out.Data, findings); len(hits) != 0 {
		t.Errorf("Residual() = %v", hits)
	}
}

func TestResidual(t *testing.T) {
	findings := []base.MaskingFinding{{Value: "a@b.in"}, {Value: ""}, {Value: "9876543210"}}
	if hits := Residual([]byte("x 9876543210"), findings); !reflect.DeepEqual(hits, []int{2}) {
		t.Errorf("Residual() = %v", hits)
	}
}
