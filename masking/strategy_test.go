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
	"errors"
	"strings"
	"testing"
)

func TestRedactStrategy(t *testing.T) {
	for _, v := range []string{"", "x", "234567890124", "john@example.com"} {
		if got := (RedactStrategy{}).Mask(v, "IN_AADHAAR"); got != Redacted {
			t.Errorf("Mask(%q) = %q, want %q", v, got, Redacted)
		}
	}
}

func TestPartialStrategy(t *testing.T) {
	tests := []struct {
		piiType string
		value   string
		want    string
	}{
		{"IN_AADHAAR", "234567890124", "XXXX-XXXX-0124"},
		{"IN_AADHAAR", "2345 6789 0124", "XXXX-XXXX-0124"},
		{"IN_AADHAAR", "2345678", "XXXX-5678"},
		{"IN_PAN", "ABCDE1234F", "ABC****234F"},
		{"IN_PHONE", "9876543210", "******3210"},
		{"IN_PHONE", "+91 98765 43210", "******3210"},
		{"EMAIL_ADDRESS", "john@example.com", "jo****@example.com"},
		{"EMAIL_ADDRESS", "ab@example.com", "****@example.com"},
		{"EMAIL_ADDRESS", "johnexample", Redacted},
		{"CREDIT_CARD", "4532015112830366", "****-****-****-0366"},
		{"CREDIT_CARD", "4532-0151-1283-0366", "****-****-****-0366"},
		{"IN_PASSPORT", "J8369854", "J****854"},
		{"IN_VOTER_ID", "ABC1234567", "ABC****567"},
		{"IN_DRIVING_LICENSE", "MH1420110062821", "MH1****821"},
		{"IN_BANK_ACCOUNT", "50100123456789", "**********6789"},
		{"IN_UPI", "ravi.k@okaxis", "ra****@okaxis"},
		{"IN_IFSC", "HDFC0001234", "HDFC****234"},
		{"IN_AADHAAR", "12-34", Redacted},
		{"IN_PHONE", "1 2_3", Redacted},
		{"SSN", "abcdefgh", "ab**efgh"},
		{"SSN", "abcde", "a***e"},
		{"in_pan", "ABCDE1234F", "ABC****234F"},
	}
	for _, tt := range tests {
		t.Run(tt.piiType+"/"+tt.value, func(t *testing.T) {
			got := (PartialStrategy{}).Mask(tt.value, tt.piiType)
			if got != tt.want {
				t.Errorf("Mask(%q, %s) = %q, want %q", tt.value, tt.piiType, got, tt.want)
			}
			if got != Redacted && strings.Contains(got, tt.value) {
				t.Errorf("masked value still contains the original")
			}
		})
	}
}

func TestTokenizeStrategy(t *testing.T) {
	def := NewTokenizeStrategy("")
	if got := def.Mask("234567890124", "IN_AADHAAR"); got != "TOKEN_9FD47AD499725601" {
		t.Errorf("Mask() = %q", got)
	}
	keyed := NewTokenizeStrategy("s3cr3t")
	if got := keyed.Mask("john@example.com", "EMAIL_ADDRESS"); got != "TOKEN_7DE025B5EDBEEBD5" {
		t.Errorf("Mask() = %q", got)
	}

	if keyed.Mask("john@example.com", "EMAIL_ADDRESS") != keyed.Mask("john@example.com", "EMAIL_ADDRESS") {
		t.Error("tokens must be deterministic")
	}
	if keyed.Mask("john@example.com", "EMAIL_ADDRESS") == keyed.Mask("john@example.com", "IN_UPI") {
		t.Error("the PII type must be part of the token input")
	}
	if keyed.Mask("x", "T") == NewTokenizeStrategy("other").Mask("x", "T") {
		t.Error("the secret must be part of the token input")
	}
}

func TestFPEStrategy(t *testing.T) {
	def := NewFPEStrategy("")
	tests := []struct {
		name  string
		s     FPEStrategy
		value string
		want  string
	}{
		{"numeric", def, "234567890124", "246235442339"},
		{"numeric with separators", def, "2345-6789-0124", "2462-4331-1695"},
		{"alphanumeric", def, "AFZPK7190Y", "WCXIX5742G"},
		{"single key char keeps case", NewFPEStrategy("k"), "ABCDE1234f", "DEFGH8901i"},
		{"no digits or letters", def, "@@--", "TOKEN_FBF14BB303213B83"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.Mask(tt.value, "X"); got != tt.want {
				t.Errorf("Mask(%q) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestFPEStrategy_PreservesShape(t *testing.T) {
	s := NewFPEStrategy("k3y")
	in := "Ab-12 cD/9"
	out := s.Mask(in, "X")
	if len(out) != len(in) {
		t.Fatalf("length changed: %q -> %q", in, out)
	}
	for i := range in {
		a, b := in[i], out[i]
		switch {
		case a >= '0' && a <= '9':
			if b < '0' || b > '9' {
				t.Errorf("position %d: digit became %q", i, b)
			}
		case a >= 'A' && a <= 'Z':
			if b < 'A' || b > 'Z' {
				t.Errorf("position %d: upper became %q", i, b)
			}
		case a >= 'a' && a <= 'z':
			if b < 'a' || b > 'z' {
				t.Errorf("position %d: lower became %q", i, b)
			}
		default:
			if a != b {
				t.Errorf("position %d: separator %q changed to %q", i, a, b)
			}
		}
	}
}

func TestNewStrategy(t *testing.T) {
	for _, name := range []string{"REDACT", "partial", " Tokenize ", "FPE"} {
		s, err := NewStrategy(name, "k")
		if err != nil {
			t.Fatalf("NewStrategy(%q) error = %v", name, err)
		}
		if string(s.Name()) != strings.ToUpper(strings.TrimSpace(name)) {
			t.Errorf("NewStrategy(%q).Name() = %s", name, s.Name())
		}
	}
	if _, err := NewStrategy("HASH", ""); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("err = %v, want ErrUnknownStrategy", err)
	}
	if ValidStrategy("hash") || !ValidStrategy("fpe") {
		t.Error("ValidStrategy() disagrees with NewStrategy()")
	}
}
