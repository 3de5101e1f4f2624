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

// Package validators provides the checksum and format validators for the
// locked set of PII types, plus the dummy-data detector.
//
// Every validator is a pure, total function: malformed input yields false,
// never a panic. Validators are looked up through a registry keyed by
// PIIType instead of a type hierarchy.
package validators

import (
	"sort"
	"strings"
)

// PIIType identifies one of the locked PII categories.
type PIIType string

const (
	PAN            PIIType = "IN_PAN"
	Passport       PIIType = "IN_PASSPORT"
	Aadhaar        PIIType = "IN_AADHAAR"
	CreditCard     PIIType = "CREDIT_CARD"
	UPI            PIIType = "IN_UPI"
	IFSC           PIIType = "IN_IFSC"
	BankAccount    PIIType = "IN_BANK_ACCOUNT"
	Phone          PIIType = "IN_PHONE"
	Email          PIIType = "EMAIL_ADDRESS"
	VoterID        PIIType = "IN_VOTER_ID"
	DrivingLicense PIIType = "IN_DRIVING_LICENSE"
)

// Validation methods recorded on verified findings.
const (
	MethodMathematical = "mathematical"
	MethodFormat       = "format"
	MethodML           = "ml"
)

// Func validates a single value.
type Func func(value string) bool

// Validator binds a validation function to the name reported in findings
// and rejection reasons.
type Validator struct {
	Name     string
	Method   string
	Validate Func
}

// Registry maps PII types to their validator.
type Registry map[PIIType]Validator

// Lookup returns the validator for t.
func (r Registry) Lookup(t PIIType) (Validator, bool) {
	v, ok := r[t]
	return v, ok
}

// Types returns the registered types in sorted order.
func (r Registry) Types() []PIIType {
	types := make([]PIIType, 0, len(r))
	for t := range r {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

var defaultRegistry = Registry{
	Aadhaar:        {Name: "verhoeff", Method: MethodMathematical, Validate: AadhaarValid},
	CreditCard:     {Name: "luhn", Method: MethodMathematical, Validate: CreditCardValid},
	PAN:            {Name: "pan_checksum", Method: MethodMathematical, Validate: PANValid},
	Phone:          {Name: "phone_format", Method: MethodFormat, Validate: PhoneValid},
	Email:          {Name: "email_format", Method: MethodFormat, Validate: EmailValid},
	BankAccount:    {Name: "bank_account_format", Method: MethodFormat, Validate: BankAccountValid},
	IFSC:           {Name: "ifsc_format", Method: MethodFormat, Validate: IFSCValid},
	UPI:            {Name: "upi_format", Method: MethodFormat, Validate: UPIValid},
	Passport:       {Name: "passport_format", Method: MethodFormat, Validate: PassportValid},
	VoterID:        {Name: "voter_id_format", Method: MethodFormat, Validate: VoterIDValid},
	DrivingLicense: {Name: "driving_license_format", Method: MethodFormat, Validate: DrivingLicenseValid},
}

// Default returns a copy of the built-in registry covering every locked type.
func Default() Registry {
	r := make(Registry, len(defaultRegistry))
	for k, v := range defaultRegistry {
		r[k] = v
	}
	return r
}

// Lookup returns the built-in validator for t.
func Lookup(t PIIType) (Validator, bool) {
	return defaultRegistry.Lookup(t)
}

// Validate runs the built-in validator for t. Unknown types are invalid.
func Validate(t PIIType, value string) bool {
	v, ok := defaultRegistry[t]
	if !ok {
		return false
	}
	return v.Validate(value)
}

// AllTypes lists the locked PII types.
func AllTypes() []PIIType {
	return []PIIType{PAN, Passport, Aadhaar, CreditCard, UPI, IFSC, BankAccount, Phone, Email, VoterID, DrivingLicense}
}

// stripChars removes every rune in cutset from s.
func stripChars(s, cutset string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(cutset, r) {
			return -1
		}
		return r
	}, s)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func allSame(s string) bool {
	if s == "" {
		return false
	}
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

// isWrappingRun reports whether a digit string steps by +1 (ascending) or
// -1 (descending) modulo 10 at every position.
func isWrappingRun(s string, ascending bool) bool {
	if len(s) < 2 || !isDigits(s) {
		return false
	}
	for i := 0; i+1 < len(s); i++ {
		cur := int(s[i] - '0')
		next := int(s[i+1] - '0')
		want := (cur + 1) % 10
		if !ascending {
			want = (cur + 9) % 10
		}
		if next != want {
			return false
		}
	}
	return true
}

// CleanDigits strips the separators commonly found around numeric identifiers.
func CleanDigits(value string) string {
	return stripChars(strings.TrimSpace(value), " -")
}
