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

package validators

import (
	"regexp"
	"strings"
)

var (
	phonePattern    = regexp.MustCompile(`^[6-9][0-9]{9}$`)
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	ifscPattern     = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
	upiPattern      = regexp.MustCompile(`^[a-zA-Z0-9._-]+@[a-zA-Z0-9]+$`)
	passportPattern = regexp.MustCompile(`^[A-Z][0-9]{7}$`)
	voterIDPattern  = regexp.MustCompile(`^[A-Z]{3}[0-9]{7}$`)
	licensePattern  = regexp.MustCompile(`^[A-Z]{2}[-\s]?[0-9]{13}$`)
)

// Passport series letters; Y is never issued.
const passportLetters = "ABCDEFGHIJKLMNOPQRSTUVWXZ"

var licenseStateCodes = map[string]struct{}{
	"AN": {}, "AP": {}, "AR": {}, "AS": {}, "BR": {}, "CH": {}, "CG": {}, "DD": {},
	"DL": {}, "GA": {}, "GJ": {}, "HP": {}, "HR": {}, "JH": {}, "JK": {}, "KA": {},
	"KL": {}, "LA": {}, "LD": {}, "MH": {}, "ML": {}, "MN": {}, "MP": {}, "MZ": {},
	"NL": {}, "OD": {}, "OR": {}, "PB": {}, "PY": {}, "RJ": {}, "SK": {}, "TN": {},
	"TR": {}, "TS": {}, "UK": {}, "UP": {}, "WB": {},
}

// NormalizePhone strips separators and the +91 / 91 / 0 prefixes.
func NormalizePhone(value string) string {
	p := stripChars(strings.TrimSpace(value), " -()")
	switch {
	case strings.HasPrefix(p, "+91"):
		p = p[3:]
	case strings.HasPrefix(p, "91") && len(p) == 12:
		p = p[2:]
	case strings.HasPrefix(p, "0") && len(p) == 11:
		p = p[1:]
	}
	return p
}

// PhoneValid validates a 10-digit mobile number starting with 6-9 and
// rejects repeated, sequential and pair-repeating numbers.
func PhoneValid(value string) bool {
	p := NormalizePhone(value)
	if !phonePattern.MatchString(p) {
		return false
	}
	if allSame(p) || isWrappingRun(p, true) || isWrappingRun(p, false) {
		return false
	}
	return p != strings.Repeat(p[:2], 5)
}

// EmailValid validates an address against a simplified RFC 5322 shape,
// length and dot-placement rules, and the test/disposable domain blacklist.
func EmailValid(value string) bool {
	email := strings.ToLower(strings.TrimSpace(value))
	if email == "" || len(email) > 254 {
		return false
	}
	if strings.Count(email, "@") != 1 {
		return false
	}
	if !emailPattern.MatchString(email) {
		return false
	}
	at := strings.IndexByte(email, '@')
	local, domain := email[:at], email[at+1:]
	if len(local) < 1 || len(local) > 64 {
		return false
	}
	if len(domain) < 3 || len(domain) > 253 || !strings.Contains(domain, ".") {
		return false
	}
	if strings.Contains(email, "..") {
		return false
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") {
		return false
	}
	if strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") || strings.HasPrefix(domain, "-") {
		return false
	}
	return !IsBlacklistedDomain(domain)
}

// BankAccountValid accepts 9–18 digit account numbers that are not a single
// repeated digit.
func BankAccountValid(value string) bool {
	acct := CleanDigits(value)
	if !isDigits(acct) || len(acct) < 9 || len(acct) > 18 {
		return false
	}
	return !allSame(acct)
}

// IFSCValid validates an 11-character branch code: 4 letters, a literal 0,
// then 6 alphanumerics.
func IFSCValid(value string) bool {
	code := stripChars(strings.ToUpper(strings.TrimSpace(value)), " -")
	return len(code) == 11 && ifscPattern.MatchString(code)
}

// UPIValid validates a user@provider payment handle.
func UPIValid(value string) bool {
	handle := strings.ToLower(strings.TrimSpace(value))
	if strings.Count(handle, "@") != 1 || !upiPattern.MatchString(handle) {
		return false
	}
	at := strings.IndexByte(handle, '@')
	user, provider := handle[:at], handle[at+1:]
	if len(user) < 1 || len(user) > 100 {
		return false
	}
	return len(provider) >= 2 && len(provider) <= 50
}

// PassportValid validates one series letter followed by 7 digits.
func PassportValid(value string) bool {
	p := stripChars(strings.ToUpper(strings.TrimSpace(value)), " -")
	if !passportPattern.MatchString(p) {
		return false
	}
	return strings.IndexByte(passportLetters, p[0]) >= 0
}

// VoterIDValid validates 3 letters followed by 7 digits.
func VoterIDValid(value string) bool {
	id := stripChars(strings.ToUpper(strings.TrimSpace(value)), " -/")
	return voterIDPattern.MatchString(id)
}

// DrivingLicenseValid validates 2 letters followed by 13 digits, with an
// optional single separator after the letters.
func DrivingLicenseValid(value string) bool {
	_, ok := normalizeLicense(value)
	return ok
}

// DrivingLicenseValidWithState also requires the leading letters to be a
// known state or union-territory code.
func DrivingLicenseValidWithState(value string) bool {
	dl, ok := normalizeLicense(value)
	if !ok {
		return false
	}
	_, known := licenseStateCodes[dl[:2]]
	return known
}

func normalizeLicense(value string) (string, bool) {
	dl := strings.ToUpper(strings.TrimSpace(value))
	if !licensePattern.MatchString(dl) {
		return "", false
	}
	dl = stripChars(dl, " -\t")
	if len(dl) != 15 {
		return "", false
	}
	return dl, true
}
