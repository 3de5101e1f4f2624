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

import "strings"

// patternAliases maps scanner pattern names (lower-cased, separators folded
// to underscores) onto locked PII types.
var patternAliases = map[string]PIIType{
	"aadhaar":            Aadhaar,
	"adhar":              Aadhaar,
	"in_aadhaar":         Aadhaar,
	"pan":                PAN,
	"in_pan":             PAN,
	"credit_card":        CreditCard,
	"creditcard":         CreditCard,
	"in_credit_card":     CreditCard,
	"email":              Email,
	"email_address":      Email,
	"phone":              Phone,
	"mobile":             Phone,
	"in_phone":           Phone,
	"upi":                UPI,
	"in_upi":             UPI,
	"ifsc":               IFSC,
	"in_ifsc":            IFSC,
	"bank_account":       BankAccount,
	"in_bank_account":    BankAccount,
	"passport":           Passport,
	"in_passport":        Passport,
	"voter_id":           VoterID,
	"in_voter_id":        VoterID,
	"driving_license":    DrivingLicense,
	"drivinglicense":     DrivingLicense,
	"in_driving_license": DrivingLicense,
}

// TypeForPattern resolves a free-form pattern name ("Credit Card",
// "in-aadhaar", "EMAIL_ADDRESS") to a locked PII type.
func TypeForPattern(name string) (PIIType, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	t, ok := patternAliases[key]
	return t, ok
}
