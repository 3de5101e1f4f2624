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

import "errors"

// ErrNotNumeric is returned by check-digit generators for non-digit input.
var ErrNotNumeric = errors.New("input must be a non-empty digit string")

// Verhoeff tables (Verhoeff 1969): D5 multiplication, position permutation
// and multiplicative inverse.
var (
	verhoeffD = [10][10]int{
		{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		{1, 2, 3, 4, 0, 6, 7, 8, 9, 5},
		{2, 3, 4, 0, 1, 7, 8, 9, 5, 6},
		{3, 4, 0, 1, 2, 8, 9, 5, 6, 7},
		{4, 0, 1, 2, 3, 9, 5, 6, 7, 8},
		{5, 9, 8, 7, 6, 0, 4, 3, 2, 1},
		{6, 5, 9, 8, 7, 1, 0, 4, 3, 2},
		{7, 6, 5, 9, 8, 2, 1, 0, 4, 3},
		{8, 7, 6, 5, 9, 3, 2, 1, 0, 4},
		{9, 8, 7, 6, 5, 4, 3, 2, 1, 0},
	}
	verhoeffP = [8][10]int{
		{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		{1, 5, 7, 6, 2, 8, 3, 0, 9, 4},
		{5, 8, 0, 3, 7, 9, 6, 1, 4, 2},
		{8, 9, 1, 6, 0, 4, 3, 5, 2, 7},
		{9, 4, 5, 3, 1, 2, 6, 8, 7, 0},
		{4, 2, 8, 6, 5, 7, 3, 9, 0, 1},
		{2, 7, 9, 3, 8, 0, 6, 4, 1, 5},
		{7, 0, 4, 6, 9, 1, 3, 2, 5, 8},
	}
	verhoeffInv = [10]int{0, 4, 3, 2, 1, 5, 6, 7, 8, 9}
)

func verhoeffChecksum(digits string, shift int) int {
	c := 0
	n := len(digits)
	for i := 0; i < n; i++ {
		d := int(digits[n-1-i] - '0')
		c = verhoeffD[c][verhoeffP[(i+shift)%8][d]]
	}
	return c
}

// VerhoeffValid reports whether digits carries a correct Verhoeff check digit.
func VerhoeffValid(digits string) bool {
	if !isDigits(digits) {
		return false
	}
	return verhoeffChecksum(digits, 0) == 0
}

// VerhoeffCheckDigit computes the digit that makes digits+check valid.
func VerhoeffCheckDigit(digits string) (int, error) {
	if !isDigits(digits) {
		return 0, ErrNotNumeric
	}
	return verhoeffInv[verhoeffChecksum(digits, 1)], nil
}

// AadhaarValid validates a 12-digit national ID: spaces and dashes are
// ignored, the first digit may not be 0 or 1, and the Verhoeff check must hold.
func AadhaarValid(value string) bool {
	digits := CleanDigits(value)
	if len(digits) != 12 || !isDigits(digits) {
		return false
	}
	if digits[0] == '0' || digits[0] == '1' {
		return false
	}
	return VerhoeffValid(digits)
}

func luhnSum(digits string, parity int) int {
	sum := 0
	for i := 0; i < len(digits); i++ {
		d := int(digits[i] - '0')
		if i%2 == parity {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum
}

// LuhnValid reports whether a 13–19 digit number passes the Luhn mod-10 check.
func LuhnValid(number string) bool {
	n := len(number)
	if n < 13 || n > 19 || !isDigits(number) {
		return false
	}
	return luhnSum(number, n%2)%10 == 0
}

// LuhnCheckDigit computes the trailing digit for a partial card number.
func LuhnCheckDigit(partial string) (int, error) {
	if !isDigits(partial) {
		return 0, ErrNotNumeric
	}
	sum := luhnSum(partial, (len(partial)+1)%2)
	return (10 - sum%10) % 10, nil
}

// CreditCardValid strips separators and applies the Luhn check.
func CreditCardValid(value string) bool {
	return LuhnValid(CleanDigits(value))
}
