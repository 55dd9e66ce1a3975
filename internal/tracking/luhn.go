// Package tracking implements the check-digit scheme for manually-entered
// tracking codes. A 7-digit code is displayed with a trailing Luhn check
// digit ("1234567-4") to catch transcription errors.
package tracking

import (
	"regexp"
	"strings"

	"github.com/assaytrack/apiserver/internal/apperr"
)

// SearchKind classifies what a normalized tracking input should match on.
type SearchKind string

const (
	// SearchCode matches an exact 7-digit tracking number.
	SearchCode SearchKind = "code"
	// SearchFragment matches a partial digit run of at least 5 digits.
	SearchFragment SearchKind = "fragment"
	// SearchSite falls back to free-text site-name search.
	SearchSite SearchKind = "site"
)

// SearchKey is the result of normalizing raw tracking input.
type SearchKey struct {
	Kind  SearchKind
	Value string
}

var checkedCodePattern = regexp.MustCompile(`^(\d{7})(?:-(\d))?$`)

// DigitsOnly strips every non-digit character from s.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CheckDigit computes the Luhn check digit for a string of digits.
// Digits are scanned right to left with every second one doubled.
func CheckDigit(digits string) int {
	sum := 0
	double := true
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		double = !double
		sum += d
	}
	return (10 - sum%10) % 10
}

// FormatForDisplay appends the check digit to codes whose numeric portion
// is exactly 7 digits; any other input is returned unchanged.
func FormatForDisplay(code string) string {
	digits := DigitsOnly(code)
	if len(digits) != 7 {
		return code
	}
	return code + "-" + string(rune('0'+CheckDigit(digits)))
}

// NormalizeTrackingInput turns raw user input into a search key.
//
// A 7-digit run with an optional "-<digit>" suffix is treated as a full
// tracking code; a supplied check digit must match the computed one. A
// shorter run of at least 5 digits becomes a fragment search, and anything
// else falls back to a site-name search on the trimmed input.
func NormalizeTrackingInput(raw string) (SearchKey, error) {
	trimmed := strings.TrimSpace(raw)

	if m := checkedCodePattern.FindStringSubmatch(trimmed); m != nil {
		digits := m[1]
		if m[2] != "" {
			want := CheckDigit(digits)
			if int(m[2][0]-'0') != want {
				return SearchKey{}, apperr.Validation(
					apperr.Field("code", "check digit does not match; the code may have been mistyped"),
				)
			}
		}
		return SearchKey{Kind: SearchCode, Value: digits}, nil
	}

	if digits := DigitsOnly(trimmed); len(digits) >= 5 {
		return SearchKey{Kind: SearchFragment, Value: digits}, nil
	}

	return SearchKey{Kind: SearchSite, Value: trimmed}, nil
}
