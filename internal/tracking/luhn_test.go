package tracking

import (
	"errors"
	"fmt"
	"testing"

	"github.com/assaytrack/apiserver/internal/apperr"
)

func TestCheckDigit(t *testing.T) {
	cases := []struct {
		digits string
		want   int
	}{
		{"7992739871", 3}, // classic Luhn example
		{"1234567", 4},
		{"0000000", 0},
		{"9999999", 7},
	}
	for _, tc := range cases {
		if got := CheckDigit(tc.digits); got != tc.want {
			t.Errorf("CheckDigit(%q) = %d, want %d", tc.digits, got, tc.want)
		}
	}
}

func TestCheckDigitRoundTrip(t *testing.T) {
	// Every generated code must validate against its own check digit.
	for i := 0; i < 1000; i++ {
		digits := fmt.Sprintf("%07d", i*7919%10000000)
		d := CheckDigit(digits)
		key, err := NormalizeTrackingInput(fmt.Sprintf("%s-%d", digits, d))
		if err != nil {
			t.Fatalf("round trip failed for %s-%d: %v", digits, d, err)
		}
		if key.Kind != SearchCode || key.Value != digits {
			t.Fatalf("unexpected key for %s-%d: %+v", digits, d, key)
		}
	}
}

func TestDigitsOnly(t *testing.T) {
	if got := DigitsOnly(" 12a-34 b78"); got != "123478" {
		t.Errorf("DigitsOnly = %q", got)
	}
	if got := DigitsOnly("no digits"); got != "" {
		t.Errorf("DigitsOnly on letters = %q", got)
	}
}

func TestFormatForDisplay(t *testing.T) {
	if got := FormatForDisplay("1234567"); got != "1234567-4" {
		t.Errorf("FormatForDisplay = %q", got)
	}
	// Non-7-digit inputs pass through untouched.
	if got := FormatForDisplay("RC-250042"); got != "RC-250042" {
		t.Errorf("FormatForDisplay passthrough = %q", got)
	}
}

func TestNormalizeTrackingInput(t *testing.T) {
	cases := []struct {
		in   string
		kind SearchKind
		val  string
	}{
		{"1234567", SearchCode, "1234567"},
		{"  1234567-4 ", SearchCode, "1234567"},
		{"12345", SearchFragment, "12345"},
		{"12-34-56", SearchFragment, "123456"},
		{"North Ridge", SearchSite, "North Ridge"},
		{"pit 9", SearchSite, "pit 9"},
	}
	for _, tc := range cases {
		key, err := NormalizeTrackingInput(tc.in)
		if err != nil {
			t.Fatalf("NormalizeTrackingInput(%q) error: %v", tc.in, err)
		}
		if key.Kind != tc.kind || key.Value != tc.val {
			t.Errorf("NormalizeTrackingInput(%q) = %+v, want %s %q", tc.in, key, tc.kind, tc.val)
		}
	}
}

func TestNormalizeTrackingInputBadCheckDigit(t *testing.T) {
	_, err := NormalizeTrackingInput("1234567-9")
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
