package payments

import (
	"errors"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0712345678", "254712345678"},
		{"+254712345678", "254712345678"},
		{"254712345678", "254712345678"},
		{"712345678", "254712345678"},
		{"0110123456", "254110123456"},
		{"0712 345 678", "254712345678"},
		{"0712-345-678", "254712345678"},
	}
	for _, tc := range cases {
		got, err := NormalizePhone(tc.in)
		if err != nil {
			t.Errorf("NormalizePhone(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizePhone_Rejects(t *testing.T) {
	for _, in := range []string{
		"",
		"12345",
		"0812345678",   // not a mobile prefix
		"07123456789",  // too long
		"071234567",    // too short
		"+44712345678", // wrong country
		"07one2345678", // letters
		"255712345678", // neighbor's country code
	} {
		if _, err := NormalizePhone(in); !errors.Is(err, ErrInvalidPhone) {
			t.Errorf("NormalizePhone(%q): expected ErrInvalidPhone, got %v", in, err)
		}
	}
}
