package payments

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidPhone is returned for numbers that are not Kenyan mobile numbers.
var ErrInvalidPhone = errors.New("invalid M-Pesa phone number")

// Kenyan mobile numbers: Safaricom and Airtel prefixes 07xx/01xx, with or
// without the 254 country code.
var kenyanMobile = regexp.MustCompile(`^(?:254|\+254|0)?([17][0-9]{8})$`)

// NormalizePhone converts any accepted Kenyan mobile format (0712345678,
// +254712345678, 712345678) to the canonical 254XXXXXXXXX form Daraja wants.
func NormalizePhone(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	m := kenyanMobile.FindStringSubmatch(cleaned)
	if m == nil {
		return "", ErrInvalidPhone
	}
	return "254" + m[1], nil
}
