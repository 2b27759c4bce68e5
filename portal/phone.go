package portal

import (
	"strings"
	"unicode"
)

// PhoneNumber is a phone number in international format reduced to digits.
type PhoneNumber string

func (p PhoneNumber) String() string {
	return string(p)
}

// Masked keeps the first three and last two digits, e.g. "+999******00".
func (p PhoneNumber) Masked() string {
	s := string(p)
	if len(s) <= 5 {
		return "+" + strings.Repeat("*", len(s))
	}
	return "+" + s[:3] + strings.Repeat("*", len(s)-5) + s[len(s)-2:]
}

// NormalizePhone strips whitespace, '+', parentheses and hyphens from raw and
// requires the remainder to be a non-empty run of ASCII digits.
func NormalizePhone(raw string) (PhoneNumber, error) {
	stripped := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return -1
		case r == '+', r == '(', r == ')', r == '-':
			return -1
		}
		return r
	}, raw)

	if stripped == "" {
		return "", NewValidationError("phone", "number is empty")
	}
	for _, r := range stripped {
		if r < '0' || r > '9' {
			return "", NewValidationError("phone", "number must contain only digits")
		}
	}

	return PhoneNumber(stripped), nil
}
