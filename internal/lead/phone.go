package lead

import "strings"

// PhoneNumber carries the two address forms a normalized phone produces:
// E164 with a leading plus for CRM records, Wire without it for the
// messaging provider's canonical recipient form.
type PhoneNumber struct {
	E164 string
	Wire string
}

// NormalizePhone strips all non-digit characters from raw and prepends the
// country calling code when the digits do not already start with it.
func NormalizePhone(raw, countryCode string) PhoneNumber {
	d := Digits(raw)
	if d == "" {
		return PhoneNumber{}
	}
	if !strings.HasPrefix(d, countryCode) {
		d = countryCode + d
	}
	return PhoneNumber{
		E164: "+" + d,
		Wire: d,
	}
}

// Digits returns only the decimal digits of s.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
