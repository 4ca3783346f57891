package models

import "strings"

// NormalizePhone reduces a channel address to its canonical digit-only
// international form. A leading "00" prefix is dropped, a leading "+" is
// stripped, everything that is not a digit is removed.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	digits = strings.TrimPrefix(digits, "00")
	return digits
}
