package store

import "strings"

const sortKeyWidth = 20

// SortKey maps a timestamp to a string whose byte order follows the
// timestamp's value order. Non-negative decimal numbers get their integer
// part left-padded to 20 digits, so "9" sorts before "10". Any other text,
// ISO-8601 included, is returned unchanged.
func SortKey(ts string) string {
	intPart, frac, hasFrac := strings.Cut(ts, ".")
	if !isDigits(intPart) || len(intPart) > sortKeyWidth {
		return ts
	}
	if hasFrac && !isDigits(frac) {
		return ts
	}
	return strings.Repeat("0", sortKeyWidth-len(intPart)) + ts
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
