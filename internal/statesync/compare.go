package statesync

import (
	"math/big"
	"strings"

	"github.com/nerrad567/gray-logic-unifi/internal/jsontree"
)

// Canonical returns the text a value is compared by.
func Canonical(v any) string {
	return jsontree.Text(Coerce(v))
}

// ValuesEqual reports whether a stored value and a pending value are the same.
//
// Null only equals null. Otherwise values compare by canonical text, and two
// values that both read as decimal numbers compare numerically, so "5.0"
// equals 5.
func ValuesEqual(stored, pending any) bool {
	if stored == nil || pending == nil {
		return stored == nil && pending == nil
	}

	a, b := Canonical(stored), Canonical(pending)
	if a == b {
		return true
	}

	ra, okA := decimal(a)
	rb, okB := decimal(b)
	return okA && okB && ra.Cmp(rb) == 0
}

// decimal parses s as a plain decimal number with optional exponent.
func decimal(s string) (*big.Rat, bool) {
	if s == "" || strings.IndexFunc(s, notDecimalRune) >= 0 {
		return nil, false
	}
	return new(big.Rat).SetString(s)
}

func notDecimalRune(r rune) bool {
	return !(r >= '0' && r <= '9') && !strings.ContainsRune("+-.eE", r)
}
