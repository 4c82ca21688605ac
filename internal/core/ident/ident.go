// Package ident reconciles the textual representations of business identifiers.
//
// The ERP presents count-document and case numbers zero-padded ("0000012345"),
// while operators type them bare ("12345") and historical records were persisted
// under either form, sometimes with trailing whitespace. Every lookup key goes
// through Normalize so all three representations address the same entity.
package ident

import "strings"

// Normalize strips surrounding whitespace and leading zeros from an identifier.
// Idempotent. An identifier that is all zeros (or all whitespace) normalizes to
// the empty string; callers must reject empty identifiers before lookup.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	return strings.TrimLeft(s, "0")
}

// Equal reports whether two identifiers address the same entity after
// normalization.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// ZeroPadPattern builds the POSIX regex matching any zero-padded, possibly
// trailing-whitespace-padded form of the identifier. Used by the store's last
// lookup attempt against historical records.
func ZeroPadPattern(s string) string {
	return "^0*" + regexpEscape(Normalize(s)) + "[[:space:]]*$"
}

// regexpEscape quotes regex metacharacters. Identifiers are digits in practice,
// but stored values are untrusted.
func regexpEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`\.+*?()|[]{}^$`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
