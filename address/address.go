// Package address validates and normalizes blockchain wallet addresses.
//
// EVM addresses are case-insensitive hex, but mixed-case checksum forms are
// common in user input. Normalize lowercases them so stored addresses compare
// equal regardless of how they were submitted.
package address

import "strings"

const (
	evmPrefix = "0x"
	evmLength = 42
)

// IsEVM reports whether s is a 0x-prefixed, 20-byte hex address.
// The checksum casing is not verified.
func IsEVM(s string) bool {
	if len(s) != evmLength || !strings.HasPrefix(s, evmPrefix) {
		return false
	}
	for i := len(evmPrefix); i < len(s); i++ {
		if !isHexDigit(s[i]) {
			return false
		}
	}
	return true
}

func isHexDigit(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

// Normalize lowercases s when it looks like an EVM address, that is when it
// starts with 0x. Anything else is returned unchanged.
func Normalize(s string) string {
	if !strings.HasPrefix(s, evmPrefix) {
		return s
	}
	return strings.ToLower(s)
}

// NormalizePtr normalizes the address s points to. A nil s returns nil.
func NormalizePtr(s *string) *string {
	if s == nil {
		return nil
	}
	n := Normalize(*s)
	return &n
}

// NormalizeAll returns a copy of addrs with every element normalized
func NormalizeAll(addrs []string) []string {
	if addrs == nil {
		return nil
	}
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = Normalize(a)
	}
	return out
}
