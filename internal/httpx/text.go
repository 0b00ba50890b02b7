package httpx

import "strings"

// isOWS reports whether c is optional whitespace inside a header line.
func isOWS(c byte) bool {
	return c == ' ' || c == '\t'
}

// skipOWS returns the index of the first non-whitespace byte in s at or after i.
func skipOWS(s string, i int) int {
	for i < len(s) && isOWS(s[i]) {
		i++
	}
	return i
}

// TrimOWS strips spaces and tabs from both ends of s.
func TrimOWS(s string) string {
	start := skipOWS(s, 0)
	end := len(s)
	for end > start && isOWS(s[end-1]) {
		end--
	}
	return s[start:end]
}

// Unquote removes one pair of surrounding double quotes, if present.
func Unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// PathEqual compares two request paths ignoring a single trailing slash,
// so "/a" matches "/a/" but not "/a1". The root path "/" only matches itself
// or the empty string.
func PathEqual(a, b string) bool {
	return trimTrailingSlash(a) == trimTrailingSlash(b)
}

func trimTrailingSlash(p string) string {
	if strings.HasSuffix(p, "/") {
		return p[:len(p)-1]
	}
	return p
}
