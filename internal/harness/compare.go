package harness

import "strings"

// Normalize converts CRLF line endings to LF and drops trailing
// whitespace. Leading and inner whitespace is significant.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimRight(s, " \t\r\n\v\f")
}

// OutputsMatch reports whether a program's stdout is accepted for expected.
func OutputsMatch(actual, expected string) bool {
	return Normalize(actual) == Normalize(expected)
}
