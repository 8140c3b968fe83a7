package imap

import (
	"fmt"
	"strings"
)

// dropNl removes trailing newline characters from a byte slice
func dropNl(b []byte) []byte {
	if len(b) >= 1 && b[len(b)-1] == '\n' {
		if len(b) >= 2 && b[len(b)-2] == '\r' {
			return b[:len(b)-2]
		} else {
			return b[:len(b)-1]
		}
	}
	return b
}

// MakeIMAPLiteral generates IMAP literal syntax for non-ASCII strings.
// It returns a string in the format "{bytecount}\r\ntext" where bytecount
// is the number of bytes (not characters) in the input string.
// Example: MakeIMAPLiteral("тест") returns "{8}\r\nтест"
func MakeIMAPLiteral(s string) string {
	return fmt.Sprintf("{%d}\r\n%s", len([]byte(s)), s)
}

// quoteString renders s as an IMAP quoted string.
func quoteString(s string) string {
	return `"` + AddSlashes.Replace(s) + `"`
}

// astring renders s as a quoted string when it is safe to quote, and as a
// literal otherwise (8-bit data, CR or LF).
func astring(s string) string {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= 0x80 || c == '\r' || c == '\n' || c == 0 {
			return MakeIMAPLiteral(s)
		}
	}
	return quoteString(s)
}

// quoteList renders a parenthesized list of atoms, e.g. flags.
func quoteList(items []string) string {
	return "(" + strings.Join(items, " ") + ")"
}
