package imap

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

const (
	nl         = "\r\n"
	TimeFormat = "_2-Jan-2006 15:04:05 -0700"
)

var (
	atom             = regexp.MustCompile(`{\d+}$`)
	fetchLineStartRE = regexp.MustCompile(`(?m)^\* \d+ FETCH`)
)

// Token represents a parsed IMAP token
type Token struct {
	Type   TType
	Str    string
	Num    int
	Tokens []*Token
}

// TType represents the type of an IMAP token
type TType uint8

const (
	TUnset TType = iota
	TAtom
	TNumber
	TLiteral
	TQuoted
	TNil
	TContainer
)

type tokenContainer *[]*Token

// calculateTokenEnd calculates the end position of a literal token based on size and buffer constraints
func calculateTokenEnd(tokenStart, sizeVal, bufferLen int) (int, error) {
	switch {
	case tokenStart >= bufferLen:
		if sizeVal == 0 {
			return tokenStart - 1, nil
		}
		return 0, fmt.Errorf("literal of %d bytes starts at %d, past end of buffer %d", sizeVal, tokenStart, bufferLen)
	case tokenStart+sizeVal > bufferLen:
		return bufferLen - 1, nil
	default:
		return tokenStart + sizeVal - 1, nil
	}
}

// parseTokens splits the data part of an untagged response into tokens.
// Containers nest with an explicit stack, so depth is unbounded.
func parseTokens(r string) ([]*Token, error) {
	tokens := make([]*Token, 0)

	currentToken := TUnset
	tokenStart := 0
	tokenEnd := 0
	depth := 0
	container := make([]tokenContainer, 4)
	container[0] = &tokens

	pushToken := func() *Token {
		var t *Token
		switch currentToken {
		case TQuoted:
			t = &Token{
				Type: currentToken,
				Str:  RemoveSlashes.Replace(r[tokenStart : tokenEnd+1]),
			}
		case TLiteral:
			s := r[tokenStart : tokenEnd+1]
			if num, err := strconv.Atoi(s); err == nil {
				t = &Token{Type: TNumber, Num: num, Str: s}
			} else if strings.EqualFold(s, "NIL") {
				t = &Token{Type: TNil}
			} else {
				t = &Token{Type: TLiteral, Str: s}
			}
		case TAtom:
			t = &Token{
				Type: currentToken,
				Str:  r[tokenStart : tokenEnd+1],
			}
		case TContainer:
			t = &Token{
				Type:   currentToken,
				Tokens: make([]*Token, 0, 1),
			}
		}

		if t != nil {
			*container[depth] = append(*container[depth], t)
		}
		currentToken = TUnset

		return t
	}

	l := len(r)
	i := 0
	for i < l {
		b := r[i]

		switch currentToken {
		case TQuoted:
			switch b {
			case '"':
				tokenEnd = i - 1
				pushToken()
				goto Cont
			case '\\':
				i++
				goto Cont
			}
		case TLiteral:
			if !IsLiteral(rune(b)) {
				tokenEnd = i - 1
				pushToken()
			}
		case TAtom:
			if !unicode.IsDigit(rune(b)) {
				// b is the closing brace; r[tokenStart:i] holds the size
				sizeVal, err := strconv.Atoi(r[tokenStart:i])
				if err != nil {
					return nil, fmt.Errorf("bad literal size %q: %w", r[tokenStart:i], err)
				}

				i++
				if i < l && r[i] == '\r' {
					i++
				}
				if i < l && r[i] == '\n' {
					i++
				}

				tokenStart = i
				tokenEnd, err = calculateTokenEnd(tokenStart, sizeVal, l)
				if err != nil {
					return nil, err
				}

				i = tokenEnd
				pushToken()
				goto Cont
			}
		}

		if currentToken == TUnset {
			switch {
			case b == '"':
				currentToken = TQuoted
				tokenStart = i + 1
			case IsLiteral(rune(b)):
				currentToken = TLiteral
				tokenStart = i
			case b == '{':
				currentToken = TAtom
				tokenStart = i + 1
			case b == '(':
				currentToken = TContainer
				t := pushToken()
				depth++
				if depth >= len(container) {
					grown := make([]tokenContainer, depth*2)
					copy(grown, container)
					container = grown
				}
				container[depth] = &t.Tokens
			case b == ')':
				if depth == 0 {
					return nil, fmt.Errorf("unmatched ')' at char %d in %s", i, r)
				}
				pushToken()
				depth--
			}
		}

	Cont:
		i++
		if i >= l && currentToken != TUnset {
			tokenEnd = l - 1
			pushToken()
		}
	}

	if depth != 0 {
		return nil, fmt.Errorf("mismatched parentheses, depth %d at end of %s", depth, r)
	}

	if len(tokens) == 1 && tokens[0].Type == TContainer {
		tokens = tokens[0].Tokens
	}

	return tokens, nil
}

// untagged is one "* ..." response line split into its parts. Num is set
// for message data such as "* 3 FETCH (...)" or "* 4 EXISTS".
type untagged struct {
	Num    int
	HasNum bool
	Name   string
	Rest   string
}

func parseUntagged(line string) (u untagged, ok bool) {
	line = strings.TrimRight(line, nl)
	if !strings.HasPrefix(line, "* ") {
		return u, false
	}
	first, rest, _ := strings.Cut(line[2:], " ")
	if n, err := strconv.Atoi(first); err == nil {
		u.Num, u.HasNum = n, true
		first, rest, _ = strings.Cut(rest, " ")
	}
	u.Name = strings.ToUpper(first)
	u.Rest = rest
	return u, true
}

// parseFetchLine parses one complete "* n FETCH (...)" line, literals
// included.
func parseFetchLine(line string) ([]*Token, error) {
	u, ok := parseUntagged(line)
	if !ok || !u.HasNum || u.Name != "FETCH" {
		return nil, fmt.Errorf("unable to parse fetch line: %q", line)
	}
	tokens, err := parseTokens(u.Rest)
	if err != nil {
		return nil, fmt.Errorf("token parsing failed for fetch line %q: %w", line, err)
	}
	return tokens, nil
}

// parseFetchResponse parses a multi-line FETCH response into one token
// list per message.
func parseFetchResponse(body string) (records [][]*Token, err error) {
	records = make([][]*Token, 0)
	body = strings.TrimSpace(body)
	if body == "" {
		return records, nil
	}

	locs := fetchLineStartRE.FindAllStringIndex(body, -1)
	for i, loc := range locs {
		end := len(body)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		tokens, err := parseFetchLine(strings.TrimSpace(body[loc[0]:end]))
		if err != nil {
			return nil, err
		}
		records = append(records, tokens)
	}
	return records, nil
}

// parseNumberList collects the numbers of every "* <name> n n n" line, as
// returned by SEARCH and SORT. Non-numeric trailers like (MODSEQ n) are
// skipped.
func parseNumberList(r string, name string) ([]uint32, error) {
	nums := make([]uint32, 0)
	for _, line := range strings.Split(r, nl) {
		u, ok := parseUntagged(line)
		if !ok || u.HasNum || u.Name != name {
			continue
		}
		for _, f := range strings.Fields(u.Rest) {
			if strings.HasPrefix(f, "(") {
				break
			}
			n, err := strconv.ParseUint(f, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid %s response %q: %w", name, line, err)
			}
			nums = append(nums, uint32(n))
		}
	}
	return nums, nil
}

// parseStatusResponse decodes "* STATUS name (MESSAGES 3 UIDNEXT 9)".
func parseStatusResponse(r string) (*MailboxStatus, error) {
	for _, line := range strings.Split(r, nl) {
		u, ok := parseUntagged(line)
		if !ok || u.Name != "STATUS" {
			continue
		}
		tokens, err := parseTokens(u.Rest)
		if err != nil {
			return nil, err
		}
		if len(tokens) == 0 {
			return nil, fmt.Errorf("invalid STATUS response %q", line)
		}
		items := tokens[len(tokens)-1]
		if items.Type != TContainer || len(items.Tokens)%2 != 0 {
			return nil, fmt.Errorf("invalid STATUS response %q", line)
		}

		status := &MailboxStatus{}
		for i := 0; i < len(items.Tokens); i += 2 {
			key, val := items.Tokens[i], items.Tokens[i+1]
			if val.Type != TNumber {
				return nil, fmt.Errorf("invalid STATUS value %s in %q", val, line)
			}
			status.set(strings.ToUpper(key.Str), uint32(val.Num))
		}
		return status, nil
	}
	return nil, fmt.Errorf("no STATUS data in response %q", r)
}

// listEntry is one "* LIST (attrs) delim name" line.
type listEntry struct {
	Attributes []string
	Delimiter  string
	Name       string
}

func parseListLine(line string) (entry listEntry, ok bool, err error) {
	u, isUntagged := parseUntagged(line)
	if !isUntagged || (u.Name != "LIST" && u.Name != "LSUB") {
		return entry, false, nil
	}
	tokens, err := parseTokens(u.Rest)
	if err != nil {
		return entry, false, err
	}
	if len(tokens) != 3 || tokens[0].Type != TContainer {
		return entry, false, fmt.Errorf("invalid LIST response %q", line)
	}
	for _, t := range tokens[0].Tokens {
		entry.Attributes = append(entry.Attributes, t.Str)
	}
	if tokens[1].Type != TNil {
		entry.Delimiter = tokens[1].Str
	}
	if tokens[2].Type == TNil {
		return entry, false, fmt.Errorf("invalid LIST response %q", line)
	}
	entry.Name = tokenString(tokens[2])
	return entry, true, nil
}

// tokenString returns the textual value of a scalar token.
func tokenString(t *Token) string {
	if t.Type == TNumber {
		return strconv.Itoa(t.Num)
	}
	return t.Str
}

// IsLiteral reports whether b may appear in an unquoted atom.
func IsLiteral(b rune) bool {
	switch b {
	case '(', ')', '{', '"', ' ':
		return false
	}
	return b > 0x20 && b != 0x7f
}

// GetTokenName returns the string name of a token type
func GetTokenName(tokenType TType) string {
	switch tokenType {
	case TUnset:
		return "TUnset"
	case TAtom:
		return "TAtom"
	case TNumber:
		return "TNumber"
	case TLiteral:
		return "TLiteral"
	case TQuoted:
		return "TQuoted"
	case TNil:
		return "TNil"
	case TContainer:
		return "TContainer"
	}
	return ""
}

// String returns a string representation of a Token
func (t Token) String() string {
	tokenType := GetTokenName(t.Type)
	switch t.Type {
	case TUnset, TNil:
		return tokenType
	case TAtom, TQuoted:
		return fmt.Sprintf("(%s, len %d, chars %d %#v)", tokenType, len(t.Str), len([]rune(t.Str)), t.Str)
	case TNumber:
		return fmt.Sprintf("(%s %d)", tokenType, t.Num)
	case TLiteral:
		return fmt.Sprintf("(%s %s)", tokenType, t.Str)
	case TContainer:
		return fmt.Sprintf("(%s children: %s)", tokenType, t.Tokens)
	}
	return ""
}

// checkType validates that a token is one of the acceptable types
func checkType(token *Token, acceptableTypes []TType, tks []*Token, loc string, v ...any) error {
	for _, a := range acceptableTypes {
		if token.Type == a {
			return nil
		}
	}
	names := make([]string, len(acceptableTypes))
	for i, a := range acceptableTypes {
		names[i] = GetTokenName(a)
	}
	return fmt.Errorf("expected %s token %s, got %+v in %v", strings.Join(names, "|"), fmt.Sprintf(loc, v...), token, tks)
}
