package imap

import (
	"fmt"
	"strconv"
	"strings"
)

// AddressMode tells whether a SequenceSet holds UIDs or message numbers.
type AddressMode uint8

const (
	AddressUID AddressMode = iota
	AddressNumber
)

func (m AddressMode) String() string {
	if m == AddressNumber {
		return "message number"
	}
	return "uid"
}

// SequenceSet is a validated, ordered list of message ids and ranges.
type SequenceSet struct {
	mode   AddressMode
	tokens []string
}

// ParseSequenceSet normalizes a UID set. input may be an integer, a string
// such as "1,2" or "4:6" or "7:*", a slice of those, or a *SequenceSet.
func ParseSequenceSet(input any) (*SequenceSet, error) {
	return parseSequenceSet(input, AddressUID)
}

// ParseMessageNumbers is ParseSequenceSet for message numbers.
func ParseMessageNumbers(input any) (*SequenceSet, error) {
	return parseSequenceSet(input, AddressNumber)
}

func parseSequenceSet(input any, mode AddressMode) (*SequenceSet, error) {
	s := &SequenceSet{mode: mode}
	if err := s.add(input); err != nil {
		return nil, err
	}
	if len(s.tokens) == 0 {
		return nil, invalidSequence("empty sequence set")
	}
	return s, nil
}

func (s *SequenceSet) add(input any) error {
	switch v := input.(type) {
	case int:
		return s.addNumber(int64(v))
	case int64:
		return s.addNumber(v)
	case int32:
		return s.addNumber(int64(v))
	case uint:
		return s.addNumber(int64(v))
	case uint32:
		return s.addNumber(int64(v))
	case uint64:
		if v > 1<<32-1 {
			return invalidSequence("id %d out of range", v)
		}
		return s.addNumber(int64(v))
	case string:
		return s.addString(v)
	case []int:
		for _, n := range v {
			if err := s.addNumber(int64(n)); err != nil {
				return err
			}
		}
	case []uint32:
		for _, n := range v {
			if err := s.addNumber(int64(n)); err != nil {
				return err
			}
		}
	case []string:
		for _, str := range v {
			if err := s.addString(str); err != nil {
				return err
			}
		}
	case []any:
		for _, item := range v {
			switch item.(type) {
			case []any, []int, []uint32, []string:
				return invalidSequence("nested sequence %v", item)
			}
			if err := s.add(item); err != nil {
				return err
			}
		}
	case *SequenceSet:
		if v == nil {
			return invalidSequence("nil sequence set")
		}
		if v.mode != s.mode {
			return invalidSequence("cannot mix %s and %s addressing", v.mode, s.mode)
		}
		s.tokens = append(s.tokens, v.tokens...)
	case nil:
		return invalidSequence("empty sequence set")
	default:
		return invalidSequence("unsupported id type %T", input)
	}
	return nil
}

func (s *SequenceSet) addNumber(n int64) error {
	if n <= 0 || n > 1<<32-1 {
		return invalidSequence("id %d is not a positive 32-bit number", n)
	}
	s.tokens = append(s.tokens, strconv.FormatInt(n, 10))
	return nil
}

func (s *SequenceSet) addString(str string) error {
	str = strings.TrimSpace(str)
	if str == "" {
		return invalidSequence("empty sequence token")
	}
	for _, part := range strings.Split(str, ",") {
		part = strings.TrimSpace(part)
		if err := validateSeqRange(part); err != nil {
			return err
		}
		s.tokens = append(s.tokens, part)
	}
	return nil
}

// validateSeqRange accepts n, *, n:m, n:* and *:n.
func validateSeqRange(tok string) error {
	if tok == "" {
		return invalidSequence("empty sequence token")
	}
	lo, hi, isRange := strings.Cut(tok, ":")
	if err := validateSeqNumber(lo, tok); err != nil {
		return err
	}
	if isRange {
		return validateSeqNumber(hi, tok)
	}
	return nil
}

func validateSeqNumber(num, tok string) error {
	if num == "*" {
		return nil
	}
	if strings.HasPrefix(num, "0") {
		return invalidSequence("invalid sequence token %q", tok)
	}
	n, err := strconv.ParseUint(num, 10, 32)
	if err != nil || n == 0 {
		return invalidSequence("invalid sequence token %q", tok)
	}
	return nil
}

func invalidSequence(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidSearchCriteria, Op: "parse sequence", Diagnostic: fmt.Sprintf(format, args...)}
}

// String returns the comma-joined wire token.
func (s *SequenceSet) String() string {
	return strings.Join(s.tokens, ",")
}

// UID reports whether the set addresses messages by UID.
func (s *SequenceSet) UID() bool {
	return s.mode == AddressUID
}

// Mode returns the addressing mode.
func (s *SequenceSet) Mode() AddressMode {
	return s.mode
}

// Len returns the number of tokens, not the number of messages.
func (s *SequenceSet) Len() int {
	return len(s.tokens)
}
