package imap

import (
	"reflect"
	"sort"
	"strings"
)

// System flags.
const (
	FlagSeen     = `\Seen`
	FlagAnswered = `\Answered`
	FlagFlagged  = `\Flagged`
	FlagDeleted  = `\Deleted`
	FlagDraft    = `\Draft`
	FlagRecent   = `\Recent`
)

// FlagSet represents the action to take on a flag
type FlagSet int

const (
	FlagUnset FlagSet = iota
	FlagAdd
	FlagRemove
)

// Flags describes a combined flag change. Keywords maps custom keywords to
// true (add) or false (remove).
type Flags struct {
	Seen     FlagSet
	Answered FlagSet
	Flagged  FlagSet
	Deleted  FlagSet
	Draft    FlagSet
	Keywords map[string]bool
}

// changes splits f into the flags to add and the flags to remove.
func (f Flags) changes() (add []string, remove []string) {
	v := reflect.ValueOf(f)
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Type != reflect.TypeOf(FlagUnset) {
			continue
		}
		switch FlagSet(v.Field(i).Int()) {
		case FlagAdd:
			add = append(add, `\`+field.Name)
		case FlagRemove:
			remove = append(remove, `\`+field.Name)
		}
	}

	keywords := make([]string, 0, len(f.Keywords))
	for k := range f.Keywords {
		keywords = append(keywords, k)
	}
	sort.Strings(keywords)
	for _, k := range keywords {
		if f.Keywords[k] {
			add = append(add, k)
		} else {
			remove = append(remove, k)
		}
	}
	return add, remove
}

// validFlag reports whether flag can be sent as a flag atom.
func validFlag(flag string) bool {
	if flag == "" || flag == `\` {
		return false
	}
	for i, r := range flag {
		if r == '\\' && i == 0 {
			continue
		}
		if !IsLiteral(r) || r == '\\' || r == '%' || r == '*' || r == ']' || r >= 0x80 {
			return false
		}
	}
	return true
}

func validateFlags(op string, flags []string) error {
	if len(flags) == 0 {
		return validationError(op, "no flags given")
	}
	for _, f := range flags {
		if !validFlag(f) {
			return validationError(op, "invalid flag %q", f)
		}
	}
	return nil
}

// hasFlag reports whether flags contains flag, ignoring case.
func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}
