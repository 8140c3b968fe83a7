package imap

import (
	"fmt"
	"strings"
)

// StatusFlags selects the STATUS items to request.
type StatusFlags uint8

const (
	StatusMessages StatusFlags = 1 << iota
	StatusRecent
	StatusUnseen
	StatusUIDNext
	StatusUIDValidity

	StatusAll = StatusMessages | StatusRecent | StatusUnseen | StatusUIDNext | StatusUIDValidity
)

var statusItems = []struct {
	flag StatusFlags
	name string
}{
	{StatusMessages, "MESSAGES"},
	{StatusRecent, "RECENT"},
	{StatusUnseen, "UNSEEN"},
	{StatusUIDNext, "UIDNEXT"},
	{StatusUIDValidity, "UIDVALIDITY"},
}

// items renders the flags as a STATUS item list, e.g. "(MESSAGES UNSEEN)".
func (f StatusFlags) items() string {
	names := make([]string, 0, len(statusItems))
	for _, it := range statusItems {
		if f&it.flag != 0 {
			names = append(names, it.name)
		}
	}
	return "(" + strings.Join(names, " ") + ")"
}

func (f StatusFlags) String() string {
	return f.items()
}

// MailboxStatus is a STATUS snapshot. Only requested items are set; an
// unrequested item is nil, never zero.
type MailboxStatus struct {
	Flags       StatusFlags
	Messages    *uint32
	Recent      *uint32
	Unseen      *uint32
	UIDNext     *uint32
	UIDValidity *uint32
}

func (s *MailboxStatus) set(item string, v uint32) {
	switch item {
	case "MESSAGES":
		s.Messages = &v
		s.Flags |= StatusMessages
	case "RECENT":
		s.Recent = &v
		s.Flags |= StatusRecent
	case "UNSEEN":
		s.Unseen = &v
		s.Flags |= StatusUnseen
	case "UIDNEXT":
		s.UIDNext = &v
		s.Flags |= StatusUIDNext
	case "UIDVALIDITY":
		s.UIDValidity = &v
		s.Flags |= StatusUIDValidity
	}
}

// restrict drops items that were returned but not requested.
func (s *MailboxStatus) restrict(f StatusFlags) {
	if f&StatusMessages == 0 {
		s.Messages = nil
	}
	if f&StatusRecent == 0 {
		s.Recent = nil
	}
	if f&StatusUnseen == 0 {
		s.Unseen = nil
	}
	if f&StatusUIDNext == 0 {
		s.UIDNext = nil
	}
	if f&StatusUIDValidity == 0 {
		s.UIDValidity = nil
	}
	s.Flags &= f
}

func value(p *uint32) (uint32, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

func (s *MailboxStatus) MessageCount() (uint32, bool) { return value(s.Messages) }
func (s *MailboxStatus) RecentCount() (uint32, bool)  { return value(s.Recent) }
func (s *MailboxStatus) UnseenCount() (uint32, bool)  { return value(s.Unseen) }
func (s *MailboxStatus) NextUID() (uint32, bool)      { return value(s.UIDNext) }
func (s *MailboxStatus) Validity() (uint32, bool)     { return value(s.UIDValidity) }

func (s *MailboxStatus) String() string {
	var b strings.Builder
	for _, it := range statusItems {
		var p *uint32
		switch it.flag {
		case StatusMessages:
			p = s.Messages
		case StatusRecent:
			p = s.Recent
		case StatusUnseen:
			p = s.Unseen
		case StatusUIDNext:
			p = s.UIDNext
		case StatusUIDValidity:
			p = s.UIDValidity
		}
		if p == nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%d", strings.ToLower(it.name), *p)
	}
	return b.String()
}

// SortKey is a server-side SORT criterion (RFC 5256).
type SortKey string

const (
	SortArrival SortKey = "ARRIVAL"
	SortCc      SortKey = "CC"
	SortDate    SortKey = "DATE"
	SortFrom    SortKey = "FROM"
	SortSize    SortKey = "SIZE"
	SortSubject SortKey = "SUBJECT"
	SortTo      SortKey = "TO"
)

// ParseSortKey accepts a key name in any case.
func ParseSortKey(s string) (SortKey, error) {
	k := SortKey(strings.ToUpper(strings.TrimSpace(s)))
	switch k {
	case SortArrival, SortCc, SortDate, SortFrom, SortSize, SortSubject, SortTo:
		return k, nil
	}
	return "", validationError("sort", "unknown sort key %q", s)
}

// program renders the parenthesized sort criteria.
func (k SortKey) program(descending bool) string {
	if descending {
		return "(REVERSE " + string(k) + ")"
	}
	return "(" + string(k) + ")"
}
