package imap

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"
)

// Mailbox is one server folder bound through a Handle. It stays bound
// until the folder is found missing or deleted through the Dialer; an
// unbound Mailbox fails every operation with ErrReopenMailbox.
type Mailbox struct {
	h     Handle
	name  MailboxName
	info  MailboxInfo
	stale bool
}

// Query selects and orders the messages returned by Mailbox.Messages.
// Without Sort, messages come in server order. Charset is the charset the
// criteria text values are sent in.
type Query struct {
	Criteria   *SearchExpression
	Sort       SortKey
	Descending bool
	Charset    string
}

// OpenMailbox binds the mailbox with the given UTF-8 name. It fails with
// ErrReopenMailbox when the server does not list it.
func OpenMailbox(h Handle, name string) (*Mailbox, error) {
	host, port := h.Server()
	mn, err := NewMailboxName(name, host, port)
	if err != nil {
		return nil, err
	}
	infos, err := h.List(mn.Encoded())
	if err != nil {
		return nil, newError(KindUnknown, "list", name, err)
	}
	for _, info := range infos {
		if info.Name == mn.Encoded() || (strings.EqualFold(info.Name, "INBOX") && strings.EqualFold(mn.Encoded(), "INBOX")) {
			return &Mailbox{h: h, name: mn, info: info}, nil
		}
	}
	return nil, &Error{Kind: KindReopenMailbox, Op: "open", Mailbox: name, Diagnostic: "mailbox does not exist"}
}

func newMailbox(h Handle, info MailboxInfo) (*Mailbox, error) {
	host, port := h.Server()
	mn, err := mailboxNameFromWire(info.Name, host, port)
	if err != nil {
		return nil, err
	}
	return &Mailbox{h: h, name: mn, info: info}, nil
}

// Name returns the UTF-8 name.
func (m *Mailbox) Name() string { return m.name.Raw() }

// EncodedName returns the modified UTF-7 name.
func (m *Mailbox) EncodedName() string { return m.name.Encoded() }

// FullEncodedName returns the "{host:port}name" specifier.
func (m *Mailbox) FullEncodedName() string { return m.name.Full() }

// Attributes returns the LIST attributes seen when the mailbox was bound.
func (m *Mailbox) Attributes() Attributes { return m.info.Attributes }

// Delimiter returns the hierarchy delimiter.
func (m *Mailbox) Delimiter() string { return m.info.Delimiter }

// Bound reports whether the mailbox can still be used.
func (m *Mailbox) Bound() bool { return !m.stale }

func (m *Mailbox) String() string { return m.name.Raw() }

func (m *Mailbox) unbind() {
	if !m.stale {
		debugLog(-1, m.Name(), "mailbox unbound")
	}
	m.stale = true
}

func (m *Mailbox) check(op string) error {
	if m.stale {
		return &Error{Kind: KindReopenMailbox, Op: op, Mailbox: m.Name(), Diagnostic: "mailbox is no longer bound"}
	}
	return nil
}

// fail converts a Handle error into an *Error of kind. Local errors pass
// through unchanged, and a failed selection unbinds the mailbox.
func (m *Mailbox) fail(kind Kind, op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindReopenMailbox {
			m.unbind()
			return &Error{Kind: KindReopenMailbox, Op: op, Mailbox: m.Name(), Diagnostic: e.Diagnostic, Err: e.Err}
		}
		return err
	}
	if !isRejection(err) {
		return err
	}
	return newError(kind, op, m.Name(), err)
}

// RenameTo renames the mailbox on the server and rebinds to the new name.
// On failure the mailbox keeps its old name.
func (m *Mailbox) RenameTo(name string) error {
	if err := m.check("rename"); err != nil {
		return err
	}
	host, port := m.h.Server()
	mn, err := NewMailboxName(name, host, port)
	if err != nil {
		return err
	}
	if err = m.h.Rename(m.name.Encoded(), mn.Encoded()); err != nil {
		return m.fail(KindRenameMailbox, "rename", err)
	}
	debugLog(-1, m.Name(), "mailbox renamed", "to", name)
	m.name = mn
	m.info.Name = mn.Encoded()
	return nil
}

// Status requests a STATUS snapshot. Only the items in flags are set.
func (m *Mailbox) Status(flags StatusFlags) (*MailboxStatus, error) {
	if err := m.check("status"); err != nil {
		return nil, err
	}
	status, err := m.h.Status(m.name.Encoded(), flags)
	if err != nil {
		if isRejection(err) {
			m.unbind()
			return nil, newError(KindReopenMailbox, "status", m.Name(), err)
		}
		return nil, m.fail(KindUnknown, "status", err)
	}
	return status, nil
}

// DefaultStatus is Status(StatusAll).
func (m *Mailbox) DefaultStatus() (*MailboxStatus, error) {
	return m.Status(StatusAll)
}

// Count returns the number of messages.
func (m *Mailbox) Count() (int, error) {
	status, err := m.Status(StatusMessages)
	if err != nil {
		return 0, err
	}
	n, _ := status.MessageCount()
	return int(n), nil
}

// Messages runs the search, or the sort when q.Sort is set, and returns
// the matching messages. Message data is fetched on first use.
func (m *Mailbox) Messages(q Query) (*MessageIterator, error) {
	if err := m.check("search"); err != nil {
		return nil, err
	}
	if q.Charset != "" && !validCharsetLabel(q.Charset) {
		return nil, validationError("search", "invalid charset %q", q.Charset)
	}

	var uids []uint32
	if q.Sort == "" {
		criteria, err := q.Criteria.Serialize(q.Charset)
		if err != nil {
			return nil, err
		}
		if uids, err = m.h.Search(m.name.Encoded(), criteria); err != nil {
			return nil, m.fail(KindInvalidSearchCriteria, "search", err)
		}
	} else {
		if _, err := ParseSortKey(string(q.Sort)); err != nil {
			return nil, err
		}
		criteria, charset, err := q.Criteria.render(q.Charset, true)
		if err != nil {
			return nil, err
		}
		if uids, err = m.h.Sort(m.name.Encoded(), q.Sort, q.Descending, criteria, charset); err != nil {
			return nil, m.fail(KindInvalidSearchCriteria, "sort", err)
		}
	}

	debugLog(-1, m.Name(), "messages selected", "count", len(uids), "sort", string(q.Sort))
	return newMessageIterator(m, uids), nil
}

func validCharsetLabel(s string) bool {
	for _, r := range s {
		if !IsLiteral(r) || r >= 0x80 {
			return false
		}
	}
	return true
}

// MessageSequence selects messages by a UID set, or by message numbers
// when seq is a *SequenceSet built by ParseMessageNumbers. Ranges past
// the end of the mailbox select nothing.
func (m *Mailbox) MessageSequence(seq any) (*MessageIterator, error) {
	if err := m.check("sequence"); err != nil {
		return nil, err
	}
	set, err := toSequenceSet(seq)
	if err != nil {
		return nil, err
	}
	criteria, err := NewSearch(Set(set)).Serialize("")
	if err != nil {
		return nil, err
	}
	uids, err := m.h.Search(m.name.Encoded(), criteria)
	if err != nil {
		return nil, m.fail(KindInvalidSearchCriteria, "sequence", err)
	}
	return newMessageIterator(m, uids), nil
}

// Message returns a handle for uid without contacting the server.
func (m *Mailbox) Message(uid uint32) *Message {
	return &Message{mailbox: m, uid: uid}
}

// All iterates over every message, in server order. It is Messages with
// an empty Query.
func (m *Mailbox) All() iter.Seq2[*Message, error] {
	return func(yield func(*Message, error) bool) {
		it, err := m.Messages(Query{})
		if err != nil {
			yield(nil, err)
			return
		}
		for msg := range it.All() {
			if !yield(msg, nil) {
				return
			}
		}
	}
}

// toSequenceSet accepts ids as ParseSequenceSet does, plus messages and
// iterators, whose UIDs are collected unique and in order. A nil set
// with a nil error means there is nothing to address.
func toSequenceSet(ids any) (*SequenceSet, error) {
	switch v := ids.(type) {
	case *SequenceSet:
		if v == nil {
			return nil, invalidSequence("nil sequence set")
		}
		return v, nil
	case *MessageIterator:
		uids := v.UIDs()
		if len(uids) == 0 {
			return nil, nil
		}
		return ParseSequenceSet(uniqueUIDs(uids))
	case *Message:
		return ParseSequenceSet(v.UID())
	case []*Message:
		uids := make([]uint32, len(v))
		for i, msg := range v {
			uids[i] = msg.UID()
		}
		return ParseSequenceSet(uniqueUIDs(uids))
	}
	return ParseSequenceSet(ids)
}

func uniqueUIDs(uids []uint32) []uint32 {
	seen := make(map[uint32]bool, len(uids))
	out := make([]uint32, 0, len(uids))
	for _, u := range uids {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

// SetFlag adds flag to ids in one request.
func (m *Mailbox) SetFlag(flag string, ids any) error {
	return m.store("set flag", ids, FlagAdd, []string{flag})
}

// ClearFlag removes flag from ids in one request.
func (m *Mailbox) ClearFlag(flag string, ids any) error {
	return m.store("clear flag", ids, FlagRemove, []string{flag})
}

// UpdateFlags applies a combined change: one request for the flags to add
// and one for the flags to remove.
func (m *Mailbox) UpdateFlags(ids any, f Flags) error {
	add, remove := f.changes()
	if len(add) == 0 && len(remove) == 0 {
		return validationError("update flags", "no flag changes")
	}
	if len(add) > 0 {
		if err := m.store("update flags", ids, FlagAdd, add); err != nil {
			return err
		}
	}
	if len(remove) > 0 {
		return m.store("update flags", ids, FlagRemove, remove)
	}
	return nil
}

func (m *Mailbox) store(op string, ids any, mode FlagSet, flags []string) error {
	if err := m.check(op); err != nil {
		return err
	}
	if err := validateFlags(op, flags); err != nil {
		return err
	}
	set, err := toSequenceSet(ids)
	if err != nil || set == nil {
		return err
	}
	if err = m.h.Store(m.name.Encoded(), set, mode, flags); err != nil {
		return m.fail(KindUnknown, op, err)
	}
	debugLog(-1, m.Name(), "flags stored", "ids", set.String(), "flags", flags, "add", mode == FlagAdd)
	return nil
}

// Copy copies ids into target in one request.
func (m *Mailbox) Copy(ids any, target *Mailbox) error {
	set, err := m.transferSet(KindMessageCopy, "copy", ids, target)
	if err != nil || set == nil {
		return err
	}
	if err = m.h.Copy(m.name.Encoded(), set, target.EncodedName()); err != nil {
		return m.fail(KindMessageCopy, "copy", err)
	}
	debugLog(-1, m.Name(), "messages copied", "ids", set.String(), "to", target.Name())
	return nil
}

// Move copies ids into target and marks them \Deleted here. The messages
// stay in this mailbox until it is expunged. When the copy fails nothing
// is marked.
func (m *Mailbox) Move(ids any, target *Mailbox) error {
	set, err := m.transferSet(KindMessageMove, "move", ids, target)
	if err != nil || set == nil {
		return err
	}
	if err = m.h.Copy(m.name.Encoded(), set, target.EncodedName()); err != nil {
		return m.fail(KindMessageMove, "move", err)
	}
	if err = m.h.Store(m.name.Encoded(), set, FlagAdd, []string{FlagDeleted}); err != nil {
		return m.fail(KindMessageMove, "move", err)
	}
	debugLog(-1, m.Name(), "messages moved", "ids", set.String(), "to", target.Name())
	return nil
}

// transferSet resolves ids for a copy or move. An unbound target fails
// with kind since the folder it named is gone.
func (m *Mailbox) transferSet(kind Kind, op string, ids any, target *Mailbox) (*SequenceSet, error) {
	if err := m.check(op); err != nil {
		return nil, err
	}
	if target == nil {
		return nil, validationError(op, "no target mailbox")
	}
	if !target.Bound() {
		return nil, &Error{Kind: kind, Op: op, Mailbox: m.Name(), Diagnostic: fmt.Sprintf("target mailbox %q does not exist", target.Name())}
	}
	return toSequenceSet(ids)
}

// AddMessage appends a raw RFC 5322 message. A non-zero date becomes the
// internal date, converted to UTC.
func (m *Mailbox) AddMessage(content []byte, flags []string, date time.Time) error {
	if err := m.check("append"); err != nil {
		return err
	}
	if len(content) == 0 {
		return validationError("append", "empty message")
	}
	for _, f := range flags {
		if !validFlag(f) {
			return validationError("append", "invalid flag %q", f)
		}
	}
	if err := m.h.Append(m.name.Encoded(), content, flags, date); err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && cmdErr.Code() == "TRYCREATE" {
			m.unbind()
			return newError(KindReopenMailbox, "append", m.Name(), err)
		}
		return m.fail(KindUnknown, "append", err)
	}
	return nil
}

// Thread computes REFERENCES threads over all messages. UIDs are used as
// node numbers. An empty mailbox gives an empty Thread.
func (m *Mailbox) Thread() (*Thread, error) {
	if err := m.check("thread"); err != nil {
		return nil, err
	}
	raw, err := m.h.Thread(m.name.Encoded())
	if err != nil {
		return nil, m.fail(KindUnknown, "thread", err)
	}
	t, err := DecodeThread(raw)
	if err != nil {
		return nil, err
	}
	debugLog(-1, m.Name(), "thread decoded", "nodes", t.Len())
	return t, nil
}

// Expunge permanently removes the \Deleted messages.
func (m *Mailbox) Expunge() error {
	if err := m.check("expunge"); err != nil {
		return err
	}
	if err := m.h.Expunge(m.name.Encoded()); err != nil {
		return m.fail(KindUnknown, "expunge", err)
	}
	return nil
}
