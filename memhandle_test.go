package imap

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jhillyerd/enmime/v2"
	"golang.org/x/net/html/charset"
)

// memHandle is an in-memory Handle. It evaluates the subset of SEARCH
// criteria the tests use and renders FETCH data the way a server would.
type memHandle struct {
	host      string
	port      int
	mailboxes map[string]*memMailbox
	calls     []string

	threadReply string
	searchError string
}

type memMailbox struct {
	attrs       Attributes
	uidNext     uint32
	uidValidity uint32
	messages    []*memMessage
}

type memMessage struct {
	uid   uint32
	flags []string
	date  time.Time
	raw   []byte
}

var _ Handle = (*memHandle)(nil)

func newMemHandle(names ...string) *memHandle {
	h := &memHandle{host: "imap.example.com", port: 993, mailboxes: map[string]*memMailbox{}}
	for _, n := range names {
		h.addMailbox(n)
	}
	return h
}

func (h *memHandle) addMailbox(raw string) *memMailbox {
	encoded, err := EncodeMailboxName(raw)
	if err != nil {
		panic(err)
	}
	mb := &memMailbox{attrs: AttrHasNoChildren, uidNext: 1, uidValidity: 1700000000}
	h.mailboxes[encoded] = mb
	return mb
}

func (h *memHandle) addMessage(raw string, subject string, flags ...string) uint32 {
	mb := h.mailboxes[mustEncode(raw)]
	msg := fmt.Sprintf("From: Sender <sender@example.com>\r\nTo: rcpt@example.com\r\nSubject: %s\r\nMessage-ID: <%s@example.com>\r\n\r\nbody of %s\r\n",
		subject, strings.ReplaceAll(subject, " ", "."), subject)
	return mb.append([]byte(msg), flags, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
}

func mustEncode(raw string) string {
	encoded, err := EncodeMailboxName(raw)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (mb *memMailbox) append(raw []byte, flags []string, date time.Time) uint32 {
	uid := mb.uidNext
	mb.uidNext++
	mb.messages = append(mb.messages, &memMessage{
		uid:   uid,
		flags: append([]string{FlagRecent}, flags...),
		date:  date,
		raw:   raw,
	})
	return uid
}

func (h *memHandle) record(format string, args ...any) {
	h.calls = append(h.calls, fmt.Sprintf(format, args...))
}

func (h *memHandle) countCalls(prefix string) int {
	n := 0
	for _, c := range h.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func noMailbox(command string) *CommandError {
	return &CommandError{Command: command, Status: "NO", Text: "[NONEXISTENT] Unknown Mailbox"}
}

func (h *memHandle) selected(name string) (*memMailbox, error) {
	mb, ok := h.mailboxes[name]
	if !ok {
		return nil, newError(KindReopenMailbox, "select", name, noMailbox("SELECT"))
	}
	return mb, nil
}

func (h *memHandle) Server() (string, int) { return h.host, h.port }

func (h *memHandle) List(pattern string) ([]MailboxInfo, error) {
	h.record("LIST %s", pattern)
	names := make([]string, 0, len(h.mailboxes))
	for name := range h.mailboxes {
		if pattern == "*" || pattern == name {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	infos := make([]MailboxInfo, len(names))
	for i, name := range names {
		infos[i] = MailboxInfo{Name: name, Delimiter: "/", Attributes: h.mailboxes[name].attrs}
	}
	return infos, nil
}

func (h *memHandle) Status(mailbox string, flags StatusFlags) (*MailboxStatus, error) {
	h.record("STATUS %s %s", mailbox, flags.items())
	mb, ok := h.mailboxes[mailbox]
	if !ok {
		return nil, noMailbox("STATUS")
	}
	status := &MailboxStatus{}
	var recent, unseen uint32
	for _, m := range mb.messages {
		if hasFlag(m.flags, FlagRecent) {
			recent++
		}
		if !hasFlag(m.flags, FlagSeen) {
			unseen++
		}
	}
	status.set("MESSAGES", uint32(len(mb.messages)))
	status.set("RECENT", recent)
	status.set("UNSEEN", unseen)
	status.set("UIDNEXT", mb.uidNext)
	status.set("UIDVALIDITY", mb.uidValidity)
	status.restrict(flags)
	return status, nil
}

func (h *memHandle) Search(mailbox string, criteria string) ([]uint32, error) {
	h.record("SEARCH %s", criteria)
	mb, err := h.selected(mailbox)
	if err != nil {
		return nil, err
	}
	if h.searchError != "" {
		return nil, &CommandError{Command: "UID SEARCH", Status: "BAD", Text: h.searchError}
	}
	return mb.search(criteria)
}

func (h *memHandle) Sort(mailbox string, key SortKey, descending bool, criteria string, cs string) ([]uint32, error) {
	h.record("SORT %s %v %s %s", key, descending, cs, criteria)
	mb, err := h.selected(mailbox)
	if err != nil {
		return nil, err
	}
	uids, err := mb.search("CHARSET " + cs + " " + criteria)
	if err != nil {
		return nil, err
	}

	subject := func(uid uint32) string {
		return strings.ToLower(mb.byUID(uid).header("Subject"))
	}
	switch key {
	case SortSubject:
		sort.SliceStable(uids, func(i, j int) bool { return subject(uids[i]) < subject(uids[j]) })
	case SortArrival:
	default:
		return nil, &CommandError{Command: "UID SORT", Status: "BAD", Text: "Unsupported sort key"}
	}
	if descending {
		for i, j := 0, len(uids)-1; i < j; i, j = i+1, j-1 {
			uids[i], uids[j] = uids[j], uids[i]
		}
	}
	return uids, nil
}

func (h *memHandle) Fetch(mailbox string, set *SequenceSet, items string) ([][]*Token, error) {
	h.record("FETCH %s %s", set, items)
	mb, err := h.selected(mailbox)
	if err != nil {
		return nil, err
	}

	var resp strings.Builder
	for i, m := range mb.matching(set) {
		fmt.Fprintf(&resp, "* %d FETCH (UID %d FLAGS (%s)", i+1, m.uid, strings.Join(m.flags, " "))
		if strings.Contains(items, "BODY.PEEK[HEADER]") {
			header, _, _ := strings.Cut(string(m.raw), "\r\n\r\n")
			header += "\r\n\r\n"
			fmt.Fprintf(&resp, " INTERNALDATE %s RFC822.SIZE %d BODY[HEADER] %s",
				quoteString(formatInternalDate(m.date)), len(m.raw), MakeIMAPLiteral(header))
		}
		if strings.Contains(items, "BODY.PEEK[]") {
			fmt.Fprintf(&resp, " BODY[] %s", MakeIMAPLiteral(string(m.raw)))
		}
		resp.WriteString(")\r\n")
	}
	return parseFetchResponse(resp.String())
}

func (h *memHandle) Store(mailbox string, set *SequenceSet, mode FlagSet, flags []string) error {
	h.record("STORE %s %d %s", set, mode, strings.Join(flags, " "))
	mb, err := h.selected(mailbox)
	if err != nil {
		return err
	}
	for _, m := range mb.matching(set) {
		for _, f := range flags {
			if mode == FlagAdd && !hasFlag(m.flags, f) {
				m.flags = append(m.flags, f)
			}
			if mode == FlagRemove {
				kept := m.flags[:0]
				for _, have := range m.flags {
					if !strings.EqualFold(have, f) {
						kept = append(kept, have)
					}
				}
				m.flags = kept
			}
		}
	}
	return nil
}

func (h *memHandle) Copy(mailbox string, set *SequenceSet, target string) error {
	h.record("COPY %s %s", set, target)
	mb, err := h.selected(mailbox)
	if err != nil {
		return err
	}
	dst, ok := h.mailboxes[target]
	if !ok {
		return &CommandError{Command: "UID COPY", Status: "NO", Text: "[TRYCREATE] Mailbox doesn't exist: " + target}
	}
	for _, m := range mb.matching(set) {
		flags := make([]string, 0, len(m.flags))
		for _, f := range m.flags {
			if !strings.EqualFold(f, FlagRecent) {
				flags = append(flags, f)
			}
		}
		dst.append(m.raw, flags, m.date)
	}
	return nil
}

func (h *memHandle) Rename(mailbox string, newName string) error {
	h.record("RENAME %s %s", mailbox, newName)
	mb, ok := h.mailboxes[mailbox]
	if !ok {
		return noMailbox("RENAME")
	}
	if _, exists := h.mailboxes[newName]; exists {
		return &CommandError{Command: "RENAME", Status: "NO", Text: "[ALREADYEXISTS] Mailbox already exists"}
	}
	delete(h.mailboxes, mailbox)
	h.mailboxes[newName] = mb
	return nil
}

func (h *memHandle) Create(mailbox string) error {
	h.record("CREATE %s", mailbox)
	if _, exists := h.mailboxes[mailbox]; exists {
		return &CommandError{Command: "CREATE", Status: "NO", Text: "[ALREADYEXISTS] Mailbox already exists"}
	}
	h.mailboxes[mailbox] = &memMailbox{attrs: AttrHasNoChildren, uidNext: 1, uidValidity: 1700000001}
	return nil
}

func (h *memHandle) Delete(mailbox string) error {
	h.record("DELETE %s", mailbox)
	if _, ok := h.mailboxes[mailbox]; !ok {
		return noMailbox("DELETE")
	}
	delete(h.mailboxes, mailbox)
	return nil
}

func (h *memHandle) Append(mailbox string, content []byte, flags []string, date time.Time) error {
	h.record("APPEND %s", mailbox)
	mb, ok := h.mailboxes[mailbox]
	if !ok {
		return &CommandError{Command: "APPEND", Status: "NO", Text: "[TRYCREATE] Mailbox doesn't exist"}
	}
	if date.IsZero() {
		date = time.Now()
	}
	mb.append(content, flags, date)
	return nil
}

func (h *memHandle) Thread(mailbox string) (string, error) {
	h.record("THREAD %s", mailbox)
	mb, err := h.selected(mailbox)
	if err != nil {
		return "", err
	}
	if h.threadReply != "" {
		return h.threadReply, nil
	}
	var b strings.Builder
	b.WriteString("* THREAD ")
	for _, m := range mb.messages {
		fmt.Fprintf(&b, "(%d)", m.uid)
	}
	return b.String() + "\r\n", nil
}

func (h *memHandle) Expunge(mailbox string) error {
	h.record("EXPUNGE %s", mailbox)
	mb, err := h.selected(mailbox)
	if err != nil {
		return err
	}
	kept := mb.messages[:0]
	for _, m := range mb.messages {
		if !hasFlag(m.flags, FlagDeleted) {
			kept = append(kept, m)
		}
	}
	mb.messages = kept
	return nil
}

func (mb *memMailbox) byUID(uid uint32) *memMessage {
	for _, m := range mb.messages {
		if m.uid == uid {
			return m
		}
	}
	return nil
}

func (m *memMessage) envelope() *enmime.Envelope {
	env, err := enmime.ReadEnvelope(strings.NewReader(string(m.raw)))
	if err != nil {
		panic(err)
	}
	return env
}

func (m *memMessage) header(name string) string {
	return m.envelope().GetHeader(name)
}

// matching returns the messages addressed by set, in mailbox order.
func (mb *memMailbox) matching(set *SequenceSet) []*memMessage {
	out := make([]*memMessage, 0)
	if len(mb.messages) == 0 {
		return out
	}
	maxUID := mb.messages[len(mb.messages)-1].uid
	for i, m := range mb.messages {
		n, max := m.uid, maxUID
		if !set.UID() {
			n, max = uint32(i+1), uint32(len(mb.messages))
		}
		if inSet(set.String(), n, max) {
			out = append(out, m)
		}
	}
	return out
}

// inSet reports whether n is in a sequence set, with * standing for max.
func inSet(set string, n, max uint32) bool {
	num := func(s string) uint32 {
		if s == "*" {
			return max
		}
		v, _ := strconv.ParseUint(s, 10, 32)
		return uint32(v)
	}
	for _, tok := range strings.Split(set, ",") {
		lo, hi, isRange := strings.Cut(tok, ":")
		a := num(lo)
		b := a
		if isRange {
			b = num(hi)
		}
		if a > b {
			a, b = b, a
		}
		if n >= a && n <= b {
			return true
		}
	}
	return false
}

func isSequence(s string) bool {
	for _, part := range strings.Split(s, ",") {
		if validateSeqRange(part) != nil {
			return false
		}
	}
	return true
}

// search evaluates an AND list of the keys the tests send.
func (mb *memMailbox) search(criteria string) ([]uint32, error) {
	tokens, err := parseTokens(criteria)
	if err != nil {
		return nil, &CommandError{Command: "UID SEARCH", Status: "BAD", Text: err.Error()}
	}

	type predicate func(i int, m *memMessage) bool
	preds := make([]predicate, 0)
	var decode func(string) (string, error)

	text := func(t *Token) (string, error) {
		s := t.Str
		if decode != nil {
			return decode(s)
		}
		return s, nil
	}

	for i := 0; i < len(tokens); i++ {
		key := strings.ToUpper(tokenString(tokens[i]))
		next := func() (*Token, error) {
			if i+1 >= len(tokens) {
				return nil, &CommandError{Command: "UID SEARCH", Status: "BAD", Text: "Missing argument for " + key}
			}
			i++
			return tokens[i], nil
		}

		switch key {
		case "CHARSET":
			t, err := next()
			if err != nil {
				return nil, err
			}
			enc, _ := charset.Lookup(tokenString(t))
			if enc == nil {
				return nil, &CommandError{Command: "UID SEARCH", Status: "NO", Text: "[BADCHARSET] Unsupported charset"}
			}
			decoder := enc.NewDecoder()
			decode = func(s string) (string, error) { return decoder.String(s) }
		case "ALL":
		case "UID":
			t, err := next()
			if err != nil {
				return nil, err
			}
			set := tokenString(t)
			maxUID := mb.uidNext - 1
			if len(mb.messages) > 0 {
				maxUID = mb.messages[len(mb.messages)-1].uid
			}
			preds = append(preds, func(_ int, m *memMessage) bool {
				return inSet(set, m.uid, maxUID)
			})
		case "SUBJECT", "BODY":
			t, err := next()
			if err != nil {
				return nil, err
			}
			needle, err := text(t)
			if err != nil {
				return nil, err
			}
			needle = strings.ToLower(needle)
			field := key
			preds = append(preds, func(_ int, m *memMessage) bool {
				env := m.envelope()
				hay := env.Text
				if field == "SUBJECT" {
					hay = env.GetHeader("Subject")
				}
				return strings.Contains(strings.ToLower(hay), needle)
			})
		case "SEEN", "UNSEEN", "DELETED", "UNDELETED", "FLAGGED", "UNFLAGGED":
			flag := `\` + strings.TrimPrefix(key, "UN")
			want := !strings.HasPrefix(key, "UN")
			preds = append(preds, func(_ int, m *memMessage) bool {
				return hasFlag(m.flags, flag) == want
			})
		default:
			if isSequence(key) {
				set := key
				preds = append(preds, func(i int, m *memMessage) bool {
					return inSet(set, uint32(i+1), uint32(len(mb.messages)))
				})
				continue
			}
			return nil, &CommandError{Command: "UID SEARCH", Status: "BAD", Text: "Unknown search key " + key}
		}
	}

	uids := make([]uint32, 0)
	for i, m := range mb.messages {
		ok := true
		for _, p := range preds {
			if !p(i, m) {
				ok = false
				break
			}
		}
		if ok {
			uids = append(uids, m.uid)
		}
	}
	return uids, nil
}
