package imap

import (
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	humanize "github.com/dustin/go-humanize"
	"github.com/jhillyerd/enmime/v2"
)

const (
	overviewItems = "(UID FLAGS INTERNALDATE RFC822.SIZE BODY.PEEK[HEADER])"
	contentItems  = "(UID BODY.PEEK[])"
)

// EmailAddresses represents a map of email addresses to display names
type EmailAddresses map[string]string

// Email is the decoded content of a message.
type Email struct {
	Flags       []string
	Received    time.Time
	Sent        time.Time
	Size        uint64
	Subject     string
	UID         uint32
	MessageID   string
	From        EmailAddresses
	To          EmailAddresses
	ReplyTo     EmailAddresses
	CC          EmailAddresses
	BCC         EmailAddresses
	Text        string
	HTML        string
	Attachments []Attachment
}

// Attachment represents an email attachment
type Attachment struct {
	Name     string
	MimeType string
	Content  []byte
}

// String returns a formatted string representation of EmailAddresses
func (e EmailAddresses) String() string {
	emails := strings.Builder{}
	i := 0
	for e, n := range e {
		if i != 0 {
			emails.WriteString(", ")
		}
		if len(n) != 0 {
			if strings.ContainsRune(n, ',') {
				emails.WriteString(fmt.Sprintf(`"%s" <%s>`, AddSlashes.Replace(n), e))
			} else {
				emails.WriteString(fmt.Sprintf(`%s <%s>`, n, e))
			}
		} else {
			emails.WriteString(e)
		}
		i++
	}
	return emails.String()
}

// String returns a formatted string representation of an Email
func (e Email) String() string {
	email := strings.Builder{}

	email.WriteString(fmt.Sprintf("Subject: %s\n", e.Subject))

	for _, a := range []struct {
		label string
		list  EmailAddresses
	}{
		{"To", e.To},
		{"From", e.From},
		{"CC", e.CC},
		{"BCC", e.BCC},
		{"ReplyTo", e.ReplyTo},
	} {
		if len(a.list) != 0 {
			email.WriteString(fmt.Sprintf("%s: %s\n", a.label, a.list))
		}
	}
	for _, body := range []struct {
		label string
		text  string
	}{
		{"Text", e.Text},
		{"HTML", e.HTML},
	} {
		if len(body.text) == 0 {
			continue
		}
		if len(body.text) > 20 {
			email.WriteString(fmt.Sprintf("%s: %s...", body.label, body.text[:20]))
		} else {
			email.WriteString(fmt.Sprintf("%s: %s", body.label, body.text))
		}
		email.WriteString(fmt.Sprintf(" (%s)\n", humanize.Bytes(uint64(len(body.text)))))
	}

	if len(e.Attachments) != 0 {
		email.WriteString(fmt.Sprintf("%d Attachment(s): %s\n", len(e.Attachments), e.Attachments))
	}

	return email.String()
}

// String returns a formatted string representation of an Attachment
func (a Attachment) String() string {
	return fmt.Sprintf("%s (%s %s)", a.Name, a.MimeType, humanize.Bytes(uint64(len(a.Content))))
}

// Message is a lazy handle on one message of a mailbox, addressed by UID.
// Creating it costs nothing; the first accessor that needs server data
// fetches it, and fails with ErrMessageDoesNotExist if the UID is gone.
type Message struct {
	mailbox  *Mailbox
	uid      uint32
	overview *overview
	content  *Email
}

type overview struct {
	flags    []string
	received time.Time
	rawDate  string
	size     uint64
	header   *enmime.Envelope
}

// UID returns the message UID.
func (msg *Message) UID() uint32 { return msg.uid }

// Mailbox returns the mailbox the message belongs to.
func (msg *Message) Mailbox() *Mailbox { return msg.mailbox }

// Refresh drops cached data; the next accessor fetches again.
func (msg *Message) Refresh() {
	msg.overview = nil
	msg.content = nil
}

func (msg *Message) notFound(op string) error {
	return &Error{
		Kind:    KindMessageDoesNotExist,
		Op:      op,
		Mailbox: msg.mailbox.Name(),
		ID:      strconv.FormatUint(uint64(msg.uid), 10),
	}
}

// fetch returns the record of this message for items, or a not-found
// error when the server has no such UID.
func (msg *Message) fetch(op string, items string) ([]*Token, error) {
	m := msg.mailbox
	if err := m.check(op); err != nil {
		return nil, err
	}
	if msg.uid == 0 {
		return nil, msg.notFound(op)
	}
	set, err := ParseSequenceSet(msg.uid)
	if err != nil {
		return nil, err
	}
	records, err := m.h.Fetch(m.EncodedName(), set, items)
	if err != nil {
		return nil, m.fail(KindUnknown, op, err)
	}
	for _, tks := range records {
		for len(tks) == 1 && tks[0].Type == TContainer {
			tks = tks[0].Tokens
		}
		if recordUID(tks) == msg.uid {
			return tks, nil
		}
	}
	return nil, msg.notFound(op)
}

// recordUID finds the UID item of a FETCH record.
func recordUID(tks []*Token) uint32 {
	for i := 0; i+1 < len(tks); i++ {
		if strings.EqualFold(tks[i].Str, "UID") && tks[i+1].Type == TNumber {
			return uint32(tks[i+1].Num)
		}
	}
	return 0
}

func (msg *Message) load() error {
	if msg.overview != nil {
		return nil
	}
	tks, err := msg.fetch("fetch", overviewItems)
	if err != nil {
		return err
	}
	ov, err := parseOverview(tks)
	if err != nil {
		return fmt.Errorf("imap: message %d: %w", msg.uid, err)
	}
	msg.overview = ov
	return nil
}

func parseOverview(tks []*Token) (*overview, error) {
	ov := &overview{flags: []string{}}
	for i := 0; i < len(tks); i++ {
		t := tks[i]
		if err := checkType(t, []TType{TLiteral}, tks, "in root"); err != nil {
			return nil, err
		}
		if i+1 >= len(tks) {
			return nil, fmt.Errorf("missing value after %s", t.Str)
		}
		v := tks[i+1]
		i++

		switch strings.ToUpper(t.Str) {
		case "FLAGS":
			if err := checkType(v, []TType{TContainer}, tks, "after FLAGS"); err != nil {
				return nil, err
			}
			for j, f := range v.Tokens {
				if err := checkType(f, []TType{TLiteral}, tks, "for FLAGS[%d]", j); err != nil {
					return nil, err
				}
				ov.flags = append(ov.flags, f.Str)
			}
		case "INTERNALDATE":
			if err := checkType(v, []TType{TQuoted}, tks, "after INTERNALDATE"); err != nil {
				return nil, err
			}
			received, err := time.Parse(TimeFormat, v.Str)
			if err != nil {
				return nil, err
			}
			ov.rawDate = v.Str
			ov.received = received.UTC()
		case "RFC822.SIZE":
			if err := checkType(v, []TType{TNumber}, tks, "after RFC822.SIZE"); err != nil {
				return nil, err
			}
			ov.size = uint64(v.Num)
		case "BODY[HEADER]":
			if err := checkType(v, []TType{TAtom, TQuoted, TNil}, tks, "after BODY[HEADER]"); err != nil {
				return nil, err
			}
			if v.Type == TNil {
				continue
			}
			env, err := enmime.ReadEnvelope(strings.NewReader(v.Str))
			if err != nil {
				return nil, err
			}
			ov.header = env
		}
	}
	return ov, nil
}

// Flags returns the current flags.
func (msg *Message) Flags() ([]string, error) {
	if err := msg.load(); err != nil {
		return nil, err
	}
	return msg.overview.flags, nil
}

// HasFlag reports whether flag is set, ignoring case.
func (msg *Message) HasFlag(flag string) (bool, error) {
	flags, err := msg.Flags()
	if err != nil {
		return false, err
	}
	return hasFlag(flags, flag), nil
}

func (msg *Message) IsSeen() (bool, error)     { return msg.HasFlag(FlagSeen) }
func (msg *Message) IsFlagged() (bool, error)  { return msg.HasFlag(FlagFlagged) }
func (msg *Message) IsRecent() (bool, error)   { return msg.HasFlag(FlagRecent) }
func (msg *Message) IsDeleted() (bool, error)  { return msg.HasFlag(FlagDeleted) }
func (msg *Message) IsAnswered() (bool, error) { return msg.HasFlag(FlagAnswered) }
func (msg *Message) IsDraft() (bool, error)    { return msg.HasFlag(FlagDraft) }

// Subject returns the decoded Subject header.
func (msg *Message) Subject() (string, error) {
	return msg.Header("Subject")
}

// Header returns the first value of a header, with encoded words decoded.
func (msg *Message) Header(name string) (string, error) {
	if err := msg.load(); err != nil {
		return "", err
	}
	if msg.overview.header == nil {
		return "", nil
	}
	return msg.overview.header.GetHeader(name), nil
}

// InternalDate returns the server receive time, in UTC.
func (msg *Message) InternalDate() (time.Time, error) {
	if err := msg.load(); err != nil {
		return time.Time{}, err
	}
	return msg.overview.received, nil
}

// MailDate returns the INTERNALDATE text as the server sent it.
func (msg *Message) MailDate() (string, error) {
	if err := msg.load(); err != nil {
		return "", err
	}
	return msg.overview.rawDate, nil
}

// Size returns the RFC822 size in bytes.
func (msg *Message) Size() (uint64, error) {
	if err := msg.load(); err != nil {
		return 0, err
	}
	return msg.overview.size, nil
}

func (msg *Message) addresses(header string) (EmailAddresses, error) {
	if err := msg.load(); err != nil {
		return nil, err
	}
	if msg.overview.header == nil {
		return EmailAddresses{}, nil
	}
	return addressList(msg.overview.header, header), nil
}

func addressList(env *enmime.Envelope, header string) EmailAddresses {
	alist, _ := env.AddressList(header)
	out := make(EmailAddresses, len(alist))
	for _, addr := range alist {
		out[strings.ToLower(addr.Address)] = addr.Name
	}
	return out
}

func (msg *Message) From() (EmailAddresses, error) { return msg.addresses("From") }
func (msg *Message) To() (EmailAddresses, error)   { return msg.addresses("To") }
func (msg *Message) Cc() (EmailAddresses, error)   { return msg.addresses("Cc") }

// Content fetches and decodes the whole message.
func (msg *Message) Content() (*Email, error) {
	if msg.content != nil {
		return msg.content, nil
	}
	if err := msg.load(); err != nil {
		return nil, err
	}
	tks, err := msg.fetch("fetch body", contentItems)
	if err != nil {
		return nil, err
	}

	var body string
	found := false
	for i := 0; i+1 < len(tks); i++ {
		if strings.EqualFold(tks[i].Str, "BODY[]") {
			if err = checkType(tks[i+1], []TType{TAtom, TQuoted}, tks, "after BODY[]"); err != nil {
				return nil, err
			}
			body, found = tks[i+1].Str, true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("imap: message %d: no body in fetch response", msg.uid)
	}

	env, err := enmime.ReadEnvelope(strings.NewReader(body))
	if err != nil {
		debugLog(-1, msg.mailbox.Name(), "message body could not be parsed", "uid", msg.uid, "error", err, "body", spew.Sdump(body))
		return nil, fmt.Errorf("imap: message %d: %w", msg.uid, err)
	}

	e := &Email{
		Flags:     msg.overview.flags,
		Received:  msg.overview.received,
		Size:      msg.overview.size,
		UID:       msg.uid,
		Subject:   env.GetHeader("Subject"),
		MessageID: env.GetHeader("Message-ID"),
		Text:      env.Text,
		HTML:      env.HTML,
		From:      addressList(env, "From"),
		ReplyTo:   addressList(env, "Reply-To"),
		To:        addressList(env, "To"),
		CC:        addressList(env, "Cc"),
		BCC:       addressList(env, "Bcc"),
	}
	if sent, err := mail.ParseDate(env.GetHeader("Date")); err == nil {
		e.Sent = sent.UTC()
	}
	for _, parts := range [][]*enmime.Part{env.Attachments, env.Inlines} {
		for _, a := range parts {
			e.Attachments = append(e.Attachments, Attachment{
				Name:     a.FileName,
				MimeType: a.ContentType,
				Content:  a.Content,
			})
		}
	}

	msg.content = e
	return e, nil
}

// SetFlag adds flag to this message.
func (msg *Message) SetFlag(flag string) error {
	if err := msg.mailbox.SetFlag(flag, msg.uid); err != nil {
		return err
	}
	if msg.overview != nil && !hasFlag(msg.overview.flags, flag) {
		msg.overview.flags = append(msg.overview.flags, flag)
	}
	return nil
}

// ClearFlag removes flag from this message.
func (msg *Message) ClearFlag(flag string) error {
	if err := msg.mailbox.ClearFlag(flag, msg.uid); err != nil {
		return err
	}
	if msg.overview != nil {
		kept := msg.overview.flags[:0]
		for _, f := range msg.overview.flags {
			if !strings.EqualFold(f, flag) {
				kept = append(kept, f)
			}
		}
		msg.overview.flags = kept
	}
	return nil
}

// Delete marks the message \Deleted.
func (msg *Message) Delete() error { return msg.SetFlag(FlagDeleted) }

// Undelete clears \Deleted.
func (msg *Message) Undelete() error { return msg.ClearFlag(FlagDeleted) }

// Move copies the message to target and marks it \Deleted here.
func (msg *Message) Move(target *Mailbox) error {
	if err := msg.mailbox.Move(msg.uid, target); err != nil {
		return err
	}
	if msg.overview != nil && !hasFlag(msg.overview.flags, FlagDeleted) {
		msg.overview.flags = append(msg.overview.flags, FlagDeleted)
	}
	return nil
}

// Copy copies the message to target.
func (msg *Message) Copy(target *Mailbox) error {
	return msg.mailbox.Copy(msg.uid, target)
}

func (msg *Message) String() string {
	if msg.overview == nil {
		return fmt.Sprintf("message %d in %s", msg.uid, msg.mailbox.Name())
	}
	subject := ""
	if msg.overview.header != nil {
		subject = msg.overview.header.GetHeader("Subject")
	}
	return fmt.Sprintf("message %d in %s: %q (%s, %s)", msg.uid, msg.mailbox.Name(), subject,
		humanize.Bytes(msg.overview.size), strings.Join(msg.overview.flags, " "))
}
