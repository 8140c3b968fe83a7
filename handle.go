package imap

import (
	"fmt"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"
)

// Handle is the set of primitive requests the mailbox engine issues.
// Mailbox names are wire (modified UTF-7) names. Every call is one
// request/response exchange, preceded by a SELECT when the call needs a
// different selected mailbox. A server rejection is returned as a
// *CommandError; a failed implicit SELECT as an *Error of KindReopenMailbox.
type Handle interface {
	Server() (host string, port int)
	List(pattern string) ([]MailboxInfo, error)
	Status(mailbox string, flags StatusFlags) (*MailboxStatus, error)
	Search(mailbox string, criteria string) ([]uint32, error)
	Sort(mailbox string, key SortKey, descending bool, criteria string, charset string) ([]uint32, error)
	Fetch(mailbox string, set *SequenceSet, items string) ([][]*Token, error)
	Store(mailbox string, set *SequenceSet, mode FlagSet, flags []string) error
	Copy(mailbox string, set *SequenceSet, target string) error
	Rename(mailbox string, newName string) error
	Create(mailbox string) error
	Delete(mailbox string) error
	Append(mailbox string, content []byte, flags []string, date time.Time) error
	Thread(mailbox string) (string, error)
	Expunge(mailbox string) error
}

var _ Handle = (*Dialer)(nil)

// seqCommand prefixes verb with UID for UID addressed sets.
func seqCommand(verb string, set *SequenceSet) string {
	if set.UID() {
		return "UID " + verb + " " + set.String()
	}
	return verb + " " + set.String()
}

// Server returns the host and port the connection was opened to.
func (d *Dialer) Server() (string, int) {
	return d.Host, d.Port
}

func (d *Dialer) selectMailbox(name string, readOnly bool) error {
	verb := "SELECT"
	if readOnly {
		verb = "EXAMINE"
	}
	if _, err := d.exec(verb+" "+quoteString(name), false, RetryCount, nil); err != nil {
		// a failed SELECT leaves no mailbox selected
		d.Folder = ""
		return err
	}
	d.Folder = name
	d.ReadOnly = readOnly
	debugLog(d.ConnNum, d.Folder, "mailbox selected", "readOnly", readOnly)
	return nil
}

// ensureSelected selects name read-write unless it already is.
func (d *Dialer) ensureSelected(name string) error {
	if d.Folder == name && !d.ReadOnly {
		return nil
	}
	if err := d.selectMailbox(name, false); err != nil {
		if isRejection(err) {
			return newError(KindReopenMailbox, "select", name, err)
		}
		return err
	}
	return nil
}

// List returns the mailboxes matching pattern ("*" for all).
func (d *Dialer) List(pattern string) (mailboxes []MailboxInfo, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	mailboxes = make([]MailboxInfo, 0)
	_, err = d.exec(`LIST "" `+quoteString(pattern), false, RetryCount, func(line []byte) error {
		entry, ok, err := parseListLine(string(line))
		if err != nil || !ok {
			return err
		}
		mailboxes = append(mailboxes, MailboxInfo{
			Name:       entry.Name,
			Delimiter:  entry.Delimiter,
			Attributes: parseAttributes(entry.Attributes),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mailboxes, nil
}

// Status requests the flags items of mailbox.
func (d *Dialer) Status(mailbox string, flags StatusFlags) (*MailboxStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if flags&StatusAll == 0 {
		return nil, validationError("status", "no status items requested")
	}
	r, err := d.exec("STATUS "+quoteString(mailbox)+" "+flags.items(), true, RetryCount, nil)
	if err != nil {
		return nil, err
	}
	status, err := parseStatusResponse(r)
	if err != nil {
		return nil, err
	}
	status.restrict(flags)
	return status, nil
}

// Search runs UID SEARCH with already serialized criteria and returns UIDs
// in server order.
func (d *Dialer) Search(mailbox string, criteria string) ([]uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureSelected(mailbox); err != nil {
		return nil, err
	}
	r, err := d.exec("UID SEARCH "+criteria, true, RetryCount, nil)
	if err != nil {
		return nil, err
	}
	return parseNumberList(r, "SEARCH")
}

// Sort runs UID SORT (RFC 5256). charset is required by the command.
func (d *Dialer) Sort(mailbox string, key SortKey, descending bool, criteria string, charset string) ([]uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if charset == "" {
		charset = "UTF-8"
	}
	if err := d.ensureSelected(mailbox); err != nil {
		return nil, err
	}
	r, err := d.exec("UID SORT "+key.program(descending)+" "+charset+" "+criteria, true, RetryCount, nil)
	if err != nil {
		return nil, err
	}
	return parseNumberList(r, "SORT")
}

// Fetch returns one token list per FETCH response line.
func (d *Dialer) Fetch(mailbox string, set *SequenceSet, items string) (records [][]*Token, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err = d.ensureSelected(mailbox); err != nil {
		return nil, err
	}
	records = make([][]*Token, 0)
	_, err = d.exec(seqCommand("FETCH", set)+" "+items, false, RetryCount, func(line []byte) error {
		if u, ok := parseUntagged(string(line)); !ok || u.Name != "FETCH" {
			return nil
		}
		tokens, err := parseFetchLine(string(line))
		if err != nil {
			return err
		}
		records = append(records, tokens)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Store adds (FlagAdd) or removes (FlagRemove) flags on set.
func (d *Dialer) Store(mailbox string, set *SequenceSet, mode FlagSet, flags []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var item string
	switch mode {
	case FlagAdd:
		item = "+FLAGS.SILENT"
	case FlagRemove:
		item = "-FLAGS.SILENT"
	default:
		return validationError("store", "invalid flag mode %d", mode)
	}
	if err := d.ensureSelected(mailbox); err != nil {
		return err
	}
	_, err := d.exec(seqCommand("STORE", set)+" "+item+" "+quoteList(flags), false, RetryCount, nil)
	return err
}

// Copy copies set from mailbox into target.
func (d *Dialer) Copy(mailbox string, set *SequenceSet, target string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureSelected(mailbox); err != nil {
		return err
	}
	_, err := d.exec(seqCommand("COPY", set)+" "+quoteString(target), false, RetryCount, nil)
	return err
}

func (d *Dialer) Rename(mailbox string, newName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.exec("RENAME "+quoteString(mailbox)+" "+quoteString(newName), false, RetryCount, nil); err != nil {
		return err
	}
	if d.Folder == mailbox {
		d.Folder = ""
	}
	return nil
}

func (d *Dialer) Create(mailbox string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.exec("CREATE "+quoteString(mailbox), false, RetryCount, nil)
	return err
}

func (d *Dialer) Delete(mailbox string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.exec("DELETE "+quoteString(mailbox), false, RetryCount, nil); err != nil {
		return err
	}
	if d.Folder == mailbox {
		d.Folder = ""
	}
	return nil
}

// Append stores content in mailbox. A zero date lets the server pick the
// internal date; otherwise it is sent in UTC.
func (d *Dialer) Append(mailbox string, content []byte, flags []string, date time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var b strings.Builder
	b.WriteString("APPEND ")
	b.WriteString(quoteString(mailbox))
	if len(flags) > 0 {
		b.WriteString(" " + quoteList(flags))
	}
	if !date.IsZero() {
		b.WriteString(" " + quoteString(formatInternalDate(date)))
	}
	b.WriteString(" " + MakeIMAPLiteral(string(content)))

	debugLog(d.ConnNum, d.Folder, "appending message", "mailbox", mailbox, "size", humanize.Bytes(uint64(len(content))))
	_, err := d.exec(b.String(), false, RetryCount, nil)
	return err
}

// Thread returns the raw THREAD REFERENCES response over all messages,
// addressed by UID.
func (d *Dialer) Thread(mailbox string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureSelected(mailbox); err != nil {
		return "", err
	}
	return d.exec("UID THREAD REFERENCES UTF-8 ALL", true, RetryCount, nil)
}

// Expunge permanently removes the \Deleted messages of mailbox.
func (d *Dialer) Expunge(mailbox string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureSelected(mailbox); err != nil {
		return err
	}
	_, err := d.exec("EXPUNGE", false, RetryCount, nil)
	return err
}

// formatInternalDate renders t in the fixed-width INTERNALDATE layout, in
// UTC.
func formatInternalDate(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// SelectFolder selects a mailbox, given by its UTF-8 name, read-write.
func (d *Dialer) SelectFolder(folder string) error {
	return d.selectFolder(folder, false)
}

// ExamineFolder selects a mailbox read-only.
func (d *Dialer) ExamineFolder(folder string) error {
	return d.selectFolder(folder, true)
}

func (d *Dialer) selectFolder(folder string, readOnly bool) error {
	name, err := EncodeMailboxName(folder)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err = d.selectMailbox(name, readOnly); err != nil {
		return fmt.Errorf("imap select %q: %w", folder, err)
	}
	return nil
}
