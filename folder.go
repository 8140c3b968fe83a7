package imap

import (
	"errors"
	"fmt"
	"strings"
)

// Attributes is the LIST attribute set of a mailbox.
type Attributes uint16

const (
	AttrNoInferiors Attributes = 1 << iota
	AttrNoSelect
	AttrMarked
	AttrUnmarked
	AttrReferral
	AttrHasChildren
	AttrHasNoChildren
)

var attributeNames = []struct {
	attr Attributes
	name string
}{
	{AttrNoInferiors, `\Noinferiors`},
	{AttrNoSelect, `\Noselect`},
	{AttrMarked, `\Marked`},
	{AttrUnmarked, `\Unmarked`},
	{AttrReferral, `\Referral`},
	{AttrHasChildren, `\HasChildren`},
	{AttrHasNoChildren, `\HasNoChildren`},
}

func parseAttributes(names []string) (a Attributes) {
	for _, n := range names {
		for _, an := range attributeNames {
			if strings.EqualFold(n, an.name) {
				a |= an.attr
			}
		}
	}
	return a
}

// Has reports whether all of attr are set.
func (a Attributes) Has(attr Attributes) bool {
	return a&attr == attr
}

func (a Attributes) String() string {
	names := make([]string, 0, 2)
	for _, an := range attributeNames {
		if a&an.attr != 0 {
			names = append(names, an.name)
		}
	}
	return strings.Join(names, " ")
}

// MailboxInfo is one LIST entry. Name is the wire name.
type MailboxInfo struct {
	Name       string
	Delimiter  string
	Attributes Attributes
}

// FolderStats represents statistics for a folder
type FolderStats struct {
	Name    string
	Count   int
	UIDNext uint32
	Error   error
}

// GetFolders returns the UTF-8 names of all mailboxes.
func (d *Dialer) GetFolders() (folders []string, err error) {
	mailboxes, err := d.Mailboxes()
	if err != nil {
		return nil, err
	}
	folders = make([]string, len(mailboxes))
	for i, m := range mailboxes {
		folders[i] = m.Name()
	}
	return folders, nil
}

// Mailboxes lists every mailbox of the account.
func (d *Dialer) Mailboxes() ([]*Mailbox, error) {
	infos, err := d.List("*")
	if err != nil {
		return nil, err
	}
	mailboxes := make([]*Mailbox, 0, len(infos))
	for _, info := range infos {
		m, err := newMailbox(d, info)
		if err != nil {
			warnLog(d.ConnNum, d.Folder, "skipping undecodable mailbox name", "name", info.Name, "error", err)
			continue
		}
		mailboxes = append(mailboxes, m)
	}
	return mailboxes, nil
}

// GetMailbox returns the mailbox with the given UTF-8 name. It is also how
// a mailbox that became stale is bound again.
func (d *Dialer) GetMailbox(name string) (*Mailbox, error) {
	return OpenMailbox(d, name)
}

// HasMailbox reports whether a mailbox with the given UTF-8 name exists.
func (d *Dialer) HasMailbox(name string) (bool, error) {
	_, err := OpenMailbox(d, name)
	if errors.Is(err, ErrReopenMailbox) {
		return false, nil
	}
	return err == nil, err
}

// CreateMailbox creates a mailbox and returns it bound.
func (d *Dialer) CreateMailbox(name string) (*Mailbox, error) {
	encoded, err := EncodeMailboxName(name)
	if err != nil {
		return nil, err
	}
	if err = d.Create(encoded); err != nil {
		return nil, newError(KindUnknown, "create", name, err)
	}
	return OpenMailbox(d, name)
}

// DeleteMailbox deletes m on the server. m is unbound afterwards.
func (d *Dialer) DeleteMailbox(m *Mailbox) error {
	if err := d.Delete(m.EncodedName()); err != nil {
		return newError(KindUnknown, "delete", m.Name(), err)
	}
	m.unbind()
	return nil
}

// ExpungeSelected permanently removes the \Deleted messages of the selected
// mailbox.
func (d *Dialer) ExpungeSelected() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Folder == "" {
		return validationError("expunge", "no mailbox selected")
	}
	if d.ReadOnly {
		if err := d.selectMailbox(d.Folder, false); err != nil {
			return err
		}
	}
	_, err := d.exec("EXPUNGE", false, RetryCount, nil)
	return err
}

// MailboxStats returns message counts for all selectable mailboxes except
// the excluded UTF-8 names. A failing mailbox is reported in its Error
// field and does not stop the walk.
func (d *Dialer) MailboxStats(exclude ...string) ([]FolderStats, error) {
	mailboxes, err := d.Mailboxes()
	if err != nil {
		return nil, err
	}

	excludeMap := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		excludeMap[name] = true
	}

	stats := make([]FolderStats, 0, len(mailboxes))
	for _, m := range mailboxes {
		if excludeMap[m.Name()] || m.Attributes().Has(AttrNoSelect) {
			continue
		}
		stat := FolderStats{Name: m.Name()}
		status, err := m.Status(StatusMessages | StatusUIDNext)
		if err != nil {
			stat.Error = err
			stats = append(stats, stat)
			continue
		}
		if n, ok := status.MessageCount(); ok {
			stat.Count = int(n)
		}
		stat.UIDNext, _ = status.NextUID()
		stats = append(stats, stat)
	}
	return stats, nil
}

// TotalMessageCount sums the message counts of MailboxStats. Mailboxes
// that failed are returned as folderErrors.
func (d *Dialer) TotalMessageCount(exclude ...string) (count int, folderErrors []error, err error) {
	stats, err := d.MailboxStats(exclude...)
	if err != nil {
		return 0, nil, err
	}
	for _, s := range stats {
		if s.Error != nil {
			folderErrors = append(folderErrors, fmt.Errorf("folder %s: %w", s.Name, s.Error))
			continue
		}
		count += s.Count
	}
	return count, folderErrors, nil
}
