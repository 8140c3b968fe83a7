package imap

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func setupMailboxes(t *testing.T) (*memHandle, *Mailbox, *Mailbox) {
	t.Helper()
	h := newMemHandle("INBOX", "Archive")
	for i := 1; i <= 3; i++ {
		h.addMessage("INBOX", fmt.Sprintf("Message %d", i))
	}
	inbox, err := OpenMailbox(h, "INBOX")
	require.NoError(t, err)
	archive, err := OpenMailbox(h, "Archive")
	require.NoError(t, err)
	return h, inbox, archive
}

func count(t *testing.T, m *Mailbox) int {
	t.Helper()
	n, err := m.Count()
	require.NoError(t, err)
	return n
}

func search(t *testing.T, m *Mailbox, criteria ...Criterion) []uint32 {
	t.Helper()
	it, err := m.Messages(Query{Criteria: NewSearch(criteria...)})
	require.NoError(t, err)
	return it.UIDs()
}

func TestOpenMailbox(t *testing.T) {
	h, inbox, _ := setupMailboxes(t)

	assert.Equal(t, "INBOX", inbox.Name())
	assert.Equal(t, "{imap.example.com}INBOX", inbox.FullEncodedName())
	assert.Equal(t, "/", inbox.Delimiter())
	assert.True(t, inbox.Attributes().Has(AttrHasNoChildren))
	assert.True(t, inbox.Bound())

	h.addMailbox("Черновики")
	drafts, err := OpenMailbox(h, "Черновики")
	require.NoError(t, err)
	assert.Equal(t, "Черновики", drafts.Name())
	assert.Equal(t, "&BCcENQRABD0EPgQyBDgEOgQ4-", drafts.EncodedName())

	_, err = OpenMailbox(h, "Missing")
	assert.True(t, errors.Is(err, ErrReopenMailbox), "%v", err)
}

func TestMessageSequenceForms(t *testing.T) {
	_, inbox, _ := setupMailboxes(t)

	nums, err := ParseMessageNumbers("1:2")
	require.NoError(t, err)

	for _, seq := range []any{"1,2", "1:2", []int{1, 2}, []string{"1", "2"}, []any{1, "2"}, uint32(1), nums} {
		it, err := inbox.MessageSequence(seq)
		require.NoError(t, err, "%#v", seq)
		want := []uint32{1, 2}
		if seq == uint32(1) {
			want = []uint32{1}
		}
		assert.Equal(t, want, it.UIDs(), "%#v", seq)
	}

	it, err := inbox.MessageSequence("2:*")
	require.NoError(t, err)
	assert.Equal(t, []uint32{2, 3}, it.UIDs())
}

func TestMessageSequenceOutOfRange(t *testing.T) {
	_, inbox, _ := setupMailboxes(t)

	it, err := inbox.MessageSequence("100:200")
	require.NoError(t, err)
	assert.Equal(t, 0, it.Len())

	_, err = inbox.MessageSequence("1:x")
	assert.True(t, errors.Is(err, ErrInvalidSearchCriteria), "%v", err)
}

func TestSetAndClearFlag(t *testing.T) {
	h, inbox, _ := setupMailboxes(t)

	require.NoError(t, inbox.SetFlag(FlagSeen, "1:2"))
	assert.Equal(t, 1, h.countCalls("STORE"))
	assert.Equal(t, []uint32{1, 2}, search(t, inbox, Seen))

	seen, err := inbox.Message(2).IsSeen()
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, inbox.ClearFlag(FlagSeen, []int{1, 2}))
	assert.Equal(t, 2, h.countCalls("STORE"))
	assert.Equal(t, []uint32{1, 2, 3}, search(t, inbox, Unseen))

	err = inbox.SetFlag("bad flag", 1)
	assert.True(t, errors.Is(err, ErrValidation), "%v", err)
	assert.Equal(t, 2, h.countCalls("STORE"))
}

func TestUpdateFlags(t *testing.T) {
	h, inbox, _ := setupMailboxes(t)

	require.NoError(t, inbox.UpdateFlags("1:3", Flags{Seen: FlagAdd, Flagged: FlagAdd, Keywords: map[string]bool{"$Work": true}}))
	assert.Equal(t, 1, h.countCalls("STORE"))

	require.NoError(t, inbox.UpdateFlags("1", Flags{Seen: FlagRemove, Flagged: FlagRemove}))
	assert.Equal(t, 2, h.countCalls("STORE"))
	assert.Equal(t, []uint32{1}, search(t, inbox, Unseen))
	assert.Equal(t, []uint32{2, 3}, search(t, inbox, Flagged))

	flags, err := inbox.Message(3).Flags()
	require.NoError(t, err)
	assert.Contains(t, flags, "$Work")

	err = inbox.UpdateFlags("1", Flags{})
	assert.True(t, errors.Is(err, ErrValidation), "%v", err)
}

func TestMoveAndExpunge(t *testing.T) {
	h, inbox, archive := setupMailboxes(t)

	require.NoError(t, inbox.Move("1:2", archive))
	assert.Equal(t, 3, count(t, inbox), "move keeps messages until expunge")
	assert.Equal(t, 2, count(t, archive))
	assert.Equal(t, []uint32{1, 2}, search(t, inbox, Deleted))

	require.NoError(t, inbox.Expunge())
	assert.Equal(t, 1, count(t, inbox))

	it, err := archive.Messages(Query{})
	require.NoError(t, err)
	copies := h.countCalls("COPY")
	require.NoError(t, archive.Move(it, inbox))
	assert.Equal(t, copies+1, h.countCalls("COPY"), "iterator moves in one request")
	require.NoError(t, archive.Expunge())

	assert.Equal(t, 3, count(t, inbox))
	assert.Equal(t, 0, count(t, archive))
}

func TestCopyKeepsSource(t *testing.T) {
	_, inbox, archive := setupMailboxes(t)

	require.NoError(t, inbox.Copy("1:*", archive))
	assert.Equal(t, 3, count(t, inbox))
	assert.Equal(t, 3, count(t, archive))
	assert.Empty(t, search(t, inbox, Deleted))

	subject, err := archive.Message(2).Subject()
	require.NoError(t, err)
	assert.Equal(t, "Message 2", subject)
}

func TestTransferEmptyIterator(t *testing.T) {
	h, inbox, archive := setupMailboxes(t)

	it, err := inbox.Messages(Query{Criteria: NewSearch(Subject("no such subject"))})
	require.NoError(t, err)
	require.Equal(t, 0, it.Len())

	require.NoError(t, inbox.Move(it, archive))
	require.NoError(t, inbox.Copy(it, archive))
	require.NoError(t, inbox.SetFlag(FlagSeen, it))
	assert.Equal(t, 0, h.countCalls("COPY"))
	assert.Equal(t, 0, h.countCalls("STORE"))
}

func TestMoveFailureLeavesSource(t *testing.T) {
	h, inbox, archive := setupMailboxes(t)

	require.NoError(t, h.Delete(archive.EncodedName()))

	err := inbox.Move("1", archive)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMessageMove), "%v", err)
	assert.Equal(t, 0, h.countCalls("STORE"))
	assert.Empty(t, search(t, inbox, Deleted))
	assert.True(t, inbox.Bound())

	err = inbox.Copy("1", archive)
	assert.True(t, errors.Is(err, ErrMessageCopy), "%v", err)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Contains(t, e.Diagnostic, "TRYCREATE")
}

func TestTransferToDeletedMailbox(t *testing.T) {
	h, inbox, archive := setupMailboxes(t)

	require.NoError(t, h.Delete(archive.EncodedName()))
	archive.unbind()

	err := inbox.Move("1", archive)
	assert.True(t, errors.Is(err, ErrMessageMove), "%v", err)
	assert.False(t, errors.Is(err, ErrReopenMailbox), "%v", err)

	err = inbox.Copy(inbox.Message(2), archive)
	assert.True(t, errors.Is(err, ErrMessageCopy), "%v", err)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "INBOX", e.Mailbox)
	assert.Contains(t, e.Diagnostic, `"Archive"`)

	assert.Equal(t, 0, h.countCalls("COPY"))
	assert.Equal(t, 0, h.countCalls("STORE"))
	assert.True(t, inbox.Bound())
	assert.Equal(t, 3, count(t, inbox))
}

func TestStatusItems(t *testing.T) {
	_, inbox, _ := setupMailboxes(t)

	status, err := inbox.Status(StatusMessages)
	require.NoError(t, err)
	n, ok := status.MessageCount()
	assert.True(t, ok)
	assert.Equal(t, uint32(3), n)
	_, ok = status.NextUID()
	assert.False(t, ok, "UIDNEXT was not requested")
	assert.Nil(t, status.Unseen)

	status, err = inbox.DefaultStatus()
	require.NoError(t, err)
	next, ok := status.NextUID()
	assert.True(t, ok)
	assert.Equal(t, uint32(4), next)
	unseen, _ := status.UnseenCount()
	assert.Equal(t, uint32(3), unseen)
	validity, ok := status.Validity()
	assert.True(t, ok)
	assert.NotZero(t, validity)
	assert.Equal(t, StatusAll, status.Flags)
}

func TestSearchCharset(t *testing.T) {
	h, inbox, _ := setupMailboxes(t)

	body, err := charmap.Windows1251.NewEncoder().String("Привет, мир")
	require.NoError(t, err)
	raw := "From: ivan@example.com\r\nSubject: cp1251\r\nMIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=windows-1251\r\nContent-Transfer-Encoding: 8bit\r\n\r\n" + body + "\r\n"
	require.NoError(t, inbox.AddMessage([]byte(raw), nil, time.Time{}))

	it, err := inbox.Messages(Query{Criteria: NewSearch(Body("Привет")), Charset: "windows-1251"})
	require.NoError(t, err)
	assert.Equal(t, []uint32{4}, it.UIDs())

	assert.Equal(t, []uint32{4}, search(t, inbox, Body("привет")))
	assert.Contains(t, h.calls[len(h.calls)-1], "CHARSET UTF-8")

	_, err = inbox.Messages(Query{Criteria: NewSearch(Body("x")), Charset: "bad charset"})
	assert.True(t, errors.Is(err, ErrValidation), "%v", err)
}

func TestSearchRejected(t *testing.T) {
	h, inbox, _ := setupMailboxes(t)
	h.searchError = "Invalid search program"

	_, err := inbox.Messages(Query{Criteria: NewSearch(Unseen)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSearchCriteria), "%v", err)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "Invalid search program", e.Diagnostic)
	assert.True(t, inbox.Bound())
}

func TestSortedMessages(t *testing.T) {
	h := newMemHandle("INBOX")
	for _, s := range []string{"Message 2", "Message 1", "Message 3"} {
		h.addMessage("INBOX", s)
	}
	inbox, err := OpenMailbox(h, "INBOX")
	require.NoError(t, err)

	subjects := func(it *MessageIterator) []string {
		out := []string{}
		for msg := range it.All() {
			s, err := msg.Subject()
			require.NoError(t, err)
			out = append(out, s)
		}
		return out
	}

	it, err := inbox.Messages(Query{Sort: SortSubject})
	require.NoError(t, err)
	assert.Equal(t, []uint32{2, 1, 3}, it.UIDs())
	assert.Equal(t, []string{"Message 1", "Message 2", "Message 3"}, subjects(it))

	it, err = inbox.Messages(Query{Sort: SortSubject, Descending: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Message 3", "Message 2", "Message 1"}, subjects(it))

	it, err = inbox.Messages(Query{Sort: SortArrival, Criteria: NewSearch(Set(mustSet(t, "2:3")))})
	require.NoError(t, err)
	assert.Equal(t, []uint32{2, 3}, it.UIDs())

	_, err = inbox.Messages(Query{Sort: "COLOR"})
	assert.True(t, errors.Is(err, ErrValidation), "%v", err)
}

func mustSet(t *testing.T, s string) *SequenceSet {
	t.Helper()
	set, err := ParseSequenceSet(s)
	require.NoError(t, err)
	return set
}

func TestAddMessageDate(t *testing.T) {
	_, inbox, _ := setupMailboxes(t)

	raw := []byte("From: a@example.com\r\nSubject: dated\r\n\r\nhello\r\n")
	date := time.Date(2012, time.January, 3, 11, 30, 3, 0, time.FixedZone("EET", 2*3600))
	require.NoError(t, inbox.AddMessage(raw, []string{FlagSeen}, date))

	msg := inbox.Message(4)
	mailDate, err := msg.MailDate()
	require.NoError(t, err)
	assert.Equal(t, " 3-Jan-2012 09:30:03 +0000", mailDate)

	received, err := msg.InternalDate()
	require.NoError(t, err)
	assert.True(t, received.Equal(date))

	seen, err := msg.IsSeen()
	require.NoError(t, err)
	assert.True(t, seen)

	assert.True(t, errors.Is(inbox.AddMessage(nil, nil, time.Time{}), ErrValidation))
	assert.True(t, errors.Is(inbox.AddMessage(raw, []string{"a b"}, time.Time{}), ErrValidation))
}

func TestAddMessageMissingMailbox(t *testing.T) {
	h, _, archive := setupMailboxes(t)
	require.NoError(t, h.Delete(archive.EncodedName()))

	err := archive.AddMessage([]byte("Subject: x\r\n\r\ny\r\n"), nil, time.Time{})
	assert.True(t, errors.Is(err, ErrReopenMailbox), "%v", err)
	assert.False(t, archive.Bound())
}

func TestMessageIsLazy(t *testing.T) {
	h, inbox, _ := setupMailboxes(t)

	msg := inbox.Message(99)
	assert.Equal(t, uint32(99), msg.UID())
	assert.Equal(t, 0, h.countCalls("FETCH"))

	_, err := msg.Subject()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMessageDoesNotExist), "%v", err)
	assert.Equal(t, `imap: Message "99" does not exist`, err.Error())
}

func TestMessageZeroUID(t *testing.T) {
	h, inbox, _ := setupMailboxes(t)

	_, err := inbox.Message(0).Flags()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMessageDoesNotExist), "%v", err)
	assert.Equal(t, `imap: Message "0" does not exist`, err.Error())
	assert.Equal(t, 0, h.countCalls("FETCH"))
}

func TestRenameTo(t *testing.T) {
	h, inbox, archive := setupMailboxes(t)

	require.NoError(t, archive.RenameTo("Архив"))
	assert.Equal(t, "Архив", archive.Name())
	assert.Equal(t, "&BBAEQARFBDgEMg-", archive.EncodedName())
	assert.Contains(t, h.mailboxes, "&BBAEQARFBDgEMg-")
	assert.Equal(t, 0, count(t, archive))

	err := archive.RenameTo("INBOX")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRenameMailbox), "%v", err)
	assert.Equal(t, "Архив", archive.Name())
	assert.True(t, archive.Bound())
	assert.Equal(t, 3, count(t, inbox))

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Contains(t, e.Diagnostic, "ALREADYEXISTS")
}

func TestStaleMailbox(t *testing.T) {
	h, _, archive := setupMailboxes(t)
	require.NoError(t, h.Delete(archive.EncodedName()))

	_, err := archive.Status(StatusAll)
	assert.True(t, errors.Is(err, ErrReopenMailbox), "%v", err)
	assert.False(t, archive.Bound())

	calls := len(h.calls)
	_, err = archive.Messages(Query{})
	assert.True(t, errors.Is(err, ErrReopenMailbox), "%v", err)
	assert.True(t, errors.Is(archive.SetFlag(FlagSeen, 1), ErrReopenMailbox))
	assert.True(t, errors.Is(archive.RenameTo("Other"), ErrReopenMailbox))
	assert.Equal(t, calls, len(h.calls), "an unbound mailbox sends nothing")
}

func TestStaleAfterFailedSelect(t *testing.T) {
	h, _, archive := setupMailboxes(t)
	require.NoError(t, h.Delete(archive.EncodedName()))

	_, err := archive.MessageSequence("1")
	assert.True(t, errors.Is(err, ErrReopenMailbox), "%v", err)
	assert.False(t, archive.Bound())
}

func TestAllMatchesEmptyQuery(t *testing.T) {
	_, inbox, _ := setupMailboxes(t)

	it, err := inbox.Messages(Query{})
	require.NoError(t, err)

	var uids []uint32
	for msg, err := range inbox.All() {
		require.NoError(t, err)
		assert.Same(t, inbox, msg.Mailbox())
		uids = append(uids, msg.UID())
	}
	assert.Equal(t, it.UIDs(), uids)
	assert.Equal(t, []uint32{1, 2, 3}, uids)
}

func TestMailboxThread(t *testing.T) {
	h, inbox, _ := setupMailboxes(t)

	thread, err := inbox.Thread()
	require.NoError(t, err)
	assert.Equal(t, 3, thread.Len())

	h.threadReply = "* THREAD (1 2)(3)\r\n"
	thread, err = inbox.Thread()
	require.NoError(t, err)
	require.Equal(t, 3, thread.Len())
	assert.Equal(t, ThreadNode{Num: 1, Next: 1, Branch: 2}, thread.Nodes[0])

	empty := newMemHandle("Empty")
	mb, err := OpenMailbox(empty, "Empty")
	require.NoError(t, err)
	thread, err = mb.Thread()
	require.NoError(t, err)
	assert.Equal(t, 0, thread.Len())
}
