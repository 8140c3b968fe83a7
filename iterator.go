package imap

import "iter"

// MessageIterator is the ordered result of a search, sort or sequence
// lookup. It caches the UIDs only; messages load their data lazily.
type MessageIterator struct {
	mailbox *Mailbox
	uids    []uint32
}

func newMessageIterator(m *Mailbox, uids []uint32) *MessageIterator {
	if uids == nil {
		uids = []uint32{}
	}
	return &MessageIterator{mailbox: m, uids: uids}
}

// Len returns the number of messages.
func (it *MessageIterator) Len() int {
	return len(it.uids)
}

// UIDs returns a copy of the UIDs in result order.
func (it *MessageIterator) UIDs() []uint32 {
	out := make([]uint32, len(it.uids))
	copy(out, it.uids)
	return out
}

// At returns the i-th message.
func (it *MessageIterator) At(i int) *Message {
	return it.mailbox.Message(it.uids[i])
}

// All yields the messages in result order.
func (it *MessageIterator) All() iter.Seq[*Message] {
	return func(yield func(*Message) bool) {
		for _, uid := range it.uids {
			if !yield(it.mailbox.Message(uid)) {
				return
			}
		}
	}
}

// Mailbox returns the mailbox the messages belong to.
func (it *MessageIterator) Mailbox() *Mailbox {
	return it.mailbox
}
