package imap

import (
	"strconv"
	"unicode/utf8"

	"github.com/emersion/go-imap/utf7"
)

// MailboxName is a mailbox name in its UTF-8 form together with the
// derived wire forms. Values are immutable; a renamed mailbox gets a new
// MailboxName.
type MailboxName struct {
	raw     string
	encoded string
	full    string
}

// NewMailboxName encodes raw for the wire and builds the full specifier
// for host and port.
func NewMailboxName(raw string, host string, port int) (MailboxName, error) {
	encoded, err := EncodeMailboxName(raw)
	if err != nil {
		return MailboxName{}, err
	}
	return MailboxName{
		raw:     raw,
		encoded: encoded,
		full:    FullSpecifier(host, port, encoded),
	}, nil
}

// mailboxNameFromWire builds a MailboxName from a name as the server sent it.
func mailboxNameFromWire(encoded string, host string, port int) (MailboxName, error) {
	raw, err := DecodeMailboxName(encoded)
	if err != nil {
		return MailboxName{}, err
	}
	return MailboxName{
		raw:     raw,
		encoded: encoded,
		full:    FullSpecifier(host, port, encoded),
	}, nil
}

// Raw returns the UTF-8 name.
func (n MailboxName) Raw() string { return n.raw }

// Encoded returns the modified UTF-7 name used on the wire.
func (n MailboxName) Encoded() string { return n.encoded }

// Full returns the "{host:port}name" specifier.
func (n MailboxName) Full() string { return n.full }

func (n MailboxName) String() string { return n.raw }

// EncodeMailboxName converts a UTF-8 mailbox name to modified UTF-7
// (RFC 3501 section 5.1.3).
func EncodeMailboxName(raw string) (string, error) {
	if !utf8.ValidString(raw) {
		return "", &Error{Kind: KindEncoding, Op: "encode name", Mailbox: raw, Diagnostic: "name is not valid UTF-8"}
	}
	encoded, err := utf7.Encoding.NewEncoder().String(raw)
	if err != nil {
		return "", &Error{Kind: KindEncoding, Op: "encode name", Mailbox: raw, Err: err}
	}
	return encoded, nil
}

// DecodeMailboxName converts a modified UTF-7 mailbox name to UTF-8.
func DecodeMailboxName(encoded string) (string, error) {
	raw, err := utf7.Encoding.NewDecoder().String(encoded)
	if err != nil {
		return "", &Error{Kind: KindEncoding, Op: "decode name", Mailbox: encoded, Err: err}
	}
	return raw, nil
}

// FullSpecifier builds "{host:port}encoded". The port is left out when it
// is zero or DefaultPort.
func FullSpecifier(host string, port int, encoded string) string {
	if port == 0 || port == DefaultPort {
		return "{" + host + "}" + encoded
	}
	return "{" + host + ":" + strconv.Itoa(port) + "}" + encoded
}
