// Package imap is an IMAP client for working with mailboxes in bulk.
//
// A Dialer is one authenticated TLS connection. On top of it the package
// offers a mailbox level API:
//
//   - Mailbox binds a server folder by its UTF-8 name and handles the
//     modified UTF-7 wire encoding and the "{host:port}name" specifier
//   - SearchExpression builds SEARCH criteria, sending text values as
//     literals in the requested charset
//   - SequenceSet validates UID sets and message number sets
//   - Messages are addressed by UID and fetched lazily
//   - Flags, copy, move and expunge work on whole sets in one request
//   - THREAD REFERENCES replies are decoded into a flat node table
//
// Connections are retried and re-established on network failures. A server
// NO or BAD is returned as a *CommandError and never retried; mailbox
// operations wrap it in an *Error whose Kind can be matched with errors.Is.
//
// A Mailbox whose folder disappears becomes unbound and fails with
// ErrReopenMailbox until it is opened again with Dialer.GetMailbox.
package imap
