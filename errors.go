package imap

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies the errors returned by mailbox operations.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindValidation is a local input error, raised before any request.
	KindValidation
	// KindEncoding is a name or text that cannot be represented on the wire.
	KindEncoding
	// KindInvalidSearchCriteria is a malformed sequence set or search
	// criteria, either detected locally or rejected by the server.
	KindInvalidSearchCriteria
	KindRenameMailbox
	KindMessageMove
	KindMessageCopy
	// KindReopenMailbox means the bound mailbox no longer exists.
	KindReopenMailbox
	KindMessageDoesNotExist
)

var kindNames = map[Kind]string{
	KindUnknown:               "unknown error",
	KindValidation:            "validation failed",
	KindEncoding:              "encoding failed",
	KindInvalidSearchCriteria: "invalid search criteria",
	KindRenameMailbox:         "cannot rename mailbox",
	KindMessageMove:           "cannot move messages",
	KindMessageCopy:           "cannot copy messages",
	KindReopenMailbox:         "cannot reopen mailbox",
	KindMessageDoesNotExist:   "message does not exist",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Sentinels for errors.Is. Any *Error of the same Kind matches.
var (
	ErrValidation            = &Error{Kind: KindValidation}
	ErrEncoding              = &Error{Kind: KindEncoding}
	ErrInvalidSearchCriteria = &Error{Kind: KindInvalidSearchCriteria}
	ErrRenameMailbox         = &Error{Kind: KindRenameMailbox}
	ErrMessageMove           = &Error{Kind: KindMessageMove}
	ErrMessageCopy           = &Error{Kind: KindMessageCopy}
	ErrReopenMailbox         = &Error{Kind: KindReopenMailbox}
	ErrMessageDoesNotExist   = &Error{Kind: KindMessageDoesNotExist}
)

// Error is returned by mailbox level operations.
type Error struct {
	Kind    Kind
	Op      string
	Mailbox string
	// ID is the message or sequence the operation addressed, if any.
	ID string
	// Diagnostic is the server's response text, verbatim, or the local reason.
	Diagnostic string
	Err        error
}

func (e *Error) Error() string {
	if e.Kind == KindMessageDoesNotExist && e.ID != "" {
		return fmt.Sprintf("imap: Message %q does not exist", e.ID)
	}

	var b strings.Builder
	b.WriteString("imap")
	if e.Op != "" {
		b.WriteString(" " + e.Op)
	}
	if e.Mailbox != "" {
		b.WriteString(fmt.Sprintf(" %q", e.Mailbox))
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Diagnostic != "" {
		b.WriteString(": ")
		b.WriteString(e.Diagnostic)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// CommandError is a tagged NO or BAD response.
type CommandError struct {
	Command string
	// Status is NO or BAD.
	Status string
	// Text is the rest of the tagged response line, including any
	// bracketed response code.
	Text string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("imap command failed: %s %s", e.Status, e.Text)
}

// Code returns the bracketed response code, e.g. TRYCREATE, or "".
func (e *CommandError) Code() string {
	if !strings.HasPrefix(e.Text, "[") {
		return ""
	}
	end := strings.IndexByte(e.Text, ']')
	if end == -1 {
		return ""
	}
	code := e.Text[1:end]
	if i := strings.IndexByte(code, ' '); i != -1 {
		code = code[:i]
	}
	return strings.ToUpper(code)
}

// newError wraps err into an *Error of the given kind. A wrapped
// *CommandError donates its response text as the diagnostic.
func newError(kind Kind, op, mailbox string, err error) *Error {
	e := &Error{Kind: kind, Op: op, Mailbox: mailbox, Err: err}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		e.Diagnostic = cmdErr.Text
	}
	return e
}

func validationError(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Diagnostic: fmt.Sprintf(format, args...)}
}

// isRejection reports whether err is a server NO/BAD rather than a
// connection failure.
func isRejection(err error) bool {
	var cmdErr *CommandError
	return errors.As(err, &cmdErr)
}
