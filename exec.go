package imap

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	retry "github.com/StirlingMarketingGroup/go-retry"
	"github.com/rs/xid"
)

// literalMarker finds a synchronizing literal announcement inside an
// outgoing command, as produced by MakeIMAPLiteral.
var literalMarker = regexp.MustCompile(`\{(\d+)\}\r\n`)

// splitLiterals cuts command so that every chunk but the last ends with a
// literal announcement; the following chunk starts with the literal data.
func splitLiterals(command string) []string {
	chunks := make([]string, 0, 1)
	start, pos := 0, 0
	for pos < len(command) {
		loc := literalMarker.FindStringSubmatchIndex(command[pos:])
		if loc == nil {
			break
		}
		n, err := strconv.Atoi(command[pos+loc[2] : pos+loc[3]])
		end := pos + loc[1]
		if err != nil || end+n > len(command) {
			break
		}
		chunks = append(chunks, command[start:end])
		start = end
		pos = end + n
	}
	return append(chunks, command[start:])
}

// Exec executes an IMAP command and returns the untagged part of the
// response when buildResponse is set.
//
// Connection failures are retried up to retryCount times after
// reconnecting. A tagged NO or BAD is returned as a *CommandError and is
// never retried.
func (d *Dialer) Exec(command string, buildResponse bool, retryCount int, processLine func(line []byte) error) (response string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exec(command, buildResponse, retryCount, processLine)
}

func (d *Dialer) exec(command string, buildResponse bool, retryCount int, processLine func(line []byte) error) (response string, err error) {
	var resp strings.Builder
	var rejected error
	err = retry.Retry(func() (err error) {
		rejected = nil
		if !d.Connected {
			return fmt.Errorf("imap: not connected")
		}

		tag := newTag()

		if CommandTimeout != 0 {
			_ = d.conn.SetDeadline(time.Now().Add(CommandTimeout))
			defer func() { _ = d.conn.SetDeadline(time.Time{}) }()
		}

		if Verbose {
			sanitized := strings.TrimSpace(command)
			if d.Password != "" {
				sanitized = strings.ReplaceAll(sanitized, quoteString(d.Password), `"****"`)
			}
			debugLog(d.ConnNum, d.Folder, "sending command", "tag", string(tag), "command", sanitized)
		}

		if buildResponse {
			resp.Reset()
		}

		chunks := splitLiterals(command)
		for i, chunk := range chunks {
			out := chunk
			if i == 0 {
				out = string(tag) + " " + chunk
			}
			last := i == len(chunks)-1
			if last {
				out += "\r\n"
			}
			if _, err = io.WriteString(d.conn, out); err != nil {
				return err
			}
			if last {
				break
			}

			// wait for the server to accept the literal
			var cont bool
			cont, err = d.readResponse(tag, true, buildResponse, &resp, processLine)
			if err != nil {
				if isRejection(err) {
					rejected = err
					return nil
				}
				return err
			}
			if !cont {
				return fmt.Errorf("imap: command completed before literal was sent")
			}
		}

		_, err = d.readResponse(tag, false, buildResponse, &resp, processLine)
		if isRejection(err) {
			rejected = err
			return nil
		}
		return err
	}, retryCount, func(err error) error {
		warnLog(d.ConnNum, d.Folder, "command failed, closing connection", "error", err)
		_ = d.Close()
		return nil
	}, func() error {
		return d.reconnect()
	})
	if err != nil {
		errorLog(d.ConnNum, d.Folder, "command retries exhausted", "error", err)
		return "", err
	}
	if rejected != nil {
		var cmdErr *CommandError
		if errors.As(rejected, &cmdErr) {
			cmdErr.Command = commandName(command)
			debugLog(d.ConnNum, d.Folder, "command rejected", "status", cmdErr.Status, "text", cmdErr.Text)
		}
		return "", rejected
	}

	if buildResponse {
		return resp.String(), nil
	}
	return "", nil
}

// readResponse consumes lines until the tagged completion, or, when
// waitContinuation is set, until a "+" continuation request.
func (d *Dialer) readResponse(tag []byte, waitContinuation bool, buildResponse bool, resp *strings.Builder, processLine func(line []byte) error) (continued bool, err error) {
	var line []byte
	for {
		line, err = d.r.ReadBytes('\n')
		if err != nil {
			return false, err
		}
		for {
			if a := atom.Find(dropNl(line)); a != nil {
				var n int
				n, err = strconv.Atoi(string(a[1 : len(a)-1]))
				if err != nil {
					return false, err
				}

				buf := make([]byte, n)
				if _, err = io.ReadFull(d.r, buf); err != nil {
					return false, err
				}
				line = append(line, buf...)

				buf, err = d.r.ReadBytes('\n')
				if err != nil {
					return false, err
				}
				line = append(line, buf...)

				continue
			}
			break
		}

		if Verbose && !SkipResponses {
			debugLog(d.ConnNum, d.Folder, "server response", "response", string(dropNl(line)))
		}

		if waitContinuation && len(line) > 0 && line[0] == '+' {
			return true, nil
		}

		// XID tags are 20 uppercase base32hex characters (0-9, A-V).
		taglen := len(tag)
		if len(line) > taglen && bytes.Equal(line[:taglen], tag) && line[taglen] == ' ' {
			status, text, _ := strings.Cut(string(dropNl(line[taglen+1:])), " ")
			status = strings.ToUpper(status)
			if status != "OK" {
				return false, &CommandError{Status: status, Text: text}
			}
			return false, nil
		}

		if processLine != nil {
			if err = processLine(line); err != nil {
				return false, err
			}
		}
		if buildResponse {
			resp.Write(line)
		}
	}
}

// commandName returns the verb of a command, including a UID prefix.
func commandName(command string) string {
	fields := strings.Fields(command)
	switch {
	case len(fields) == 0:
		return ""
	case len(fields) > 1 && strings.EqualFold(fields[0], "UID"):
		return strings.ToUpper(fields[0] + " " + fields[1])
	default:
		return strings.ToUpper(fields[0])
	}
}

// newTag returns a unique command tag: 20 uppercase base32hex characters.
func newTag() []byte {
	return []byte(strings.ToUpper(xid.New().String()))
}
