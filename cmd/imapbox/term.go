package main

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	imap "github.com/mailkit/imapbox"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var lvl = LevelInfo

func SetLevel(level Level) {
	lvl = level
}

func Debugf(format string, a ...any) {
	if lvl > LevelDebug {
		return
	}
	pterm.FgLightCyan.Printfln(format, a...)
}

func Infof(format string, a ...any) {
	if lvl > LevelInfo {
		return
	}
	pterm.FgLightGreen.Printfln(format, a...)
}

func Warnf(format string, a ...any) {
	if lvl > LevelWarn {
		return
	}
	pterm.FgYellow.Printfln(format, a...)
}

func Error(a ...any) {
	pterm.FgLightRed.Println(a...)
}

// termLogger prints the library log through the levelled terminal output.
type termLogger struct {
	attrs []any
}

var _ imap.Logger = termLogger{}

func (l termLogger) line(msg string, args []any) string {
	var b strings.Builder
	b.WriteString(msg)
	all := append(append([]any{}, l.attrs...), args...)
	for i := 0; i+1 < len(all); i += 2 {
		fmt.Fprintf(&b, " %v=%v", all[i], all[i+1])
	}
	return b.String()
}

func (l termLogger) Debug(msg string, args ...any) { Debugf("%s", l.line(msg, args)) }
func (l termLogger) Info(msg string, args ...any)  { Infof("%s", l.line(msg, args)) }
func (l termLogger) Warn(msg string, args ...any)  { Warnf("%s", l.line(msg, args)) }
func (l termLogger) Error(msg string, args ...any) { Error(l.line(msg, args)) }

func (l termLogger) WithAttrs(args ...any) imap.Logger {
	return termLogger{attrs: append(append([]any{}, l.attrs...), args...)}
}
