// Package transcript records the commands sent to and the replies received
// from a command interpreter in a plain text log.
//
// Every record is one line:
//
//	2016-12-08 13:40:20.879844 > version
//
// Line breaks inside a message are made visible with a « marker, and the
// message continues on the next physical line, indented under the message
// column and tagged again:
//
//	2016-12-08 13:40:20.881203 < app     : OSPlink 1.1«
//	                           < runtime : Arduino ESP32 2_0_14«
//
// A Logger is not tied to a connection: it may be attached to several
// connections in turn, or to none. Start and Stop bracket its lifetime and
// Stop must be called by the owner, typically with defer.
package transcript

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Tag classifies a record.
type Tag byte

const (
	TagSend Tag = '>' // command sent to the interpreter
	TagRecv Tag = '<' // reply received from the interpreter
	TagNote Tag = '!' // anything else (log start/stop, port open/close)
)

// Mode selects how Start opens an existing file.
type Mode int

const (
	Truncate Mode = iota
	Append
)

// TimeLayout is the timestamp format of every record.
const TimeLayout = "2006-01-02 15:04:05.000000"

// Continuation marks a line break inside a message.
const Continuation = "«"

// indent aligns continuation lines under the tag column.
var indent = strings.Repeat(" ", len(TimeLayout)+1)

// ErrNotStarted is returned by Stop when the logger has no sink.
var ErrNotStarted = errors.New("transcript: not started")

// ErrAlreadyStarted is returned by Start when the logger already has a sink.
var ErrAlreadyStarted = errors.New("transcript: already started")

// Logger writes transcript records to a single sink.
//
// Records are written with one Write call each and are not buffered, so a
// record that Append returned for is in the sink (for files: in the OS).
// Logger is not safe for concurrent use.
type Logger struct {
	w    io.Writer
	name string
	now  func() time.Time
}

// New returns an idle logger.
func New() *Logger {
	return &Logger{now: time.Now}
}

// Start opens the file at path and writes a start record.
func (l *Logger) Start(path string, mode Mode) error {
	if l.w != nil {
		return ErrAlreadyStarted
	}
	f, err := OpenFile(path, mode)
	if err != nil {
		return err
	}
	return l.StartWriter(path, f)
}

// OpenFile opens path for writing transcript records, for callers that
// combine the file with other sinks before StartWriter.
func OpenFile(path string, mode Mode) (*os.File, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if mode == Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("transcript: open %s: %w", path, err)
	}
	return f, nil
}

// StartWriter uses w as the sink. If w is an io.Closer it is closed by Stop.
func (l *Logger) StartWriter(name string, w io.Writer) error {
	if l.w != nil {
		return ErrAlreadyStarted
	}
	l.w = w
	l.name = name
	return l.Append("Log start "+name, TagNote)
}

// Stop writes a stop record and releases the sink.
func (l *Logger) Stop() error {
	if l.w == nil {
		return ErrNotStarted
	}
	err := l.Append("Log stop", TagNote)
	if c, ok := l.w.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	l.w = nil
	l.name = ""
	return err
}

// Active reports whether the logger has a sink.
func (l *Logger) Active() bool {
	return l != nil && l.w != nil
}

// Name is the name passed to Start, empty when idle.
func (l *Logger) Name() string {
	return l.name
}

// Append writes message as one record tagged with tag. It is a no-op on an
// idle logger.
func (l *Logger) Append(message string, tag Tag) error {
	if !l.Active() {
		return nil
	}
	_, err := io.WriteString(l.w, Format(l.now(), tag, message))
	return err
}

// Format renders one record, including its final newline.
func Format(t time.Time, tag Tag, message string) string {
	rep := Continuation + "\n" + indent + string(tag) + " "
	msg := strings.ReplaceAll(message, "\n", rep)
	// A trailing line break only leaves its marker behind.
	if strings.HasSuffix(msg, rep) {
		msg = msg[:len(msg)-len(rep)] + Continuation
	}
	return t.Format(TimeLayout) + " " + string(tag) + " " + msg + "\n"
}
