package transcript

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"
)

// Entry is one record read back from a transcript.
type Entry struct {
	Time    time.Time
	Tag     Tag
	Message string
}

// ReadRecords parses a transcript written by Logger. Continuation lines are
// folded back into their record and every « marker becomes a line break
// again, so Message equals the string that was appended.
//
// One message does not survive the trip: a message whose own text ends in «
// is indistinguishable from one ending in a line break, and reads back with
// the line break.
func ReadRecords(r io.Reader) ([]Entry, error) {
	var (
		entries []Entry
		cur     *Entry
		lineNo  int
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sc.Split(scanLF)
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if strings.HasPrefix(line, indent) {
			if cur == nil || !strings.HasSuffix(cur.Message, Continuation) {
				return nil, fmt.Errorf("transcript: line %d: continuation without record", lineNo)
			}
			rest := line[len(indent):]
			if len(rest) < 2 || Tag(rest[0]) != cur.Tag || rest[1] != ' ' {
				return nil, fmt.Errorf("transcript: line %d: bad continuation", lineNo)
			}
			cur.Message = strings.TrimSuffix(cur.Message, Continuation) + "\n" + rest[2:]
			continue
		}
		if len(line) < len(TimeLayout)+3 {
			return nil, fmt.Errorf("transcript: line %d: too short", lineNo)
		}
		ts, err := time.ParseInLocation(TimeLayout, line[:len(TimeLayout)], time.Local)
		if err != nil {
			return nil, fmt.Errorf("transcript: line %d: %w", lineNo, err)
		}
		entries = append(entries, Entry{
			Time:    ts,
			Tag:     Tag(line[len(TimeLayout)+1]),
			Message: line[len(TimeLayout)+3:],
		})
		cur = &entries[len(entries)-1]
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	// A record still ending in the marker had a trailing line break.
	for i := range entries {
		if strings.HasSuffix(entries[i].Message, Continuation) {
			entries[i].Message = strings.TrimSuffix(entries[i].Message, Continuation) + "\n"
		}
	}
	return entries, nil
}

// scanLF splits on \n only. Unlike bufio.ScanLines it keeps a \r before the
// newline, which belongs to the recorded message.
func scanLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
