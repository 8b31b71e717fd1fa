package event

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Reader reads detail-format records:
//
//	Tue Oct 14 09:12:44 2026
//		User-Name = "bob"
//		Acct-Status-Type = Start
//
// An unindented line without "=" is a timestamp header and starts a new
// record. A blank line ends the current record.
type Reader struct {
	sc   *bufio.Scanner
	line int

	pending []string
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{sc: sc}
}

// Next returns the next record. It returns io.EOF once the input is
// exhausted and no record is pending.
func (r *Reader) Next() (Event, error) {
	for r.sc.Scan() {
		r.line++
		text := r.sc.Text()
		trimmed := strings.TrimSpace(text)

		switch {
		case trimmed == "":
			if len(r.pending) > 0 {
				return r.flush(), nil
			}
		case !strings.ContainsRune(trimmed, '='):
			if !isIndented(text) {
				// Header of the next record; close any unterminated one.
				if len(r.pending) > 0 {
					return r.flush(), nil
				}
				continue
			}
			return Event{}, fmt.Errorf("line %d: malformed attribute %q", r.line, trimmed)
		default:
			if _, _, ok := Split(trimmed); !ok {
				return Event{}, fmt.Errorf("line %d: malformed attribute %q", r.line, trimmed)
			}
			r.pending = append(r.pending, trimmed)
		}
	}
	if err := r.sc.Err(); err != nil {
		return Event{}, fmt.Errorf("read detail: %w", err)
	}
	if len(r.pending) > 0 {
		return r.flush(), nil
	}
	return Event{}, io.EOF
}

func (r *Reader) flush() Event {
	ev := New(r.pending...)
	r.pending = r.pending[:0]
	return ev
}

func isIndented(s string) bool {
	return s != "" && (s[0] == ' ' || s[0] == '\t')
}

// ReadAll reads every remaining record.
func (r *Reader) ReadAll() ([]Event, error) {
	var out []Event
	for {
		ev, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
}
