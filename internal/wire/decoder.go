package wire

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
)

// maxEventBytes bounds a single event line. Tool input fragments are small;
// anything near this size is not a well-formed event.
const maxEventBytes = 1 << 20

// Decoder pulls wire events off a newline-delimited JSON byte stream.
//
// It is pull-based: each Next call consumes exactly one event. Cancellation
// mid-read relies on the caller closing or aborting the underlying reader
// (the HTTP transport threads the request context through to the body), so
// Next only checks ctx between events.
type Decoder struct {
	sc *bufio.Scanner
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventBytes)
	return &Decoder{sc: sc}
}

// Next returns the next event. It returns io.EOF at end of stream and a
// *ProtocolError for lines that are not valid events. Blank lines are
// skipped.
func (d *Decoder) Next(ctx context.Context) (Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}
		if !d.sc.Scan() {
			if err := d.sc.Err(); err != nil {
				return Event{}, err
			}
			return Event{}, io.EOF
		}
		line := strings.TrimSpace(d.sc.Text())
		if line == "" {
			continue
		}

		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return Event{}, &ProtocolError{Reason: "malformed event JSON", Raw: line}
		}
		if err := ev.Validate(); err != nil {
			if pe, ok := err.(*ProtocolError); ok {
				pe.Raw = line
			}
			return Event{}, err
		}
		return ev, nil
	}
}
