package notify

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// maxEventSize bounds a single event-stream line.
const maxEventSize = 1 << 20

// errEventTooLarge reports an event dropped because one of its lines
// exceeded the size limit. The stream itself stays usable.
var errEventTooLarge = errors.New("event exceeds size limit")

// streamEvent is one dispatched server-sent event.
type streamEvent struct {
	Name string
	ID   string
	Data string
}

// eventReader splits a text/event-stream body into events: "field: value"
// lines terminated by a blank line, with ":" comment lines ignored.
type eventReader struct {
	br    *bufio.Reader
	limit int
}

func newEventReader(r io.Reader) *eventReader {
	return &eventReader{br: bufio.NewReaderSize(r, 4096), limit: maxEventSize}
}

// readLine returns the next line without its terminator. Lines longer
// than the limit are consumed in full and reported as oversized.
func (r *eventReader) readLine() (line string, oversized bool, err error) {
	var buf []byte
	for {
		frag, isPrefix, err := r.br.ReadLine()
		if err != nil {
			return "", false, err
		}
		if !oversized {
			buf = append(buf, frag...)
			if len(buf) > r.limit {
				oversized = true
				buf = nil
			}
		}
		if !isPrefix {
			return string(buf), oversized, nil
		}
	}
}

// Next returns the next event that carries data. It returns io.EOF when
// the stream ends cleanly and errEventTooLarge for an event that was
// skipped; reading may continue after the latter.
func (r *eventReader) Next() (streamEvent, error) {
	var (
		ev      streamEvent
		data    []string
		hasData bool
		skip    bool
	)

	for {
		line, oversized, err := r.readLine()
		if err != nil {
			return streamEvent{}, err
		}
		if oversized {
			skip = true
			continue
		}

		if line == "" {
			if skip {
				return streamEvent{}, errEventTooLarge
			}
			if hasData {
				ev.Data = strings.Join(data, "\n")
				return ev, nil
			}
			ev = streamEvent{}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "data":
			data = append(data, value)
			hasData = true
		case "event":
			ev.Name = value
		case "id":
			ev.ID = value
		}
	}
}
