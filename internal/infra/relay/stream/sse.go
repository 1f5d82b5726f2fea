package stream

import (
	"bufio"
	"io"
	"strings"
)

// Event is a single Server-Sent Event.
type Event struct {
	// Type is the "event:" field; empty for the default message type.
	Type string

	// Data is the payload, data lines joined with newlines.
	Data string

	// ID is the last "id:" field seen in the event.
	ID string
}

// Scanner reads Server-Sent Events from an io.Reader. Events are delimited by
// blank lines; comment lines and unknown fields are ignored.
//
//	scanner := NewScanner(body)
//	for scanner.Next() {
//	    event := scanner.Event()
//	}
//	if err := scanner.Err(); err != nil {
//	    // handle error
//	}
type Scanner struct {
	reader  *bufio.Reader
	current Event
	err     error
}

// NewScanner creates a scanner over reader.
func NewScanner(reader io.Reader) *Scanner {
	return &Scanner{reader: bufio.NewReaderSize(reader, 64*1024)}
}

// Next advances to the next event. It returns false at EOF or on error.
func (s *Scanner) Next() bool {
	if s.err != nil {
		return false
	}
	s.current = Event{}

	var dataLines []string
	var eventType, id string
	hasData := false

	emit := func() {
		s.current = Event{Type: eventType, Data: strings.Join(dataLines, "\n"), ID: id}
	}

	for {
		line, err := s.reader.ReadString('\n')

		// Partial last line (no trailing newline before EOF) is still processed.
		if err != nil && line == "" {
			s.err = err
			if err == io.EOF && hasData {
				emit()
				return true
			}
			return false
		}

		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if hasData {
				emit()
				return true
			}
			eventType = ""
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, hasColon := strings.Cut(line, ":")
		if !hasColon {
			field = line
			value = ""
		} else {
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "data":
			dataLines = append(dataLines, value)
			hasData = true
		case "event":
			eventType = value
		case "id":
			id = value
		}
	}
}

// Event returns the most recently parsed event.
func (s *Scanner) Event() Event {
	return s.current
}

// Err returns the first non-EOF error encountered.
func (s *Scanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
