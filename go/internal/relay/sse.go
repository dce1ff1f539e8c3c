package relay

import (
	"bufio"
	"io"
	"strings"
)

// sseEvent is one server-sent event. Data lines are joined with "\n".
type sseEvent struct {
	Type string
	ID   string
	Data string
}

// sseScanner reads server-sent events separated by blank lines. Comment
// lines and unknown fields are skipped.
type sseScanner struct {
	reader  *bufio.Reader
	current sseEvent
	err     error
}

func newSSEScanner(r io.Reader) *sseScanner {
	return &sseScanner{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next event with data. It returns false at EOF or
// on a read error; Err tells them apart.
func (s *sseScanner) Next() bool {
	if s.err != nil {
		return false
	}
	s.current = sseEvent{}

	var (
		data    []string
		hasData bool
		ev      sseEvent
	)
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			s.err = err
			if err == io.EOF && hasData {
				ev.Data = strings.Join(data, "\n")
				s.current = ev
				return true
			}
			return false
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if hasData {
				ev.Data = strings.Join(data, "\n")
				s.current = ev
				return true
			}
			ev = sseEvent{}
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
			ev.Type = value
		case "id":
			ev.ID = value
		}
	}
}

func (s *sseScanner) Event() sseEvent { return s.current }

func (s *sseScanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
