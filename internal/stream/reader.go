package stream

import (
	"bufio"
	"io"
	"strings"
)

// Frame is one parsed server-sent event or comment.
type Frame struct {
	Event   string
	Data    string
	Comment string
}

// IsComment reports whether the frame carried only a comment, such as a
// heartbeat.
func (f Frame) IsComment() bool {
	return f.Event == "" && f.Data == "" && f.Comment != ""
}

// Read parses an event stream from r and calls fn for every frame until r
// ends or fn returns an error. A trailing frame without its blank line is
// dropped, as browsers do.
func Read(r io.Reader, fn func(Frame) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		f       Frame
		data    []string
		pending bool
	)
	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		if line == "" {
			if pending {
				f.Data = strings.Join(data, "\n")
				if err := fn(f); err != nil {
					return err
				}
			}
			f, data, pending = Frame{}, nil, false
			continue
		}
		pending = true
		if strings.HasPrefix(line, ":") {
			f.Comment = strings.TrimSpace(line[1:])
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			f.Event = value
		case "data":
			data = append(data, value)
		}
	}
	return sc.Err()
}
