package stream

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("response writer does not support flushing")

// SSEWriter writes server-sent events to an HTTP response. Writes are
// serialized, so heartbeats and events never interleave.
type SSEWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	rc      *http.ResponseController
	timeout time.Duration
}

// NewSSEWriter writes the event-stream headers and flushes them. writeTimeout
// bounds each later write; zero disables it.
func NewSSEWriter(w http.ResponseWriter, writeTimeout time.Duration) (*SSEWriter, error) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	s := &SSEWriter{w: w, rc: http.NewResponseController(w), timeout: writeTimeout}

	w.WriteHeader(http.StatusOK)
	if err := s.rc.Flush(); err != nil {
		if errors.Is(err, http.ErrNotSupported) {
			return nil, ErrStreamingUnsupported
		}
		return nil, err
	}
	return s, nil
}

// Send writes one event frame.
func (s *SSEWriter) Send(ev Event) error {
	return s.write(FormatEvent(ev))
}

// Heartbeat writes a comment frame carrying t in epoch milliseconds.
func (s *SSEWriter) Heartbeat(t time.Time) error {
	return s.write(FormatHeartbeat(t))
}

func (s *SSEWriter) write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timeout > 0 {
		if err := s.rc.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
	}
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	return s.rc.Flush()
}

// FormatEvent renders ev as "event: name\ndata: ...\n\n". Multi-line data is
// split across data lines.
func FormatEvent(ev Event) []byte {
	var buf bytes.Buffer
	if ev.Name != "" {
		fmt.Fprintf(&buf, "event: %s\n", ev.Name)
	}
	for _, line := range strings.Split(string(ev.Data), "\n") {
		fmt.Fprintf(&buf, "data: %s\n", line)
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

// FormatHeartbeat renders ": heartbeat <epoch-ms>\n\n".
func FormatHeartbeat(t time.Time) []byte {
	return []byte(fmt.Sprintf(": heartbeat %d\n\n", t.UnixMilli()))
}
