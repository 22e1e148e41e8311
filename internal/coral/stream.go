package coral

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

// maxFrameSize bounds a single SSE data line. Event payloads are small JSON
// envelopes; anything larger is a protocol violation worth failing on.
const maxFrameSize = 1 << 20

// Stream is a lazy, unbounded, non-restartable sequence of raw event
// payloads read from one SSE connection. Once Next returns an error the
// stream is finished; a new stream requires a new OpenStream call.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner

	closeOnce sync.Once
	closeErr  error
}

func newStream(body io.ReadCloser) *Stream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	return &Stream{body: body, scanner: sc}
}

// Next blocks until the next event payload arrives and returns it with the
// SSE framing stripped. Comment lines, event-name lines, and blank
// keepalives are consumed silently. Returns io.EOF when the server closes
// the connection, or the underlying read error.
func (s *Stream) Next() ([]byte, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "" {
			continue
		}
		return []byte(data), nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Close terminates the stream. Any blocked Next call returns shortly after
// with an error. Safe to call from outside the read loop, and more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
