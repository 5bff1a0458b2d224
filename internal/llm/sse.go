package llm

import (
	"bufio"
	"io"
	"strings"
)

// sseScanner reads the data payloads of a Server-Sent Events stream.
// Comment lines, event names and blank separators are skipped.
type sseScanner struct {
	scanner *bufio.Scanner
	data    string
}

func newSSEScanner(r io.Reader) *sseScanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseScanner{scanner: s}
}

// Scan advances to the next data line.
func (s *sseScanner) Scan() bool {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload == "" || payload == "[DONE]" {
			continue
		}
		s.data = payload
		return true
	}
	return false
}

// Data returns the payload of the last data line.
func (s *sseScanner) Data() string {
	return s.data
}

// Err returns the first non-EOF read error.
func (s *sseScanner) Err() error {
	return s.scanner.Err()
}
