package gateway

import (
	"strings"
	"sync"
	"time"
)

// FlusherConfig controls when buffered deltas are sent.
type FlusherConfig struct {
	// MaxBufferBytes forces a flush at this size. Default 300.
	MaxBufferBytes int
	// IdleTimeout flushes when no delta arrives for this long. Default 2s.
	IdleTimeout time.Duration
	// MinSentenceBytes is the smallest prefix flushed at a sentence end. Default 40.
	MinSentenceBytes int
}

// sentenceFlusher coalesces streamed text into paragraph- or sentence-sized
// pieces. Concatenating everything passed to send reproduces the input.
type sentenceFlusher struct {
	cfg  FlusherConfig
	send func(string)

	mu    sync.Mutex
	buf   strings.Builder
	timer *time.Timer
	sent  int
}

func newSentenceFlusher(cfg FlusherConfig, send func(string)) *sentenceFlusher {
	if cfg.MaxBufferBytes <= 0 {
		cfg.MaxBufferBytes = 300
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 2 * time.Second
	}
	if cfg.MinSentenceBytes <= 0 {
		cfg.MinSentenceBytes = 40
	}
	return &sentenceFlusher{cfg: cfg, send: send}
}

// OnDelta buffers text and flushes at the last natural boundary.
func (f *sentenceFlusher) OnDelta(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.buf.WriteString(text)

	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(f.cfg.IdleTimeout, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.flushLocked()
	})

	content := f.buf.String()
	switch {
	case len(content) >= f.cfg.MaxBufferBytes:
		f.flushLocked()
	case strings.LastIndex(content, "\n\n") >= 0:
		f.flushAtLocked(strings.LastIndex(content, "\n\n") + 2)
	default:
		if pos := lastSentenceEnd(content, f.cfg.MinSentenceBytes); pos > 0 {
			f.flushAtLocked(pos)
		}
	}
}

// Flush sends whatever is left. Call once after the stream ends.
func (f *sentenceFlusher) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timer != nil {
		f.timer.Stop()
	}
	f.flushLocked()
}

// Sent returns how many pieces have been sent.
func (f *sentenceFlusher) Sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

func (f *sentenceFlusher) flushAtLocked(pos int) {
	content := f.buf.String()
	pos = min(pos, len(content))
	if pos == 0 {
		return
	}
	f.sendLocked(content[:pos])
	f.buf.Reset()
	f.buf.WriteString(content[pos:])
}

func (f *sentenceFlusher) flushLocked() {
	if f.buf.Len() == 0 {
		return
	}
	f.sendLocked(f.buf.String())
	f.buf.Reset()
}

func (f *sentenceFlusher) sendLocked(text string) {
	f.send(text)
	f.sent++
}

// lastSentenceEnd returns the byte position just past the last . ! or ?
// that is followed by whitespace, or -1 if that prefix is shorter than minLen.
func lastSentenceEnd(s string, minLen int) int {
	best := -1
	for i := 0; i < len(s)-1; i++ {
		if (s[i] == '.' || s[i] == '!' || s[i] == '?') &&
			(s[i+1] == ' ' || s[i+1] == '\n') {
			best = i + 1
		}
	}
	if best > minLen {
		return best
	}
	return -1
}
