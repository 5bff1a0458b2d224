package agent

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/crmdesk/internal/domain"
)

// LogSink receives agent lifecycle rows. Implementations must be safe for
// concurrent use. Callers treat errors as warnings.
type LogSink interface {
	Append(ctx context.Context, entry domain.AgentLog) error
}

// MemoryLogSink is an in-process LogSink.
type MemoryLogSink struct {
	mu      sync.Mutex
	entries []domain.AgentLog
	// Err, when set, is returned by every Append after validation.
	Err error
}

// NewMemoryLogSink creates an empty in-memory sink.
func NewMemoryLogSink() *MemoryLogSink {
	return &MemoryLogSink{}
}

// Append validates and records entry.
func (s *MemoryLogSink) Append(_ context.Context, entry domain.AgentLog) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.entries = append(s.entries, entry)
	return nil
}

// Entries returns a copy of the recorded rows in append order.
func (s *MemoryLogSink) Entries() []domain.AgentLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AgentLog(nil), s.entries...)
}

// Actions returns the action of each recorded row, in order.
func (s *MemoryLogSink) Actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Action
	}
	return out
}

// Recent returns up to limit rows, newest first, optionally filtered by agent type.
func (s *MemoryLogSink) Recent(_ context.Context, limit int, agentType string) ([]domain.AgentLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AgentLog
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if agentType != "" && e.AgentType != agentType {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Stats aggregates recorded rows per agent type, ordered by first appearance.
func (s *MemoryLogSink) Stats(_ context.Context) ([]domain.AgentLogStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := map[string]int{}
	var out []domain.AgentLogStats
	var totalMs []int64
	for _, e := range s.entries {
		i, ok := idx[e.AgentType]
		if !ok {
			i = len(out)
			idx[e.AgentType] = i
			out = append(out, domain.AgentLogStats{AgentType: e.AgentType})
			totalMs = append(totalMs, 0)
		}
		out[i].Total++
		if e.Success {
			out[i].Successes++
		}
		totalMs[i] += e.ResponseTimeMs
	}
	for i := range out {
		out[i].AvgResponseTimeMs = float64(totalMs[i]) / float64(out[i].Total)
	}
	return out, nil
}
