package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/crmdesk/internal/domain"
)

// timeLayout sorts lexically in creation order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// LogStore is the SQLite-backed agent log.
type LogStore struct {
	db *DB
}

// NewLogStore creates a log store using the given database.
func NewLogStore(db *DB) *LogStore {
	return &LogStore{db: db}
}

// Append inserts one row, assigning an id and timestamp when missing.
func (s *LogStore) Append(ctx context.Context, entry domain.AgentLog) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var metadata sql.NullString
	if len(entry.Metadata) > 0 {
		data, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("encoding log metadata: %w", err)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO agent_logs (id, agent_type, action, channel, success, response_time_ms, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.AgentType, entry.Action, entry.Channel,
		entry.Success, entry.ResponseTimeMs, metadata,
		entry.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting agent log: %w", err)
	}
	return nil
}

// Recent returns up to limit rows, newest first. An empty agentType matches
// every row; a limit of zero or less means no limit.
func (s *LogStore) Recent(ctx context.Context, limit int, agentType string) ([]domain.AgentLog, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT id, agent_type, action, channel, success, response_time_ms, metadata, created_at
		 FROM agent_logs
		 WHERE ? = '' OR agent_type = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		agentType, agentType, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying agent logs: %w", err)
	}
	defer rows.Close()

	var out []domain.AgentLog
	for rows.Next() {
		var (
			e        domain.AgentLog
			metadata sql.NullString
			created  string
		)
		if err := rows.Scan(&e.ID, &e.AgentType, &e.Action, &e.Channel, &e.Success,
			&e.ResponseTimeMs, &metadata, &created); err != nil {
			return nil, err
		}
		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("decoding metadata of %s: %w", e.ID, err)
			}
		}
		e.CreatedAt, _ = time.Parse(timeLayout, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats aggregates rows per agent type, ordered by first appearance.
func (s *LogStore) Stats(ctx context.Context) ([]domain.AgentLogStats, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT agent_type, COUNT(*), SUM(success), AVG(response_time_ms)
		 FROM agent_logs
		 GROUP BY agent_type
		 ORDER BY MIN(rowid)`,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregating agent logs: %w", err)
	}
	defer rows.Close()

	var out []domain.AgentLogStats
	for rows.Next() {
		var st domain.AgentLogStats
		if err := rows.Scan(&st.AgentType, &st.Total, &st.Successes, &st.AvgResponseTimeMs); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
