package store

type migration struct {
	Version int
	Name    string
	SQL     string
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "create agent_logs",
		SQL: `
			CREATE TABLE agent_logs (
				id               TEXT PRIMARY KEY,
				agent_type       TEXT NOT NULL,
				action           TEXT NOT NULL,
				channel          TEXT NOT NULL DEFAULT '',
				success          INTEGER NOT NULL DEFAULT 0,
				response_time_ms INTEGER NOT NULL DEFAULT 0,
				metadata         TEXT,
				created_at       TEXT NOT NULL
			);

			CREATE INDEX idx_agent_logs_type ON agent_logs (agent_type, created_at);
			CREATE INDEX idx_agent_logs_created ON agent_logs (created_at);
		`,
	},
	{
		Version: 2,
		Name:    "index agent_logs by action",
		SQL:     `CREATE INDEX idx_agent_logs_action ON agent_logs (action);`,
	},
}
