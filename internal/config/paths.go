package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const defaultBaseDir = ".crmdesk"

// Paths holds resolved filesystem locations for crmdesk data.
type Paths struct {
	Base   string // ~/.crmdesk
	Config string // ~/.crmdesk/config.yaml
	Env    string // ~/.crmdesk/.env
	Data   string // ~/.crmdesk/data
	Logs   string // ~/.crmdesk/logs
}

// ResolvePaths computes the standard paths. CRMDESK_HOME overrides the base.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("CRMDESK_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Env:    filepath.Join(base, ".env"),
		Data:   filepath.Join(base, "data"),
		Logs:   filepath.Join(base, "logs"),
	}, nil
}

// LogDB returns the SQLite path for the agent log, honoring an explicit override.
func (p Paths) LogDB(override string) string {
	if override != "" {
		return override
	}
	return filepath.Join(p.Data, "agent_logs.db")
}

// EnsureDirs creates the standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Data, p.Logs} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// reservedSegments may never appear in a config path.
var reservedSegments = []string{"__proto__", "prototype", "constructor"}

// ParseConfigPath splits a dotted key such as "agents.defaults.maxRetries".
func ParseConfigPath(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	segments := strings.Split(raw, ".")
	for _, seg := range segments {
		switch {
		case seg == "":
			return nil, &ConfigError{Message: "config path contains empty segment"}
		case slices.Contains(reservedSegments, seg):
			return nil, &ConfigError{Message: "config path contains blocked key: " + seg}
		}
	}
	return segments, nil
}

// GetValueAtPath walks nested maps and returns the value at path.
func GetValueAtPath(root map[string]any, path []string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	v, ok := root[path[0]]
	if !ok || len(path) == 1 {
		return v, ok
	}
	child, isMap := v.(map[string]any)
	if !isMap {
		return nil, false
	}
	return GetValueAtPath(child, path[1:])
}

// SetValueAtPath stores value at path, replacing scalars and creating
// intermediate maps along the way.
func SetValueAtPath(root map[string]any, path []string, value any) {
	if len(path) == 1 {
		root[path[0]] = value
		return
	}
	child, isMap := root[path[0]].(map[string]any)
	if !isMap {
		child = map[string]any{}
		root[path[0]] = child
	}
	SetValueAtPath(child, path[1:], value)
}

// UnsetValueAtPath deletes the value at path and reports whether it existed.
func UnsetValueAtPath(root map[string]any, path []string) bool {
	if len(path) == 1 {
		_, ok := root[path[0]]
		delete(root, path[0])
		return ok
	}
	child, isMap := root[path[0]].(map[string]any)
	if !isMap {
		return false
	}
	return UnsetValueAtPath(child, path[1:])
}
