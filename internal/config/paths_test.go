package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigPath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr string
	}{
		{"single", "server", []string{"server"}, ""},
		{"nested", "agents.defaults.maxRetries", []string{"agents", "defaults", "maxRetries"}, ""},
		{"empty", "", nil, "empty config path"},
		{"blank", "  ", nil, "empty config path"},
		{"empty segment", "server..port", nil, "empty segment"},
		{"trailing dot", "server.", nil, "empty segment"},
		{"blocked", "server.__proto__", nil, "blocked key"},
		{"constructor", "constructor", nil, "blocked key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConfigPath(tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetValueAtPath(t *testing.T) {
	root := map[string]any{
		"server": map[string]any{"port": 3000},
		"flag":   true,
	}

	v, ok := GetValueAtPath(root, []string{"server", "port"})
	assert.True(t, ok)
	assert.Equal(t, 3000, v)

	v, ok = GetValueAtPath(root, []string{"flag"})
	assert.True(t, ok)
	assert.Equal(t, true, v)

	_, ok = GetValueAtPath(root, []string{"server", "bind"})
	assert.False(t, ok)

	_, ok = GetValueAtPath(root, []string{"flag", "nested"})
	assert.False(t, ok, "scalar cannot be traversed")

	_, ok = GetValueAtPath(root, nil)
	assert.False(t, ok)
}

func TestSetValueAtPath(t *testing.T) {
	root := map[string]any{"server": "not-a-map"}

	SetValueAtPath(root, []string{"server", "port"}, 8080)
	SetValueAtPath(root, []string{"logging", "level"}, "debug")
	SetValueAtPath(root, []string{"top"}, 1)

	assert.Equal(t, map[string]any{
		"server":  map[string]any{"port": 8080},
		"logging": map[string]any{"level": "debug"},
		"top":     1,
	}, root)
}

func TestUnsetValueAtPath(t *testing.T) {
	root := map[string]any{
		"server": map[string]any{"port": 3000, "bind": "lan"},
		"scalar": "x",
	}

	assert.True(t, UnsetValueAtPath(root, []string{"server", "port"}))
	assert.Equal(t, map[string]any{"bind": "lan"}, root["server"])

	assert.False(t, UnsetValueAtPath(root, []string{"server", "port"}))
	assert.False(t, UnsetValueAtPath(root, []string{"missing", "key"}))
	assert.False(t, UnsetValueAtPath(root, []string{"scalar", "key"}))
	assert.True(t, UnsetValueAtPath(root, []string{"scalar"}))
}

func TestResolvePaths(t *testing.T) {
	base := t.TempDir()
	t.Setenv("CRMDESK_HOME", base)

	p, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, base, p.Base)
	assert.Equal(t, filepath.Join(base, "config.yaml"), p.Config)
	assert.Equal(t, filepath.Join(base, ".env"), p.Env)
	assert.Equal(t, filepath.Join(base, "data", "agent_logs.db"), p.LogDB(""))
	assert.Equal(t, "/srv/logs.db", p.LogDB("/srv/logs.db"))
}

func TestResolvePathsDefaultHome(t *testing.T) {
	t.Setenv("CRMDESK_HOME", "")
	p, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, ".crmdesk", filepath.Base(p.Base))
}

func TestEnsureDirs(t *testing.T) {
	base := filepath.Join(t.TempDir(), "home")
	t.Setenv("CRMDESK_HOME", base)

	p, err := ResolvePaths()
	require.NoError(t, err)
	require.NoError(t, p.EnsureDirs())
	require.NoError(t, p.EnsureDirs(), "idempotent")

	for _, d := range []string{p.Base, p.Data, p.Logs} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
