package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServer(t *testing.T) {
	cfg, err := LoadServer("")
	require.NoError(t, err)
	assert.Equal(t, DefaultServer(), cfg)
	assert.NoError(t, cfg.Validate())

	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":9090\"\nretention: 30m\n"), 0600))
	t.Setenv("DOCSYNC_SERVER_RATE_LIMIT", "10")

	cfg, err = LoadServer(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 30*time.Minute, cfg.Retention)
	assert.Equal(t, 10, cfg.RateLimit)
	assert.Equal(t, "relay.db", cfg.DBPath)
}

func TestServerValidate(t *testing.T) {
	tests := []struct {
		modify func(*Server)
		name   string
	}{
		{name: "empty addr", modify: func(s *Server) { s.Addr = "" }},
		{name: "empty db path", modify: func(s *Server) { s.DBPath = "" }},
		{name: "zero rate", modify: func(s *Server) { s.RateLimit = 0 }},
		{name: "zero retention", modify: func(s *Server) { s.Retention = 0 }},
		{name: "zero keep alive", modify: func(s *Server) { s.KeepAlive = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultServer()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
