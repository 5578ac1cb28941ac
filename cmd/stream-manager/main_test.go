package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadManagerConfig(t *testing.T) {
	t.Setenv("AGENT_TOKEN", "")
	_, err := loadManagerConfig()
	require.Error(t, err)

	t.Setenv("AGENT_TOKEN", "tok")
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("STREAM_NODES", " compute-1, ,compute-2 ")
	cfg, err := loadManagerConfig()
	require.NoError(t, err)
	assert.Equal(t, ":9500", cfg.ListenAddr)
	assert.Equal(t, []string{"compute-1", "compute-2"}, cfg.Nodes)
}
