package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrap(t *testing.T) {
	env := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(env, []byte("TB_TOP_N=7\n"), 0o644))
	t.Setenv("TB_TOP_N", "")
	os.Unsetenv("TB_TOP_N")

	cfg, logger, err := Bootstrap("pipeline", env, "debug", false)
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.Equal(t, 7, cfg.TopN)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestBootstrap_BadLevel(t *testing.T) {
	env := filepath.Join(t.TempDir(), "empty.env")
	require.NoError(t, os.WriteFile(env, nil, 0o644))

	_, _, err := Bootstrap("pipeline", env, "loud", false)
	assert.Error(t, err)
}

func TestBootstrap_MissingFile(t *testing.T) {
	_, _, err := Bootstrap("pipeline", filepath.Join(t.TempDir(), "nope.env"), "", false)
	assert.Error(t, err)
}
