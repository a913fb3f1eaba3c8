package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "scanbridge.log")

	logger, closer, err := New(Config{Level: "debug", Path: path})
	require.NoError(t, err)

	Component(logger, "controller").Info("camera started", "facing", "back")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "camera started")
	assert.Contains(t, string(data), "controller")
	assert.Equal(t, log.DebugLevel, logger.GetLevel())
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, _, err := New(Config{Level: "verbose"})
	assert.Error(t, err)
}

func TestNewDefaultsToInfo(t *testing.T) {
	logger, closer, err := New(Config{})
	require.NoError(t, err)
	defer closer.Close()
	assert.Equal(t, log.InfoLevel, logger.GetLevel())
}

func TestComponentWithNilRoot(t *testing.T) {
	logger := Component(nil, "zbar")
	require.NotNil(t, logger)
	logger.Info("ignored")
}
