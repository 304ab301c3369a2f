package logger_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ifuryst/herald/pkg/logger"
)

func TestNewLogger_Defaults(t *testing.T) {
	t.Parallel()

	log, err := logger.NewLogger(logger.Config{})
	require.NoError(t, err)
	require.NotNil(t, log)
	assert.True(t, log.Core().Enabled(0)) // info
	assert.False(t, log.Core().Enabled(-1))
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	t.Parallel()

	_, err := logger.NewLogger(logger.Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNewLogger_FileOutput(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "herald.log")
	log, err := logger.NewLogger(logger.Config{
		Format:   "json",
		Timezone: "UTC",
		File:     logger.FileConfig{Path: path},
	})
	require.NoError(t, err)

	log.Info("written to file")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}
