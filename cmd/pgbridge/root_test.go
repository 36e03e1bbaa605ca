package pgbridge

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		t.Run(level, func(t *testing.T) {
			logger, err := newLogger(level)
			require.NoError(t, err)

			want, _ := zapcore.ParseLevel(level)
			assert.True(t, logger.Core().Enabled(want))
			assert.False(t, logger.Core().Enabled(want-1))
		})
	}

	t.Run("none", func(t *testing.T) {
		logger, err := newLogger("none")
		require.NoError(t, err)
		assert.False(t, logger.Core().Enabled(zapcore.FatalLevel))
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := newLogger("chatty")
		assert.Error(t, err)
	})
}

func TestConfigCommand(t *testing.T) {
	t.Setenv("API_PATH_PREFIX", "/api/")
	t.Setenv("API_MAX_ROWS", "25")
	t.Setenv("DB_CONN_STRING", "postgres://app:s3cret@db:5432/northwind")

	var out bytes.Buffer
	configCmd.SetOut(&out)
	require.NoError(t, configCmd.RunE(configCmd, nil))

	assert.NotContains(t, out.String(), "s3cret")

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "/api/", got["pathPrefix"])
	assert.Equal(t, 25, got["maxRows"])
}
