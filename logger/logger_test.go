package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkhunter/config"
)

func TestNewLevels(t *testing.T) {
	l, err := New(config.LogConfig{Level: "warn"}, false)
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, l.GetLevel())
	assert.NoError(t, l.Close())

	l, err = New(config.LogConfig{Level: "bogus"}, false)
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())

	l, err = New(config.LogConfig{Level: "error"}, true)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
}

func TestNewWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pkhunter.log")
	l, err := New(config.LogConfig{Level: "info", File: path}, false)
	require.NoError(t, err)

	l.WithField("component", "test").Info("hello from test")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from test")
	assert.Contains(t, string(data), "component=test")
}
