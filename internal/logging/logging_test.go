package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trueinterview/internal/config"
)

func restoreLogger(t *testing.T) {
	t.Cleanup(func() {
		logrus.SetOutput(os.Stderr)
		logrus.SetLevel(logrus.InfoLevel)
		logrus.SetFormatter(&logrus.TextFormatter{})
	})
}

func TestSetup_JSONFormat(t *testing.T) {
	restoreLogger(t)
	var buf bytes.Buffer

	require.NoError(t, SetupWithOutput(&config.LogConfig{Level: "debug", Format: "json"}, &buf))
	logrus.WithField("room_id", "AB12CD").Debug("joined")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "AB12CD", entry["room_id"])
	assert.Equal(t, "joined", entry["msg"])
	assert.Equal(t, "debug", entry["level"])
}

func TestSetup_LevelFilters(t *testing.T) {
	restoreLogger(t)
	var buf bytes.Buffer

	require.NoError(t, SetupWithOutput(&config.LogConfig{Level: "warn", Format: "text"}, &buf))
	logrus.Info("hidden")
	assert.Empty(t, buf.String())

	logrus.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestSetup_Rejects(t *testing.T) {
	restoreLogger(t)

	assert.Error(t, Setup(&config.LogConfig{Level: "loud", Format: "text"}))
	assert.Error(t, Setup(&config.LogConfig{Level: "info", Format: "xml"}))
}
