package events

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestLoggerEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewTestLogger(&buf)

	log.WithField("component", "demo").
		WithFields(map[string]interface{}{"count": 3}).
		Info("Something happened")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "Something happened", entry["message"])
	assert.Equal(t, "demo", entry["component"])
	assert.Equal(t, float64(3), entry["count"])
	assert.Equal(t, "info", entry["level"])
}

func TestWithErrorAttachesError(t *testing.T) {
	var buf bytes.Buffer
	log := NewTestLogger(&buf)

	log.WithError(assert.AnError).Warn("Failed thing")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, assert.AnError.Error(), entry["error"])
}

func TestNopLoggerDiscards(t *testing.T) {
	// Must simply not panic anywhere.
	Nop().WithField("k", "v").WithError(assert.AnError).Error("dropped")
}

func TestNewLoggerRejectsBadLevelSilently(t *testing.T) {
	log, err := NewLogger(&Config{Level: "nonsense", Format: "json"})
	require.NoError(t, err, "unknown levels fall back to info")
	log.Debug("below the fallback level")
}
