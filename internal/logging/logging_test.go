package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for logging:
// - Console output is "LEVEL message" followed by the fields
// - Debug messages appear only when verbose
// - JSON output carries level, message and fields as keys

func TestNew_Console(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(Options{Output: &buf})
	log.Debugw("hidden")
	log.Infow("Extracted", "file", "a.cpp")
	require.NoError(t, log.Sync())

	assert.Equal(t, "INFO Extracted {\"file\": \"a.cpp\"}\n", buf.String())
}

func TestNew_Verbose(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(Options{Verbose: true, Output: &buf})
	log.Debugw("shown")

	assert.Contains(t, buf.String(), "DEBUG shown")
}

func TestNew_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(Options{JSON: true, Output: &buf})
	log.Warnw("Skipped", "module", "pkg")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "Skipped", entry["msg"])
	assert.Equal(t, "pkg", entry["module"])
	assert.Contains(t, entry, "ts")
}
