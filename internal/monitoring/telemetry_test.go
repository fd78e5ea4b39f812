package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	s := strings.TrimSpace(string(data))
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func TestTracker_Disabled(t *testing.T) {
	dir := t.TempDir()
	tr, err := NewTracker(TelemetryConfig{LogPath: filepath.Join(dir, "requests.jsonl")})
	require.NoError(t, err)

	tr.RecordRequest(&RequestEvent{RequestID: "r1"})
	tr.RecordInit(&InitEvent{Event: "gateway_init"})

	assert.False(t, tr.Enabled())
	assert.Equal(t, 0, tr.RequestCount())
	_, err = os.Stat(filepath.Join(dir, "requests.jsonl"))
	assert.True(t, os.IsNotExist(err))
}

func TestTracker_NilSafe(t *testing.T) {
	var tr *Tracker
	assert.NotPanics(t, func() {
		tr.RecordRequest(&RequestEvent{})
		tr.RecordInit(&InitEvent{})
		assert.NoError(t, tr.Close())
	})
	assert.False(t, tr.Enabled())
	assert.Equal(t, 0, tr.RequestCount())
}

func TestTracker_WritesJSONL(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	path := filepath.Join(dir, "requests.jsonl")
	tr, err := NewTracker(TelemetryConfig{Enabled: true, LogPath: path})
	require.NoError(t, err)

	// Both files exist before the first event.
	assert.FileExists(t, path)
	assert.FileExists(t, filepath.Join(dir, "init.jsonl"))

	now := time.Now().UTC().Truncate(time.Millisecond)
	tr.RecordRequest(&RequestEvent{RequestID: "r1", Timestamp: now, Strategy: "openai", Attempts: 2, StatusCode: 200, Success: true})
	tr.RecordRequest(&RequestEvent{RequestID: "r2", Timestamp: now, Strategy: "none", StatusCode: 503, Error: "no upstream"})
	tr.RecordInit(&InitEvent{Event: "gateway_init", ServerPort: 8787, Strategies: []string{"native", "openai"}})

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	var first RequestEvent
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "r1", first.RequestID)
	assert.Equal(t, 2, first.Attempts)
	assert.True(t, first.Timestamp.Equal(now))
	assert.Contains(t, lines[1], `"error":"no upstream"`)
	assert.Equal(t, 2, tr.RequestCount())

	initLines := readLines(t, filepath.Join(dir, "init.jsonl"))
	require.Len(t, initLines, 1)
	assert.Contains(t, initLines[0], `"strategies":["native","openai"]`)

	assert.NoError(t, tr.Close())
}

func TestTracker_AppendsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.jsonl")
	for i := 0; i < 2; i++ {
		tr, err := NewTracker(TelemetryConfig{Enabled: true, LogPath: path})
		require.NoError(t, err)
		tr.RecordRequest(&RequestEvent{RequestID: "r"})
	}
	assert.Len(t, readLines(t, path), 2)
}
