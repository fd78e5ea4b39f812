// Package monitoring - telemetry.go records events to JSONL files.
//
// DESIGN: Tracker writes structured events as JSONL (one JSON object per line):
//   - RequestEvent: every request through the gateway, after its final status
//   - InitEvent:    one per process start, in init.jsonl next to the request log
//
// Events are appended to files immediately after each event for real-time logging.
// A nil or disabled Tracker records nothing.
package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Tracker handles telemetry event recording to file and stdout.
type Tracker struct {
	config       TelemetryConfig
	requestPath  string
	initPath     string
	requestCount int
	mu           sync.Mutex
}

// NewTracker creates a new telemetry tracker.
func NewTracker(cfg TelemetryConfig) (*Tracker, error) {
	t := &Tracker{
		config: cfg,
	}

	if !cfg.Enabled || cfg.LogPath == "" {
		return t, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0750); err != nil {
		return nil, err
	}
	t.requestPath = cfg.LogPath
	t.initPath = filepath.Join(filepath.Dir(cfg.LogPath), "init.jsonl")
	for _, p := range []string{t.requestPath, t.initPath} {
		if err := touch(p); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// touch creates path if it doesn't exist.
func touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600) // #nosec G304 -- operator supplied telemetry path
	if err != nil {
		return err
	}
	return f.Close()
}

// appendJSONL appends a single JSON object as a line to the file.
func appendJSONL(path string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600) // #nosec G304 -- operator supplied telemetry path
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = f.Write(data)
	return err
}

// Enabled reports whether events are recorded.
func (t *Tracker) Enabled() bool {
	return t != nil && t.config.Enabled
}

// RecordRequest records a request event.
func (t *Tracker) RecordRequest(event *RequestEvent) {
	if !t.Enabled() || event == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.config.LogToStdout {
		log.Info().
			Str("request_id", event.RequestID).
			Str("strategy", event.Strategy).
			Str("source", event.CredentialSource).
			Int("attempts", event.Attempts).
			Int("status", event.StatusCode).
			Int64("latency_ms", event.TotalLatencyMs).
			Msg("telemetry")
	}

	if t.requestPath != "" {
		if err := appendJSONL(t.requestPath, event); err != nil {
			log.Error().Err(err).Str("path", t.requestPath).Msg("telemetry: failed to write request event")
		} else {
			t.requestCount++
		}
	}
}

// RecordInit records a gateway initialization event to a dedicated init JSONL.
func (t *Tracker) RecordInit(event *InitEvent) {
	if !t.Enabled() || t.initPath == "" || event == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := appendJSONL(t.initPath, event); err != nil {
		log.Error().Err(err).Str("path", t.initPath).Msg("telemetry: failed to write init event")
	}
}

// RequestCount returns the number of request events written.
func (t *Tracker) RequestCount() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.requestCount
}

// Close logs a session summary. Files are opened per event, so nothing is held.
func (t *Tracker) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.requestPath != "" && t.requestCount > 0 {
		log.Info().
			Str("path", t.requestPath).
			Int("events", t.requestCount).
			Msg("telemetry: session complete")
	}

	return nil
}
