// Package testutil provides shared helpers for tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// LogRecorder captures structured log output so tests can assert on it.
type LogRecorder struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (r *LogRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}

// Records decodes every captured JSON line.
func (r *LogRecorder) Records() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []map[string]any
	dec := json.NewDecoder(bytes.NewReader(r.buf.Bytes()))
	for dec.More() {
		var m map[string]any
		if dec.Decode(&m) != nil {
			break
		}
		out = append(out, m)
	}
	return out
}

// Contains reports whether any captured record has field set to value.
func (r *LogRecorder) Contains(field, value string) bool {
	for _, rec := range r.Records() {
		if v, ok := rec[field].(string); ok && v == value {
			return true
		}
	}
	return false
}

// NewTestLogger returns a logger whose JSON output lands in the
// returned recorder.
func NewTestLogger() (zerolog.Logger, *LogRecorder) {
	rec := &LogRecorder{}
	return zerolog.New(rec), rec
}
