// Package telemetry emits local JSONL diagnostics for chat turns. Emission is
// off unless CHATLOOP_OBSERVE_JSON=1; events land in .chatloop/events.jsonl
// under the working directory, one JSON object per line.
package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// artifactsDir returns the directory events are appended under. Defaults to
// .chatloop in the working directory; CHATLOOP_ARTIFACTS_DIR overrides it.
func artifactsDir() string {
	if dir := os.Getenv("CHATLOOP_ARTIFACTS_DIR"); dir != "" {
		return dir
	}
	return ".chatloop"
}

// Emit writes a single JSON line to .chatloop/events.jsonl when
// CHATLOOP_OBSERVE_JSON=1. It augments fields with RFC3339Nano time and the
// event name.
func Emit(name string, fields map[string]any) {
	if !ObserveEnabled() {
		return
	}

	// Make a shallow copy so callers' maps aren't mutated.
	m := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		m[k] = v
	}
	m["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	m["event"] = name

	b, err := json.Marshal(m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: marshal: %v\n", err)
		return
	}

	dir := artifactsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: mkdir %s: %v\n", dir, err)
		return
	}

	path := filepath.Join(dir, "events.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: open %s: %v\n", path, err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(b, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: write %s: %v\n", path, err)
		return
	}
}

// PersistPayload writes v as indented JSON to <artifacts>/payloads/<name>.json
// when CHATLOOP_PERSIST_API_PAYLOADS=1. Used for request/response captures
// during calibration; failures are reported, never returned.
func PersistPayload(name string, v any) {
	if !PersistPayloadsEnabled() {
		return
	}

	b, err := json.MarshalIndent(v, "", " ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: marshal payload %s: %v\n", name, err)
		return
	}

	dir := filepath.Join(artifactsDir(), "payloads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: mkdir %s: %v\n", dir, err)
		return
	}

	path := filepath.Join(dir, name+".json")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: write %s: %v\n", path, err)
	}
}
