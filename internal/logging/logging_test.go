package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogger_EmitsJSONLines(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("engine", &buf, LevelDebug)

	log.Info(context.Background(), "transfer submitted", map[string]interface{}{
		"transfer_id": "tx-1",
		"legs":        2,
	})

	line := strings.TrimSpace(buf.String())
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("output is not JSON: %q", line)
	}
	if entry["component"] != "engine" || entry["level"] != "info" || entry["msg"] != "transfer submitted" {
		t.Errorf("entry = %v", entry)
	}
	if entry["transfer_id"] != "tx-1" {
		t.Errorf("field transfer_id = %v", entry["transfer_id"])
	}
	if entry["ts"] == nil {
		t.Error("timestamp missing")
	}
}

func TestLogger_MinLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("engine", &buf, LevelWarn)

	log.Debug(context.Background(), "dropped", nil)
	log.Info(context.Background(), "dropped", nil)
	if buf.Len() != 0 {
		t.Errorf("sub-threshold levels emitted: %s", buf.String())
	}

	log.Error(context.Background(), "kept", nil)
	if buf.Len() == 0 {
		t.Error("error level filtered out")
	}
}

func TestLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("engine", &buf, LevelInfo).WithComponent("sink")

	log.Info(context.Background(), "test", nil)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry["component"] != "sink" {
		t.Errorf("component = %v", entry["component"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}
	for _, tc := range tests {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
