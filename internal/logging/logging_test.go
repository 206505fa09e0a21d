package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLevel(t *testing.T) {
	logger := New("debug", false)
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Fatalf("expected debug level, got %s", logger.GetLevel())
	}

	logger = New("WARN", false)
	if logger.GetLevel() != zerolog.WarnLevel {
		t.Fatalf("expected warn level, got %s", logger.GetLevel())
	}

	logger = New("invalid", false)
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info fallback, got %s", logger.GetLevel())
	}

	logger = New("", false)
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info for empty level, got %s", logger.GetLevel())
	}
}

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", false)

	logger.Debug().Msg("hidden")
	logger.Info().Str("trade_id", "t-1").Msg("executed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["trade_id"] != "t-1" || entry["message"] != "executed" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Fatal("expected timestamp field")
	}
}

func TestNewWithWriterPretty(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", true)

	logger.Info().Msg("ready")

	out := buf.String()
	if strings.HasPrefix(out, "{") {
		t.Fatalf("expected console output, got JSON: %q", out)
	}
	if !strings.Contains(out, "ready") {
		t.Fatalf("expected message in output: %q", out)
	}
}
