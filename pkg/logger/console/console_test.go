package console

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLogger(ConsoleLoggerParams{Format: "json", Output: &buf})
	l.Info("ingested", "article_id", "a1")

	var got map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got); err != nil {
		t.Fatalf("expected json line, got %q: %v", buf.String(), err)
	}
	if got["msg"] != "ingested" || got["article_id"] != "a1" {
		t.Fatalf("unexpected payload: %v", got)
	}
}

func TestDebugLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLogger(ConsoleLoggerParams{Format: "logfmt", Output: &buf})
	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected debug to be filtered, got %q", buf.String())
	}

	l = NewConsoleLogger(ConsoleLoggerParams{Debug: true, Format: "logfmt", Output: &buf})
	l.Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("expected debug output, got %q", buf.String())
	}
}
