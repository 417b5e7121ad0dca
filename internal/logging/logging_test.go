package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "info", "json")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.WithField("category", "technews").Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json output, got %q: %v", buf.String(), err)
	}
	if entry["category"] != "technews" || entry["msg"] != "hello" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestNewLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "WARN", "text")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.GetLevel() != logrus.WarnLevel {
		t.Errorf("expected warn level, got %v", l.GetLevel())
	}
	l.Info("hidden")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("info message should be suppressed at warn level")
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "loud", "text"); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := New(&bytes.Buffer{}, "info", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
