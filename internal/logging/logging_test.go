package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestInitJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Init("json", "debug", &buf)

	L("test-component").Info("hello", "n", 1)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected valid JSON line, got %q: %v", buf.String(), err)
	}
	if record[KeyComponent] != "test-component" {
		t.Fatalf("expected component %q, got %v", "test-component", record[KeyComponent])
	}
}

func TestInitTextFormatRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	Init("text", "warn", &buf)

	L("filter").Info("should be dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info log to be filtered at warn level, got %q", buf.String())
	}

	L("filter").Warn("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("expected warn log to appear, got %q", buf.String())
	}
}

func TestLReturnsIndependentLoggers(t *testing.T) {
	var buf bytes.Buffer
	Init("text", "info", &buf)

	L("one").Info("from one")
	L("two").Info("from two")

	out := buf.String()
	if !strings.Contains(out, "component=one") || !strings.Contains(out, "component=two") {
		t.Fatalf("expected both component tags in output, got %q", out)
	}
}
