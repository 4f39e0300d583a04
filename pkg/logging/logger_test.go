package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{" error ", LevelError},
		{"bogus", LevelInfo},
	}
	for _, tc := range tests {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, LevelWarn)
	l.SetJSON(false)

	l.Info("hidden")
	l.Warn("shown %d", 1)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "[WARN] shown 1") {
		t.Errorf("missing warn line: %q", out)
	}
}

func TestFieldsAreSortedAndInherited(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, LevelDebug)
	l.SetJSON(false)

	child := l.WithField("node", "n1").WithField("course", "c1")
	child.Debug("expanding")

	if !strings.Contains(buf.String(), "{course=c1, node=n1}") {
		t.Errorf("fields not rendered in key order: %q", buf.String())
	}

	// Parent keeps its own (empty) field set.
	buf.Reset()
	l.Debug("plain")
	if strings.Contains(buf.String(), "node=") {
		t.Errorf("parent logger picked up child fields: %q", buf.String())
	}
}

func TestJSONOutputCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, LevelInfo)
	l.SetJSON(true)

	ctx := WithRequestID(context.Background(), "0123456789abcdef")
	l.WithField("op", "expand").InfoContext(ctx, "sent")

	var e Entry
	if err := json.Unmarshal(buf.Bytes(), &e); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if e.RequestID != "0123456789abcdef" {
		t.Errorf("request id = %q", e.RequestID)
	}
	if e.Fields["op"] != "expand" {
		t.Errorf("fields = %v", e.Fields)
	}
	if RequestID(ctx) != "0123456789abcdef" {
		t.Errorf("RequestID(ctx) mismatch")
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Error("nothing should happen")
	if OrDefault(nil) != Default() {
		t.Errorf("OrDefault(nil) should return the default logger")
	}
}
