package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"trace", zerolog.TraceLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
		{"off", zerolog.Disabled},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValidLevel(t *testing.T) {
	if !ValidLevel("warn") {
		t.Fatalf("expected warn to be valid")
	}
	if ValidLevel("loud") {
		t.Fatalf("expected loud to be invalid")
	}
}

func TestWithComponentAddsField(t *testing.T) {
	prev := Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	InitWriter(&buf, "debug", false)
	WithComponent("monitor").Debug().Msg("hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if rec["component"] != "monitor" {
		t.Fatalf("component = %v, want monitor", rec["component"])
	}
	if rec["message"] != "hello" {
		t.Fatalf("message = %v, want hello", rec["message"])
	}
}
