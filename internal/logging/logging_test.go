package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"debug":   zerolog.DebugLevel,
		"WARN":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestNewJSONWritesStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "info", Format: "json", Out: &buf})
	l.Debug().Msg("hidden")
	l.Info().Str("device", "CPUExecutionProvider").Msg("loaded")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected exactly one json line, got %q: %v", buf.String(), err)
	}
	if line["device"] != "CPUExecutionProvider" || line["message"] != "loaded" {
		t.Fatalf("unexpected line: %v", line)
	}
}
