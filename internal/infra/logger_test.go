package infra

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerLevels(t *testing.T) {
	cases := []struct {
		env, level string
		want       zerolog.Level
	}{
		{"production", "", zerolog.InfoLevel},
		{"development", "", zerolog.DebugLevel},
		{"production", "WARN", zerolog.WarnLevel},
		{"production", "nonsense", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		l := NewLoggerTo(&bytes.Buffer{}, tc.env, tc.level)
		if l.GetLevel() != tc.want {
			t.Fatalf("%s/%q: level %s, want %s", tc.env, tc.level, l.GetLevel(), tc.want)
		}
	}
}

func TestNewLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, "production", "")
	l.Info().Str("job_id", "j1").Msg("worker: started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if entry["service"] != "studio" || entry["job_id"] != "j1" || entry["message"] != "worker: started" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}
