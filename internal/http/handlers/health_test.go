package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthReportsDatabase(t *testing.T) {
	cases := []struct {
		name   string
		ping   func(context.Context) error
		code   int
		status string
	}{
		{"no ping", nil, http.StatusOK, "ok"},
		{"reachable", func(context.Context) error { return nil }, http.StatusOK, "ok"},
		{"unreachable", func(context.Context) error { return errors.New("dial tcp: refused") }, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := NewApp(nil, nil, nil, zerolog.Nop(), time.Minute)
			a.Ping = tc.ping
			rec := httptest.NewRecorder()
			a.Health(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))

			assert.Equal(t, tc.code, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.status, body["status"])
		})
	}
}
