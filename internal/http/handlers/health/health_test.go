package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type clientsStub int

func (c clientsStub) Connected() int { return int(c) }

func TestHealthHandler(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	up := pingerFunc(func(context.Context) error { return nil })
	down := pingerFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name           string
		checks         map[string]Pinger
		expectedStatus int
		expectedState  string
		expectedDeps   map[string]any
	}{
		{
			name:           "все зависимости доступны",
			checks:         map[string]Pinger{"postgres": up, "redis": up},
			expectedStatus: http.StatusOK,
			expectedState:  "ok",
			expectedDeps:   map[string]any{"postgres": "up", "redis": "up"},
		},
		{
			name:           "только база",
			checks:         map[string]Pinger{"postgres": up},
			expectedStatus: http.StatusOK,
			expectedState:  "ok",
			expectedDeps:   map[string]any{"postgres": "up"},
		},
		{
			name:           "redis недоступен",
			checks:         map[string]Pinger{"postgres": up, "redis": down},
			expectedStatus: http.StatusServiceUnavailable,
			expectedState:  "degraded",
			expectedDeps:   map[string]any{"postgres": "up", "redis": "down"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rec := httptest.NewRecorder()

			New(log, tt.checks, clientsStub(3)).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)

			var body struct {
				Data map[string]any `json:"data"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.expectedState, body.Data["status"])
			assert.Equal(t, tt.expectedDeps, body.Data["dependencies"])
			assert.EqualValues(t, 3, body.Data["connectedClients"])
		})
	}
}
