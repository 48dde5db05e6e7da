package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/scenaria/pkg/adapters/memory"
	"github.com/aretw0/scenaria/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewHandler(session.NewManager(memory.NewRepository())))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp.StatusCode, out
}

func TestGetHealthAndInfo(t *testing.T) {
	srv := newTestServer(t)

	code, body := do(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, body = do(t, srv, http.MethodGet, "/info", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "scenaria-http", body["app"])
	assert.NotEmpty(t, body["version"])
}

func TestScenarioLifecycle(t *testing.T) {
	srv := newTestServer(t)

	code, body := do(t, srv, http.MethodPost, "/scenarios", `{"id":"boiler","name":"Boiler"}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, float64(1), body["version"])

	code, body = do(t, srv, http.MethodPost, "/scenarios/boiler/commands",
		`{"type":"STEP_CREATE","payload":{"id":"wait","type":"delay","params":{"timeSpan":"PT1S"}}}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["applied"])
	assert.Equal(t, float64(1), body["pending"])

	code, body = do(t, srv, http.MethodPost, "/scenarios/boiler/commands",
		`{"type":"STEP_CREATE","payload":{"id":"fire","type":"signal"}}`)
	require.Equal(t, http.StatusOK, code, body)

	code, body = do(t, srv, http.MethodGet, "/scenarios/boiler/operations", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["operations"], 2)

	code, body = do(t, srv, http.MethodPost, "/scenarios/boiler/undo", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["can_redo"])
	assert.Equal(t, float64(1), body["pending"])

	code, _ = do(t, srv, http.MethodPost, "/scenarios/boiler/redo", "")
	require.Equal(t, http.StatusOK, code)

	code, body = do(t, srv, http.MethodPost, "/scenarios/boiler/connections/check",
		`{"source_id":"wait","target_id":"fire"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["valid"])

	code, body = do(t, srv, http.MethodPost, "/scenarios/boiler/connections/check",
		`{"source_id":"wait","target_id":"wait"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["valid"])
	assert.Contains(t, body["reason"], "self-loop")

	code, body = do(t, srv, http.MethodPost, "/scenarios/boiler/save", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["version"])
	assert.Equal(t, float64(0), body["pending"])

	code, body = do(t, srv, http.MethodGet, "/scenarios/boiler/history", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(3), body["last_synced"])

	code, body = do(t, srv, http.MethodGet, "/scenarios/boiler/validate", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["valid"])

	code, body = do(t, srv, http.MethodGet, "/scenarios", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"boiler"}, body["scenarios"])

	code, _ = do(t, srv, http.MethodDelete, "/scenarios/boiler", "")
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = do(t, srv, http.MethodGet, "/scenarios/boiler/graph", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestGraphFormats(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodPost, "/scenarios", `{"id":"boiler","name":"Boiler"}`)
	do(t, srv, http.MethodPost, "/scenarios/boiler/commands", `{"type":"STEP_CREATE","payload":{"id":"fire","type":"signal"}}`)

	code, body := do(t, srv, http.MethodGet, "/scenarios/boiler/graph", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["steps"], 1)

	resp, err := srv.Client().Get(srv.URL + "/scenarios/boiler/graph?format=mermaid")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(buf.String(), "graph TD"))
	assert.Contains(t, buf.String(), "classDef pending")
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodPost, "/scenarios", `{"id":"boiler","name":"Boiler"}`)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"unknown scenario", "/scenarios/ghost/undo", "", http.StatusNotFound, "scenario_not_found"},
		{"unknown command", "/scenarios/boiler/commands", `{"type":"TELEPORT"}`, http.StatusBadRequest, "unknown_command"},
		{"invalid params", "/scenarios/boiler/commands",
			`{"type":"STEP_CREATE","payload":{"id":"d","type":"delay","params":{"timeSpan":"soon"}}}`,
			http.StatusUnprocessableEntity, "invalid_payload"},
		{"missing entity", "/scenarios/boiler/commands", `{"type":"STEP_DELETE","payload":{"id":"ghost"}}`,
			http.StatusNotFound, "entity_not_found"},
		{"malformed body", "/scenarios/boiler/commands", `{`, http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, srv, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, code)
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestSubscribeEvents(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodPost, "/scenarios", `{"id":"boiler","name":"Boiler"}`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/scenarios/boiler/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event: ping", lines.Text())
	require.True(t, lines.Scan())
	require.True(t, lines.Scan()) // blank separator

	do(t, srv, http.MethodPost, "/scenarios/boiler/commands", `{"type":"STEP_CREATE","payload":{"id":"fire","type":"signal"}}`)

	require.True(t, lines.Scan())
	assert.Equal(t, "event: command", lines.Text())
	require.True(t, lines.Scan())
	assert.Contains(t, lines.Text(), `"pending":1`)
}

func TestStreamManager_DropsForSlowClients(t *testing.T) {
	sm := NewStreamManager()
	ch, cancel := sm.Subscribe("boiler")
	for i := 0; i < 20; i++ {
		sm.Publish("boiler", "command", map[string]int{"i": i})
	}
	assert.Len(t, ch, 10)
	assert.Equal(t, 1, sm.Subscribers("boiler"))

	cancel()
	cancel()
	assert.Equal(t, 0, sm.Subscribers("boiler"))
}
