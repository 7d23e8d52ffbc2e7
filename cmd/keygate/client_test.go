package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarluq/keygate/internal/config"
	"github.com/omarluq/keygate/internal/keypool"
	"github.com/omarluq/keygate/internal/server"
)

func TestBaseURL(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"127.0.0.1:8787": "http://127.0.0.1:8787",
		":8787":          "http://127.0.0.1:8787",
		"0.0.0.0:9000":   "http://127.0.0.1:9000",
		"[::]:9000":      "http://127.0.0.1:9000",
		"localhost:1":    "http://localhost:1",
	}
	for in, want := range tests {
		assert.Equal(t, want, baseURL(in), in)
	}
}

func configFor(t *testing.T, srv *httptest.Server, apiKey string) *config.Config {
	t.Helper()
	return &config.Config{Server: config.ServerConfig{
		Listen: strings.TrimPrefix(srv.URL, "http://"),
		Auth:   config.AuthConfig{APIKey: apiKey},
	}}
}

func TestGetJSONSendsAPIKey(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "secret" {
			server.WriteError(w, http.StatusUnauthorized, server.TypeAuthentication, "invalid x-api-key")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"mode":"local","total_keys":3,"busy_keys":1,"free_keys":2}`))
	}))
	t.Cleanup(srv.Close)

	var status server.StatusResponse
	require.NoError(t, getJSON(context.Background(), configFor(t, srv, "secret"), "/v1/status", &status))
	assert.Equal(t, 3, status.TotalKeys)
	assert.Equal(t, 2, status.FreeKeys)

	err := getJSON(context.Background(), configFor(t, srv, "wrong"), "/v1/status", &status)
	require.Error(t, err)
	assert.Contains(t, err.Error(), server.TypeAuthentication)
}

func TestGetJSONUnreachable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	cfg := configFor(t, srv, "")
	srv.Close()

	var out map[string]any
	err := getJSON(context.Background(), cfg, "/v1/status", &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")
}

func TestPrintStatus(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	printStatus(&buf, "127.0.0.1:8787", &server.StatusResponse{
		Mode: "file_lock", CurrentKey: "K_1", TotalKeys: 2, BusyKeys: 2, IsFull: true, Waiting: 3,
	})
	out := buf.String()
	assert.Contains(t, out, "file_lock mode")
	assert.Contains(t, out, "2 total, 2 busy, 0 free")
	assert.Contains(t, out, "current:  K_1")
	assert.Contains(t, out, "all keys are busy")
}

func TestPrintKeys(t *testing.T) {
	t.Parallel()
	now := time.Now()
	var buf bytes.Buffer
	require.NoError(t, printKeys(&buf, []server.KeyView{
		{CredentialState: keypool.CredentialState{Name: "K", ID: "a1", Busy: true, RequestCount: 4}, Circuit: "closed"},
		{
			CredentialState: keypool.CredentialState{Name: "K_1", ID: "b2", RateLimitedUntil: now.Add(30 * time.Second)},
			Circuit:         "closed",
			CoolingDown:     true,
		},
		{CredentialState: keypool.CredentialState{Name: "K_2", ID: "c3"}, Circuit: "open"},
	}, now))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "busy")
	assert.Contains(t, lines[2], "cooling 30s")
	assert.Contains(t, lines[3], "free")
	assert.Contains(t, lines[3], "open")
}
