package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/omarluq/keygate/internal/auth"
	"github.com/omarluq/keygate/internal/config"
	"github.com/omarluq/keygate/internal/server"
)

const clientTimeout = 5 * time.Second

// baseURL turns a listen address into a URL a local client can dial.
func baseURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// getJSON fetches path from the running server into out, authenticating
// with the configured API key.
func getJSON(ctx context.Context, cfg *config.Config, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, clientTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL(cfg.Server.GetEffectiveListen())+path, http.NoBody)
	if err != nil {
		return err
	}
	if key := cfg.Server.GetEffectiveAPIKey(); key != "" {
		req.Header.Set(auth.HeaderAPIKey, key)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("server not reachable: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close response body")
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr server.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("%s: %s", apiErr.Error.Type, apiErr.Error.Message)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.Unmarshal(body, out)
}
