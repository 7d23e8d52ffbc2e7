package chat

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultBaseURL is Zhipu's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://open.bigmodel.cn/api/paas/v4"

// maxErrorBody bounds how much of an error body is read.
const maxErrorBody = 64 << 10

// HTTPDoer abstracts the HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Defaults fill unset request fields.
type Defaults struct {
	Temperature *float64
	TopP        *float64
	Model       string
	Thinking    string
	MaxTokens   int
}

// Client is the HTTP Completer.
type Client struct {
	doer     HTTPDoer
	baseURL  string
	defaults Defaults
}

// NewClient creates a Client. A nil doer uses an http.Client with timeout.
func NewClient(baseURL string, timeout time.Duration, defaults Defaults, doer HTTPDoer) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if doer == nil {
		doer = &http.Client{Timeout: timeout}
	}
	return &Client{
		doer:     doer,
		baseURL:  strings.TrimRight(baseURL, "/"),
		defaults: defaults,
	}
}

// Complete posts req to {base}/chat/completions authenticated with apiKey.
func (c *Client) Complete(ctx context.Context, apiKey string, req *Request) (*Response, error) {
	payload, err := c.encode(req)
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("chat: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.doer.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat: request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			zerolog.Ctx(ctx).Debug().Err(closeErr).Msg("failed to close upstream body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		upErr := parseUpstreamError(resp.StatusCode, bytes.TrimSpace(body))
		zerolog.Ctx(ctx).Debug().
			Int("status", resp.StatusCode).
			Str("code", upErr.Code).
			Dur("duration", time.Since(start)).
			Msg("upstream returned error")
		return nil, upErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("chat: read response: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("chat: decode response: invalid JSON (%d bytes)", len(body))
	}
	out := &Response{Body: body}
	zerolog.Ctx(ctx).Debug().
		Str("model", out.Model()).
		Int64("total_tokens", out.TotalTokens()).
		Dur("duration", time.Since(start)).
		Msg("upstream completion")
	return out, nil
}

// encode fills defaults into fields the caller left unset or zero. All
// other fields are forwarded untouched.
func (c *Client) encode(req *Request) ([]byte, error) {
	payload := []byte("{}")
	if req != nil && len(bytes.TrimSpace(req.Body)) > 0 {
		payload = bytes.Clone(req.Body)
	}

	var err error
	set := func(path string, value any) {
		if err == nil {
			payload, err = sjson.SetBytes(payload, path, value)
		}
	}

	if gjson.GetBytes(payload, "model").String() == "" && c.defaults.Model != "" {
		set("model", c.defaults.Model)
	}
	if gjson.GetBytes(payload, "max_tokens").Int() == 0 && c.defaults.MaxTokens > 0 {
		set("max_tokens", c.defaults.MaxTokens)
	}
	if !gjson.GetBytes(payload, "temperature").Exists() && c.defaults.Temperature != nil {
		set("temperature", *c.defaults.Temperature)
	}
	if !gjson.GetBytes(payload, "top_p").Exists() && c.defaults.TopP != nil {
		set("top_p", *c.defaults.TopP)
	}
	if len(gjson.GetBytes(payload, "tools").Array()) > 0 && !gjson.GetBytes(payload, "tool_choice").Exists() {
		set("tool_choice", "auto")
	}
	if !gjson.GetBytes(payload, "thinking.type").Exists() && c.defaults.Thinking != "" {
		set("thinking.type", c.defaults.Thinking)
	}
	if err != nil {
		return nil, fmt.Errorf("chat: apply defaults: %w", err)
	}
	return payload, nil
}
