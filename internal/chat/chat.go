// Package chat is the upstream chat-completions client used by keygate.
//
// Only the narrow Completer interface is consumed by the rotation and session
// layers; the HTTP implementation speaks the OpenAI-compatible
// chat/completions dialect used by Zhipu's BigModel API.
//
// Request and response bodies stay raw JSON. keygate reads the few fields it
// needs with gjson and fills client defaults with sjson; everything else is
// forwarded as the caller or the upstream wrote it.
package chat

import (
	"context"
	"errors"

	"github.com/tidwall/gjson"
)

var (
	// ErrInvalidBody is returned for a request body that is not a JSON object.
	ErrInvalidBody = errors.New("chat: request body must be a JSON object")

	// ErrNoMessages is returned for a request without messages.
	ErrNoMessages = errors.New("chat: messages must not be empty")
)

// Completer performs one chat completion with the given API key.
type Completer interface {
	Complete(ctx context.Context, apiKey string, req *Request) (*Response, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, apiKey string, req *Request) (*Response, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, apiKey string, req *Request) (*Response, error) {
	return f(ctx, apiKey, req)
}

// Request is a chat completion body. A nil or empty Body is sent as {} plus
// client defaults.
type Request struct {
	Body []byte
}

// ParseRequest validates body as a chat completion request.
func ParseRequest(body []byte) (*Request, error) {
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return nil, ErrInvalidBody
	}
	messages := gjson.GetBytes(body, "messages")
	if !messages.IsArray() || len(messages.Array()) == 0 {
		return nil, ErrNoMessages
	}
	return &Request{Body: body}, nil
}

// Model returns the requested model, "" if unset.
func (r *Request) Model() string {
	return r.get("model").String()
}

// Thinking returns the requested thinking switch, {"thinking":{"type":...}}.
func (r *Request) Thinking() string {
	return r.get("thinking.type").String()
}

func (r *Request) get(path string) gjson.Result {
	if r == nil {
		return gjson.Result{}
	}
	return gjson.GetBytes(r.Body, path)
}

// Response is the upstream reply body, passed through unchanged.
type Response struct {
	Body []byte
}

// Content returns the first choice's text, or "" when there is none.
func (r *Response) Content() string {
	return r.get("choices.0.message.content").String()
}

// Model returns the model that served the completion.
func (r *Response) Model() string {
	return r.get("model").String()
}

// TotalTokens returns usage.total_tokens, 0 if absent.
func (r *Response) TotalTokens() int64 {
	return r.get("usage.total_tokens").Int()
}

func (r *Response) get(path string) gjson.Result {
	if r == nil {
		return gjson.Result{}
	}
	return gjson.GetBytes(r.Body, path)
}
