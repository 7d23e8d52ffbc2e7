package chat

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// UpstreamError is a non-2xx reply from the chat endpoint.
//
// The message format keeps the HTTP status and vendor code visible so that
// string-based classification (ratelimit.IsRateLimited) sees them.
type UpstreamError struct {
	Code       string
	Message    string
	StatusCode int
}

// Error implements error.
func (e *UpstreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("chat: upstream status %d: code %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("chat: upstream status %d: %s", e.StatusCode, e.Message)
}

// HTTPStatus returns the upstream HTTP status code.
func (e *UpstreamError) HTTPStatus() int {
	return e.StatusCode
}

// parseUpstreamError extracts {"error":{"code","message"}} from body,
// falling back to the raw body text.
func parseUpstreamError(status int, body []byte) *UpstreamError {
	e := &UpstreamError{StatusCode: status}
	if gjson.ValidBytes(body) {
		e.Code = gjson.GetBytes(body, "error.code").String()
		e.Message = gjson.GetBytes(body, "error.message").String()
		if e.Message == "" {
			e.Message = gjson.GetBytes(body, "message").String()
		}
	}
	if e.Message == "" {
		e.Message = string(body)
	}
	return e
}
