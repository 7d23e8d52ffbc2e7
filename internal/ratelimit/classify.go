package ratelimit

import (
	"errors"
	"net/http"
	"strings"
)

// Indicators are the substrings that mark an upstream error as a rate-limit
// or concurrency rejection. Matching is case-insensitive.
//
//   - "429": HTTP Too Many Requests
//   - "1302": vendor code for concurrency exceeded
//   - "1305": vendor code for request frequency exceeded
//   - "并发数过高", "请求过多": localized vendor messages
var Indicators = []string{
	"429",
	"1302",
	"1305",
	"并发数过高",
	"请求过多",
	"too many requests",
	"rate limit",
	"concurrency exceeded",
}

// statusCoder is implemented by upstream errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// IsRateLimited reports whether err should trigger key rotation.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimitExceeded) {
		return true
	}
	var sc statusCoder
	if errors.As(err, &sc) && sc.HTTPStatus() == http.StatusTooManyRequests {
		return true
	}
	_, ok := MatchIndicator(err.Error())
	return ok
}

// MatchIndicator returns the first indicator contained in msg.
func MatchIndicator(msg string) (string, bool) {
	lower := strings.ToLower(msg)
	for _, ind := range Indicators {
		if strings.Contains(lower, ind) {
			return ind, true
		}
	}
	return "", false
}
