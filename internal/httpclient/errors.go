package httpclient

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// UpstreamError represents an error returned by an upstream service
type UpstreamError struct {
	StatusCode int
	Body       []byte
	URL        string
	// RetryAfter is parsed from the Retry-After header when present.
	RetryAfter time.Duration
}

func newUpstreamError(resp *http.Response, body []byte, url string) *UpstreamError {
	return &UpstreamError{
		StatusCode: resp.StatusCode,
		Body:       body,
		URL:        url,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

func (e *UpstreamError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("upstream error: status %d from %s: %s", e.StatusCode, e.URL, msg)
	}
	return fmt.Sprintf("upstream error: status %d from %s", e.StatusCode, e.URL)
}

// Message extracts the provider's error message from common JSON error shapes.
func (e *UpstreamError) Message() string {
	if len(e.Body) == 0 || !gjson.ValidBytes(e.Body) {
		return ""
	}
	for _, path := range []string{"error.message", "message", "error", "detail"} {
		if r := gjson.GetBytes(e.Body, path); r.Exists() && r.Type == gjson.String {
			return r.String()
		}
	}
	return ""
}

// Code returns the provider's machine readable error type or code, if any.
func (e *UpstreamError) Code() string {
	if len(e.Body) == 0 || !gjson.ValidBytes(e.Body) {
		return ""
	}
	for _, path := range []string{"error.type", "error.code", "type", "code"} {
		if r := gjson.GetBytes(e.Body, path); r.Exists() && r.Type == gjson.String && r.String() != "error" {
			return r.String()
		}
	}
	return ""
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
