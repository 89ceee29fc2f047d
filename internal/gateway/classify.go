package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/nulzo/capability-router/internal/core/domain"
	"github.com/nulzo/capability-router/internal/httpclient"
)

// upstream error type/code values that mark a specific kind
var codeMarkers = map[string]domain.ErrorKind{
	"rate_limit_error":     domain.ErrorKindRateLimit,
	"rate_limit_exceeded":  domain.ErrorKindRateLimit,
	"insufficient_quota":   domain.ErrorKindRateLimit,
	"overloaded_error":     domain.ErrorKindRateLimit,
	"authentication_error": domain.ErrorKindAuth,
	"permission_error":     domain.ErrorKindAuth,
	"invalid_api_key":      domain.ErrorKindAuth,
	"permission_denied":    domain.ErrorKindAuth,
	"request_timeout":      domain.ErrorKindTimeout,
	"timeout_error":        domain.ErrorKindTimeout,
}

// free-text markers, checked only when nothing structured matched
var textMarkers = []struct {
	marker string
	kind   domain.ErrorKind
}{
	{"connection refused", domain.ErrorKindNetwork},
	{"connection reset by peer", domain.ErrorKindNetwork},
	{"no such host", domain.ErrorKindNetwork},
	{"i/o timeout", domain.ErrorKindTimeout},
	{"context deadline exceeded", domain.ErrorKindTimeout},
}

// Classify maps an adapter error onto exactly one error kind.
// Structured signals win over text: status code, upstream error code, error type, then markers.
func Classify(err error) domain.ErrorKind {
	if err == nil {
		return ""
	}

	var upstream *httpclient.UpstreamError
	if errors.As(err, &upstream) {
		switch upstream.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return domain.ErrorKindAuth
		case http.StatusTooManyRequests:
			return domain.ErrorKindRateLimit
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return domain.ErrorKindTimeout
		}
		if kind, ok := codeMarkers[strings.ToLower(upstream.Code())]; ok {
			return kind
		}
		return domain.ErrorKindUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrorKindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ErrorKindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return domain.ErrorKindNetwork
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return domain.ErrorKindNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return domain.ErrorKindNetwork
	}

	msg := strings.ToLower(err.Error())
	for _, m := range textMarkers {
		if strings.Contains(msg, m.marker) {
			return m.kind
		}
	}

	return domain.ErrorKindUnknown
}
