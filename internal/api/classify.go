package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/edgetill/possync/internal/store"
)

// ClassifyStatus maps an HTTP status to a queue error category.
// 2xx maps to the empty string.
func ClassifyStatus(status int) string {
	switch {
	case status >= 200 && status < 300:
		return ""
	case status == http.StatusConflict:
		return store.CategoryConflict
	case status == http.StatusTooManyRequests:
		return store.CategoryRateLimited
	case status >= 400 && status < 500:
		return store.CategoryPermanent
	default:
		return store.CategoryServer
	}
}

// ClassifyTransport maps a transport-level error to a queue error category.
// Timeouts, resets and refused connections never produced an HTTP status;
// they are all transient network failures and retry with backoff.
func ClassifyTransport(_ error) string {
	return store.CategoryNetwork
}

// retryHint parses a Retry-After header (seconds or HTTP date) into a
// delay. Zero when absent or unparseable.
func retryHint(h http.Header, now time.Time) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}
