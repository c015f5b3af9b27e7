package api

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/edgetill/possync/internal/store"
)

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status int
		want   string
	}{
		{200, ""},
		{201, ""},
		{204, ""},
		{409, store.CategoryConflict},
		{429, store.CategoryRateLimited},
		{400, store.CategoryPermanent},
		{401, store.CategoryPermanent},
		{404, store.CategoryPermanent},
		{422, store.CategoryPermanent},
		{500, store.CategoryServer},
		{502, store.CategoryServer},
		{503, store.CategoryServer},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyStatus(tc.status), "status %d", tc.status)
	}
}

func TestClassifyTransport(t *testing.T) {
	assert.Equal(t, store.CategoryNetwork, ClassifyTransport(errors.New("connection refused")))
}

func TestRetryHint(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	header := func(v string) http.Header {
		h := http.Header{}
		if v != "" {
			h.Set("Retry-After", v)
		}
		return h
	}

	assert.Equal(t, time.Duration(0), retryHint(header(""), now), "absent header")
	assert.Equal(t, 30*time.Second, retryHint(header("30"), now), "seconds form")
	assert.Equal(t, time.Duration(0), retryHint(header("-5"), now), "negative seconds")
	assert.Equal(t, time.Duration(0), retryHint(header("soon"), now), "garbage")

	future := now.Add(90 * time.Second)
	assert.Equal(t, 90*time.Second, retryHint(header(future.Format(http.TimeFormat)), now), "HTTP date form")

	past := now.Add(-time.Minute)
	assert.Equal(t, time.Duration(0), retryHint(header(past.Format(http.TimeFormat)), now), "past HTTP date")
}
