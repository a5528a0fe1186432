package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rr.Header().Get(RequestIDHeader))
}

func TestRequestID_KeepsClientValue(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "abc-123", seen)
}

func TestCORS_Wildcard(t *testing.T) {
	h := CORS([]string{"*"})(okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "https://grgkovac.github.io")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "content-type", rr.Header().Get("Access-Control-Allow-Headers"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestCORS_ExplicitOrigins(t *testing.T) {
	h := CORS([]string{"https://grgkovac.github.io"})(okHandler)

	allowed := httptest.NewRequest(http.MethodPost, "/chat", nil)
	allowed.Header.Set("Origin", "https://grgkovac.github.io")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, allowed)
	assert.Equal(t, "https://grgkovac.github.io", rr.Header().Get("Access-Control-Allow-Origin"))

	other := httptest.NewRequest(http.MethodPost, "/chat", nil)
	other.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, other)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter_BlocksAfterLimit(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()
	h := RequestID(rl.Middleware(okHandler))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/chat", nil)
		// different source ports, same client
		req.RemoteAddr = "203.0.113.7:" + []string{"1000", "1001", "1002"}[i]
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)

		if rr.Code == http.StatusTooManyRequests {
			var body map[string]map[string]string
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.Equal(t, "RATE_LIMITED", body["error"]["code"])
			assert.NotEmpty(t, body["error"]["request_id"])
		}
	}

	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestRateLimiter_SeparateClients(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()

	assert.True(t, rl.allow("198.51.100.1"))
	assert.True(t, rl.allow("198.51.100.2"))
	assert.False(t, rl.allow("198.51.100.1"))
}

func TestRateLimiter_SteadyClientGetsNewWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	assert.True(t, rl.allow("192.0.2.7"))
	clock = clock.Add(20 * time.Second)
	assert.True(t, rl.allow("192.0.2.7"))
	clock = clock.Add(20 * time.Second)
	assert.False(t, rl.allow("192.0.2.7"))
	clock = clock.Add(19 * time.Second)
	assert.False(t, rl.allow("192.0.2.7"))

	// a minute after the window opened the count resets even though the
	// client never paused for a full window
	clock = clock.Add(time.Second)
	assert.True(t, rl.allow("192.0.2.7"))
	assert.True(t, rl.allow("192.0.2.7"))
	assert.False(t, rl.allow("192.0.2.7"))
}

func TestClientIP(t *testing.T) {
	assert.Equal(t, "10.0.0.1", clientIP("10.0.0.1:5555"))
	assert.Equal(t, "::1", clientIP("[::1]:80"))
	assert.Equal(t, "10.0.0.1", clientIP("10.0.0.1"))
}
