package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendly/ticketing/internal/config"
)

func limiterConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		Capacity:       5,
		RefillTokens:   1,
		RefillInterval: time.Second,
		TTL:            time.Minute,
		Prefix:         "rl:test",
	}
}

// matchAny accepts any script invocation; the timestamp argument varies
// per request and the script semantics are covered by the Lua itself.
func matchAny(expected, actual []interface{}) error { return nil }

// scriptArgs mirrors the limiter's five ARGV values so the mock's
// argument-count check passes; matchAny ignores the actual contents
// (the timestamp varies per request).
func scriptArgs(cfg config.RateLimitConfig) []interface{} {
	return []interface{}{
		int64(0), // timestamp placeholder; matchAny ignores it
		cfg.Capacity,
		cfg.RefillTokens,
		cfg.RefillInterval.Milliseconds(),
		int64(cfg.TTL / time.Second),
	}
}

// limitedContext builds the request context the limiter sees on the
// booking route, so tests can derive the exact bucket key from it.
func limitedContext(e *echo.Echo) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/v1/bookings", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/bookings")
	c.Set(CtxBuyerID, "usr-1")
	return c, rec
}

func runLimited(t *testing.T, mw echo.MiddlewareFunc, c echo.Context) {
	t.Helper()
	h := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusCreated)
	})
	require.NoError(t, h(c))
}

func TestRateLimitAllowsWhileTokensRemain(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cfg := limiterConfig()
	c, rec := limitedContext(echo.New())

	mock.CustomMatch(matchAny).
		ExpectEvalSha(tokenBucketScript.Hash(), []string{rateKey(cfg.Prefix, c)}, scriptArgs(cfg)...).
		SetVal([]interface{}{int64(1), int64(4), int64(0)})

	runLimited(t, RateLimit(cfg, rdb), c)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimitRejectsWhenExhausted(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cfg := limiterConfig()
	c, rec := limitedContext(echo.New())

	mock.CustomMatch(matchAny).
		ExpectEvalSha(tokenBucketScript.Hash(), []string{rateKey(cfg.Prefix, c)}, scriptArgs(cfg)...).
		SetVal([]interface{}{int64(0), int64(0), int64(2500)})

	runLimited(t, RateLimit(cfg, rdb), c)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("Retry-After"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimitKeyIsolatesCallers(t *testing.T) {
	cfg := limiterConfig()
	c, _ := limitedContext(echo.New())

	key := rateKey(cfg.Prefix, c)
	assert.Equal(t, "rl:test:192.0.2.1:usr-1:POST /v1/bookings", key)

	// An unauthenticated caller on the same route buckets separately.
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/bookings", nil)
	anon := e.NewContext(req, httptest.NewRecorder())
	anon.SetPath("/v1/bookings")
	assert.Equal(t, "rl:test:192.0.2.1:anon:POST /v1/bookings", rateKey(cfg.Prefix, anon))
}

func TestRateLimitFailsOpenOnRedisError(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cfg := limiterConfig()
	c, rec := limitedContext(echo.New())

	mock.CustomMatch(matchAny).
		ExpectEvalSha(tokenBucketScript.Hash(), []string{rateKey(cfg.Prefix, c)}, scriptArgs(cfg)...).
		SetErr(errors.New("connection refused"))

	runLimited(t, RateLimit(cfg, rdb), c)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestRateLimitDisabledPassesThrough(t *testing.T) {
	cfg := limiterConfig()
	cfg.Enabled = false
	c, rec := limitedContext(echo.New())

	runLimited(t, RateLimit(cfg, nil), c)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimitNilClientPassesThrough(t *testing.T) {
	c, rec := limitedContext(echo.New())
	runLimited(t, RateLimit(limiterConfig(), nil), c)
	assert.Equal(t, http.StatusCreated, rec.Code)
}
