package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testApp(rl *RateLimiter) *fiber.App {
	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	return app
}

func get(t *testing.T, app *fiber.App, userID string) int {
	t.Helper()
	req := httptest.NewRequest("GET", "/", nil)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestAllowsWithinLimit(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 5})
	defer rl.Stop()
	app := testApp(rl)

	for i := 0; i < 5; i++ {
		assert.Equal(t, fiber.StatusOK, get(t, app, "user-1"))
	}
}

func TestBlocksOverLimit(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 3})
	defer rl.Stop()
	app := testApp(rl)

	for i := 0; i < 3; i++ {
		require.Equal(t, fiber.StatusOK, get(t, app, "user-1"))
	}

	assert.Equal(t, fiber.StatusTooManyRequests, get(t, app, "user-1"))
}

func TestLimitsArePerUser(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 2})
	defer rl.Stop()
	app := testApp(rl)

	require.Equal(t, fiber.StatusOK, get(t, app, "user-1"))
	require.Equal(t, fiber.StatusOK, get(t, app, "user-1"))
	require.Equal(t, fiber.StatusTooManyRequests, get(t, app, "user-1"))

	assert.Equal(t, fiber.StatusOK, get(t, app, "user-2"))
}

func TestTokensRefillOverTime(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 2, WindowDuration: 100 * time.Millisecond})
	defer rl.Stop()
	app := testApp(rl)

	require.Equal(t, fiber.StatusOK, get(t, app, "user-1"))
	require.Equal(t, fiber.StatusOK, get(t, app, "user-1"))
	require.Equal(t, fiber.StatusTooManyRequests, get(t, app, "user-1"))

	time.Sleep(120 * time.Millisecond)

	assert.Equal(t, fiber.StatusOK, get(t, app, "user-1"))
}

func TestRateLimitHeadersSet(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 10})
	defer rl.Stop()
	app := testApp(rl)

	req := httptest.NewRequest("GET", "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "10", resp.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", resp.Header.Get("X-RateLimit-Remaining"))
}
