package ratelimit

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowConsumesTokens(t *testing.T) {
	l := New(Config{MaxRequestsPerMinute: 3})
	defer l.Stop()

	assert.True(t, l.allow("client", 1))
	assert.True(t, l.allow("client", 1))
	assert.True(t, l.allow("client", 1))
	assert.False(t, l.allow("client", 1))
}

func TestAllowIsPerKey(t *testing.T) {
	l := New(Config{MaxRequestsPerMinute: 1})
	defer l.Stop()

	assert.True(t, l.allow("a", 1))
	assert.False(t, l.allow("a", 1))
	assert.True(t, l.allow("b", 1))
}

func TestGenerateCostsMore(t *testing.T) {
	l := New(Config{MaxRequestsPerMinute: 10, GenerateCost: 5})
	defer l.Stop()

	app := fiber.New()
	app.Use(l.Middleware())
	app.Post("/api/v1/generate", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	// Two generate calls drain the bucket, the third is rejected.
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/api/v1/generate", nil)
		req.Header.Set("X-User-ID", "u1")
		resp, err := app.Test(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	req := httptest.NewRequest("POST", "/api/v1/generate", nil)
	req.Header.Set("X-User-ID", "u1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestUserIDHeaderOverridesIP(t *testing.T) {
	l := New(Config{MaxRequestsPerMinute: 1})
	defer l.Stop()

	app := fiber.New()
	app.Use(l.Middleware())
	app.Get("/api/v1/health", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	get := func(userID string) int {
		req := httptest.NewRequest("GET", "/api/v1/health", nil)
		if userID != "" {
			req.Header.Set("X-User-ID", userID)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, get("u1"))
	assert.Equal(t, fiber.StatusTooManyRequests, get("u1"))
	// Same IP, different identity: separate bucket.
	assert.Equal(t, fiber.StatusOK, get("u2"))
}
