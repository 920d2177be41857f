package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/mfi_wallet/internal/auth"
)

type stubVerifier struct {
	claims *auth.Claims
	err    error
}

func (s stubVerifier) Verify(context.Context, string) (*auth.Claims, error) {
	return s.claims, s.err
}

func TestJWTAuth(t *testing.T) {
	claims := &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "member-1"}, Version: 2, Tier: "tier1"}

	newApp := func(v TokenVerifier) *fiber.App {
		app := fiber.New()
		app.Use(JWTAuth(v))
		app.Get("/me", func(c *fiber.Ctx) error {
			return c.SendString(c.Locals("user_id").(string))
		})
		return app
	}

	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	resp, err := newApp(stubVerifier{claims: claims}).Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer token")
	resp, err = newApp(stubVerifier{claims: claims}).Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer token")
	resp, err = newApp(stubVerifier{err: auth.ErrTokenInvalidated}).Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestLoginRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	app.Post("/login", LoginRateLimit(cache, 2), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	login := func(phone string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/login", strings.NewReader(`{"phone":"`+phone+`"}`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, login("+242060000003"))
	assert.Equal(t, fiber.StatusOK, login("+242060000003"))
	assert.Equal(t, fiber.StatusTooManyRequests, login("+242060000003"))
	assert.Equal(t, fiber.StatusOK, login("+242060000004"))
	assert.True(t, mr.TTL(loginRateLimitPrefix+"+242060000003") > 0)
}

func TestLoginRateLimitWithoutRedis(t *testing.T) {
	app := fiber.New()
	app.Post("/login", LoginRateLimit(nil, 1), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/login", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
}

func TestRequestIDAndAudit(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New()
	app.Use(RequestID())
	app.Use(Audit(slog.New(slog.NewJSONHandler(&buf, nil))))
	app.Get("/fail", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "wallet not found")
	})

	req := httptest.NewRequest(fiber.MethodGet, "/fail", nil)
	req.Header.Set(requestIDHeader, "req-42")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "req-42", resp.Header.Get(requestIDHeader))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "req-42", record["request_id"])
	assert.EqualValues(t, fiber.StatusNotFound, record["status"])

	req = httptest.NewRequest(fiber.MethodGet, "/fail", nil)
	req.Header.Set(requestIDHeader, "has space")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.NotEqual(t, "has space", resp.Header.Get(requestIDHeader))
	assert.Len(t, resp.Header.Get(requestIDHeader), 36)
}

func TestOperatorAuth(t *testing.T) {
	newApp := func(key string) *fiber.App {
		app := fiber.New()
		app.Use(OperatorAuth(key))
		app.Get("/admin", func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusNoContent)
		})
		return app
	}
	call := func(app *fiber.App, presented string) int {
		req := httptest.NewRequest(fiber.MethodGet, "/admin", nil)
		if presented != "" {
			req.Header.Set(operatorKeyHeader, presented)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	app := newApp("s3cret")
	assert.Equal(t, fiber.StatusUnauthorized, call(app, ""))
	assert.Equal(t, fiber.StatusUnauthorized, call(app, "wrong"))
	assert.Equal(t, fiber.StatusNoContent, call(app, "s3cret"))

	assert.Equal(t, fiber.StatusUnauthorized, call(newApp(""), "anything"))
}
