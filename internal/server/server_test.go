package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/mfi_wallet/internal/config"
	"github.com/congo-pay/mfi_wallet/internal/logging"
	"github.com/congo-pay/mfi_wallet/internal/middleware"
	"github.com/congo-pay/mfi_wallet/internal/routes"
)

func devConfig() config.Config {
	return config.Config{
		AppName:          "test",
		AppEnv:           "development",
		Port:             "0",
		JWTSecret:        "a",
		RefreshSecret:    "b",
		AccessTokenTTL:   time.Minute,
		DailyLimit:       "100",
		TransactionLimit: "100",
		MonthlyLimit:     "100",
	}
}

func decodeBody(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}

func TestNewServesPingInDevelopment(t *testing.T) {
	srv, err := New(routes.Deps{Cfg: devConfig(), Logger: logging.Discard()})
	require.NoError(t, err)

	resp, err := srv.App().Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/ping", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestNewRejectsMissingStoresInProduction(t *testing.T) {
	_, err := New(routes.Deps{Cfg: config.Config{AppEnv: "production"}, Logger: logging.Discard()})
	assert.Error(t, err)
}

func TestErrorsRenderAsJSON(t *testing.T) {
	srv, err := New(routes.Deps{Cfg: devConfig(), Logger: logging.Discard()})
	require.NoError(t, err)

	req := httptest.NewRequest(fiber.MethodGet, "/api/v1/nowhere", nil)
	req.Header.Set("X-Request-ID", "req-401")
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON)
	body := decodeBody(t, resp.Body)
	assert.Equal(t, "req-401", body["request_id"])
	assert.NotEmpty(t, body["error"])

	resp, err = srv.App().Test(httptest.NewRequest(fiber.MethodGet, "/nowhere", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Cannot GET /nowhere", decodeBody(t, resp.Body)["error"])
}

func TestErrorHandlerHidesServerFailures(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New(fiber.Config{ErrorHandler: errorHandler(slog.New(slog.NewJSONHandler(&buf, nil)))})
	app.Use(middleware.RequestID())
	app.Get("/db", func(c *fiber.Ctx) error {
		return errors.New("dial tcp 10.0.0.5:5432: connection refused")
	})
	app.Get("/busy", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusServiceUnavailable, "save wallet: pool exhausted")
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/db", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Internal Server Error", decodeBody(t, resp.Body)["error"])
	assert.Contains(t, buf.String(), "connection refused")

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/busy", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "Service Unavailable", decodeBody(t, resp.Body)["error"])
}
