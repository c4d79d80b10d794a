package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/siga-gateway/internal/domain/entity"
	"github.com/jhoicas/siga-gateway/internal/infrastructure/metrics"
	apphttp "github.com/jhoicas/siga-gateway/internal/interfaces/http"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func doGet(t *testing.T, app *fiber.App, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	app := apphttp.NewApp(apphttp.RouterDeps{AppName: "siga-test", Backend: "memory"})

	resp, body := doGet(t, app, "/health")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "ok", payload["status"])
	assert.Equal(t, "siga-test", payload["service"])
}

func TestReady_SinPingerSiempreListo(t *testing.T) {
	app := apphttp.NewApp(apphttp.RouterDeps{Backend: "memory"})
	resp, _ := doGet(t, app, "/ready")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestReady_AlmacenCaido(t *testing.T) {
	app := apphttp.NewApp(apphttp.RouterDeps{
		Backend: "postgres",
		Store:   pingerFunc(func(context.Context) error { return errors.New("connection refused") }),
	})
	resp, body := doGet(t, app, "/ready")
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "postgres")
}

func TestMetrics(t *testing.T) {
	rec := metrics.NewRecorder()
	rec.SigningStarted(entity.SigningTypeRemote)
	app := apphttp.NewApp(apphttp.RouterDeps{Registry: rec.Registry()})

	resp, body := doGet(t, app, "/metrics")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `siga_signing_started_total{signing_type="REMOTE"} 1`)

	resp, _ = doGet(t, apphttp.NewApp(apphttp.RouterDeps{}), "/metrics")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
