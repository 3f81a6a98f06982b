package internal

import (
	"bytes"
	"io"
	"net/http/httptest"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagelens/internal/analytics"
	"pagelens/internal/config"
	"pagelens/internal/events"
	"pagelens/internal/metrics"
	"pagelens/internal/testsupport"
)

func newTestServer(t *testing.T, cfg *config.Config) *fiber.App {
	t.Helper()
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()
	m := metrics.NewMetrics("test")

	app := fiber.New()
	MountRoutes(app, RouteDeps{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Analytics: analytics.NewService(db, logger, analytics.ServiceOptions{Metrics: m}),
		Recorder:  events.NewRecorder(db, logger, events.RecorderOptions{Metrics: m, FilterBots: true}),
		Metrics:   m,
	})
	return app
}

func TestTrackRouteRateLimited(t *testing.T) {
	app := newTestServer(t, &config.Config{Environment: config.Test, TrackRateLimit: 10})

	var trackRoute *fiber.Route
	routes := app.GetRoutes(true)
	for idx := range routes {
		if routes[idx].Method == fiber.MethodPost && routes[idx].Path == "/analytics/track" {
			trackRoute = &routes[idx]
			break
		}
	}
	require.NotNil(t, trackRoute, "expected track route to be registered")

	// Outside production the limiter is wrapped in a pass-through, but the
	// wrapper is still on the route.
	hasRateLimiter := false
	var handlerNames []string
	for _, handler := range trackRoute.Handlers {
		name := runtime.FuncForPC(reflect.ValueOf(handler).Pointer()).Name()
		handlerNames = append(handlerNames, name)
		if strings.Contains(name, "middleware/limiter") || strings.Contains(name, "MountRoutes.func") {
			hasRateLimiter = true
			break
		}
	}
	require.Truef(t, hasRateLimiter, "expected rate limiter middleware for track route, handlers: %v", handlerNames)
}

func TestReadRoutesRegistered(t *testing.T) {
	app := newTestServer(t, &config.Config{Environment: config.Test})

	registered := map[string]bool{}
	for _, route := range app.GetRoutes(true) {
		registered[route.Method+" "+route.Path] = true
	}

	for _, path := range []string{
		"/analytics/location",
		"/analytics/links",
		"/analytics/peak-hours",
		"/analytics/time-filtered",
		"/analytics/dashboard",
		"/analytics/real-time",
		"/analytics/export",
		"/analytics/events",
		"/_health",
		"/metrics",
	} {
		assert.True(t, registered[fiber.MethodGet+" "+path], "expected GET %s", path)
	}
}

func TestAPIKeyGuardsReadRoutesOnly(t *testing.T) {
	app := newTestServer(t, &config.Config{Environment: config.Test, APIKey: "s3cret"})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/analytics/location?targetId=B1", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(fiber.MethodGet, "/analytics/location?targetId=B1", nil)
	req.Header.Set("X-API-Key", "s3cret")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	// Ingest stays public: an empty body fails validation, not auth.
	req = httptest.NewRequest(fiber.MethodPost, "/analytics/track", bytes.NewReader([]byte(`{}`)))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestTrackRateLimitInProduction(t *testing.T) {
	app := newTestServer(t, &config.Config{Environment: config.Production, TrackRateLimit: 1})

	statuses := make([]int, 0, 2)
	for range 2 {
		req := httptest.NewRequest(fiber.MethodPost, "/analytics/track", bytes.NewReader([]byte(`{}`)))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		statuses = append(statuses, resp.StatusCode)
	}
	assert.Equal(t, []int{fiber.StatusBadRequest, fiber.StatusTooManyRequests}, statuses)
}

func TestCORSPreflightOnTrack(t *testing.T) {
	app := newTestServer(t, &config.Config{Environment: config.Test})

	req := httptest.NewRequest(fiber.MethodOptions, "/analytics/track", nil)
	req.Header.Set(fiber.HeaderOrigin, "https://builder.example.com")
	req.Header.Set(fiber.HeaderAccessControlRequestMethod, fiber.MethodPost)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestServer(t, &config.Config{Environment: config.Test})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "test_stored_events")
}
