// Package v1_test contains tests for the API v1 handlers
package v1_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	v1 "pagelens/api/v1"
	"pagelens/internal/events"
	"pagelens/internal/http/middleware"
	"pagelens/internal/pkg/geoip"
	"pagelens/internal/pkg/referrers"
	"pagelens/internal/targets"
	"pagelens/internal/testsupport"
)

const (
	chromeUA    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	googlebotUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

var now = time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC)

func newTrackApp(t *testing.T) (*fiber.App, *gorm.DB, *events.Recorder) {
	t.Helper()
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	recorder := events.NewRecorder(db, logger, events.RecorderOptions{
		Geo: testsupport.StaticResolver{
			"203.0.113.5": geoip.Location{Country: "United States", CountryCode: "US", City: "Austin"},
		},
		Counter:      targets.NewSQLiteCounter(db, logger),
		FilterBots:   true,
		TimeProvider: &testsupport.FixedClock{Time: now},
	})

	app := fiber.New()
	app.Post("/analytics/track", middleware.IdentityContext(logger), v1.NewTrackHandler(recorder, logger).TrackAction)
	return app, db, recorder
}

func postTrack(t *testing.T, app *fiber.App, payload any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(fiber.MethodPost, "/analytics/track?utm_medium=email", bytes.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderUserAgent, chromeUA)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	resp.Body.Close()
	return resp, decoded
}

func TestTrackActionRecordsView(t *testing.T) {
	app, db, recorder := newTrackApp(t)
	testsupport.CreateTestBusiness(t, db, "B1")

	resp, body := postTrack(t, app, map[string]any{
		"targetId":        "B1",
		"targetType":      "business",
		"interactionType": "view",
		"sessionId":       "sess-1",
		"metrics":         map[string]any{"timeOnPage": 45, "scrollDepth": 80},
	}, map[string]string{fiber.HeaderXForwardedFor: "10.0.0.1, 203.0.113.5"})
	recorder.Wait()

	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "sess-1", data["sessionId"])
	assert.NotEmpty(t, data["logId"])

	var stored events.Event
	require.NoError(t, db.First(&stored, "id = ?", data["logId"]).Error)
	assert.Equal(t, "US", stored.Location.CountryCode)
	assert.Equal(t, referrers.SourceEmail, stored.Referral.Source)
	assert.True(t, stored.CreatedAt.Equal(now))

	business, err := targets.GetBusiness(db, "B1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), business.ViewCount)
}

func TestTrackActionUsesCallerIdentityAsViewer(t *testing.T) {
	app, db, recorder := newTrackApp(t)

	tests := []struct {
		name     string
		viewerID string
		expected string
	}{
		{"identity fills a missing viewer", "", "user-7"},
		{"explicit viewer wins", "viewer-9", "viewer-9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := postTrack(t, app, map[string]any{
				"targetId":        "P1",
				"targetType":      "profile",
				"interactionType": "view",
				"viewerId":        tt.viewerID,
			}, map[string]string{middleware.HeaderUserID: "user-7"})
			recorder.Wait()
			require.Equal(t, fiber.StatusCreated, resp.StatusCode)

			var stored events.Event
			require.NoError(t, db.First(&stored, "id = ?", body["data"].(map[string]any)["logId"]).Error)
			require.NotNil(t, stored.ViewerID)
			assert.Equal(t, tt.expected, *stored.ViewerID)
		})
	}
}

func TestTrackActionRejectsInvalidInput(t *testing.T) {
	app, _, _ := newTrackApp(t)

	tests := []struct {
		name   string
		body   map[string]any
		fields []string
	}{
		{
			name:   "missing target and unknown type",
			body:   map[string]any{"targetType": "planet", "interactionType": "view"},
			fields: []string{"targetId", "targetType"},
		},
		{
			name:   "whitespace target",
			body:   map[string]any{"targetId": "   ", "targetType": "business", "interactionType": "view"},
			fields: []string{"targetId"},
		},
		{
			name:   "unknown interaction",
			body:   map[string]any{"targetId": "B1", "targetType": "business", "interactionType": "wave"},
			fields: []string{"interactionType"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := postTrack(t, app, tt.body, nil)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, "Validation failed", body["message"])

			fields := []string{}
			for _, e := range body["errors"].([]any) {
				fields = append(fields, e.(map[string]any)["field"].(string))
			}
			assert.ElementsMatch(t, tt.fields, fields)
		})
	}
}

func TestTrackActionRejectsMalformedBody(t *testing.T) {
	app, _, _ := newTrackApp(t)

	req := httptest.NewRequest(fiber.MethodPost, "/analytics/track", bytes.NewReader([]byte("{not json")))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestTrackActionFiltersBots(t *testing.T) {
	app, db, _ := newTrackApp(t)

	resp, body := postTrack(t, app, map[string]any{
		"targetId":        "B1",
		"targetType":      "business",
		"interactionType": "view",
	}, map[string]string{fiber.HeaderUserAgent: googlebotUA})

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["filtered"])

	var count int64
	require.NoError(t, db.Model(&events.Event{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestTrackActionForwardedUserAgent(t *testing.T) {
	app, _, _ := newTrackApp(t)

	resp, body := postTrack(t, app, map[string]any{
		"targetId":        "B1",
		"targetType":      "business",
		"interactionType": "view",
	}, map[string]string{"X-Forwarded-User-Agent": googlebotUA})

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["filtered"])
}
