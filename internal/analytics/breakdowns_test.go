package analytics_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagelens/internal/analytics"
	"pagelens/internal/events"
	"pagelens/internal/testsupport"
)

func seedBreakdownEvents(t *testing.T) *analytics.Service {
	t.Helper()
	db := testsupport.SetupTestDB(t)
	at := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)
	testsupport.SeedEvents(t, db,
		testsupport.NewEvent("B1", at, testsupport.WithDevice("mobile"), testsupport.WithViewer("u1"), testsupport.WithSession("s1"), testsupport.WithScore(10), testsupport.WithTimeOnPage(30)),
		testsupport.NewEvent("B1", at.Add(time.Minute), testsupport.WithDevice("mobile"), testsupport.WithViewer("u1"), testsupport.WithSession("s1"), testsupport.WithScore(30), testsupport.WithInteraction(events.InteractionShare)),
		testsupport.NewEvent("B1", at.Add(2*time.Minute), testsupport.WithDevice("mobile"), testsupport.WithViewer("u2"), testsupport.WithSession("s2"), testsupport.WithReferralSource("google"), testsupport.WithBounce()),
		testsupport.NewEvent("B1", at.Add(3*time.Minute), testsupport.WithDevice(" "), testsupport.WithSession("s3"), testsupport.WithReferralSource(""), testsupport.WithTimeOnPage(15)),
		testsupport.NewEvent("B1", at.Add(4*time.Minute), testsupport.WithSession("s3"), testsupport.WithLink("phone", "", "tel:1", 0)),
		testsupport.NewEvent("B2", at, testsupport.WithDevice("tablet")),
	)
	return analytics.NewService(db, testsupport.GetLogger(), analytics.ServiceOptions{
		TimeProvider: &testsupport.FixedClock{Time: at.Add(time.Hour)},
	})
}

func TestDeviceBreakdown(t *testing.T) {
	svc := seedBreakdownEvents(t)

	dash, err := svc.Dashboard(context.Background(), analytics.DashboardRequest{
		Query:          targetQuery(),
		IncludeDevices: true,
	})
	require.NoError(t, err)
	require.NotNil(t, dash.Devices)

	assert.Equal(t, int64(5), dash.Devices.Total)
	assert.Equal(t, []analytics.DeviceRow{
		{DeviceType: "mobile", Label: "Mobile", Count: 3, UniqueViewers: 2},
		{DeviceType: "desktop", Label: "Desktop", Count: 1, UniqueViewers: 0},
		{DeviceType: "unknown", Label: "Unknown", Count: 1, UniqueViewers: 0},
	}, dash.Devices.Devices)
}

func TestReferralBreakdown(t *testing.T) {
	svc := seedBreakdownEvents(t)

	dash, err := svc.Dashboard(context.Background(), analytics.DashboardRequest{
		Query:            targetQuery(),
		IncludeReferrals: true,
	})
	require.NoError(t, err)
	require.NotNil(t, dash.Referrals)

	assert.Equal(t, int64(5), dash.Referrals.Total)
	require.Len(t, dash.Referrals.Sources, 2)

	direct := dash.Referrals.Sources[0]
	assert.Equal(t, "direct", direct.Source)
	assert.Equal(t, "Direct", direct.Label)
	assert.Equal(t, int64(4), direct.Count)
	assert.Equal(t, int64(1), direct.UniqueViewers)
	assert.Equal(t, 10.0, direct.AvgEngagementScore)

	assert.Equal(t, "google", dash.Referrals.Sources[1].Source)
	assert.Equal(t, int64(1), dash.Referrals.Sources[1].Count)
}

func TestInteractionBreakdownExcludesViews(t *testing.T) {
	svc := seedBreakdownEvents(t)

	rt, err := svc.RealTime(context.Background(), analytics.RealTimeRequest{
		TargetID:            "B1",
		TargetType:          events.TargetBusiness,
		Minutes:             intPtr(120),
		IncludeActive:       true,
		IncludeInteractions: true,
	})
	require.NoError(t, err)

	require.NotNil(t, rt.Interactions)
	assert.Equal(t, int64(2), rt.Interactions.Total)
	assert.Equal(t, []analytics.InteractionRow{
		{InteractionType: "click", Count: 1, UniqueViewers: 0},
		{InteractionType: "share", Count: 1, UniqueViewers: 1},
	}, rt.Interactions.Interactions)

	require.NotNil(t, rt.Active)
	assert.Equal(t, analytics.ActiveSummary{ActiveViewers: 2, ActiveSessions: 3, TotalEvents: 5}, *rt.Active)
}

func TestEngagementOverview(t *testing.T) {
	tests := []struct {
		name     string
		targetID string
		want     analytics.Overview
	}{
		{
			name:     "mixed events",
			targetID: "B1",
			want: analytics.Overview{
				TotalEvents:        5,
				TotalInteractions:  2,
				UniqueViewers:      2,
				UniqueSessions:     3,
				EngagementRate:     40,
				AvgEngagementScore: 8,
				AvgTimeOnPage:      22.5,
				BounceRate:         20,
			},
		},
		{name: "no events", targetID: "missing", want: analytics.Overview{}},
	}

	svc := seedBreakdownEvents(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := targetQuery()
			q.TargetID = tt.targetID
			q.From = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
			q.To = time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

			bundle, err := svc.Export(context.Background(), analytics.ExportRequest{
				Query:   q,
				Metrics: []analytics.ExportMetric{analytics.ExportEngagement},
			})
			require.NoError(t, err)
			require.NotNil(t, bundle.Engagement)
			assert.Equal(t, tt.want, *bundle.Engagement)
		})
	}
}
