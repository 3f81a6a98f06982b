package analytics_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagelens/internal/analytics"
	"pagelens/internal/events"
	"pagelens/internal/testsupport"
	"pagelens/internal/timeframe"
)

func TestTimeSeriesAnalyticsByDay(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	day := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	testsupport.SeedEvents(t, db,
		testsupport.NewEvent("B1", day.Add(26*time.Hour), testsupport.WithSession("s2"), testsupport.WithBounce()),
		testsupport.NewEvent("B1", day.Add(time.Hour), testsupport.WithSession("s1"), testsupport.WithViewer("u1"), testsupport.WithScore(20)),
		testsupport.NewEvent("B1", day.Add(2*time.Hour), testsupport.WithSession("s1"), testsupport.WithViewer("u1"), testsupport.WithScore(50), testsupport.WithInteraction(events.InteractionEmail)),
		testsupport.NewEvent("B1", day.Add(3*time.Hour), testsupport.WithSession("s3"), testsupport.WithBounce(), testsupport.WithScore(5)),
	)

	q := targetQuery()
	q.From = day
	q.To = day.AddDate(0, 0, 3)
	result, err := analytics.TimeSeriesAnalytics(context.Background(), db, q, timeframe.BucketSizeDay)
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)

	first := result.Rows[0]
	assert.Equal(t, "2024-03-11", first.Label)
	assert.Equal(t, timeframe.Period{Year: 2024, Month: 3, Day: 11}, first.Period)
	assert.Equal(t, int64(3), first.TotalViews)
	assert.Equal(t, int64(1), first.UniqueViewers)
	assert.Equal(t, int64(1), first.TotalInteractions)
	assert.Equal(t, 25.0, first.AvgEngagementScore)
	assert.Equal(t, 33.33, first.BounceRate)
	assert.Equal(t, int64(2), first.UniqueSessions)

	assert.Equal(t, "2024-03-12", result.Rows[1].Label)
	assert.Equal(t, 100.0, result.Rows[1].BounceRate)

	assert.Equal(t, int64(4), result.Summary.TotalEvents)
	assert.Equal(t, int64(3), result.Summary.UniqueSessions)
	assert.Equal(t, 50.0, result.Summary.BounceRate)
}

func TestTimeSeriesAnalyticsSkipsEmptyBuckets(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	day := time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC)
	testsupport.SeedEvents(t, db,
		testsupport.NewEvent("B1", day),
		testsupport.NewEvent("B1", day.AddDate(0, 0, 2)),
	)

	q := targetQuery()
	q.From = day.AddDate(0, 0, -1)
	q.To = day.AddDate(0, 0, 3)
	result, err := analytics.TimeSeriesAnalytics(context.Background(), db, q, timeframe.BucketSizeDay)
	require.NoError(t, err)

	labels := make([]string, 0, len(result.Rows))
	for _, r := range result.Rows {
		labels = append(labels, r.Label)
	}
	assert.Equal(t, []string{"2024-03-11", "2024-03-13"}, labels)
}

func TestTimeSeriesAnalyticsBucketLabels(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	at := time.Date(2024, 3, 14, 15, 9, 0, 0, time.UTC)
	testsupport.SeedEvents(t, db, testsupport.NewEvent("B1", at))

	tests := []struct {
		groupBy timeframe.BucketSize
		label   string
	}{
		{timeframe.BucketSizeHour, "2024-03-14 15:00"},
		{timeframe.BucketSizeDay, "2024-03-14"},
		{timeframe.BucketSizeWeek, "2024-W11"},
		{timeframe.BucketSizeMonth, "2024-03"},
	}

	for _, tt := range tests {
		t.Run(string(tt.groupBy), func(t *testing.T) {
			result, err := analytics.TimeSeriesAnalytics(context.Background(), db, targetQuery(), tt.groupBy)
			require.NoError(t, err)
			require.Len(t, result.Rows, 1)
			assert.Equal(t, tt.label, result.Rows[0].Label)
		})
	}

	_, err := analytics.TimeSeriesAnalytics(context.Background(), db, targetQuery(), timeframe.BucketSizeMinute)
	assert.Error(t, err, "minute buckets are reserved for real time")
}

func TestTimeSeriesAnalyticsMonthlyTrends(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	start := time.Date(2023, 1, 15, 12, 0, 0, 0, time.UTC)

	// Only the last 7 of 14 months have views.
	for month := 7; month < 14; month++ {
		at := start.AddDate(0, month, 0)
		for i := 0; i < month; i++ {
			testsupport.SeedEvents(t, db, testsupport.NewEvent("B1", at.Add(time.Duration(i)*time.Minute), testsupport.WithScore(40)))
		}
	}

	q := targetQuery()
	q.From = start
	q.To = start.AddDate(0, 14, 0)
	result, err := analytics.TimeSeriesAnalytics(context.Background(), db, q, timeframe.BucketSizeMonth)
	require.NoError(t, err)
	require.Len(t, result.Rows, 7)

	for i := 1; i < len(result.Rows); i++ {
		assert.True(t, result.Rows[i-1].Start.Before(result.Rows[i].Start))
	}
	assert.Equal(t, "2023-08", result.Rows[0].Label)
	assert.Equal(t, 0.0, result.Trends.ViewsTrend)
	assert.Equal(t, 0, result.Trends.PreviousBuckets)
}

func TestCalculateTrends(t *testing.T) {
	points := func(views ...int64) []analytics.TimeSeriesPoint {
		out := make([]analytics.TimeSeriesPoint, len(views))
		for i, v := range views {
			out[i] = analytics.TimeSeriesPoint{TotalViews: v, AvgEngagementScore: float64(v), BounceRate: 50}
		}
		return out
	}

	tests := []struct {
		name     string
		points   []analytics.TimeSeriesPoint
		views    float64
		recent   int
		previous int
	}{
		{
			name:   "empty",
			points: nil,
		},
		{
			name:   "fewer than a window",
			points: points(1, 2, 3),
			recent: 3,
		},
		{
			name:     "previous window all zero",
			points:   points(0, 0, 0, 0, 0, 0, 0, 5, 5, 5, 5, 5, 5, 5),
			views:    0,
			recent:   7,
			previous: 7,
		},
		{
			name:     "doubling",
			points:   points(2, 2, 2, 2, 2, 2, 2, 4, 4, 4, 4, 4, 4, 4),
			views:    100,
			recent:   7,
			previous: 7,
		},
		{
			name:     "only the last fourteen count",
			points:   points(1000, 1000, 4, 4, 4, 4, 4, 4, 4, 2, 2, 2, 2, 2, 2, 2),
			views:    -50,
			recent:   7,
			previous: 7,
		},
		{
			name:     "short previous window",
			points:   points(10, 5, 5, 5, 5, 5, 5, 5),
			views:    -50,
			recent:   7,
			previous: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trends := analytics.CalculateTrends(tt.points)
			assert.Equal(t, tt.views, trends.ViewsTrend)
			assert.Equal(t, tt.views, trends.EngagementTrend)
			assert.False(t, math.IsNaN(trends.ViewsTrend) || math.IsInf(trends.ViewsTrend, 0))
			assert.Equal(t, 0.0, trends.BounceRateTrend)
			assert.Equal(t, tt.recent, trends.RecentBuckets)
			assert.Equal(t, tt.previous, trends.PreviousBuckets)
		})
	}
}
