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

func TestLinkAnalyticsOnlyCountsClicks(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.SeedEvents(t, db,
		testsupport.NewEvent("B1", march, testsupport.WithLink("website", "", "https://acme.com", 0)),
		testsupport.NewEvent("B1", march.Add(time.Minute)),
	)

	result, err := analytics.LinkAnalytics(context.Background(), db, targetQuery(), analytics.GroupByLinkType, "")
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "website", result.Rows[0].Key)
	assert.Equal(t, int64(1), result.Rows[0].TotalClicks)
	assert.Equal(t, int64(1), result.Summary.TotalClicks)
}

func TestLinkAnalyticsBySocialPlatform(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.SeedEvents(t, db,
		testsupport.NewEvent("B1", march, testsupport.WithViewer("u1"), testsupport.WithLink("social", "instagram", "https://instagram.com/acme", 1)),
		testsupport.NewEvent("B1", march.Add(time.Minute), testsupport.WithViewer("u1"), testsupport.WithLink("social", "instagram", "https://instagram.com/acme", 1)),
		testsupport.NewEvent("B1", march.Add(2*time.Minute), testsupport.WithViewer("u2"), testsupport.WithLink("social", "instagram", "https://instagram.com/acme_two", 4)),
		testsupport.NewEvent("B1", march.Add(3*time.Minute), testsupport.WithViewer("u3"), testsupport.WithLink("social", "tiktok", "https://tiktok.com/@acme", 2)),
		testsupport.NewEvent("B1", march.Add(4*time.Minute), testsupport.WithLink("website", "", "https://acme.com", 0)),
		testsupport.NewEvent("B1", march.Add(5*time.Minute), testsupport.WithInteraction(events.InteractionShare)),
	)

	result, err := analytics.LinkAnalytics(context.Background(), db, targetQuery(), analytics.GroupBySocialPlatform, "social")
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)

	instagram := result.Rows[0]
	assert.Equal(t, "instagram", instagram.Key)
	assert.Equal(t, "Instagram", instagram.Label)
	assert.Equal(t, int64(3), instagram.TotalClicks)
	assert.Equal(t, int64(2), instagram.UniqueClickers)
	assert.Equal(t, 2, instagram.UniqueURLs)
	assert.Equal(t, []int{1, 4}, instagram.Positions)
	assert.Equal(t, 66.67, instagram.ClickThroughRate)
	assert.True(t, instagram.LastClicked.Equal(march.Add(2*time.Minute)))

	assert.Equal(t, "tiktok", result.Rows[1].Key)
	assert.Equal(t, 100.0, result.Rows[1].ClickThroughRate)

	// 3 unique clickers over 4 clicks
	assert.Equal(t, 75.0, result.Summary.ClickThroughRate)
	assert.Equal(t, int64(4), result.Summary.TotalClicks)
	assert.Equal(t, result.Rows, result.TopLinks)
}

func TestLinkAnalyticsDefaultLimit(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	for i := 0; i < 25; i++ {
		linkType := string(rune('a'+i)) + "-link"
		testsupport.SeedEvents(t, db, testsupport.NewEvent("B1", march, testsupport.WithLink(linkType, "", "", i)))
	}
	testsupport.SeedEvents(t, db,
		testsupport.NewEvent("B1", march, testsupport.WithLink("z-link", "", "", 0)),
		testsupport.NewEvent("B1", march, testsupport.WithLink("z-link", "", "", 0)),
	)

	result, err := analytics.LinkAnalytics(context.Background(), db, targetQuery(), analytics.GroupByLinkType, "")
	require.NoError(t, err)
	assert.Len(t, result.Rows, analytics.DefaultLinkLimit)
	assert.Len(t, result.TopLinks, analytics.TopLinksLimit)
	assert.Equal(t, "z-link", result.Rows[0].Key)
	assert.Equal(t, 26, result.Summary.TotalGroups)

	for i := 1; i < len(result.Rows); i++ {
		assert.GreaterOrEqual(t, result.Rows[i-1].TotalClicks, result.Rows[i].TotalClicks)
	}
}

func TestTopLinksAndClickThroughSummary(t *testing.T) {
	rows := []analytics.LinkRow{
		{Key: "menu", TotalClicks: 2, UniqueClickers: 1},
		{Key: "phone", TotalClicks: 9, UniqueClickers: 3},
		{Key: "email", TotalClicks: 9, UniqueClickers: 2},
	}

	top := analytics.TopLinks(rows, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "email", top[0].Key)
	assert.Equal(t, "phone", top[1].Key)
	assert.Equal(t, "menu", rows[0].Key, "input is left untouched")

	assert.Equal(t, 30.0, analytics.ClickThroughSummary(rows))
	assert.Equal(t, 0.0, analytics.ClickThroughSummary(nil))
}
