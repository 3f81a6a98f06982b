package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagelens/internal/events"
	"pagelens/internal/testsupport"
	"pagelens/internal/visitors"
)

func TestBeforeCreateFreezesDerivedFields(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	at := time.Date(2024, 5, 6, 8, 15, 0, 0, time.FixedZone("EST", -5*3600))

	view := testsupport.NewEvent("B1", at, testsupport.WithViewer(""))
	view.LinkData = events.LinkData{Type: "website", URL: "https://acme.com"}
	testsupport.SeedEvents(t, db, view)

	var stored events.Event
	require.NoError(t, db.First(&stored, "id = ?", view.ID).Error)

	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, time.UTC, stored.CreatedAt.Location())
	assert.Equal(t, 13, stored.Timing.Hour)
	assert.Equal(t, events.DeriveTiming(at), stored.Timing)
	assert.Nil(t, stored.ViewerID)
	assert.Equal(t, visitors.ViewerAnonymous, stored.ViewerType)
	assert.Equal(t, events.LinkData{}, stored.LinkData)
	assert.False(t, stored.HasLinkData)

	click := testsupport.NewEvent("B1", at, testsupport.WithViewer("user-1"), testsupport.WithLink("website", "", "https://acme.com", 2))
	testsupport.SeedEvents(t, db, click)
	require.NoError(t, db.First(&stored, "id = ?", click.ID).Error)
	assert.True(t, stored.HasLinkData)
	assert.Equal(t, "website", stored.LinkData.Type)
	require.NotNil(t, stored.LinkData.Position)
	assert.Equal(t, 2, *stored.LinkData.Position)
	assert.Equal(t, visitors.ViewerAuthenticated, stored.ViewerType)
}

func TestFindEvents(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	testsupport.SeedEvents(t, db,
		testsupport.NewEvent("B1", base),
		testsupport.NewEvent("B1", base.Add(time.Hour), testsupport.WithInteraction(events.InteractionShare)),
		testsupport.NewEvent("B1", base.Add(2*time.Hour), testsupport.WithLink("website", "", "https://acme.com", 0)),
		testsupport.NewEvent("B1", base.Add(3*time.Hour), testsupport.WithLink("social", "instagram", "https://instagram.com/acme", 1)),
		testsupport.NewEvent("B1", base.Add(48*time.Hour)),
		testsupport.NewEvent("B2", base),
		testsupport.NewEvent("B1", base, testsupport.WithTargetType(events.TargetProfile)),
	)

	tests := []struct {
		name   string
		filter events.Filter
		want   int
	}{
		{
			name:   "target and type only",
			filter: events.Filter{TargetID: "B1", TargetType: events.TargetBusiness},
			want:   5,
		},
		{
			name:   "date range is inclusive",
			filter: events.Filter{TargetID: "B1", TargetType: events.TargetBusiness, From: base, To: base.Add(3 * time.Hour)},
			want:   4,
		},
		{
			name:   "non views",
			filter: events.Filter{TargetID: "B1", TargetType: events.TargetBusiness, ExcludeViews: true},
			want:   3,
		},
		{
			name:   "links only",
			filter: events.Filter{TargetID: "B1", TargetType: events.TargetBusiness, LinkOnly: true},
			want:   2,
		},
		{
			name:   "links of one type",
			filter: events.Filter{TargetID: "B1", TargetType: events.TargetBusiness, LinkOnly: true, LinkType: "social"},
			want:   1,
		},
		{
			name:   "other target type",
			filter: events.Filter{TargetID: "B1", TargetType: events.TargetProfile},
			want:   1,
		},
		{
			name:   "unknown target",
			filter: events.Filter{TargetID: "nope", TargetType: events.TargetBusiness},
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := events.FindEvents(ctx, db, tt.filter)
			require.NoError(t, err)
			assert.Len(t, found, tt.want)

			for i := 1; i < len(found); i++ {
				assert.False(t, found[i].CreatedAt.Before(found[i-1].CreatedAt), "events must be chronological")
			}

			count, err := events.CountEvents(ctx, db, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, int64(tt.want), count)
		})
	}
}

func TestListEventsPaginates(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 7; i++ {
		testsupport.SeedEvents(t, db, testsupport.NewEvent("B1", base.Add(time.Duration(i)*time.Minute)))
	}

	filter := events.Filter{TargetID: "B1", TargetType: events.TargetBusiness, Limit: 3}
	page, err := events.ListEvents(ctx, db, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(7), page.Total)
	require.Len(t, page.Events, 3)
	assert.True(t, page.Events[0].CreatedAt.Equal(base.Add(6*time.Minute)), "newest first")

	filter.Offset = 6
	page, err = events.ListEvents(ctx, db, filter)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	assert.True(t, page.Events[0].CreatedAt.Equal(base))

	total, err := events.CountAll(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(7), total)
}

func TestFindEventsSelectsColumns(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	testsupport.SeedEvents(t, db, testsupport.NewEvent("B1", at, testsupport.WithCountry("US", "United States"), testsupport.WithDevice("mobile")))

	found, err := events.FindEvents(context.Background(), db, events.Filter{
		TargetID:   "B1",
		TargetType: events.TargetBusiness,
		Columns:    []string{"id", "created_at", "location_country_code"},
	})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "US", found[0].Location.CountryCode)
	assert.True(t, found[0].CreatedAt.Equal(at))
	assert.Empty(t, found[0].Location.Country)
	assert.Empty(t, found[0].Device.Type)
}

func TestGroupEvents(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	testsupport.SeedEvents(t, db,
		testsupport.NewEvent("B1", at, testsupport.WithDevice("mobile"), testsupport.WithViewer("u1"), testsupport.WithSession("s1"), testsupport.WithScore(10), testsupport.WithTimeOnPage(20)),
		testsupport.NewEvent("B1", at, testsupport.WithDevice("mobile"), testsupport.WithViewer("u1"), testsupport.WithSession("s1"), testsupport.WithInteraction(events.InteractionCall), testsupport.WithBounce()),
		testsupport.NewEvent("B1", at, testsupport.WithDevice("desktop"), testsupport.WithSession("s2"), testsupport.WithScore(4)),
		testsupport.NewEvent("B2", at, testsupport.WithDevice("mobile")),
	)
	filter := events.Filter{TargetID: "B1", TargetType: events.TargetBusiness}

	rows, err := events.GroupEvents(ctx, db, filter, "device_type")
	require.NoError(t, err)

	byKey := make(map[string]events.GroupStats, len(rows))
	for _, r := range rows {
		byKey[r.Key] = r
	}
	assert.Equal(t, events.GroupStats{
		Key:          "mobile",
		Events:       2,
		Interactions: 1,
		Bounces:      1,
		Viewers:      1,
		Sessions:     1,
		ScoreSum:     10,
		TimeSum:      20,
		TimeCount:    1,
	}, byKey["mobile"])
	assert.Equal(t, events.GroupStats{Key: "desktop", Events: 1, Sessions: 1, ScoreSum: 4}, byKey["desktop"])

	all, err := events.GroupEvents(ctx, db, filter, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(3), all[0].Events)
	assert.Equal(t, int64(2), all[0].Sessions)

	none, err := events.GroupEvents(ctx, db, events.Filter{TargetID: "missing", TargetType: events.TargetBusiness}, "")
	require.NoError(t, err)
	require.Len(t, none, 1)
	assert.Equal(t, events.GroupStats{}, none[0])
}
