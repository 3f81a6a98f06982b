package analytics

import (
	"context"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm"

	"pagelens/internal/events"
	"pagelens/internal/pkg/links"
)

type LinkGroupBy string

const (
	GroupByLinkType       LinkGroupBy = "linkType"
	GroupBySocialPlatform LinkGroupBy = "socialPlatform"
)

type LinkRow struct {
	Key                string    `json:"key"`
	Label              string    `json:"label"`
	TotalClicks        int64     `json:"totalClicks"`
	UniqueClickers     int64     `json:"uniqueClickers"`
	AvgEngagementScore float64   `json:"avgEngagementScore"`
	UniqueURLs         int       `json:"uniqueUrls"`
	Positions          []int     `json:"positions"`
	ClickThroughRate   float64   `json:"clickThroughRate"`
	LastClicked        time.Time `json:"lastClicked"`
}

type LinkSummary struct {
	TotalGroups      int     `json:"totalGroups"`
	TotalClicks      int64   `json:"totalClicks"`
	UniqueClickers   int64   `json:"uniqueClickers"`
	ClickThroughRate float64 `json:"clickThroughRate"`
}

type LinkResult struct {
	GroupBy  LinkGroupBy `json:"groupBy"`
	Rows     []LinkRow   `json:"analytics"`
	TopLinks []LinkRow   `json:"topLinks"`
	Summary  LinkSummary `json:"summary"`
}

// LinkAnalytics groups the target's link clicks. Only click events that
// carry link data are counted; linkType optionally narrows them further.
func LinkAnalytics(ctx context.Context, db *gorm.DB, q Query, groupBy LinkGroupBy, linkType string) (*LinkResult, error) {
	if err := q.validate(enumCheck("groupBy", groupBy, GroupByLinkType, GroupBySocialPlatform)...); err != nil {
		return nil, err
	}

	filter := q.filter()
	filter.LinkOnly = true
	filter.LinkType = strings.TrimSpace(linkType)
	filter.Columns = columns("link_type", "link_social_platform")

	evs, err := events.FindEvents(ctx, db, filter)
	if err != nil {
		return nil, err
	}
	return buildLinkResult(evs, groupBy, q.limitOr(DefaultLinkLimit)), nil
}

func buildLinkResult(evs []events.Event, groupBy LinkGroupBy, limit int) *LinkResult {
	clicks := slices.DeleteFunc(slices.Clone(evs), func(e events.Event) bool {
		return e.InteractionType != events.InteractionClick || !e.HasLinkData
	})

	groups, order := group(clicks, func(e *events.Event) string {
		if groupBy == GroupBySocialPlatform {
			return orUnknown(e.LinkData.SocialPlatform)
		}
		return orUnknown(e.LinkData.Type)
	})

	rows := make([]LinkRow, 0, len(order))
	for _, key := range order {
		s := groups[key]
		label := key
		if groupBy == GroupBySocialPlatform && key != unknownKey {
			label = links.PlatformLabel(key)
		}
		rows = append(rows, LinkRow{
			Key:                key,
			Label:              label,
			TotalClicks:        s.events,
			UniqueClickers:     s.uniqueViewers(),
			AvgEngagementScore: s.avgEngagementScore(),
			UniqueURLs:         len(s.urls),
			Positions:          s.sortedPositions(),
			ClickThroughRate:   percent(s.uniqueViewers(), s.events),
			LastClicked:        s.last.UTC(),
		})
	}

	slices.SortStableFunc(rows, func(a, b LinkRow) int {
		return byCountDesc(a.TotalClicks, b.TotalClicks, a.Key, b.Key)
	})
	rows = truncate(rows, limit)

	all := total(clicks)
	return &LinkResult{
		GroupBy:  groupBy,
		Rows:     rows,
		TopLinks: TopLinks(rows, TopLinksLimit),
		Summary: LinkSummary{
			TotalGroups:      len(order),
			TotalClicks:      all.events,
			UniqueClickers:   all.uniqueViewers(),
			ClickThroughRate: ClickThroughSummary(rows),
		},
	}
}

// TopLinks returns the n most clicked rows.
func TopLinks(rows []LinkRow, n int) []LinkRow {
	top := slices.Clone(rows)
	slices.SortStableFunc(top, func(a, b LinkRow) int {
		return byCountDesc(a.TotalClicks, b.TotalClicks, a.Key, b.Key)
	})
	return truncate(top, n)
}

// ClickThroughSummary is the share of unique clickers over all clicks of
// the rows, in whole percent.
func ClickThroughSummary(rows []LinkRow) float64 {
	var unique, clicks int64
	for _, r := range rows {
		unique += r.UniqueClickers
		clicks += r.TotalClicks
	}
	if clicks == 0 {
		return 0
	}
	return events.Round(float64(unique)/float64(clicks)*100, 0)
}
