package analytics

import (
	"context"
	"slices"
	"time"

	"gorm.io/gorm"

	"pagelens/internal/events"
	"pagelens/internal/timeframe"
)

var timeSeriesBuckets = []timeframe.BucketSize{
	timeframe.BucketSizeHour,
	timeframe.BucketSizeDay,
	timeframe.BucketSizeWeek,
	timeframe.BucketSizeMonth,
}

type TimeSeriesPoint struct {
	Period             timeframe.Period `json:"period"`
	Label              string           `json:"label"`
	Start              time.Time        `json:"start"`
	TotalViews         int64            `json:"totalViews"`
	UniqueViewers      int64            `json:"uniqueViewers"`
	TotalInteractions  int64            `json:"totalInteractions"`
	AvgEngagementScore float64          `json:"avgEngagementScore"`
	AvgTimeOnPage      float64          `json:"avgTimeOnPage"`
	BounceRate         float64          `json:"bounceRate"`
	UniqueSessions     int64            `json:"uniqueSessions"`
}

type TimeSeriesResult struct {
	GroupBy timeframe.BucketSize `json:"groupBy"`
	Range   timeframe.Range      `json:"range"`
	Rows    []TimeSeriesPoint    `json:"analytics"`
	Trends  Trends               `json:"trends"`
	Summary Overview             `json:"summary"`
}

// TimeSeriesAnalytics buckets the target's events by calendar period. Only
// periods with events are returned, oldest first.
func TimeSeriesAnalytics(ctx context.Context, db *gorm.DB, q Query, groupBy timeframe.BucketSize) (*TimeSeriesResult, error) {
	if err := q.validate(enumCheck("groupBy", groupBy, timeSeriesBuckets...)...); err != nil {
		return nil, err
	}

	filter := q.filter()
	filter.Columns = columns()
	evs, err := events.FindEvents(ctx, db, filter)
	if err != nil {
		return nil, err
	}
	return buildTimeSeriesResult(evs, groupBy, q.Range()), nil
}

func buildTimeSeriesResult(evs []events.Event, groupBy timeframe.BucketSize, r timeframe.Range) *TimeSeriesResult {
	groups, order := group(evs, func(e *events.Event) time.Time {
		return timeframe.TruncateToBucket(e.CreatedAt, groupBy)
	})
	slices.SortFunc(order, time.Time.Compare)

	rows := make([]TimeSeriesPoint, 0, len(order))
	for _, start := range order {
		s := groups[start]
		rows = append(rows, TimeSeriesPoint{
			Period:             timeframe.PeriodFor(start, groupBy),
			Label:              timeframe.BucketKey(start, groupBy),
			Start:              start,
			TotalViews:         s.events,
			UniqueViewers:      s.uniqueViewers(),
			TotalInteractions:  s.interactions,
			AvgEngagementScore: s.avgEngagementScore(),
			AvgTimeOnPage:      s.avgTimeOnPage(),
			BounceRate:         s.bounceRate(),
			UniqueSessions:     s.uniqueSessions(),
		})
	}

	return &TimeSeriesResult{
		GroupBy: groupBy,
		Range:   r,
		Rows:    rows,
		Trends:  CalculateTrends(rows),
		Summary: overviewOf(total(evs)),
	}
}
