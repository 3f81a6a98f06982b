package analytics

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"pagelens/internal/events"
)

type PeakGroupBy string

const (
	GroupByHour       PeakGroupBy = "hour"
	GroupByDayOfWeek  PeakGroupBy = "dayOfWeek"
	GroupByHourAndDay PeakGroupBy = "hourAndDay"
)

func (g PeakGroupBy) hasHour() bool { return g == GroupByHour || g == GroupByHourAndDay }
func (g PeakGroupBy) hasDay() bool  { return g == GroupByDayOfWeek || g == GroupByHourAndDay }

type PeakRow struct {
	Hour               *int    `json:"hour,omitempty"`
	DayOfWeek          *int    `json:"dayOfWeek,omitempty"`
	DayName            string  `json:"dayName,omitempty"`
	TotalViews         int64   `json:"totalViews"`
	UniqueViewers      int64   `json:"uniqueViewers"`
	TotalInteractions  int64   `json:"totalInteractions"`
	EngagementRate     float64 `json:"engagementRate"`
	AvgEngagementScore float64 `json:"avgEngagementScore"`
	AvgTimeOnPage      float64 `json:"avgTimeOnPage"`
}

type HourInsight struct {
	Hour       int   `json:"hour"`
	TotalViews int64 `json:"totalViews"`
}

type DayInsight struct {
	DayOfWeek  int    `json:"dayOfWeek"`
	DayName    string `json:"dayName"`
	TotalViews int64  `json:"totalViews"`
}

// PeakInsights names the busiest and quietest slots. Fields stay nil when
// the grouping lacks that dimension or there is no data.
type PeakInsights struct {
	PeakHour     *HourInsight `json:"peakHour,omitempty"`
	QuietestHour *HourInsight `json:"quietestHour,omitempty"`
	PeakDay      *DayInsight  `json:"peakDay,omitempty"`
	QuietestDay  *DayInsight  `json:"quietestDay,omitempty"`
}

type PeakSummary struct {
	TotalViews         int64   `json:"totalViews"`
	UniqueViewers      int64   `json:"uniqueViewers"`
	TotalInteractions  int64   `json:"totalInteractions"`
	AvgEngagementScore float64 `json:"avgEngagementScore"`
}

type PeakResult struct {
	GroupBy  PeakGroupBy  `json:"groupBy"`
	Rows     []PeakRow    `json:"analytics"`
	Insights PeakInsights `json:"insights"`
	Summary  PeakSummary  `json:"summary"`
}

type slot struct {
	day, hour int
}

// slotKey is the SQL group key "day:hour". -1 marks a dimension the
// grouping ignores.
func (g PeakGroupBy) slotKey() string {
	day, hour := "'-1'", "'-1'"
	if g.hasDay() {
		day = "timing_day_of_week"
	}
	if g.hasHour() {
		hour = "timing_hour"
	}
	return day + " || ':' || " + hour
}

func parseSlot(key string) (slot, error) {
	day, hour, ok := strings.Cut(key, ":")
	if !ok {
		return slot{}, fmt.Errorf("malformed peak slot %q", key)
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return slot{}, fmt.Errorf("malformed peak slot %q: %w", key, err)
	}
	h, err := strconv.Atoi(hour)
	if err != nil {
		return slot{}, fmt.Errorf("malformed peak slot %q: %w", key, err)
	}
	return slot{day: d, hour: h}, nil
}

// PeakHourAnalytics groups the target's events by hour of day, day of week
// or both, in chronological order.
func PeakHourAnalytics(ctx context.Context, db *gorm.DB, q Query, groupBy PeakGroupBy) (*PeakResult, error) {
	if err := q.validate(enumCheck("groupBy", groupBy, GroupByHour, GroupByDayOfWeek, GroupByHourAndDay)...); err != nil {
		return nil, err
	}

	groups, keys, err := rollup(ctx, db, q.filter(), groupBy.slotKey())
	if err != nil {
		return nil, err
	}
	all, err := rollupTotal(ctx, db, q.filter())
	if err != nil {
		return nil, err
	}

	order := make([]slot, 0, len(keys))
	bySlot := make(map[slot]*stats, len(keys))
	for _, key := range keys {
		sl, err := parseSlot(key)
		if err != nil {
			return nil, err
		}
		order = append(order, sl)
		bySlot[sl] = groups[key]
	}
	return buildPeakResult(bySlot, order, all, groupBy), nil
}

func buildPeakResult(groups map[slot]*stats, order []slot, all *stats, groupBy PeakGroupBy) *PeakResult {
	slices.SortFunc(order, func(a, b slot) int {
		if c := cmp.Compare(a.day, b.day); c != 0 {
			return c
		}
		return cmp.Compare(a.hour, b.hour)
	})

	rows := make([]PeakRow, 0, len(order))
	for _, k := range order {
		s := groups[k]
		row := PeakRow{
			TotalViews:         s.events,
			UniqueViewers:      s.uniqueViewers(),
			TotalInteractions:  s.interactions,
			EngagementRate:     s.engagementRate(),
			AvgEngagementScore: s.avgEngagementScore(),
			AvgTimeOnPage:      s.avgTimeOnPage(),
		}
		if k.hour >= 0 {
			hour := k.hour
			row.Hour = &hour
		}
		if k.day >= 0 {
			day := k.day
			row.DayOfWeek = &day
			row.DayName = events.DayName(day)
		}
		rows = append(rows, row)
	}

	return &PeakResult{
		GroupBy:  groupBy,
		Rows:     rows,
		Insights: CalculatePeakInsights(rows, groupBy),
		Summary: PeakSummary{
			TotalViews:         all.events,
			UniqueViewers:      all.uniqueViewers(),
			TotalInteractions:  all.interactions,
			AvgEngagementScore: all.avgEngagementScore(),
		},
	}
}

// CalculatePeakInsights picks the busiest and quietest hour and day. Rows
// grouped by hour and day are first summed per hour and per day. Ties go
// to the earliest slot.
func CalculatePeakInsights(rows []PeakRow, groupBy PeakGroupBy) PeakInsights {
	var insights PeakInsights

	if groupBy.hasHour() {
		if peak, quiet, ok := extremes(sumBy(rows, func(r PeakRow) *int { return r.Hour })); ok {
			insights.PeakHour = &HourInsight{Hour: peak.key, TotalViews: peak.views}
			insights.QuietestHour = &HourInsight{Hour: quiet.key, TotalViews: quiet.views}
		}
	}
	if groupBy.hasDay() {
		if peak, quiet, ok := extremes(sumBy(rows, func(r PeakRow) *int { return r.DayOfWeek })); ok {
			insights.PeakDay = &DayInsight{DayOfWeek: peak.key, DayName: events.DayName(peak.key), TotalViews: peak.views}
			insights.QuietestDay = &DayInsight{DayOfWeek: quiet.key, DayName: events.DayName(quiet.key), TotalViews: quiet.views}
		}
	}
	return insights
}

type keyViews struct {
	key   int
	views int64
}

// sumBy totals views per key in ascending key order.
func sumBy(rows []PeakRow, key func(PeakRow) *int) []keyViews {
	totals := make(map[int]int64)
	for _, r := range rows {
		if k := key(r); k != nil {
			totals[*k] += r.TotalViews
		}
	}

	out := make([]keyViews, 0, len(totals))
	for k, v := range totals {
		out = append(out, keyViews{key: k, views: v})
	}
	slices.SortFunc(out, func(a, b keyViews) int { return cmp.Compare(a.key, b.key) })
	return out
}

func extremes(items []keyViews) (peak, quiet keyViews, ok bool) {
	if len(items) == 0 {
		return keyViews{}, keyViews{}, false
	}
	peak, quiet = items[0], items[0]
	for _, it := range items[1:] {
		if it.views > peak.views {
			peak = it
		}
		if it.views < quiet.views {
			quiet = it
		}
	}
	return peak, quiet, true
}
