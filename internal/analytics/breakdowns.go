package analytics

import (
	"context"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

type DeviceRow struct {
	DeviceType    string `json:"deviceType"`
	Label         string `json:"label"`
	Count         int64  `json:"count"`
	UniqueViewers int64  `json:"uniqueViewers"`
}

type DeviceBreakdown struct {
	Devices []DeviceRow `json:"devices"`
	Total   int64       `json:"total"`
}

type ReferralRow struct {
	Source             string  `json:"source"`
	Label              string  `json:"label"`
	Count              int64   `json:"count"`
	UniqueViewers      int64   `json:"uniqueViewers"`
	AvgEngagementScore float64 `json:"avgEngagementScore"`
}

type ReferralBreakdown struct {
	Sources []ReferralRow `json:"sources"`
	Total   int64         `json:"total"`
}

type InteractionRow struct {
	InteractionType string `json:"interactionType"`
	Count           int64  `json:"count"`
	UniqueViewers   int64  `json:"uniqueViewers"`
}

type InteractionBreakdown struct {
	Interactions []InteractionRow `json:"interactions"`
	Total        int64            `json:"total"`
}

// Group key expressions of the SQL breakdowns.
const (
	deviceKey      = "CASE WHEN TRIM(COALESCE(device_type, '')) = '' THEN 'unknown' ELSE device_type END"
	referralKey    = "CASE WHEN COALESCE(referral_source, '') = '' THEN 'direct' ELSE referral_source END"
	interactionKey = "interaction_type"
)

// DeviceBreakdownAnalytics counts events per device type.
func DeviceBreakdownAnalytics(ctx context.Context, db *gorm.DB, q Query) (*DeviceBreakdown, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	groups, order, err := rollup(ctx, db, q.filter(), deviceKey)
	if err != nil {
		return nil, err
	}

	title := cases.Title(language.AmericanEnglish)
	rows := make([]DeviceRow, 0, len(order))
	var n int64
	for _, key := range order {
		s := groups[key]
		n += s.events
		rows = append(rows, DeviceRow{
			DeviceType:    key,
			Label:         title.String(key),
			Count:         s.events,
			UniqueViewers: s.uniqueViewers(),
		})
	}
	slices.SortStableFunc(rows, func(a, b DeviceRow) int {
		return byCountDesc(a.Count, b.Count, a.DeviceType, b.DeviceType)
	})
	return &DeviceBreakdown{Devices: rows, Total: n}, nil
}

// ReferralBreakdownAnalytics counts events per referral source.
func ReferralBreakdownAnalytics(ctx context.Context, db *gorm.DB, q Query) (*ReferralBreakdown, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	groups, order, err := rollup(ctx, db, q.filter(), referralKey)
	if err != nil {
		return nil, err
	}

	title := cases.Title(language.AmericanEnglish)
	rows := make([]ReferralRow, 0, len(order))
	var n int64
	for _, key := range order {
		s := groups[key]
		n += s.events
		rows = append(rows, ReferralRow{
			Source:             key,
			Label:              title.String(strings.ReplaceAll(key, "_", " ")),
			Count:              s.events,
			UniqueViewers:      s.uniqueViewers(),
			AvgEngagementScore: s.avgEngagementScore(),
		})
	}
	slices.SortStableFunc(rows, func(a, b ReferralRow) int {
		return byCountDesc(a.Count, b.Count, a.Source, b.Source)
	})
	return &ReferralBreakdown{Sources: rows, Total: n}, nil
}

// InteractionBreakdownAnalytics counts non-view events per interaction type.
func InteractionBreakdownAnalytics(ctx context.Context, db *gorm.DB, q Query) (*InteractionBreakdown, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	filter := q.filter()
	filter.ExcludeViews = true
	groups, order, err := rollup(ctx, db, filter, interactionKey)
	if err != nil {
		return nil, err
	}

	rows := make([]InteractionRow, 0, len(order))
	var n int64
	for _, key := range order {
		s := groups[key]
		n += s.events
		rows = append(rows, InteractionRow{
			InteractionType: key,
			Count:           s.events,
			UniqueViewers:   s.uniqueViewers(),
		})
	}
	slices.SortStableFunc(rows, func(a, b InteractionRow) int {
		return byCountDesc(a.Count, b.Count, a.InteractionType, b.InteractionType)
	})
	return &InteractionBreakdown{Interactions: rows, Total: n}, nil
}

// EngagementOverview summarizes engagement over every event of the query.
func EngagementOverview(ctx context.Context, db *gorm.DB, q Query) (*Overview, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	all, err := rollupTotal(ctx, db, q.filter())
	if err != nil {
		return nil, err
	}
	overview := overviewOf(all)
	return &overview, nil
}
