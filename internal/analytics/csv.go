package analytics

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

var csvHeader = []string{"section", "key", "metric", "value"}

// WriteCSV flattens the bundle into section,key,metric,value rows.
func WriteCSV(w io.Writer, b *ExportBundle) error {
	cw := csv.NewWriter(w)
	rows := [][]string{csvHeader}
	add := func(section, key, metric string, value any) {
		rows = append(rows, []string{section, key, metric, formatValue(value)})
	}

	if b.Views != nil {
		for _, p := range b.Views.Rows {
			add(SectionViews, p.Label, "totalViews", p.TotalViews)
			add(SectionViews, p.Label, "uniqueViewers", p.UniqueViewers)
			add(SectionViews, p.Label, "totalInteractions", p.TotalInteractions)
			add(SectionViews, p.Label, "avgEngagementScore", p.AvgEngagementScore)
			add(SectionViews, p.Label, "avgTimeOnPage", p.AvgTimeOnPage)
			add(SectionViews, p.Label, "bounceRate", p.BounceRate)
			add(SectionViews, p.Label, "uniqueSessions", p.UniqueSessions)
		}
	}
	if b.Clicks != nil {
		for _, r := range b.Clicks.Rows {
			add(SectionClicks, r.Key, "totalClicks", r.TotalClicks)
			add(SectionClicks, r.Key, "uniqueClickers", r.UniqueClickers)
			add(SectionClicks, r.Key, "avgEngagementScore", r.AvgEngagementScore)
			add(SectionClicks, r.Key, "uniqueUrls", r.UniqueURLs)
			add(SectionClicks, r.Key, "clickThroughRate", r.ClickThroughRate)
		}
	}
	if e := b.Engagement; e != nil {
		add(SectionEngagement, "all", "totalEvents", e.TotalEvents)
		add(SectionEngagement, "all", "totalInteractions", e.TotalInteractions)
		add(SectionEngagement, "all", "uniqueViewers", e.UniqueViewers)
		add(SectionEngagement, "all", "uniqueSessions", e.UniqueSessions)
		add(SectionEngagement, "all", "engagementRate", e.EngagementRate)
		add(SectionEngagement, "all", "avgEngagementScore", e.AvgEngagementScore)
		add(SectionEngagement, "all", "avgTimeOnPage", e.AvgTimeOnPage)
		add(SectionEngagement, "all", "bounceRate", e.BounceRate)
	}
	if b.Locations != nil {
		for _, r := range b.Locations.Rows {
			key := r.Country
			if r.CountryCode != "" {
				key = r.CountryCode
			}
			add(SectionLocations, key, "totalViews", r.TotalViews)
			add(SectionLocations, key, "uniqueViewers", r.UniqueViewers)
			add(SectionLocations, key, "totalInteractions", r.TotalInteractions)
			add(SectionLocations, key, "engagementRate", r.EngagementRate)
			add(SectionLocations, key, "avgEngagementScore", r.AvgEngagementScore)
		}
	}
	if b.Devices != nil {
		for _, r := range b.Devices.Devices {
			add(SectionDevices, r.DeviceType, "count", r.Count)
			add(SectionDevices, r.DeviceType, "uniqueViewers", r.UniqueViewers)
		}
	}
	if b.Referrals != nil {
		for _, r := range b.Referrals.Sources {
			add(SectionReferrals, r.Source, "count", r.Count)
			add(SectionReferrals, r.Source, "uniqueViewers", r.UniqueViewers)
			add(SectionReferrals, r.Source, "avgEngagementScore", r.AvgEngagementScore)
		}
	}
	if b.PeakHours != nil {
		for _, r := range b.PeakHours.Rows {
			key := peakKey(r)
			add(SectionPeakHours, key, "totalViews", r.TotalViews)
			add(SectionPeakHours, key, "uniqueViewers", r.UniqueViewers)
			add(SectionPeakHours, key, "engagementRate", r.EngagementRate)
			add(SectionPeakHours, key, "avgTimeOnPage", r.AvgTimeOnPage)
		}
	}
	for _, e := range b.RawData {
		add(SectionRawData, e.ID, "createdAt", e.CreatedAt)
		add(SectionRawData, e.ID, "interactionType", string(e.InteractionType))
		add(SectionRawData, e.ID, "sessionId", e.SessionID)
		add(SectionRawData, e.ID, "countryCode", e.Location.CountryCode)
		add(SectionRawData, e.ID, "deviceType", e.Device.Type)
		add(SectionRawData, e.ID, "engagementScore", e.Metrics.EngagementScore)
	}
	if b.Truncated {
		add(SectionRawData, "", "truncated", true)
	}

	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write csv export: %w", err)
	}
	return nil
}

// peakKey renders "Monday 09:00", "Monday" or "09:00".
func peakKey(r PeakRow) string {
	var parts []string
	if r.DayOfWeek != nil {
		parts = append(parts, r.DayName)
	}
	if r.Hour != nil {
		parts = append(parts, fmt.Sprintf("%02d:00", *r.Hour))
	}
	return strings.Join(parts, " ")
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}
