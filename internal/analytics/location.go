package analytics

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pariz/gountries"
	"gorm.io/gorm"

	"pagelens/internal/events"
)

type LocationGroupBy string

const (
	GroupByCountry LocationGroupBy = "country"
	GroupByRegion  LocationGroupBy = "region"
	GroupByCity    LocationGroupBy = "city"
)

var countries = sync.OnceValue(gountries.New)

type LocationRow struct {
	Country            string    `json:"country"`
	CountryCode        string    `json:"countryCode,omitempty"`
	Region             string    `json:"region,omitempty"`
	City               string    `json:"city,omitempty"`
	TotalViews         int64     `json:"totalViews"`
	UniqueViewers      int64     `json:"uniqueViewers"`
	TotalInteractions  int64     `json:"totalInteractions"`
	EngagementRate     float64   `json:"engagementRate"`
	AvgEngagementScore float64   `json:"avgEngagementScore"`
	LastActivity       time.Time `json:"lastActivity"`

	key string
}

type LocationSummary struct {
	TotalLocations     int     `json:"totalLocations"`
	TotalViews         int64   `json:"totalViews"`
	UniqueViewers      int64   `json:"uniqueViewers"`
	TotalInteractions  int64   `json:"totalInteractions"`
	EngagementRate     float64 `json:"engagementRate"`
	AvgEngagementScore float64 `json:"avgEngagementScore"`
}

type LocationResult struct {
	GroupBy LocationGroupBy `json:"groupBy"`
	Rows    []LocationRow   `json:"analytics"`
	Summary LocationSummary `json:"summary"`
}

// locationKey identifies a place. Regions and cities keep their parents in
// the key so two cities of the same name stay apart.
type locationKey struct {
	code, country, region, city string
}

func (k locationKey) String() string {
	parts := []string{orUnknown(k.code), orUnknown(k.region), orUnknown(k.city)}
	return strings.Join(parts, "/")
}

// LocationAnalytics groups the target's events by place, busiest first.
func LocationAnalytics(ctx context.Context, db *gorm.DB, q Query, groupBy LocationGroupBy) (*LocationResult, error) {
	if err := q.validate(enumCheck("groupBy", groupBy, GroupByCountry, GroupByRegion, GroupByCity)...); err != nil {
		return nil, err
	}

	filter := q.filter()
	filter.Columns = columns("location_country", "location_country_code", "location_region", "location_city")
	evs, err := events.FindEvents(ctx, db, filter)
	if err != nil {
		return nil, err
	}
	return buildLocationResult(evs, groupBy, q.limitOr(DefaultLocationLimit)), nil
}

func buildLocationResult(evs []events.Event, groupBy LocationGroupBy, limit int) *LocationResult {
	groups, order := group(evs, func(e *events.Event) locationKey {
		key := locationKey{
			code:    strings.ToUpper(strings.TrimSpace(e.Location.CountryCode)),
			country: strings.TrimSpace(e.Location.Country),
		}
		// Events without a code are grouped by name.
		if key.code != "" {
			key.country = ""
		}
		switch groupBy {
		case GroupByCity:
			key.city = strings.TrimSpace(e.Location.City)
			fallthrough
		case GroupByRegion:
			key.region = strings.TrimSpace(e.Location.Region)
		}
		return key
	})

	rows := make([]LocationRow, 0, len(order))
	for _, k := range order {
		s := groups[k]
		rows = append(rows, LocationRow{
			Country:            countryName(k.code, k.country),
			CountryCode:        k.code,
			Region:             regionOrUnknown(groupBy, k.region),
			City:               cityOrUnknown(groupBy, k.city),
			TotalViews:         s.events,
			UniqueViewers:      s.uniqueViewers(),
			TotalInteractions:  s.interactions,
			EngagementRate:     s.engagementRate(),
			AvgEngagementScore: s.avgEngagementScore(),
			LastActivity:       s.last.UTC(),
			key:                k.String() + "/" + k.country,
		})
	}

	slices.SortStableFunc(rows, func(a, b LocationRow) int {
		return byCountDesc(a.TotalViews, b.TotalViews, a.key, b.key)
	})

	all := total(evs)
	return &LocationResult{
		GroupBy: groupBy,
		Rows:    truncate(rows, limit),
		Summary: LocationSummary{
			TotalLocations:     len(rows),
			TotalViews:         all.events,
			UniqueViewers:      all.uniqueViewers(),
			TotalInteractions:  all.interactions,
			EngagementRate:     all.engagementRate(),
			AvgEngagementScore: all.avgEngagementScore(),
		},
	}
}

// countryName prefers the common name for an ISO code. Events without a
// code keep the name the geo database reported.
func countryName(code, reported string) string {
	if code != "" {
		if country, err := countries().FindCountryByAlpha(code); err == nil {
			return country.Name.Common
		}
		return code
	}
	return orUnknown(reported)
}

func regionOrUnknown(groupBy LocationGroupBy, region string) string {
	if groupBy == GroupByCountry {
		return ""
	}
	return orUnknown(region)
}

func cityOrUnknown(groupBy LocationGroupBy, city string) string {
	if groupBy != GroupByCity {
		return ""
	}
	return orUnknown(city)
}
