package analytics

import (
	"context"

	"pagelens/internal/pkg/async"
	"pagelens/internal/timeframe"
)

const dashboardSectionLimit = 10

// DashboardRequest selects the dashboard sections. The time series always
// runs; every other section runs only when its flag is set.
type DashboardRequest struct {
	Query
	GroupBy          timeframe.BucketSize
	IncludeLocations bool
	IncludeLinks     bool
	IncludePeakHours bool
	IncludeDevices   bool
	IncludeReferrals bool
}

// Dashboard holds one field per section. Sections that were not requested
// or that failed are nil and left out of the JSON; failures are listed in
// Errors.
type Dashboard struct {
	TimeSeries *TimeSeriesResult  `json:"timeSeries,omitempty"`
	Locations  *LocationResult    `json:"locations,omitempty"`
	Links      *LinkResult        `json:"links,omitempty"`
	PeakHours  *PeakResult        `json:"peakHours,omitempty"`
	Devices    *DeviceBreakdown   `json:"devices,omitempty"`
	Referrals  *ReferralBreakdown `json:"referrals,omitempty"`
	Errors     map[string]string  `json:"errors,omitempty"`
}

func (s *Service) Dashboard(ctx context.Context, req DashboardRequest) (*Dashboard, error) {
	if req.GroupBy == "" {
		req.GroupBy = timeframe.BucketSizeDay
	}
	if err := req.Query.validate(enumCheck("groupBy", req.GroupBy, timeSeriesBuckets...)...); err != nil {
		return nil, err
	}

	top := req.Query
	top.Limit = dashboardSectionLimit

	tasks := []async.Task{
		section(s, "dashboard", SectionTimeSeries, func(ctx context.Context) (*TimeSeriesResult, error) {
			return TimeSeriesAnalytics(ctx, s.db, req.Query, req.GroupBy)
		}),
	}
	if req.IncludeLocations {
		tasks = append(tasks, section(s, "dashboard", SectionLocations, func(ctx context.Context) (*LocationResult, error) {
			return LocationAnalytics(ctx, s.db, top, GroupByCountry)
		}))
	}
	if req.IncludeLinks {
		tasks = append(tasks, section(s, "dashboard", SectionLinks, func(ctx context.Context) (*LinkResult, error) {
			return LinkAnalytics(ctx, s.db, top, GroupByLinkType, "")
		}))
	}
	if req.IncludePeakHours {
		tasks = append(tasks, section(s, "dashboard", SectionPeakHours, func(ctx context.Context) (*PeakResult, error) {
			return PeakHourAnalytics(ctx, s.db, req.Query, GroupByHour)
		}))
	}
	if req.IncludeDevices {
		tasks = append(tasks, section(s, "dashboard", SectionDevices, func(ctx context.Context) (*DeviceBreakdown, error) {
			return DeviceBreakdownAnalytics(ctx, s.db, req.Query)
		}))
	}
	if req.IncludeReferrals {
		tasks = append(tasks, section(s, "dashboard", SectionReferrals, func(ctx context.Context) (*ReferralBreakdown, error) {
			return ReferralBreakdownAnalytics(ctx, s.db, req.Query)
		}))
	}

	results, failures, err := s.fanOut(ctx, "dashboard", tasks)
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		TimeSeries: sectionData[*TimeSeriesResult](results, SectionTimeSeries),
		Locations:  sectionData[*LocationResult](results, SectionLocations),
		Links:      sectionData[*LinkResult](results, SectionLinks),
		PeakHours:  sectionData[*PeakResult](results, SectionPeakHours),
		Devices:    sectionData[*DeviceBreakdown](results, SectionDevices),
		Referrals:  sectionData[*ReferralBreakdown](results, SectionReferrals),
		Errors:     failures,
	}, nil
}
