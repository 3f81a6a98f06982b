package analytics

import (
	"context"
	"time"

	"pagelens/internal/events"
	"pagelens/internal/pkg/async"
	"pagelens/internal/timeframe"
	"pagelens/internal/validation"
)

const DefaultExportMaxRows = 10000

type ExportMetric string

const (
	ExportViews      ExportMetric = "views"
	ExportClicks     ExportMetric = "clicks"
	ExportEngagement ExportMetric = "engagement"
	ExportLocations  ExportMetric = "locations"
	ExportDevices    ExportMetric = "devices"
	ExportReferrals  ExportMetric = "referrals"
	ExportPeakHours  ExportMetric = "peakHours"
)

var ExportMetrics = []ExportMetric{
	ExportViews, ExportClicks, ExportEngagement, ExportLocations,
	ExportDevices, ExportReferrals, ExportPeakHours,
}

type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
)

// ExportRequest needs an explicit range; shorthands are not accepted.
type ExportRequest struct {
	Query
	Metrics        []ExportMetric
	IncludeRawData bool
	Format         ExportFormat
}

type ExportBundle struct {
	TargetID    string             `json:"targetId"`
	TargetType  events.TargetType  `json:"targetType"`
	Range       timeframe.Range    `json:"range"`
	GeneratedAt time.Time          `json:"generatedAt"`
	Metrics     []ExportMetric     `json:"metrics"`
	Views       *TimeSeriesResult  `json:"views,omitempty"`
	Clicks      *LinkResult        `json:"clicks,omitempty"`
	Engagement  *Overview          `json:"engagement,omitempty"`
	Locations   *LocationResult    `json:"locations,omitempty"`
	Devices     *DeviceBreakdown   `json:"devices,omitempty"`
	Referrals   *ReferralBreakdown `json:"referrals,omitempty"`
	PeakHours   *PeakResult        `json:"peakHours,omitempty"`
	RawData     []events.Event     `json:"rawData,omitempty"`
	// Truncated is set when the range holds more raw events than the cap.
	Truncated bool              `json:"truncated,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func (r ExportRequest) validate() error {
	var extra []validation.FieldError
	// A malformed bound leaves the whole range open, already reported.
	malformed := r.reported("from") || r.reported("to")
	if r.From.IsZero() && !malformed {
		extra = append(extra, validation.FieldError{Field: "from", Tag: "required", Message: "from is required"})
	}
	if r.To.IsZero() && !malformed {
		extra = append(extra, validation.FieldError{Field: "to", Tag: "required", Message: "to is required"})
	}
	if len(r.Metrics) == 0 {
		extra = append(extra, validation.FieldError{Field: "metrics", Tag: "required", Message: "metrics is required"})
	}
	for _, m := range r.Metrics {
		extra = append(extra, enumCheck("metrics", m, ExportMetrics...)...)
	}
	extra = append(extra, enumCheck("format", r.Format, FormatJSON, FormatCSV)...)
	return r.Query.validate(extra...)
}

// Export runs the report behind every requested metric and bundles the
// results. Grouped sections and raw events are both capped at the
// service's export row limit instead of the report defaults.
func (s *Service) Export(ctx context.Context, req ExportRequest) (*ExportBundle, error) {
	if req.Format == "" {
		req.Format = FormatJSON
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	q := req.Query
	q.Limit = 0
	q.rowCap = s.exportMaxRows

	requested := make(map[ExportMetric]bool, len(req.Metrics))
	var metrics []ExportMetric
	for _, m := range req.Metrics {
		if !requested[m] {
			requested[m] = true
			metrics = append(metrics, m)
		}
	}

	var tasks []async.Task
	for _, m := range metrics {
		switch m {
		case ExportViews:
			tasks = append(tasks, section(s, "export", SectionViews, func(ctx context.Context) (*TimeSeriesResult, error) {
				return TimeSeriesAnalytics(ctx, s.db, q, timeframe.BucketSizeDay)
			}))
		case ExportClicks:
			tasks = append(tasks, section(s, "export", SectionClicks, func(ctx context.Context) (*LinkResult, error) {
				return LinkAnalytics(ctx, s.db, q, GroupByLinkType, "")
			}))
		case ExportEngagement:
			tasks = append(tasks, section(s, "export", SectionEngagement, func(ctx context.Context) (*Overview, error) {
				return EngagementOverview(ctx, s.db, q)
			}))
		case ExportLocations:
			tasks = append(tasks, section(s, "export", SectionLocations, func(ctx context.Context) (*LocationResult, error) {
				return LocationAnalytics(ctx, s.db, q, GroupByCountry)
			}))
		case ExportDevices:
			tasks = append(tasks, section(s, "export", SectionDevices, func(ctx context.Context) (*DeviceBreakdown, error) {
				return DeviceBreakdownAnalytics(ctx, s.db, q)
			}))
		case ExportReferrals:
			tasks = append(tasks, section(s, "export", SectionReferrals, func(ctx context.Context) (*ReferralBreakdown, error) {
				return ReferralBreakdownAnalytics(ctx, s.db, q)
			}))
		case ExportPeakHours:
			tasks = append(tasks, section(s, "export", SectionPeakHours, func(ctx context.Context) (*PeakResult, error) {
				return PeakHourAnalytics(ctx, s.db, q, GroupByHourAndDay)
			}))
		}
	}
	if req.IncludeRawData {
		tasks = append(tasks, section(s, "export", SectionRawData, func(ctx context.Context) ([]events.Event, error) {
			filter := q.filter()
			filter.Limit = s.exportMaxRows + 1
			return events.FindEvents(ctx, s.db, filter)
		}))
	}

	results, failures, err := s.fanOut(ctx, "export", tasks)
	if err != nil {
		return nil, err
	}

	bundle := &ExportBundle{
		TargetID:    q.TargetID,
		TargetType:  q.TargetType,
		Range:       q.Range(),
		GeneratedAt: s.Now(),
		Metrics:     metrics,
		Views:       sectionData[*TimeSeriesResult](results, SectionViews),
		Clicks:      sectionData[*LinkResult](results, SectionClicks),
		Engagement:  sectionData[*Overview](results, SectionEngagement),
		Locations:   sectionData[*LocationResult](results, SectionLocations),
		Devices:     sectionData[*DeviceBreakdown](results, SectionDevices),
		Referrals:   sectionData[*ReferralBreakdown](results, SectionReferrals),
		PeakHours:   sectionData[*PeakResult](results, SectionPeakHours),
		Errors:      failures,
	}

	if raw := sectionData[[]events.Event](results, SectionRawData); raw != nil {
		if len(raw) > s.exportMaxRows {
			raw = raw[:s.exportMaxRows]
			bundle.Truncated = true
		}
		bundle.RawData = raw
	}
	return bundle, nil
}
