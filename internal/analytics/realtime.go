package analytics

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"pagelens/internal/events"
	"pagelens/internal/pkg/async"
	"pagelens/internal/timeframe"
	"pagelens/internal/validation"
)

const (
	MinRealTimeMinutes     = 5
	MaxRealTimeMinutes     = 1440
	DefaultRealTimeMinutes = 30

	realTimeCountryLimit = 5
)

type RealTimeRequest struct {
	TargetID   string
	TargetType events.TargetType
	// Minutes is the window length; nil means DefaultRealTimeMinutes.
	Minutes             *int
	IncludeActive       bool
	IncludeTimeline     bool
	IncludeInteractions bool
	IncludeCountries    bool

	// ParamErrors are reported together with the validation errors.
	ParamErrors []validation.FieldError
}

type ActiveSummary struct {
	ActiveViewers  int64 `json:"activeViewers"`
	ActiveSessions int64 `json:"activeSessions"`
	TotalEvents    int64 `json:"totalEvents"`
}

type TimelinePoint struct {
	Minute string    `json:"minute"`
	Start  time.Time `json:"start"`
	Views  int64     `json:"views"`
	Events int64     `json:"events"`
}

// RealTime reports on the last Minutes minutes. Like Dashboard, sections
// that were not requested or failed are nil.
type RealTime struct {
	Window       timeframe.Range       `json:"window"`
	Minutes      int                   `json:"minutes"`
	Active       *ActiveSummary        `json:"active,omitempty"`
	Timeline     []TimelinePoint       `json:"timeline,omitempty"`
	Interactions *InteractionBreakdown `json:"interactions,omitempty"`
	TopCountries *LocationResult       `json:"topCountries,omitempty"`
	Errors       map[string]string     `json:"errors,omitempty"`
}

func (s *Service) RealTime(ctx context.Context, req RealTimeRequest) (*RealTime, error) {
	minutes := DefaultRealTimeMinutes
	if req.Minutes != nil {
		minutes = *req.Minutes
	}

	var extra []validation.FieldError
	if minutes < MinRealTimeMinutes || minutes > MaxRealTimeMinutes {
		extra = append(extra, validation.FieldError{
			Field:   "minutes",
			Tag:     "range",
			Message: fmt.Sprintf("minutes must be between %d and %d", MinRealTimeMinutes, MaxRealTimeMinutes),
		})
	}

	window := s.parser.LastMinutes(min(max(minutes, MinRealTimeMinutes), MaxRealTimeMinutes))
	q := Query{
		TargetID:    req.TargetID,
		TargetType:  req.TargetType,
		From:        window.From,
		To:          window.To,
		ParamErrors: req.ParamErrors,
	}
	if err := q.validate(extra...); err != nil {
		return nil, err
	}

	var tasks []async.Task
	if req.IncludeActive {
		tasks = append(tasks, section(s, "real_time", SectionActive, func(ctx context.Context) (*ActiveSummary, error) {
			return activeSummary(ctx, s.db, q)
		}))
	}
	if req.IncludeTimeline {
		tasks = append(tasks, section(s, "real_time", SectionTimeline, func(ctx context.Context) ([]TimelinePoint, error) {
			return minuteTimeline(ctx, s.db, q)
		}))
	}
	if req.IncludeInteractions {
		tasks = append(tasks, section(s, "real_time", SectionInteractions, func(ctx context.Context) (*InteractionBreakdown, error) {
			return InteractionBreakdownAnalytics(ctx, s.db, q)
		}))
	}
	if req.IncludeCountries {
		top := q
		top.Limit = realTimeCountryLimit
		tasks = append(tasks, section(s, "real_time", SectionTopCountries, func(ctx context.Context) (*LocationResult, error) {
			return LocationAnalytics(ctx, s.db, top, GroupByCountry)
		}))
	}

	results, failures, err := s.fanOut(ctx, "real_time", tasks)
	if err != nil {
		return nil, err
	}

	return &RealTime{
		Window:       window,
		Minutes:      minutes,
		Active:       sectionData[*ActiveSummary](results, SectionActive),
		Timeline:     sectionData[[]TimelinePoint](results, SectionTimeline),
		Interactions: sectionData[*InteractionBreakdown](results, SectionInteractions),
		TopCountries: sectionData[*LocationResult](results, SectionTopCountries),
		Errors:       failures,
	}, nil
}

func activeSummary(ctx context.Context, db *gorm.DB, q Query) (*ActiveSummary, error) {
	all, err := rollupTotal(ctx, db, q.filter())
	if err != nil {
		return nil, err
	}
	return &ActiveSummary{
		ActiveViewers:  all.uniqueViewers(),
		ActiveSessions: all.uniqueSessions(),
		TotalEvents:    all.events,
	}, nil
}

// minuteTimeline returns one point per minute of the window, including
// minutes without events.
func minuteTimeline(ctx context.Context, db *gorm.DB, q Query) ([]TimelinePoint, error) {
	filter := q.filter()
	filter.Columns = []string{"id", "created_at", "interaction_type"}
	evs, err := events.FindEvents(ctx, db, filter)
	if err != nil {
		return nil, err
	}
	return buildTimeline(evs, q.Range()), nil
}

func buildTimeline(evs []events.Event, window timeframe.Range) []TimelinePoint {
	points := timeframe.Points(window, timeframe.BucketSizeMinute)
	index := make(map[time.Time]int, len(points))
	timeline := make([]TimelinePoint, len(points))
	for i, p := range points {
		index[p] = i
		timeline[i] = TimelinePoint{Minute: timeframe.BucketKey(p, timeframe.BucketSizeMinute), Start: p}
	}

	for i := range evs {
		idx, ok := index[timeframe.TruncateToBucket(evs[i].CreatedAt, timeframe.BucketSizeMinute)]
		if !ok {
			continue
		}
		timeline[idx].Events++
		if evs[i].InteractionType == events.InteractionView {
			timeline[idx].Views++
		}
	}
	return timeline
}
