package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"pagelens/internal/events"
	"pagelens/internal/metrics"
	"pagelens/internal/pkg/async"
	"pagelens/internal/timeframe"
)

const (
	defaultWorkers      = 4
	defaultQueryTimeout = 10 * time.Second
)

// Section names of the composed reports.
const (
	SectionTimeSeries   = "timeSeries"
	SectionLocations    = "locations"
	SectionLinks        = "links"
	SectionPeakHours    = "peakHours"
	SectionDevices      = "devices"
	SectionReferrals    = "referrals"
	SectionActive       = "active"
	SectionTimeline     = "timeline"
	SectionInteractions = "interactions"
	SectionTopCountries = "topCountries"
	SectionViews        = "views"
	SectionClicks       = "clicks"
	SectionEngagement   = "engagement"
	SectionRawData      = "rawData"
)

type ServiceOptions struct {
	Metrics       *metrics.Metrics
	Workers       int
	QueryTimeout  time.Duration
	ExportMaxRows int
	TimeProvider  timeframe.TimeProvider
}

// Service runs reports with a per-query timeout and latency metrics, and
// fans composed reports out over a bounded worker pool.
type Service struct {
	db            *gorm.DB
	logger        *slog.Logger
	metrics       *metrics.Metrics
	pool          *async.Pool
	queryTimeout  time.Duration
	exportMaxRows int
	clock         timeframe.TimeProvider
	parser        *timeframe.Parser
}

func NewService(db *gorm.DB, logger *slog.Logger, opts ServiceOptions) *Service {
	s := &Service{
		db:            db,
		logger:        logger,
		metrics:       opts.Metrics,
		queryTimeout:  opts.QueryTimeout,
		exportMaxRows: opts.ExportMaxRows,
		clock:         opts.TimeProvider,
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	s.pool = async.NewPool(workers)
	if s.queryTimeout <= 0 {
		s.queryTimeout = defaultQueryTimeout
	}
	if s.exportMaxRows <= 0 {
		s.exportMaxRows = DefaultExportMaxRows
	}
	if s.clock == nil {
		s.clock = &timeframe.DefaultTimeProvider{}
	}
	s.parser = timeframe.NewParser(s.clock)
	return s
}

// Now is the service clock in UTC.
func (s *Service) Now() time.Time {
	return s.clock.Now().UTC()
}

func (s *Service) Locations(ctx context.Context, q Query, groupBy LocationGroupBy) (*LocationResult, error) {
	return runQuery(ctx, s, "location", func(ctx context.Context) (*LocationResult, error) {
		return LocationAnalytics(ctx, s.db, q, groupBy)
	})
}

func (s *Service) Links(ctx context.Context, q Query, groupBy LinkGroupBy, linkType string) (*LinkResult, error) {
	return runQuery(ctx, s, "links", func(ctx context.Context) (*LinkResult, error) {
		return LinkAnalytics(ctx, s.db, q, groupBy, linkType)
	})
}

func (s *Service) PeakHours(ctx context.Context, q Query, groupBy PeakGroupBy) (*PeakResult, error) {
	return runQuery(ctx, s, "peak_hours", func(ctx context.Context) (*PeakResult, error) {
		return PeakHourAnalytics(ctx, s.db, q, groupBy)
	})
}

func (s *Service) TimeSeries(ctx context.Context, q Query, groupBy timeframe.BucketSize) (*TimeSeriesResult, error) {
	return runQuery(ctx, s, "time_series", func(ctx context.Context) (*TimeSeriesResult, error) {
		return TimeSeriesAnalytics(ctx, s.db, q, groupBy)
	})
}

// Events lists raw events newest first. q.Limit is the page size.
func (s *Service) Events(ctx context.Context, q Query, offset int) (events.EventsResult, error) {
	return runQuery(ctx, s, "events", func(ctx context.Context) (events.EventsResult, error) {
		if err := q.validate(); err != nil {
			return events.EventsResult{}, err
		}
		filter := q.filter()
		filter.Limit = q.limitOr(events.DefaultPageSize)
		filter.Offset = max(offset, 0)
		return events.ListEvents(ctx, s.db, filter)
	})
}

// runQuery bounds fn by the query timeout and records its latency.
func runQuery[T any](ctx context.Context, s *Service, operation string, fn func(context.Context) (T, error)) (T, error) {
	defer s.metrics.ObserveAggregation(operation, time.Now())

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	return fn(ctx)
}

// section wraps one report as a pool task.
func section[T any](s *Service, operation, name string, fn func(context.Context) (T, error)) async.Task {
	return async.Task{
		Name: name,
		Execute: func(ctx context.Context) (interface{}, error) {
			return runQuery(ctx, s, operation+"."+name, fn)
		},
	}
}

// fanOut runs every task and returns their results plus the error message
// of each failed section. It only fails when every section failed.
func (s *Service) fanOut(ctx context.Context, operation string, tasks []async.Task) (map[string]async.Result, map[string]string, error) {
	defer s.metrics.ObserveAggregation(operation, time.Now())

	results := s.pool.Execute(ctx, tasks)

	var failures map[string]string
	var firstErr error
	for _, task := range tasks {
		result := results[task.Name]
		if !result.Failed() {
			continue
		}
		if failures == nil {
			failures = make(map[string]string)
		}
		failures[task.Name] = result.Err.Error()
		if firstErr == nil {
			firstErr = result.Err
		}
		s.metrics.RecordSectionFailure(operation, task.Name)
		s.logger.Warn("Report section failed",
			slog.String("operation", operation),
			slog.String("section", task.Name),
			slog.Any("error", result.Err))
	}

	if len(tasks) > 0 && len(failures) == len(tasks) {
		return nil, nil, fmt.Errorf("%s: all sections failed: %w", operation, firstErr)
	}
	return results, failures, nil
}

// sectionData returns the typed data of a successful section, or the zero
// value when the section failed or did not run.
func sectionData[T any](results map[string]async.Result, name string) T {
	var zero T
	result, ok := results[name]
	if !ok || result.Failed() {
		return zero
	}
	data, ok := result.Data.(T)
	if !ok {
		return zero
	}
	return data
}
