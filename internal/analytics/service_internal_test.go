package analytics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagelens/internal/metrics"
	"pagelens/internal/pkg/async"
)

func newTestService(m *metrics.Metrics) *Service {
	return NewService(nil, slog.New(slog.NewTextHandler(io.Discard, nil)), ServiceOptions{Metrics: m, Workers: 2})
}

func okTask(name string, data any) async.Task {
	return async.Task{Name: name, Execute: func(context.Context) (interface{}, error) { return data, nil }}
}

func failTask(name string, err error) async.Task {
	return async.Task{Name: name, Execute: func(context.Context) (interface{}, error) { return nil, err }}
}

func TestFanOutKeepsSuccessfulSections(t *testing.T) {
	m := metrics.NewMetrics("test")
	s := newTestService(m)

	results, failures, err := s.fanOut(context.Background(), "dashboard", []async.Task{
		okTask(SectionTimeSeries, &TimeSeriesResult{GroupBy: "day"}),
		failTask(SectionLocations, errors.New("database is locked")),
		{Name: SectionLinks, Execute: func(context.Context) (interface{}, error) { panic("boom") }},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		SectionLocations: "database is locked",
		SectionLinks:     "task links panicked: boom",
	}, failures)

	ts := sectionData[*TimeSeriesResult](results, SectionTimeSeries)
	require.NotNil(t, ts)
	assert.Equal(t, "day", string(ts.GroupBy))
	assert.Nil(t, sectionData[*LocationResult](results, SectionLocations))
	assert.Nil(t, sectionData[*LinkResult](results, SectionLinks))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AggregationFailures.WithLabelValues("dashboard", SectionLocations)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AggregationFailures.WithLabelValues("dashboard", SectionLinks)))
}

func TestFanOutFailsWhenEverySectionFails(t *testing.T) {
	s := newTestService(nil)
	cause := errors.New("no such table: events")

	_, _, err := s.fanOut(context.Background(), "export", []async.Task{
		failTask(SectionViews, cause),
		failTask(SectionClicks, cause),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "export: all sections failed")
}

func TestFanOutWithoutSections(t *testing.T) {
	s := newTestService(nil)

	results, failures, err := s.fanOut(context.Background(), "real_time", nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Nil(t, failures)
}

func TestSectionDataTypeMismatch(t *testing.T) {
	results := map[string]async.Result{
		SectionDevices: {Name: SectionDevices, Data: &ReferralBreakdown{}},
	}
	assert.Nil(t, sectionData[*DeviceBreakdown](results, SectionDevices))
	assert.Nil(t, sectionData[[]TimelinePoint](results, SectionTimeline))
}
