package main

import (
	"bytes"
	"math/rand/v2"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagelens/internal/events"
	"pagelens/internal/validation"
)

func TestPerfStatsRecord(t *testing.T) {
	stats := &PerfStats{StatusCodes: map[int]int64{}}

	stats.Record(Result{Duration: 30 * time.Millisecond, StatusCode: http.StatusCreated})
	stats.Record(Result{Duration: 10 * time.Millisecond, StatusCode: http.StatusCreated})
	stats.Record(Result{Duration: 20 * time.Millisecond, StatusCode: http.StatusOK, Filtered: true})
	stats.Record(Result{Duration: 50 * time.Millisecond, StatusCode: http.StatusServiceUnavailable})
	stats.Record(Result{Duration: 5 * time.Millisecond, StatusCode: http.StatusTooManyRequests})
	stats.Record(Result{Error: assert.AnError})

	assert.Equal(t, int64(6), stats.TotalRequests)
	assert.Equal(t, int64(2), stats.SuccessfulRequests)
	assert.Equal(t, int64(1), stats.FilteredRequests)
	assert.Equal(t, int64(3), stats.FailedRequests)
	assert.Equal(t, int64(1), stats.DatabaseBusyErrors)
	assert.Equal(t, int64(1), stats.RateLimited)
	assert.Equal(t, 5*time.Millisecond, stats.MinLatency)
	assert.Equal(t, 50*time.Millisecond, stats.MaxLatency)
	assert.Equal(t, 23*time.Millisecond, stats.AvgLatency())
	assert.Equal(t, int64(2), stats.StatusCodes[http.StatusCreated])
}

func TestPerfStatsPercentile(t *testing.T) {
	stats := &PerfStats{StatusCodes: map[int]int64{}}
	assert.Zero(t, stats.Percentile(0.5))

	for i := 10; i >= 1; i-- {
		stats.Record(Result{Duration: time.Duration(i) * time.Millisecond, StatusCode: http.StatusCreated})
	}
	assert.Equal(t, 6*time.Millisecond, stats.Percentile(0.5))
	assert.Equal(t, 10*time.Millisecond, stats.Percentile(0.99))
}

func TestGeneratedEventsAreValid(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for range 50 {
		in := generateEvent(rng, []string{"B1", "B2"}, "perf-session")
		require.NoError(t, validation.ValidateStruct(in))
		if in.InteractionType == events.InteractionClick {
			assert.NotNil(t, in.LinkData)
		} else {
			assert.Nil(t, in.LinkData)
		}
	}
}

func TestPrintResults(t *testing.T) {
	stats := &PerfStats{StatusCodes: map[int]int64{}, StartTime: time.Unix(0, 0), EndTime: time.Unix(2, 0)}
	stats.Record(Result{Duration: time.Millisecond, StatusCode: http.StatusCreated})

	var out bytes.Buffer
	printResults(&out, stats)
	assert.Contains(t, out.String(), "Recorded (201)")
	assert.Contains(t, out.String(), "201")
	assert.Equal(t, 0.5, stats.RequestsPerSecond())
}
