package events_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"pagelens/internal/events"
)

func ptr(v float64) *float64 { return &v }

func TestEngagementScore(t *testing.T) {
	tests := []struct {
		name  string
		input events.EngagementInput
		want  float64
	}{
		{
			name:  "bare view sits at the base",
			input: events.EngagementInput{TimeOnPageSeconds: ptr(0), ScrollDepthPercent: ptr(0)},
			want:  10,
		},
		{
			name:  "nil signals count as zero",
			input: events.EngagementInput{},
			want:  10,
		},
		{
			name:  "time on page is capped at five minutes",
			input: events.EngagementInput{TimeOnPageSeconds: ptr(900)},
			want:  50,
		},
		{
			name:  "half the page and a minute",
			input: events.EngagementInput{TimeOnPageSeconds: ptr(60), ScrollDepthPercent: ptr(50)},
			want:  33,
		},
		{
			name:  "interaction bonus",
			input: events.EngagementInput{IsInteraction: true},
			want:  30,
		},
		{
			name:  "bounce never goes below zero",
			input: events.EngagementInput{Bounced: true, LoadTimeMs: ptr(5000)},
			want:  0,
		},
		{
			name:  "sluggish load",
			input: events.EngagementInput{IsInteraction: true, LoadTimeMs: ptr(2000)},
			want:  25,
		},
		{
			name:  "slow load",
			input: events.EngagementInput{IsInteraction: true, LoadTimeMs: ptr(3500)},
			want:  20,
		},
		{
			name: "everything maxed",
			input: events.EngagementInput{
				TimeOnPageSeconds:  ptr(300),
				ScrollDepthPercent: ptr(100),
				IsInteraction:      true,
			},
			want: 100,
		},
		{
			name:  "scroll above one hundred is clamped",
			input: events.EngagementInput{ScrollDepthPercent: ptr(250)},
			want:  40,
		},
		{
			name:  "fractional score is rounded",
			input: events.EngagementInput{TimeOnPageSeconds: ptr(7)},
			want:  10.93,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, events.EngagementScore(tt.input))
		})
	}
}

func TestEngagementScoreStaysInBounds(t *testing.T) {
	times := []float64{0, 1, 45, 299, 300, 10000, math.NaN()}
	scrolls := []float64{0, 12.5, 99.9, 100, 400}
	loads := []float64{0, 1500, 1501, 3000, 3001, 60000}

	for _, tm := range times {
		for _, sc := range scrolls {
			for _, ld := range loads {
				for _, interaction := range []bool{false, true} {
					for _, bounced := range []bool{false, true} {
						score := events.EngagementScore(events.EngagementInput{
							TimeOnPageSeconds:  ptr(tm),
							ScrollDepthPercent: ptr(sc),
							LoadTimeMs:         ptr(ld),
							IsInteraction:      interaction,
							Bounced:            bounced,
						})
						assert.GreaterOrEqual(t, score, 0.0)
						assert.LessOrEqual(t, score, 100.0)
						assert.False(t, math.IsNaN(score))
					}
				}
			}
		}
	}
}

func TestEngagementScoreGrowsWithTime(t *testing.T) {
	previous := -1.0
	for seconds := 0.0; seconds <= 400; seconds += 20 {
		score := events.EngagementScore(events.EngagementInput{TimeOnPageSeconds: ptr(seconds)})
		assert.GreaterOrEqual(t, score, previous, "seconds=%v", seconds)
		previous = score
	}
}

func TestRound(t *testing.T) {
	assert.Equal(t, 66.67, events.Round(200.0/3, 2))
	assert.Equal(t, 1.3, events.Round(1.25, 1))
	assert.Equal(t, 3.0, events.Round(2.5, 0))
	assert.Equal(t, 0.0, events.Round(math.NaN(), 2))
	assert.Equal(t, 0.0, events.Round(math.Inf(1), 2))
}
