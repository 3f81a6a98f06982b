package events

import "math"

const (
	engagementBase           = 10.0
	engagementTimeWeight     = 40.0
	engagementTimeCapSeconds = 300.0
	engagementScrollWeight   = 30.0
	engagementInteraction    = 20.0
	engagementBouncePenalty  = 15.0
	slowLoadMs               = 3000.0
	slowLoadPenalty          = 10.0
	sluggishLoadMs           = 1500.0
	sluggishLoadPenalty      = 5.0
)

// EngagementInput holds the raw signals of one event. Nil pointers count as
// zero.
type EngagementInput struct {
	TimeOnPageSeconds  *float64
	ScrollDepthPercent *float64
	LoadTimeMs         *float64
	IsInteraction      bool
	Bounced            bool
}

// EngagementScore rates an event from 0 to 100. More time, more scrolling
// and a non-view interaction raise it; a bounce or a slow load lower it.
func EngagementScore(in EngagementInput) float64 {
	score := engagementBase

	if t := value(in.TimeOnPageSeconds); t > 0 {
		score += math.Min(t, engagementTimeCapSeconds) / engagementTimeCapSeconds * engagementTimeWeight
	}
	if s := value(in.ScrollDepthPercent); s > 0 {
		score += math.Min(s, 100) / 100 * engagementScrollWeight
	}
	if in.IsInteraction {
		score += engagementInteraction
	}
	if in.Bounced {
		score -= engagementBouncePenalty
	}

	switch load := value(in.LoadTimeMs); {
	case load > slowLoadMs:
		score -= slowLoadPenalty
	case load > sluggishLoadMs:
		score -= sluggishLoadPenalty
	}

	return Round(math.Max(0, math.Min(100, score)), 2)
}

// Round rounds half away from zero to the given number of decimals. NaN and
// infinities become 0.
func Round(v float64, decimals int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}

func value(p *float64) float64 {
	if p == nil || math.IsNaN(*p) {
		return 0
	}
	return *p
}
