package analytics

const (
	trendWindow  = 7
	trendHistory = 2 * trendWindow
)

// Trends compares the most recent buckets with the ones right before them.
type Trends struct {
	ViewsTrend      float64 `json:"viewsTrend"`
	EngagementTrend float64 `json:"engagementTrend"`
	BounceRateTrend float64 `json:"bounceRateTrend"`
	RecentBuckets   int     `json:"recentBuckets"`
	PreviousBuckets int     `json:"previousBuckets"`
}

// CalculateTrends takes the last 14 points (or fewer), treats the final 7
// as recent and the rest as previous, and reports the percent change of
// their mean views, engagement score and bounce rate. Windows are split
// by position, not by calendar. A previous mean of 0 yields a 0 trend.
func CalculateTrends(points []TimeSeriesPoint) Trends {
	if len(points) > trendHistory {
		points = points[len(points)-trendHistory:]
	}

	split := len(points) - trendWindow
	if split < 0 {
		split = 0
	}
	previous, recent := points[:split], points[split:]

	return Trends{
		ViewsTrend: percentChange(
			mean(recent, func(p TimeSeriesPoint) float64 { return float64(p.TotalViews) }),
			mean(previous, func(p TimeSeriesPoint) float64 { return float64(p.TotalViews) }),
		),
		EngagementTrend: percentChange(
			mean(recent, func(p TimeSeriesPoint) float64 { return p.AvgEngagementScore }),
			mean(previous, func(p TimeSeriesPoint) float64 { return p.AvgEngagementScore }),
		),
		BounceRateTrend: percentChange(
			mean(recent, func(p TimeSeriesPoint) float64 { return p.BounceRate }),
			mean(previous, func(p TimeSeriesPoint) float64 { return p.BounceRate }),
		),
		RecentBuckets:   len(recent),
		PreviousBuckets: len(previous),
	}
}

func mean(points []TimeSeriesPoint, value func(TimeSeriesPoint) float64) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += value(p)
	}
	return sum / float64(len(points))
}
