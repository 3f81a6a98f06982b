package analytics

import (
	"cmp"
	"context"
	"slices"
	"time"

	"gorm.io/gorm"

	"pagelens/internal/events"
)

// stats accumulates the metrics shared by every report for one group.
type stats struct {
	events       int64
	interactions int64
	bounces      int64
	scoreSum     float64
	timeSum      float64
	timeCount    int64
	last         time.Time
	viewers      map[string]struct{}
	sessions     map[string]struct{}
	urls         map[string]struct{}
	positions    map[int]struct{}

	// Groups rolled up in SQL carry distinct counts instead of the sets.
	viewerCount  int64
	sessionCount int64
}

func newStats() *stats {
	return &stats{
		viewers:   make(map[string]struct{}),
		sessions:  make(map[string]struct{}),
		urls:      make(map[string]struct{}),
		positions: make(map[int]struct{}),
	}
}

func (s *stats) add(e *events.Event) {
	s.events++
	if e.InteractionType.IsInteraction() {
		s.interactions++
	}
	if e.Metrics.Bounced {
		s.bounces++
	}
	s.scoreSum += e.Metrics.EngagementScore
	if t := e.Metrics.TimeOnPageSeconds; t != nil {
		s.timeSum += *t
		s.timeCount++
	}
	if e.CreatedAt.After(s.last) {
		s.last = e.CreatedAt
	}
	if viewer := e.Viewer(); viewer != "" {
		s.viewers[viewer] = struct{}{}
	}
	if e.SessionID != "" {
		s.sessions[e.SessionID] = struct{}{}
	}
	if e.HasLinkData {
		if e.LinkData.URL != "" {
			s.urls[e.LinkData.URL] = struct{}{}
		}
		if e.LinkData.Position != nil {
			s.positions[*e.LinkData.Position] = struct{}{}
		}
	}
}

// statsOf adapts a SQL rollup to the shared metric helpers.
func statsOf(g events.GroupStats) *stats {
	return &stats{
		events:       g.Events,
		interactions: g.Interactions,
		bounces:      g.Bounces,
		scoreSum:     g.ScoreSum,
		timeSum:      g.TimeSum,
		timeCount:    g.TimeCount,
		viewerCount:  g.Viewers,
		sessionCount: g.Sessions,
	}
}

// statsColumns are the event columns stats.add reads.
var statsColumns = []string{
	"id", "created_at", "interaction_type", "viewer_id", "session_id",
	"metric_bounced", "metric_engagement_score", "metric_time_on_page_seconds",
	"has_link_data", "link_url", "link_position",
}

// columns extends statsColumns with the report's own.
func columns(extra ...string) []string {
	return append(slices.Clone(statsColumns), extra...)
}

// rollup groups the events of f in SQL by keyExpr.
func rollup(ctx context.Context, db *gorm.DB, f events.Filter, keyExpr string) (map[string]*stats, []string, error) {
	rows, err := events.GroupEvents(ctx, db, f, keyExpr)
	if err != nil {
		return nil, nil, err
	}
	groups := make(map[string]*stats, len(rows))
	order := make([]string, 0, len(rows))
	for _, r := range rows {
		groups[r.Key] = statsOf(r)
		order = append(order, r.Key)
	}
	return groups, order, nil
}

// rollupTotal is the SQL rollup of every event of f.
func rollupTotal(ctx context.Context, db *gorm.DB, f events.Filter) (*stats, error) {
	rows, err := events.GroupEvents(ctx, db, f, "")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return newStats(), nil
	}
	return statsOf(rows[0]), nil
}

func (s *stats) uniqueViewers() int64  { return s.viewerCount + int64(len(s.viewers)) }
func (s *stats) uniqueSessions() int64 { return s.sessionCount + int64(len(s.sessions)) }

func (s *stats) engagementRate() float64 { return percent(s.interactions, s.events) }
func (s *stats) bounceRate() float64     { return percent(s.bounces, s.events) }

func (s *stats) avgEngagementScore() float64 {
	if s.events == 0 {
		return 0
	}
	return events.Round(s.scoreSum/float64(s.events), 2)
}

// avgTimeOnPage averages the events that reported a time on page.
func (s *stats) avgTimeOnPage() float64 {
	if s.timeCount == 0 {
		return 0
	}
	return events.Round(s.timeSum/float64(s.timeCount), 1)
}

func (s *stats) sortedPositions() []int {
	positions := make([]int, 0, len(s.positions))
	for p := range s.positions {
		positions = append(positions, p)
	}
	slices.Sort(positions)
	return positions
}

// percent is round(part/total*100, 2), or 0 for an empty total.
func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return events.Round(float64(part)/float64(total)*100, 2)
}

// percentChange is the change from previous to current in percent, or 0
// when previous is 0.
func percentChange(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return events.Round((current-previous)/previous*100, 2)
}

// group buckets evs by key. The returned keys keep first-seen order.
func group[K comparable](evs []events.Event, key func(*events.Event) K) (map[K]*stats, []K) {
	groups := make(map[K]*stats)
	var order []K
	for i := range evs {
		k := key(&evs[i])
		s, ok := groups[k]
		if !ok {
			s = newStats()
			groups[k] = s
			order = append(order, k)
		}
		s.add(&evs[i])
	}
	return groups, order
}

// total folds every event into one group.
func total(evs []events.Event) *stats {
	s := newStats()
	for i := range evs {
		s.add(&evs[i])
	}
	return s
}

// byCountDesc orders by count descending, then key ascending.
func byCountDesc(countA, countB int64, keyA, keyB string) int {
	if c := cmp.Compare(countB, countA); c != 0 {
		return c
	}
	return cmp.Compare(keyA, keyB)
}

func truncate[T any](rows []T, limit int) []T {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}

// Overview summarizes every event of a report.
type Overview struct {
	TotalEvents        int64   `json:"totalEvents"`
	TotalInteractions  int64   `json:"totalInteractions"`
	UniqueViewers      int64   `json:"uniqueViewers"`
	UniqueSessions     int64   `json:"uniqueSessions"`
	EngagementRate     float64 `json:"engagementRate"`
	AvgEngagementScore float64 `json:"avgEngagementScore"`
	AvgTimeOnPage      float64 `json:"avgTimeOnPage"`
	BounceRate         float64 `json:"bounceRate"`
}

func overviewOf(s *stats) Overview {
	return Overview{
		TotalEvents:        s.events,
		TotalInteractions:  s.interactions,
		UniqueViewers:      s.uniqueViewers(),
		UniqueSessions:     s.uniqueSessions(),
		EngagementRate:     s.engagementRate(),
		AvgEngagementScore: s.avgEngagementScore(),
		AvgTimeOnPage:      s.avgTimeOnPage(),
		BounceRate:         s.bounceRate(),
	}
}
