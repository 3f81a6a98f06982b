// Package seeder fills a database with realistic demo traffic so the
// analytics endpoints have something to show in development.
package seeder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"slices"
	"time"

	"gorm.io/gorm"

	"pagelens/internal/events"
	"pagelens/internal/pkg/geoip"
	"pagelens/internal/targets"
)

// Seeder generates visitor sessions and records them through the regular
// ingest path, so enrichment and counters behave as in production.
type Seeder struct {
	DB         *gorm.DB
	Logger     *slog.Logger
	EventCount int
	// Days is how far back the generated traffic reaches.
	Days int
	Now  func() time.Time

	rng *rand.Rand
}

// Summary reports what a run produced.
type Summary struct {
	Events   int
	Sessions int
	Targets  []string
	Elapsed  time.Duration
}

func NewSeeder(db *gorm.DB, logger *slog.Logger, eventCount int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		DB:         db,
		Logger:     logger,
		EventCount: eventCount,
		Days:       30,
		Now:        time.Now,
		rng:        rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
	}
}

// WithSeed makes the generated traffic reproducible.
func (s *Seeder) WithSeed(seed uint64) *Seeder {
	s.rng = rand.New(rand.NewPCG(seed, 0x5eed))
	return s
}

// seedClock lets the recorder stamp each event with a generated instant.
type seedClock struct {
	at time.Time
}

func (c *seedClock) Now() time.Time { return c.at }

// Run seeds EventCount events spread over the given businesses. Each
// business is registered first so view counters are kept.
func (s *Seeder) Run(ctx context.Context, businessIDs ...string) (Summary, error) {
	start := time.Now()
	if len(businessIDs) == 0 {
		return Summary{}, errors.New("seeder: at least one business id is required")
	}
	if s.EventCount <= 0 {
		return Summary{}, fmt.Errorf("seeder: event count must be positive, got %d", s.EventCount)
	}

	s.Logger.Info("Seeding demo traffic...",
		slog.Int("eventCount", s.EventCount),
		slog.Int("businesses", len(businessIDs)),
		slog.Int("days", s.Days))

	for _, id := range businessIDs {
		if _, err := targets.EnsureBusiness(s.DB, id, "Demo "+id); err != nil {
			return Summary{}, fmt.Errorf("register business %s: %w", id, err)
		}
	}

	clock := &seedClock{}
	recorder := events.NewRecorder(s.DB, s.Logger, events.RecorderOptions{
		Geo:            locationPool,
		Counter:        targets.NewSQLiteCounter(s.DB, s.Logger),
		CounterBackend: "sqlite",
		TimeProvider:   clock,
	})
	defer recorder.Wait()

	summary := Summary{Targets: businessIDs}
	for summary.Events < s.EventCount {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		target := businessIDs[s.rng.IntN(len(businessIDs))]
		session := s.session(target)
		for i, in := range session.inputs {
			if summary.Events >= s.EventCount {
				break
			}
			clock.at = session.start.Add(time.Duration(i) * 40 * time.Second)
			if _, err := recorder.RecordEvent(ctx, in); err != nil {
				return summary, fmt.Errorf("record %s for %s: %w", in.InteractionType, target, err)
			}
			summary.Events++
		}
		summary.Sessions++

		if summary.Events%1000 == 0 {
			s.Logger.Debug("Seeding progress", slog.Int("events", summary.Events))
		}
	}

	summary.Elapsed = time.Since(start)
	s.Logger.Info("Seeding completed",
		slog.Int("events", summary.Events),
		slog.Int("sessions", summary.Sessions),
		slog.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

type visit struct {
	start  time.Time
	inputs []events.TrackInput
}

// session builds one visit: a page view, sometimes followed by a few
// interactions from the same viewer.
func (s *Seeder) session(target string) visit {
	ip := ipPool[s.rng.IntN(len(ipPool))]
	ua := userAgents[s.rng.IntN(len(userAgents))]
	referer, query := s.referral()
	sessionID := fmt.Sprintf("seed-%016x", s.rng.Uint64())

	var viewerID string
	if s.rng.IntN(3) == 0 {
		viewerID = fmt.Sprintf("user-%d", s.rng.IntN(40))
	}

	base := events.TrackInput{
		TargetID:   target,
		TargetType: events.TargetBusiness,
		ViewerID:   viewerID,
		SessionID:  sessionID,
		IPAddress:  ip,
		UserAgent:  ua,
		Referer:    referer,
		Query:      query,
		Metadata: &events.MetadataInput{
			PageTitle: "Demo " + target,
			PageURL:   "https://pages.example.com/" + target,
		},
	}

	view := base
	view.InteractionType = events.InteractionView
	timeOnPage := float64(s.rng.IntN(240))
	scroll := float64(s.rng.IntN(101))
	load := float64(300 + s.rng.IntN(2500))
	view.Metrics = &events.MetricsInput{
		TimeOnPage:  &timeOnPage,
		ScrollDepth: &scroll,
		LoadTime:    &load,
		BounceRate:  timeOnPage < 10,
	}

	inputs := []events.TrackInput{view}
	if !view.Metrics.BounceRate {
		for range s.rng.IntN(3) {
			inputs = append(inputs, s.interaction(base))
		}
	}
	return visit{start: s.instant(), inputs: inputs}
}

func (s *Seeder) interaction(base events.TrackInput) events.TrackInput {
	in := base
	switch n := s.rng.IntN(10); {
	case n < 6:
		link := links[s.rng.IntN(len(links))]
		position := s.rng.IntN(8)
		link.LinkPosition = &position
		in.InteractionType = events.InteractionClick
		in.LinkData = &link
	case n < 7:
		in.InteractionType = events.InteractionShare
	case n < 8:
		in.InteractionType = events.InteractionFavorite
	case n < 9:
		in.InteractionType = events.InteractionCall
	default:
		in.InteractionType = events.InteractionContact
	}
	return in
}

// instant picks a moment in the last Days days. Traffic leans towards
// midday and evening so the peak hour reports have a shape.
func (s *Seeder) instant() time.Time {
	now := s.Now().UTC()
	day := now.AddDate(0, 0, -s.rng.IntN(max(s.Days, 1)))
	hour := busyHours[s.rng.IntN(len(busyHours))]
	at := time.Date(day.Year(), day.Month(), day.Day(), hour, s.rng.IntN(60), s.rng.IntN(60), 0, time.UTC)
	if at.After(now) {
		at = at.AddDate(0, 0, -1)
	}
	return at
}

// referral returns a Referer header and query parameters. Roughly a
// third of the visits are direct.
func (s *Seeder) referral() (string, map[string]string) {
	switch n := s.rng.IntN(10); {
	case n < 3:
		return "", nil
	case n < 7:
		return referrers[s.rng.IntN(len(referrers))], nil
	case n < 8:
		return "", map[string]string{"utm_medium": "qr", "utm_source": "flyer"}
	default:
		return "", map[string]string{
			"utm_source":   campaignSources[s.rng.IntN(len(campaignSources))],
			"utm_medium":   campaignMediums[s.rng.IntN(len(campaignMediums))],
			"utm_campaign": "spring_launch",
		}
	}
}

// staticResolver maps the demo address pool to fixed locations.
type staticResolver map[string]geoip.Location

func (r staticResolver) Lookup(ip string) geoip.Location {
	return r[ip]
}

var (
	busyHours = []int{7, 8, 9, 11, 12, 12, 13, 13, 14, 17, 18, 19, 19, 20, 20, 21, 22}

	locationPool = staticResolver{
		"203.0.113.10": {Country: "United States", CountryCode: "US", Region: "Texas", City: "Austin", Timezone: "America/Chicago"},
		"203.0.113.11": {Country: "United States", CountryCode: "US", Region: "New York", City: "New York", Timezone: "America/New_York"},
		"203.0.113.12": {Country: "United States", CountryCode: "US", Region: "California", City: "San Francisco", Timezone: "America/Los_Angeles"},
		"198.51.100.20": {Country: "Mexico", CountryCode: "MX", Region: "Jalisco", City: "Guadalajara", Timezone: "America/Mexico_City"},
		"198.51.100.21": {Country: "Canada", CountryCode: "CA", Region: "Ontario", City: "Toronto", Timezone: "America/Toronto"},
		"198.51.100.22": {Country: "United Kingdom", CountryCode: "GB", Region: "England", City: "London", Timezone: "Europe/London"},
		"192.0.2.30":    {Country: "Germany", CountryCode: "DE", Region: "Berlin", City: "Berlin", Timezone: "Europe/Berlin"},
		"192.0.2.31":    {Country: "Spain", CountryCode: "ES", Region: "Madrid", City: "Madrid", Timezone: "Europe/Madrid"},
		"192.0.2.32":    {Country: "Brazil", CountryCode: "BR", Region: "São Paulo", City: "São Paulo", Timezone: "America/Sao_Paulo"},
	}
	// The trailing address resolves to nothing, so some visitors land in
	// the unknown bucket.
	ipPool = append(slices.Sorted(maps.Keys(locationPool)), "192.0.2.250")

	userAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
		"Mozilla/5.0 (iPad; CPU OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}

	referrers = []string{
		"https://www.google.com/search?q=tacos+near+me",
		"https://www.bing.com/",
		"https://duckduckgo.com/",
		"https://www.instagram.com/",
		"https://l.facebook.com/",
		"https://t.co/abc123",
		"https://www.linkedin.com/feed/",
		"https://news.ycombinator.com/",
		"https://some-other-website.com/blog/post",
	}

	campaignSources = []string{"newsletter", "facebook", "google", "partner_site"}
	campaignMediums = []string{"email", "social", "cpc", "referral"}

	links = []events.LinkInput{
		{LinkType: "social", LinkURL: "https://instagram.com/demo.tacos", SocialPlatform: "instagram"},
		{LinkType: "social", LinkURL: "https://www.tiktok.com/@demotacos", SocialPlatform: "tiktok"},
		{LinkType: "social", LinkURL: "https://x.com/demotacos", SocialPlatform: "twitter"},
		{LinkType: "phone", LinkURL: "tel:+15125550100", LinkText: "Call us"},
		{LinkType: "email", LinkURL: "mailto:hola@example.com", LinkText: "Email"},
		{LinkType: "website", LinkURL: "https://example.com/menu", LinkText: "Menu"},
		{LinkType: "whatsapp", LinkURL: "https://wa.me/15125550100", SocialPlatform: "whatsapp"},
	}
)
