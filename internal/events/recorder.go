package events

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"pagelens/internal/metrics"
	"pagelens/internal/pkg/geoip"
	"pagelens/internal/pkg/links"
	"pagelens/internal/pkg/referrers"
	ua "pagelens/internal/pkg/user_agent"
	"pagelens/internal/timeframe"
	"pagelens/internal/validation"
	"pagelens/internal/visitors"
)

// ErrBotFiltered is returned when a request from a known bot is dropped.
var ErrBotFiltered = errors.New("bot traffic filtered")

const defaultCounterTimeout = 2 * time.Second

// ViewCounter increments a target's aggregate view counter.
type ViewCounter interface {
	IncrementViews(ctx context.Context, targetID string, n int64) error
}

// Both enums are checked by the "enum" validation tag.
var (
	_ validation.Enum = TargetType("")
	_ validation.Enum = InteractionType("")
)

// TrackInput is the ingest request. Fields tagged json:"-" come from the
// transport, never from the body.
type TrackInput struct {
	TargetID         string          `json:"targetId" validate:"required,notblank,max=128"`
	TargetType       TargetType      `json:"targetType" validate:"required,enum"`
	InteractionType  InteractionType `json:"interactionType" validate:"required,enum"`
	ViewerID         string          `json:"viewerId" validate:"omitempty,max=128"`
	SessionID        string          `json:"sessionId" validate:"omitempty,max=128"`
	ScreenResolution string          `json:"screenResolution" validate:"omitempty,max=32"`
	LinkData         *LinkInput      `json:"linkData"`
	Metrics          *MetricsInput   `json:"metrics"`
	Metadata         *MetadataInput  `json:"metadata"`

	IPAddress string            `json:"-"`
	UserAgent string            `json:"-"`
	Referer   string            `json:"-"`
	Query     map[string]string `json:"-"`
}

type LinkInput struct {
	LinkType       string `json:"linkType" validate:"required,max=64"`
	LinkURL        string `json:"linkUrl" validate:"omitempty,max=2048"`
	LinkText       string `json:"linkText" validate:"omitempty,max=512"`
	LinkPosition   *int   `json:"linkPosition" validate:"omitempty,min=0"`
	SocialPlatform string `json:"socialPlatform" validate:"omitempty,max=64"`
	WasExternal    *bool  `json:"wasExternal"`
}

type MetricsInput struct {
	TimeOnPage  *float64 `json:"timeOnPage" validate:"omitempty,min=0"`
	ScrollDepth *float64 `json:"scrollDepth" validate:"omitempty,min=0,max=100"`
	LoadTime    *float64 `json:"loadTime" validate:"omitempty,min=0"`
	BounceRate  bool     `json:"bounceRate"`
}

type MetadataInput struct {
	PageTitle        string            `json:"pageTitle" validate:"omitempty,max=512"`
	PageURL          string            `json:"pageUrl" validate:"omitempty,max=2048"`
	PreviousPage     string            `json:"previousPage" validate:"omitempty,max=2048"`
	ABTestVariant    string            `json:"abTestVariant" validate:"omitempty,max=64"`
	CustomDimensions []CustomDimension `json:"customDimensions" validate:"omitempty,max=50,dive"`
	Tags             []string          `json:"tags" validate:"omitempty,max=50,dive,max=64"`
	Extra            map[string]string `json:"extra" validate:"omitempty,max=50,dive,keys,max=64,endkeys,max=1024"`
}

// TrackResult is what the ingest caller gets back.
type TrackResult struct {
	EventID         string  `json:"logId"`
	SessionID       string  `json:"sessionId"`
	EngagementScore float64 `json:"engagementScore"`
}

type RecorderOptions struct {
	Geo     geoip.Resolver
	Counter ViewCounter
	// CounterBackend labels counter metrics.
	CounterBackend string
	CounterTimeout time.Duration
	FilterBots     bool
	Metrics        *metrics.Metrics
	TimeProvider   timeframe.TimeProvider
}

// Recorder is the ingest service: it validates, enriches and stores events.
type Recorder struct {
	db             *gorm.DB
	logger         *slog.Logger
	geo            geoip.Resolver
	counter        ViewCounter
	counterBackend string
	counterTimeout time.Duration
	filterBots     bool
	metrics        *metrics.Metrics
	clock          timeframe.TimeProvider

	wg sync.WaitGroup
}

func NewRecorder(db *gorm.DB, logger *slog.Logger, opts RecorderOptions) *Recorder {
	r := &Recorder{
		db:             db,
		logger:         logger,
		geo:            opts.Geo,
		counter:        opts.Counter,
		counterBackend: opts.CounterBackend,
		counterTimeout: opts.CounterTimeout,
		filterBots:     opts.FilterBots,
		metrics:        opts.Metrics,
		clock:          opts.TimeProvider,
	}
	if r.geo == nil {
		r.geo = geoip.DBResolver{}
	}
	if r.counterTimeout <= 0 {
		r.counterTimeout = defaultCounterTimeout
	}
	if r.counterBackend == "" {
		r.counterBackend = "unknown"
	}
	if r.metrics == nil {
		r.metrics = metrics.NewMetrics("pagelens")
	}
	if r.clock == nil {
		r.clock = &timeframe.DefaultTimeProvider{}
	}
	return r
}

// RecordEvent validates and enriches in, stores it and, for business views,
// bumps the business view counter in the background.
func (r *Recorder) RecordEvent(ctx context.Context, in TrackInput) (*TrackResult, error) {
	if err := validation.ValidateStruct(in); err != nil {
		r.metrics.EventsRejected.WithLabelValues("validation").Inc()
		return nil, err
	}

	agent := ua.ParseUserAgent(in.UserAgent)
	if agent.Bot && r.filterBots {
		r.metrics.EventsFiltered.WithLabelValues("bot").Inc()
		r.logger.Debug("Dropping bot event",
			slog.String("target_id", in.TargetID),
			slog.String("bot", agent.Browser))
		return nil, ErrBotFiltered
	}

	event := r.buildEvent(in, agent)

	if err := InsertEvent(ctx, r.logger, r.db, event); err != nil {
		r.metrics.EventsRejected.WithLabelValues("storage").Inc()
		return nil, err
	}
	r.metrics.EventsRecorded.WithLabelValues(string(event.TargetType), string(event.InteractionType)).Inc()

	if event.TargetType == TargetBusiness && event.InteractionType == InteractionView {
		r.incrementViewsAsync(event.TargetID)
	}

	return &TrackResult{
		EventID:         event.ID,
		SessionID:       event.SessionID,
		EngagementScore: event.Metrics.EngagementScore,
	}, nil
}

// Wait blocks until pending counter increments finish. Called on shutdown
// and by tests.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

func (r *Recorder) buildEvent(in TrackInput, agent ua.UserAgent) *Event {
	event := &Event{
		TargetID:        strings.TrimSpace(in.TargetID),
		TargetType:      in.TargetType,
		SessionID:       visitors.SessionIDOrNew(in.SessionID),
		InteractionType: in.InteractionType,
		CreatedAt:       r.clock.Now().UTC(),
	}
	if viewer := strings.TrimSpace(in.ViewerID); viewer != "" {
		event.ViewerID = &viewer
	}
	event.ViewerType = visitors.ViewerTypeFor(event.Viewer())

	event.Location = r.resolveLocation(in.IPAddress)
	event.Device = deviceFrom(agent, in.ScreenResolution)

	var meta MetadataInput
	if in.Metadata != nil {
		meta = *in.Metadata
	}
	selfHost := hostOf(meta.PageURL)

	event.Referral = referrers.Parse(referrers.Input{
		Referer:  in.Referer,
		PageURL:  meta.PageURL,
		Query:    in.Query,
		SelfHost: selfHost,
	})

	if in.InteractionType == InteractionClick && in.LinkData != nil {
		event.LinkData = linkDataFrom(*in.LinkData, selfHost)
		event.HasLinkData = true
	}

	event.Metadata = Metadata{
		PageTitle:        meta.PageTitle,
		PageURL:          meta.PageURL,
		PreviousPage:     meta.PreviousPage,
		ABTestVariant:    meta.ABTestVariant,
		CustomDimensions: datatypes.JSONSlice[CustomDimension](meta.CustomDimensions),
		Tags:             datatypes.JSONSlice[string](meta.Tags),
		Extra:            datatypes.NewJSONType(meta.Extra),
	}

	var m MetricsInput
	if in.Metrics != nil {
		m = *in.Metrics
	}
	event.Metrics = Metrics{
		LoadTimeMs:         m.LoadTime,
		Bounced:            m.BounceRate,
		TimeOnPageSeconds:  m.TimeOnPage,
		ScrollDepthPercent: m.ScrollDepth,
	}
	event.Metrics.EngagementScore = EngagementScore(EngagementInput{
		TimeOnPageSeconds:  m.TimeOnPage,
		ScrollDepthPercent: m.ScrollDepth,
		LoadTimeMs:         m.LoadTime,
		IsInteraction:      in.InteractionType.IsInteraction(),
		Bounced:            m.BounceRate,
	})

	return event
}

func (r *Recorder) resolveLocation(ip string) Location {
	loc := r.geo.Lookup(ip)
	if loc.IsEmpty() {
		r.metrics.GeoLookups.WithLabelValues("unresolved").Inc()
		return Location{IPAddress: ip}
	}
	r.metrics.GeoLookups.WithLabelValues("resolved").Inc()

	return Location{
		Country:     loc.Country,
		CountryCode: loc.CountryCode,
		Region:      loc.Region,
		City:        loc.City,
		Longitude:   loc.Longitude,
		Latitude:    loc.Latitude,
		IPAddress:   ip,
		Timezone:    loc.Timezone,
		Accuracy:    loc.AccuracyRadius,
	}
}

func deviceFrom(agent ua.UserAgent, screen string) Device {
	device := Device{
		Type:             agent.DeviceType(),
		ScreenResolution: screen,
		UserAgent:        agent.UserAgent,
	}
	if !agent.Classified() {
		return device
	}
	if agent.OS != ua.Unknown {
		device.OS = agent.OS
	}
	if agent.Browser != ua.Unknown {
		device.Browser = agent.Browser
	}
	return device
}

func linkDataFrom(in LinkInput, selfHost string) LinkData {
	normalized := links.Normalize(in.LinkURL, in.SocialPlatform, selfHost)

	data := LinkData{
		Type:           strings.TrimSpace(in.LinkType),
		URL:            normalized.URL,
		Text:           in.LinkText,
		Position:       in.LinkPosition,
		SocialPlatform: strings.ToLower(strings.TrimSpace(in.SocialPlatform)),
		WasExternal:    normalized.External,
		Display:        normalized.Display,
		Handle:         normalized.Handle,
	}
	if data.SocialPlatform == "" && normalized.Handle != "" && normalized.Platform != "email" && normalized.Platform != "phone" {
		data.SocialPlatform = normalized.Platform
	}
	if in.WasExternal != nil {
		data.WasExternal = *in.WasExternal
	}
	return data
}

func (r *Recorder) incrementViewsAsync(targetID string) {
	if r.counter == nil {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.metrics.CounterFailures.WithLabelValues(r.counterBackend).Inc()
				r.logger.Error("Panic while incrementing view counter",
					slog.String("target_id", targetID),
					slog.Any("panic", rec))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.counterTimeout)
		defer cancel()

		if err := r.counter.IncrementViews(ctx, targetID, 1); err != nil {
			r.metrics.CounterFailures.WithLabelValues(r.counterBackend).Inc()
			r.logger.Warn("Failed to increment view counter",
				slog.String("target_id", targetID),
				slog.String("backend", r.counterBackend),
				slog.Any("error", err))
			return
		}
		r.metrics.CounterIncrements.WithLabelValues(r.counterBackend).Inc()
	}()
}

func hostOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
