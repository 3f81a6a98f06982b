package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

const DefaultPageSize = 50

// Filter selects the events one aggregation works on. Zero values mean
// "no restriction".
type Filter struct {
	TargetID   string
	TargetType TargetType
	From       time.Time
	To         time.Time

	ExcludeViews bool
	// LinkOnly keeps click events that carry link data.
	LinkOnly bool
	LinkType string

	Limit  int
	Offset int

	// Columns restricts FindEvents to these columns. Empty loads every
	// column.
	Columns []string
}

func (f Filter) apply(db *gorm.DB) *gorm.DB {
	query := db.Model(&Event{}).
		Where("target_id = ? AND target_type = ?", f.TargetID, f.TargetType)

	if !f.From.IsZero() {
		query = query.Where("created_at >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		query = query.Where("created_at <= ?", f.To.UTC())
	}
	if f.ExcludeViews {
		query = query.Where("interaction_type <> ?", InteractionView)
	}
	if f.LinkOnly {
		query = query.Where("interaction_type = ? AND has_link_data = ?", InteractionClick, true)
	}
	if f.LinkType != "" {
		query = query.Where("link_type = ?", f.LinkType)
	}
	return query
}

// InsertEvent persists a new event through the retrying writer.
func InsertEvent(ctx context.Context, logger *slog.Logger, db *gorm.DB, event *Event) error {
	err := sqlite.PerformWrite(logger, db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Create(event).Error
	})
	if err != nil {
		logger.Error("Failed to store event",
			slog.String("target_id", event.TargetID),
			slog.Any("error", err))
		return fmt.Errorf("failed to store event: %w", err)
	}
	return nil
}

// FindEvents loads the events matching f in chronological order.
func FindEvents(ctx context.Context, db *gorm.DB, f Filter) ([]Event, error) {
	var events []Event
	query := f.apply(db.WithContext(ctx)).Order("created_at ASC").Order("id ASC")
	if len(f.Columns) > 0 {
		query = query.Select(f.Columns)
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit).Offset(f.Offset)
	}
	if err := query.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	return events, nil
}

// GroupStats is the rollup of the events sharing one group key.
type GroupStats struct {
	Key          string `gorm:"column:group_key"`
	Events       int64
	Interactions int64
	Bounces      int64
	Viewers      int64
	Sessions     int64
	ScoreSum     float64
	TimeSum      float64
	TimeCount    int64
}

const groupStatsColumns = `COUNT(*) AS events,
	COALESCE(SUM(CASE WHEN interaction_type <> 'view' THEN 1 ELSE 0 END), 0) AS interactions,
	COALESCE(SUM(CASE WHEN metric_bounced THEN 1 ELSE 0 END), 0) AS bounces,
	COUNT(DISTINCT viewer_id) AS viewers,
	COUNT(DISTINCT NULLIF(session_id, '')) AS sessions,
	COALESCE(SUM(metric_engagement_score), 0) AS score_sum,
	COALESCE(SUM(metric_time_on_page_seconds), 0) AS time_sum,
	COUNT(metric_time_on_page_seconds) AS time_count`

// GroupEvents rolls the events matching f up in SQL, one row per value of
// keyExpr. keyExpr is a column expression written by the caller, never
// request input. An empty keyExpr returns a single row covering every
// event. Limit and Offset are ignored.
func GroupEvents(ctx context.Context, db *gorm.DB, f Filter, keyExpr string) ([]GroupStats, error) {
	query := f.apply(db.WithContext(ctx))
	if keyExpr == "" {
		query = query.Select("'' AS group_key, " + groupStatsColumns)
	} else {
		query = query.Select(keyExpr + " AS group_key, " + groupStatsColumns).Group("group_key")
	}

	var rows []GroupStats
	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to group events: %w", err)
	}
	return rows, nil
}

// CountEvents counts the events matching f, ignoring Limit and Offset.
func CountEvents(ctx context.Context, db *gorm.DB, f Filter) (int64, error) {
	var count int64
	err := f.apply(db.WithContext(ctx)).Count(&count).Error
	return count, err
}

// EventsResult is one page of events, newest first.
type EventsResult struct {
	Events []Event
	Total  int64
}

// ListEvents returns a page of events for the raw event listing.
func ListEvents(ctx context.Context, db *gorm.DB, f Filter) (EventsResult, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}

	total, err := CountEvents(ctx, db, f)
	if err != nil {
		return EventsResult{}, err
	}

	var events []Event
	if err := f.apply(db.WithContext(ctx)).
		Order("created_at DESC").
		Order("id DESC").
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&events).Error; err != nil {
		return EventsResult{}, err
	}

	return EventsResult{Events: events, Total: total}, nil
}

// CountAll counts every stored event. Used by the store gauge job.
func CountAll(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&Event{}).Count(&count).Error
	return count, err
}
