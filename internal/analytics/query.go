// Package analytics rolls stored events up into per-target reports.
//
// Every report follows the same steps: select the events of one target
// (optionally within a date range), group them, derive the per-group
// metrics, sort and truncate. Counting reports group in SQL through
// events.GroupEvents; reports that need per-event detail load only the
// columns they read and group in memory. The files are organized by report:
//   - location.go: country, region and city rollups
//   - links.go: clicked link rollups
//   - peakhours.go: hour-of-day and day-of-week rollups
//   - timeseries.go, trends.go: calendar buckets and their trends
//   - breakdowns.go: device, referral and interaction counts
//   - service.go, dashboard.go, realtime.go, export.go: composed reports
package analytics

import (
	"fmt"
	"strings"
	"time"

	"pagelens/internal/events"
	"pagelens/internal/timeframe"
	"pagelens/internal/validation"
)

const (
	DefaultLocationLimit = 50
	DefaultLinkLimit     = 20
	TopLinksLimit        = 10
	MaxLimit             = 1000

	unknownKey = "unknown"
)

// Query selects the events of one target. Zero From/To leave that side of
// the range open; a zero Limit means the report's default.
type Query struct {
	TargetID   string            `json:"targetId" validate:"required,notblank,max=128"`
	TargetType events.TargetType `json:"targetType" validate:"required,enum"`
	From       time.Time         `json:"from"`
	To         time.Time         `json:"to"`
	Limit      int               `json:"limit" validate:"gte=0,lte=1000"`

	// ParamErrors are failures found while decoding the request, such as a
	// malformed date. They are reported together with the validation errors.
	ParamErrors []validation.FieldError `json:"-" validate:"-"`

	// rowCap replaces the report default when Limit is zero. Exports set it
	// so grouped sections are not cut at the dashboard sizes.
	rowCap int
}

func (q Query) Range() timeframe.Range {
	return timeframe.Range{From: q.From, To: q.To}
}

func (q Query) filter() events.Filter {
	return events.Filter{
		TargetID:   strings.TrimSpace(q.TargetID),
		TargetType: q.TargetType,
		From:       q.From,
		To:         q.To,
	}
}

func (q Query) limitOr(def int) int {
	if q.Limit > 0 {
		return q.Limit
	}
	if q.rowCap > 0 {
		return q.rowCap
	}
	return def
}

// validate checks the query plus any report specific field errors. All
// failures are reported together.
func (q Query) validate(extra ...validation.FieldError) error {
	extra = append(append([]validation.FieldError(nil), q.ParamErrors...), extra...)
	if !q.From.IsZero() && !q.To.IsZero() && q.From.After(q.To) {
		extra = append(extra, validation.FieldError{
			Field:   "from",
			Tag:     "range",
			Message: "from must not be after to",
		})
	}
	return validation.ValidateStruct(q, extra...)
}

// reported reports whether decoding already failed for field.
func (q Query) reported(field string) bool {
	for _, fe := range q.ParamErrors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// enumCheck returns a field error when value is not one of allowed.
func enumCheck[T ~string](field string, value T, allowed ...T) []validation.FieldError {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}

	names := make([]string, len(allowed))
	for i, a := range allowed {
		names[i] = string(a)
	}
	tag, message := "oneof", fmt.Sprintf("%s must be one of: %s", field, strings.Join(names, " "))
	if value == "" {
		tag, message = "required", fmt.Sprintf("%s is required", field)
	}
	return []validation.FieldError{{Field: field, Tag: tag, Message: message}}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknownKey
	}
	return s
}
