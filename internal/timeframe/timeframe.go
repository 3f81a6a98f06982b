// Package timeframe resolves query date ranges and maps instants to the
// calendar buckets used by the time series aggregations. All bucketing is
// done in UTC.
package timeframe

import (
	"fmt"
	"time"
)

type BucketSize string

const (
	BucketSizeMinute BucketSize = "minute"
	BucketSizeHour   BucketSize = "hour"
	BucketSizeDay    BucketSize = "day"
	BucketSizeWeek   BucketSize = "week"
	BucketSizeMonth  BucketSize = "month"
)

// Shorthand names a default range relative to now.
type Shorthand string

const (
	ShorthandWeek  Shorthand = "week"
	ShorthandMonth Shorthand = "month"
	ShorthandYear  Shorthand = "year"
)

// maxPoints bounds Points so a bad range cannot allocate without limit.
const maxPoints = 2000

type TimeProvider interface {
	Now() time.Time
}

// DefaultTimeProvider uses the system clock in UTC.
type DefaultTimeProvider struct{}

func (p *DefaultTimeProvider) Now() time.Time {
	return time.Now().UTC()
}

// Range is a closed interval of instants.
type Range struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r Range) Validate() error {
	if r.From.After(r.To) {
		return fmt.Errorf("from must not be after to")
	}
	return nil
}

// Period is the structured form of a bucket key.
type Period struct {
	Year   int  `json:"year"`
	Month  int  `json:"month,omitempty"`
	Week   int  `json:"week,omitempty"`
	Day    int  `json:"day,omitempty"`
	Hour   *int `json:"hour,omitempty"`
	Minute *int `json:"minute,omitempty"`
}

// ResolveShorthand turns a shorthand into a range ending at now. week is the
// trailing seven days; month and year start at the current calendar boundary.
func ResolveShorthand(sh Shorthand, now time.Time) (Range, error) {
	now = now.UTC()
	switch sh {
	case ShorthandWeek:
		return Range{From: now.AddDate(0, 0, -7), To: now}, nil
	case ShorthandMonth:
		return Range{From: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), To: now}, nil
	case ShorthandYear:
		return Range{From: time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC), To: now}, nil
	default:
		return Range{}, fmt.Errorf("unknown timeframe: %s", sh)
	}
}

// TruncateToBucket returns the UTC start of the bucket holding t. Weeks
// start on Monday, matching ISO week numbering.
func TruncateToBucket(t time.Time, size BucketSize) time.Time {
	utc := t.UTC()
	year, month, day := utc.Date()

	switch size {
	case BucketSizeMonth:
		return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	case BucketSizeWeek:
		weekday := int(utc.Weekday())
		if weekday == 0 { // Sunday
			weekday = 7
		}
		return time.Date(year, month, day-(weekday-1), 0, 0, 0, 0, time.UTC)
	case BucketSizeDay:
		return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	case BucketSizeHour:
		return time.Date(year, month, day, utc.Hour(), 0, 0, 0, time.UTC)
	case BucketSizeMinute:
		return time.Date(year, month, day, utc.Hour(), utc.Minute(), 0, 0, time.UTC)
	default:
		return utc
	}
}

// BucketKey labels the bucket holding t. Keys sort lexically in
// chronological order within one bucket size.
func BucketKey(t time.Time, size BucketSize) string {
	utc := t.UTC()
	switch size {
	case BucketSizeMonth:
		return utc.Format("2006-01")
	case BucketSizeWeek:
		year, week := utc.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case BucketSizeDay:
		return utc.Format("2006-01-02")
	case BucketSizeHour:
		return utc.Format("2006-01-02 15:00")
	case BucketSizeMinute:
		return utc.Format("2006-01-02 15:04")
	default:
		return utc.Format(time.RFC3339)
	}
}

// PeriodFor breaks the bucket holding t into its calendar components.
func PeriodFor(t time.Time, size BucketSize) Period {
	utc := t.UTC()
	switch size {
	case BucketSizeMonth:
		return Period{Year: utc.Year(), Month: int(utc.Month())}
	case BucketSizeWeek:
		year, week := utc.ISOWeek()
		return Period{Year: year, Week: week}
	case BucketSizeDay:
		return Period{Year: utc.Year(), Month: int(utc.Month()), Day: utc.Day()}
	case BucketSizeHour:
		hour := utc.Hour()
		return Period{Year: utc.Year(), Month: int(utc.Month()), Day: utc.Day(), Hour: &hour}
	default:
		hour, minute := utc.Hour(), utc.Minute()
		return Period{Year: utc.Year(), Month: int(utc.Month()), Day: utc.Day(), Hour: &hour, Minute: &minute}
	}
}

// Points lists the start of every bucket overlapping r, oldest first.
func Points(r Range, size BucketSize) []time.Time {
	if r.From.After(r.To) {
		return nil
	}

	points := []time.Time{}
	end := TruncateToBucket(r.To, size)
	for current := TruncateToBucket(r.From, size); !current.After(end) && len(points) < maxPoints; current = next(current, size) {
		points = append(points, current)
	}
	return points
}

func next(t time.Time, size BucketSize) time.Time {
	switch size {
	case BucketSizeMonth:
		return t.AddDate(0, 1, 0)
	case BucketSizeWeek:
		return t.AddDate(0, 0, 7)
	case BucketSizeDay:
		return t.AddDate(0, 0, 1)
	case BucketSizeHour:
		return t.Add(time.Hour)
	default:
		return t.Add(time.Minute)
	}
}
