package timeframe

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const dateOnly = "2006-01-02"

// ParseError names the parameter that failed to parse.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type ParserParams struct {
	From      string
	To        string
	Timeframe string
	// Default applies when neither bounds nor Timeframe are given.
	Default Shorthand
}

type Parser struct {
	timeProvider TimeProvider
}

func NewParser(timeProvider ...TimeProvider) *Parser {
	var provider TimeProvider = &DefaultTimeProvider{}
	if len(timeProvider) > 0 && timeProvider[0] != nil {
		provider = timeProvider[0]
	}
	return &Parser{timeProvider: provider}
}

// Now exposes the parser's clock so callers share one notion of now.
func (p *Parser) Now() time.Time {
	return p.timeProvider.Now().UTC()
}

// Parse resolves explicit bounds first and falls back to the shorthand for
// whichever bound is missing. Dates without a time part cover the whole day.
func (p *Parser) Parse(params ParserParams) (Range, error) {
	now := p.Now()

	sh := Shorthand(strings.ToLower(strings.TrimSpace(params.Timeframe)))
	if sh == "" {
		sh = params.Default
	}
	if sh == "" {
		sh = ShorthandWeek
	}

	var fallback Range
	if params.From == "" || params.To == "" {
		resolved, err := ResolveShorthand(sh, now)
		if err != nil {
			return Range{}, &ParseError{Field: "timeframe", Err: err}
		}
		fallback = resolved
	}

	r := fallback
	if params.From != "" {
		from, err := parseBound(params.From, false)
		if err != nil {
			return Range{}, &ParseError{Field: "from", Err: err}
		}
		r.From = from
	}
	if params.To != "" {
		to, err := parseBound(params.To, true)
		if err != nil {
			return Range{}, &ParseError{Field: "to", Err: err}
		}
		r.To = to
	}

	if err := r.Validate(); err != nil {
		return Range{}, &ParseError{Field: "from", Err: err}
	}
	return r, nil
}

// LastMinutes is the real-time window ending now.
func (p *Parser) LastMinutes(minutes int) Range {
	now := p.Now()
	return Range{From: now.Add(-time.Duration(minutes) * time.Minute), To: now}
}

func parseBound(s string, isEnd bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}

	date, err := time.ParseInLocation(dateOnly, s, time.UTC)
	if err != nil {
		return time.Time{}, errors.New("expected YYYY-MM-DD or RFC 3339 timestamp")
	}
	if isEnd {
		return time.Date(date.Year(), date.Month(), date.Day(), 23, 59, 59, 999999999, time.UTC), nil
	}
	return date, nil
}
