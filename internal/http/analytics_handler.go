package http

import (
	"github.com/gofiber/fiber/v2"

	"pagelens/internal/analytics"
	"pagelens/internal/timeframe"
)

// LocationAction handles GET /analytics/location.
func (h *Handler) LocationAction(c *fiber.Ctx) error {
	p := &params{c: c}
	q := h.query(c, p, timeframe.ShorthandMonth)
	q.ParamErrors = p.errors

	groupBy := analytics.LocationGroupBy(c.Query("groupBy", string(analytics.GroupByCountry)))
	result, err := h.service.Locations(c.UserContext(), q, groupBy)
	if err != nil {
		return Fail(c, h.logger, err)
	}
	return respond(c, result)
}

// LinksAction handles GET /analytics/links.
func (h *Handler) LinksAction(c *fiber.Ctx) error {
	p := &params{c: c}
	q := h.query(c, p, timeframe.ShorthandMonth)
	q.ParamErrors = p.errors

	groupBy := analytics.LinkGroupBy(c.Query("groupBy", string(analytics.GroupByLinkType)))
	result, err := h.service.Links(c.UserContext(), q, groupBy, c.Query("linkType"))
	if err != nil {
		return Fail(c, h.logger, err)
	}
	return respond(c, result)
}

// PeakHoursAction handles GET /analytics/peak-hours.
func (h *Handler) PeakHoursAction(c *fiber.Ctx) error {
	p := &params{c: c}
	q := h.query(c, p, timeframe.ShorthandMonth)
	q.ParamErrors = p.errors

	groupBy := analytics.PeakGroupBy(c.Query("groupBy", string(analytics.GroupByHour)))
	result, err := h.service.PeakHours(c.UserContext(), q, groupBy)
	if err != nil {
		return Fail(c, h.logger, err)
	}
	return respond(c, result)
}

// TimeFilteredAction handles GET /analytics/time-filtered. Without from/to
// the range comes from the timeframe shorthand (week by default).
func (h *Handler) TimeFilteredAction(c *fiber.Ctx) error {
	p := &params{c: c}
	q := h.query(c, p, timeframe.ShorthandWeek)
	q.ParamErrors = p.errors

	groupBy := timeframe.BucketSize(c.Query("groupBy", string(timeframe.BucketSizeDay)))
	result, err := h.service.TimeSeries(c.UserContext(), q, groupBy)
	if err != nil {
		return Fail(c, h.logger, err)
	}
	return respond(c, result)
}
