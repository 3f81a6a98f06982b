package http

import (
	"github.com/gofiber/fiber/v2"

	"pagelens/internal/analytics"
	"pagelens/internal/timeframe"
)

// DashboardAction handles GET /analytics/dashboard. Sections other than the
// time series are opt-in through include* flags.
func (h *Handler) DashboardAction(c *fiber.Ctx) error {
	p := &params{c: c}
	req := analytics.DashboardRequest{
		Query:            h.query(c, p, timeframe.ShorthandMonth),
		GroupBy:          timeframe.BucketSize(c.Query("groupBy")),
		IncludeLocations: p.flag("includeLocations"),
		IncludeLinks:     p.flag("includeLinks"),
		IncludePeakHours: p.flag("includePeakHours"),
		IncludeDevices:   p.flag("includeDevices"),
		IncludeReferrals: p.flag("includeReferrals"),
	}
	req.ParamErrors = p.errors

	dashboard, err := h.service.Dashboard(c.UserContext(), req)
	if err != nil {
		return Fail(c, h.logger, err)
	}
	return respond(c, dashboard)
}

// RealTimeAction handles GET /analytics/real-time. Every section is opt-in
// and minutes defaults to 30 only when absent.
func (h *Handler) RealTimeAction(c *fiber.Ctx) error {
	p := &params{c: c}
	req := analytics.RealTimeRequest{
		TargetID:            targetID(c),
		TargetType:          targetType(c),
		Minutes:             p.optionalNumber("minutes"),
		IncludeActive:       p.flag("includeActive"),
		IncludeTimeline:     p.flag("includeTimeline"),
		IncludeInteractions: p.flag("includeInteractions"),
		IncludeCountries:    p.flag("includeCountries"),
	}
	req.ParamErrors = p.errors

	realTime, err := h.service.RealTime(c.UserContext(), req)
	if err != nil {
		return Fail(c, h.logger, err)
	}
	return respond(c, realTime)
}
