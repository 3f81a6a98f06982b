package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"pagelens/internal/events"
	"pagelens/internal/timeframe"
	"pagelens/internal/visitors"
)

type PaginationData struct {
	CurrentPage int   `json:"currentPage"`
	TotalPages  int   `json:"totalPages"`
	TotalItems  int64 `json:"totalItems"`
	PerPage     int   `json:"perPage"`
}

// Event is the listing view of a stored event. Viewer ids are replaced by
// a stable alias.
type Event struct {
	ID              string                 `json:"id"`
	CreatedAt       time.Time              `json:"createdAt"`
	InteractionType events.InteractionType `json:"interactionType"`
	Viewer          string                 `json:"viewer"`
	ViewerType      string                 `json:"viewerType"`
	SessionID       string                 `json:"sessionId"`
	Country         string                 `json:"country,omitempty"`
	City            string                 `json:"city,omitempty"`
	DeviceType      string                 `json:"deviceType"`
	ReferralSource  string                 `json:"referralSource"`
	LinkType        string                 `json:"linkType,omitempty"`
	LinkURL         string                 `json:"linkUrl,omitempty"`
	EngagementScore float64                `json:"engagementScore"`
}

type EventsResponse struct {
	Events     []Event        `json:"events"`
	Pagination PaginationData `json:"pagination"`
}

// EventsAction handles GET /analytics/events, the raw event listing
// (newest first, 50 per page unless limit says otherwise).
func (h *Handler) EventsAction(c *fiber.Ctx) error {
	p := &params{c: c}
	q := h.query(c, p, timeframe.ShorthandWeek)
	page := max(p.number("page", 1), 1)
	q.ParamErrors = p.errors

	perPage := q.Limit
	if perPage <= 0 {
		perPage = events.DefaultPageSize
	}
	q.Limit = perPage

	result, err := h.service.Events(c.UserContext(), q, (page-1)*perPage)
	if err != nil {
		return Fail(c, h.logger, err)
	}

	mapped := make([]Event, len(result.Events))
	for i, e := range result.Events {
		mapped[i] = Event{
			ID:              e.ID,
			CreatedAt:       e.CreatedAt,
			InteractionType: e.InteractionType,
			Viewer:          viewerLabel(e),
			ViewerType:      string(e.ViewerType),
			SessionID:       e.SessionID,
			Country:         e.Location.Country,
			City:            e.Location.City,
			DeviceType:      e.Device.Type,
			ReferralSource:  string(e.Referral.Source),
			LinkType:        e.LinkData.Type,
			LinkURL:         e.LinkData.URL,
			EngagementScore: e.Metrics.EngagementScore,
		}
	}

	return respond(c, EventsResponse{
		Events: mapped,
		Pagination: PaginationData{
			CurrentPage: page,
			TotalPages:  int((result.Total + int64(perPage) - 1) / int64(perPage)),
			TotalItems:  result.Total,
			PerPage:     perPage,
		},
	})
}

// viewerLabel aliases the viewer, falling back to the session for
// anonymous events.
func viewerLabel(e events.Event) string {
	if e.ViewerID != nil {
		return visitors.Alias(*e.ViewerID)
	}
	return visitors.Alias(e.SessionID)
}
