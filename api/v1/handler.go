package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge/sqlite"

	"pagelens/internal/events"
	apihttp "pagelens/internal/http"
	"pagelens/internal/http/middleware"
)

const (
	errInvalidRequest = "Invalid request"
	errStorageBusy    = "Storage busy, retry later"
)

// TrackResponse is the body of a successful track call. Filtered is set
// when the event came from a bot and was dropped.
type TrackResponse struct {
	Success  bool                `json:"success"`
	Data     *events.TrackResult `json:"data,omitempty"`
	Filtered bool                `json:"filtered,omitempty"`
}

type TrackHandler struct {
	recorder *events.Recorder
	logger   *slog.Logger
}

func NewTrackHandler(recorder *events.Recorder, logger *slog.Logger) *TrackHandler {
	return &TrackHandler{recorder: recorder, logger: logger}
}

// TrackAction handles POST /analytics/track.
func (h *TrackHandler) TrackAction(c *fiber.Ctx) error {
	var in events.TrackInput
	if err := c.BodyParser(&in); err != nil {
		h.logger.Debug("Failed to parse track request", slog.Any("error", err))
		return apihttp.Fail(c, h.logger, fiber.NewError(http.StatusBadRequest, errInvalidRequest))
	}

	in.IPAddress = clientIP(c)
	in.UserAgent = c.Get(fiber.HeaderUserAgent)
	if forwardedUA := c.Get("X-Forwarded-User-Agent"); forwardedUA != "" {
		in.UserAgent = forwardedUA
	}
	in.Referer = c.Get(fiber.HeaderReferer)
	in.Query = queryParams(c)

	if identity := middleware.IdentityFrom(c); in.ViewerID == "" && !identity.Anonymous() {
		in.ViewerID = identity.UserID
	}

	result, err := h.recorder.RecordEvent(c.UserContext(), in)
	switch {
	case errors.Is(err, events.ErrBotFiltered):
		return c.Status(http.StatusOK).JSON(TrackResponse{Success: true, Filtered: true})
	case err != nil && sqlite.IsBusyError(err):
		h.logger.Warn("Track request hit a busy database", slog.String("target_id", in.TargetID))
		return apihttp.Fail(c, h.logger, fiber.NewError(http.StatusServiceUnavailable, errStorageBusy))
	case err != nil:
		return apihttp.Fail(c, h.logger, err)
	}

	h.logger.Debug("Tracked event",
		slog.String("event_id", result.EventID),
		slog.String("target_id", in.TargetID),
		slog.String("interaction_type", string(in.InteractionType)))
	return c.Status(http.StatusCreated).JSON(TrackResponse{Success: true, Data: result})
}
