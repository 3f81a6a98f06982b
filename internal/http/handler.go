// Package http serves the read side of the analytics API over fiber.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"pagelens/internal/analytics"
	"pagelens/internal/events"
	"pagelens/internal/http/middleware"
	"pagelens/internal/targets"
	"pagelens/internal/timeframe"
	"pagelens/internal/validation"
)

// Response is the envelope of every API reply.
type Response struct {
	Success bool                    `json:"success"`
	Message string                  `json:"message,omitempty"`
	Data    any                     `json:"data,omitempty"`
	Errors  []validation.FieldError `json:"errors,omitempty"`
}

// Handler holds the dependencies of the read endpoints.
type Handler struct {
	service *analytics.Service
	parser  *timeframe.Parser
	logger  *slog.Logger
}

func NewHandler(service *analytics.Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		// The parser shares the service clock so ranges and real-time
		// windows agree on now.
		parser: timeframe.NewParser(service),
		logger: logger,
	}
}

func respond(c *fiber.Ctx, data any) error {
	return c.JSON(Response{Success: true, Data: data})
}

// Fail writes err as an API error. Validation errors are itemized with
// status 400.
func Fail(c *fiber.Ctx, logger *slog.Logger, err error) error {
	if ve, ok := validation.AsValidationError(err); ok {
		return c.Status(fiber.StatusBadRequest).JSON(Response{
			Message: "Validation failed",
			Errors:  ve.Fields,
		})
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(Response{Message: fe.Message})
	}

	if errors.Is(err, targets.ErrTargetNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(Response{Message: "Target not found"})
	}
	if errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("Analytics query timed out", slog.String("path", c.Path()))
		return c.Status(fiber.StatusGatewayTimeout).JSON(Response{Message: "Query timed out"})
	}

	logger.Error("Request failed",
		slog.String("path", c.Path()),
		slog.String("user_id", middleware.IdentityFrom(c).UserID),
		slog.Any("error", err))
	return c.Status(fiber.StatusInternalServerError).JSON(Response{Message: "Internal server error"})
}

// params collects the common query parameters. Malformed numbers and flags
// are gathered as field errors instead of failing on the first one.
type params struct {
	c      *fiber.Ctx
	errors []validation.FieldError
}

func (p *params) number(name string, def int) int {
	if v := p.optionalNumber(name); v != nil {
		return *v
	}
	return def
}

// optionalNumber is nil when name is absent or malformed, so an explicit 0
// stays distinguishable from a missing parameter.
func (p *params) optionalNumber(name string) *int {
	raw := strings.TrimSpace(p.c.Query(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errors = append(p.errors, validation.FieldError{
			Field:   name,
			Tag:     "number",
			Message: fmt.Sprintf("%s must be a whole number", name),
		})
		return nil
	}
	return &v
}

func (p *params) flag(name string) bool {
	raw := strings.TrimSpace(p.c.Query(name))
	if raw == "" {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.errors = append(p.errors, validation.FieldError{
			Field:   name,
			Tag:     "boolean",
			Message: fmt.Sprintf("%s must be true or false", name),
		})
		return false
	}
	return v
}

func targetID(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Query("targetId"))
}

func targetType(c *fiber.Ctx) events.TargetType {
	return events.TargetType(c.Query("targetType", string(events.TargetBusiness)))
}

// query parses targetId, targetType, from, to, timeframe and limit. A
// missing range falls back to the def shorthand. Parse failures are
// collected in p and leave the range open; the service reports them with
// the rest of the validation errors.
func (h *Handler) query(c *fiber.Ctx, p *params, def timeframe.Shorthand) analytics.Query {
	r, err := h.parser.Parse(timeframe.ParserParams{
		From:      c.Query("from"),
		To:        c.Query("to"),
		Timeframe: c.Query("timeframe"),
		Default:   def,
	})
	var pe *timeframe.ParseError
	if errors.As(err, &pe) {
		p.errors = append(p.errors, validation.FieldError{Field: pe.Field, Tag: "format", Message: pe.Error()})
	}

	return analytics.Query{
		TargetID:   targetID(c),
		TargetType: targetType(c),
		From:       r.From,
		To:         r.To,
		Limit:      p.number("limit", 0),
	}
}
