package http

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"pagelens/internal/analytics"
)

// ExportAction handles GET /analytics/export. from and to are required;
// format=csv streams section,key,metric,value rows instead of JSON.
func (h *Handler) ExportAction(c *fiber.Ctx) error {
	p := &params{c: c}
	q := h.query(c, p, "")
	// Exports never fall back to a shorthand range.
	if c.Query("from") == "" {
		q.From = time.Time{}
	}
	if c.Query("to") == "" {
		q.To = time.Time{}
	}

	req := analytics.ExportRequest{
		Query:          q,
		Metrics:        exportMetrics(c.Query("metrics")),
		IncludeRawData: p.flag("includeRawData"),
		Format:         analytics.ExportFormat(strings.ToLower(c.Query("format", string(analytics.FormatJSON)))),
	}
	req.ParamErrors = p.errors

	bundle, err := h.service.Export(c.UserContext(), req)
	if err != nil {
		return Fail(c, h.logger, err)
	}
	if len(bundle.Errors) > 0 {
		h.logger.Warn("Export finished with failed sections",
			slog.String("target_id", bundle.TargetID),
			slog.Any("errors", bundle.Errors))
	}

	if req.Format != analytics.FormatCSV {
		return respond(c, bundle)
	}

	filename := fmt.Sprintf("pagelens-%s-%s.csv", bundle.TargetID, bundle.GeneratedAt.Format("20060102"))
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	if err := analytics.WriteCSV(c.Response().BodyWriter(), bundle); err != nil {
		return Fail(c, h.logger, err)
	}
	return nil
}

// exportMetrics splits a comma separated metrics list.
func exportMetrics(raw string) []analytics.ExportMetric {
	var metrics []analytics.ExportMetric
	for _, part := range strings.Split(raw, ",") {
		if m := strings.TrimSpace(part); m != "" {
			metrics = append(metrics, analytics.ExportMetric(m))
		}
	}
	return metrics
}
