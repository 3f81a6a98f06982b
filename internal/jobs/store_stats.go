package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"pagelens/internal/database"
	"pagelens/internal/events"
	"pagelens/internal/metrics"
)

// StoreStatsJob publishes the stored event count and checkpoints the WAL so
// the log file does not grow between restarts.
type StoreStatsJob struct {
	dbManager database.WALManager
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewStoreStatsJob(dbManager database.WALManager, m *metrics.Metrics, logger *slog.Logger) *StoreStatsJob {
	return &StoreStatsJob{dbManager: dbManager, metrics: m, logger: logger}
}

func (j *StoreStatsJob) Run(ctx context.Context) error {
	db := j.dbManager.GetConnection()
	if db == nil {
		return fmt.Errorf("store stats: database not connected")
	}

	count, err := events.CountAll(ctx, db)
	if err != nil {
		return fmt.Errorf("store stats: count events: %w", err)
	}
	if j.metrics != nil {
		j.metrics.StoredEvents.Set(float64(count))
	}

	if err := j.dbManager.CheckpointWAL("PASSIVE"); err != nil {
		j.logger.Warn("WAL checkpoint failed", slog.Any("error", err))
	}

	j.logger.Debug("Store stats updated", slog.Int64("stored_events", count))
	return nil
}
