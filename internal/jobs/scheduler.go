package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pagelens/internal/config"
	"pagelens/internal/database"
	"pagelens/internal/metrics"
)

// Job is a unit of background work run on a fixed interval.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs background jobs, one at a time.
type Scheduler struct {
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	jobs   []Job
	wg     sync.WaitGroup

	stateMutex sync.Mutex
	isRunning  bool

	// Mutex to prevent concurrent job executions
	processingMutex sync.Mutex
	isProcessing    bool
}

func NewScheduler(logger *slog.Logger, jobs ...Job) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   jobs,
	}
}

// DefaultJobs returns the jobs the server runs: the stored-events gauge and
// WAL checkpoint on the configured interval, and the weekly GeoLite refresh.
func DefaultJobs(cfg *config.Config, dbManager database.WALManager, m *metrics.Metrics, logger *slog.Logger) []Job {
	interval := time.Duration(cfg.JobIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	stats := NewStoreStatsJob(dbManager, m, logger)
	geolite := NewGeoLiteUpdaterJob(cfg, logger)

	return []Job{
		{Name: "store_stats", Interval: interval, Run: stats.Run},
		// The updater checks the file age itself, hourly is enough.
		{Name: "geolite_updater", Interval: time.Hour, Run: geolite.Run},
	}
}

// executeJobSafely runs a job only if no other job is currently executing
func (s *Scheduler) executeJobSafely(job Job) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", job.Name))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", job.Name),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := job.Run(s.ctx); err != nil {
		s.logger.Error("Error executing job", slog.String("job", job.Name), slog.Any("error", err))
	}
}

// Start launches every job. Each job runs once right away and then on its
// interval until Stop.
func (s *Scheduler) Start() {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return
	}
	if s.ctx.Err() != nil {
		s.logger.Info("Background jobs were stopped and cannot be restarted.")
		return
	}

	s.logger.Info("Starting background jobs...", slog.Int("jobs", len(s.jobs)))
	s.isRunning = true

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(job)
	}
}

func (s *Scheduler) loop(job Job) {
	defer s.wg.Done()

	s.logger.Info("Starting job", slog.String("job", job.Name), slog.Duration("interval", job.Interval))
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.executeJobSafely(job)

	for {
		select {
		case <-ticker.C:
			s.executeJobSafely(job)
		case <-s.ctx.Done():
			s.logger.Info("Job stopped", slog.String("job", job.Name))
			return
		}
	}
}

// Stop halts all jobs and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.cancel()
	s.wg.Wait()

	s.stateMutex.Lock()
	s.isRunning = false
	s.stateMutex.Unlock()
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	return s.isRunning
}
