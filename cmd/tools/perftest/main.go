// main.go - Load testing tool for the pagelens track endpoint
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"pagelens/internal/events"
)

// PerfConfig holds the configuration for the performance test
type PerfConfig struct {
	BaseURL      string
	Targets      []string
	Concurrency  int
	Duration     time.Duration
	EventsPerSec int
	Timeout      time.Duration
	OutputPath   string
}

// PerfStats holds statistics about the performance test
type PerfStats struct {
	mu                 sync.Mutex
	TotalRequests      int64
	SuccessfulRequests int64
	FilteredRequests   int64
	FailedRequests     int64
	DatabaseBusyErrors int64
	RateLimited        int64
	MinLatency         time.Duration
	MaxLatency         time.Duration
	TotalLatency       time.Duration
	StatusCodes        map[int]int64
	ResponseTimes      []time.Duration
	StartTime          time.Time
	EndTime            time.Time
}

// Result captures the result of a single request
type Result struct {
	Duration   time.Duration
	StatusCode int
	Filtered   bool
	Error      error
}

func main() {
	baseURL := flag.String("url", "http://localhost:3000", "Base URL of the API")
	targets := flag.String("targets", "demo-business", "Comma separated business ids to send events for")
	concurrency := flag.Int("c", 10, "Number of concurrent clients")
	duration := flag.Duration("d", 30*time.Second, "Duration of the test")
	eventsPerSec := flag.Int("rate", 0, "Target events per second (0 = unlimited)")
	timeout := flag.Duration("timeout", 10*time.Second, "Request timeout")
	output := flag.String("o", "perf_results.json", "Where to write the JSON summary (empty to skip)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	config := &PerfConfig{
		BaseURL:      strings.TrimRight(*baseURL, "/"),
		Targets:      strings.Split(*targets, ","),
		Concurrency:  max(*concurrency, 1),
		Duration:     *duration,
		EventsPerSec: *eventsPerSec,
		Timeout:      *timeout,
		OutputPath:   *output,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	testCtx, testCancel := context.WithTimeout(ctx, config.Duration)
	defer testCancel()

	logger.Info("Starting load test",
		slog.String("url", config.BaseURL+"/analytics/track"),
		slog.Int("concurrency", config.Concurrency),
		slog.Duration("duration", config.Duration),
		slog.Int("rate", config.EventsPerSec))

	stats := &PerfStats{StatusCodes: make(map[int]int64), StartTime: time.Now()}
	for result := range runTest(testCtx, config) {
		stats.Record(result)
	}
	stats.EndTime = time.Now()

	printResults(os.Stdout, stats)
	if config.OutputPath != "" {
		if err := exportResults(config.OutputPath, stats); err != nil {
			logger.Error("Failed to write results", slog.Any("error", err))
			os.Exit(1)
		}
	}
}

// runTest starts the workers and returns a channel of their results. The
// channel closes once ctx is done and every worker has returned.
func runTest(ctx context.Context, config *PerfConfig) <-chan Result {
	resultChan := make(chan Result, config.Concurrency*10)
	var wg sync.WaitGroup

	var interval time.Duration
	if config.EventsPerSec > 0 {
		perWorker := float64(config.EventsPerSec) / float64(config.Concurrency)
		interval = time.Duration(float64(time.Second) / perWorker)
	}

	for i := 0; i < config.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			client := &http.Client{Timeout: config.Timeout}
			rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(workerID)))
			sessionID := fmt.Sprintf("perf-%d-%d", workerID, time.Now().UnixNano())

			var ticker *time.Ticker
			if interval > 0 {
				ticker = time.NewTicker(interval)
				defer ticker.Stop()
			}

			for {
				if ticker != nil {
					select {
					case <-ticker.C:
					case <-ctx.Done():
						return
					}
				} else if ctx.Err() != nil {
					return
				}

				select {
				case resultChan <- sendRequest(ctx, client, config, generateEvent(rng, config.Targets, sessionID)):
				case <-ctx.Done():
					return
				}
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()
	return resultChan
}

func sendRequest(ctx context.Context, client *http.Client, config *PerfConfig, event events.TrackInput) Result {
	payload, err := json.Marshal(event)
	if err != nil {
		return Result{Error: fmt.Errorf("failed to marshal JSON: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.BaseURL+"/analytics/track", bytes.NewReader(payload))
	if err != nil {
		return Result{Error: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgents[rand.IntN(len(userAgents))])
	req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", rand.IntN(254)+1))

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return Result{Duration: elapsed, Error: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	var body struct {
		Filtered bool `json:"filtered"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil && err != io.EOF {
		return Result{Duration: elapsed, StatusCode: resp.StatusCode, Error: fmt.Errorf("invalid response body: %w", err)}
	}
	return Result{Duration: elapsed, StatusCode: resp.StatusCode, Filtered: body.Filtered}
}

var (
	userAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
	}
	clickLinks = []events.LinkInput{
		{LinkType: "social", LinkURL: "https://instagram.com/pagelens", SocialPlatform: "instagram"},
		{LinkType: "phone", LinkURL: "tel:+15125550100"},
		{LinkType: "email", LinkURL: "mailto:hello@example.com"},
		{LinkType: "website", LinkURL: "https://example.com"},
	}
)

// generateEvent returns a view three times out of four and a link click
// otherwise.
func generateEvent(rng *rand.Rand, targets []string, sessionID string) events.TrackInput {
	timeOnPage := float64(rng.IntN(300))
	scrollDepth := float64(rng.IntN(101))
	in := events.TrackInput{
		TargetID:        strings.TrimSpace(targets[rng.IntN(len(targets))]),
		TargetType:      events.TargetBusiness,
		InteractionType: events.InteractionView,
		SessionID:       sessionID,
		Metrics: &events.MetricsInput{
			TimeOnPage:  &timeOnPage,
			ScrollDepth: &scrollDepth,
			BounceRate:  timeOnPage < 10,
		},
	}
	if rng.IntN(4) == 0 {
		link := clickLinks[rng.IntN(len(clickLinks))]
		position := rng.IntN(6)
		link.LinkPosition = &position
		in.InteractionType = events.InteractionClick
		in.LinkData = &link
	}
	return in
}

// Record folds one result into the totals.
func (s *PerfStats) Record(result Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalRequests++
	if result.Error != nil {
		s.FailedRequests++
		return
	}

	s.StatusCodes[result.StatusCode]++
	s.ResponseTimes = append(s.ResponseTimes, result.Duration)
	s.TotalLatency += result.Duration
	if s.MinLatency == 0 || result.Duration < s.MinLatency {
		s.MinLatency = result.Duration
	}
	s.MaxLatency = max(s.MaxLatency, result.Duration)

	switch {
	case result.StatusCode == http.StatusCreated:
		s.SuccessfulRequests++
	case result.StatusCode == http.StatusOK && result.Filtered:
		s.FilteredRequests++
	case result.StatusCode == http.StatusServiceUnavailable:
		s.FailedRequests++
		s.DatabaseBusyErrors++
	case result.StatusCode == http.StatusTooManyRequests:
		s.FailedRequests++
		s.RateLimited++
	default:
		s.FailedRequests++
	}
}

// Percentile returns the p-th percentile (0..1) of the recorded latencies.
func (s *PerfStats) Percentile(p float64) time.Duration {
	if len(s.ResponseTimes) == 0 {
		return 0
	}
	sorted := slices.Clone(s.ResponseTimes)
	slices.Sort(sorted)
	idx := min(int(float64(len(sorted))*p), len(sorted)-1)
	return sorted[idx]
}

func (s *PerfStats) AvgLatency() time.Duration {
	answered := int64(len(s.ResponseTimes))
	if answered == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(answered)
}

func (s *PerfStats) RequestsPerSecond() float64 {
	elapsed := s.EndTime.Sub(s.StartTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.TotalRequests) / elapsed
}

func percentOf(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}

// printResults displays the test results as aligned tables
func printResults(out io.Writer, stats *PerfStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "\nMETRIC\tVALUE\n")
	fmt.Fprintf(w, "------\t-----\n")
	fmt.Fprintf(w, "Test Duration\t%v\n", stats.EndTime.Sub(stats.StartTime).Round(time.Millisecond))
	fmt.Fprintf(w, "Requests Per Second\t%.2f\n", stats.RequestsPerSecond())
	fmt.Fprintf(w, "Total Requests\t%d\n", stats.TotalRequests)
	fmt.Fprintf(w, "Recorded (201)\t%d (%.2f%%)\n", stats.SuccessfulRequests, percentOf(stats.SuccessfulRequests, stats.TotalRequests))
	fmt.Fprintf(w, "Filtered (200)\t%d (%.2f%%)\n", stats.FilteredRequests, percentOf(stats.FilteredRequests, stats.TotalRequests))
	fmt.Fprintf(w, "Failed Requests\t%d (%.2f%%)\n", stats.FailedRequests, percentOf(stats.FailedRequests, stats.TotalRequests))
	if stats.DatabaseBusyErrors > 0 {
		fmt.Fprintf(w, "Database Busy Errors\t%d\n", stats.DatabaseBusyErrors)
	}
	if stats.RateLimited > 0 {
		fmt.Fprintf(w, "Rate Limited\t%d\n", stats.RateLimited)
	}
	fmt.Fprintf(w, "Min Latency\t%v\n", stats.MinLatency)
	fmt.Fprintf(w, "Avg Latency\t%v\n", stats.AvgLatency())
	fmt.Fprintf(w, "p50 / p95 / p99\t%v / %v / %v\n", stats.Percentile(0.5), stats.Percentile(0.95), stats.Percentile(0.99))
	fmt.Fprintf(w, "Max Latency\t%v\n", stats.MaxLatency)
	w.Flush()

	if len(stats.StatusCodes) == 0 {
		return
	}
	codes := make([]int, 0, len(stats.StatusCodes))
	for code := range stats.StatusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)

	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "\nSTATUS CODE\tCOUNT\tPERCENTAGE\n")
	for _, code := range codes {
		count := stats.StatusCodes[code]
		fmt.Fprintf(w, "%d\t%d\t%.2f%%\n", code, count, percentOf(count, stats.TotalRequests))
	}
	w.Flush()
}

// exportResults saves the summary as JSON for external visualization
func exportResults(path string, stats *PerfStats) error {
	summary := map[string]any{
		"totalRequests":      stats.TotalRequests,
		"successfulRequests": stats.SuccessfulRequests,
		"filteredRequests":   stats.FilteredRequests,
		"failedRequests":     stats.FailedRequests,
		"databaseBusyErrors": stats.DatabaseBusyErrors,
		"rateLimited":        stats.RateLimited,
		"requestsPerSecond":  stats.RequestsPerSecond(),
		"avgLatencyMs":       stats.AvgLatency().Milliseconds(),
		"minLatencyMs":       stats.MinLatency.Milliseconds(),
		"maxLatencyMs":       stats.MaxLatency.Milliseconds(),
		"p50LatencyMs":       stats.Percentile(0.5).Milliseconds(),
		"p95LatencyMs":       stats.Percentile(0.95).Milliseconds(),
		"p99LatencyMs":       stats.Percentile(0.99).Milliseconds(),
		"startTime":          stats.StartTime.Format(time.RFC3339),
		"endTime":            stats.EndTime.Format(time.RFC3339),
		"statusCodes":        stats.StatusCodes,
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
