package warming

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Scheduler runs recurring warming jobs on stdlib tickers. The source
// system used encore.dev/cron, a managed scheduler for independently
// deployed services; a ParameterCache lives inside a single long-running
// process, so a time.Ticker per job is sufficient and needs no external
// scheduling infrastructure.
type Scheduler struct {
	service  *Service
	jobs     map[string]*ScheduledJob
	mu       sync.RWMutex
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// ScheduledJob represents a recurring warming job.
type ScheduledJob struct {
	ID         string
	Name       string
	Interval   time.Duration
	Strategy   string
	Pattern    string
	Limit      int
	Priority   int
	Enabled    bool
	LastRun    *time.Time
	RunCount   int64
	FailCount  int64
}

// NewScheduler creates a scheduler and starts its three built-in
// predictive-warming jobs: a daily pass, an hourly refresh, and a
// heavier pass ahead of expected peak operating windows (ground station
// passes cluster around a handful of times per day).
func NewScheduler(service *Service) *Scheduler {
	s := &Scheduler{
		service:  service,
		jobs:     make(map[string]*ScheduledJob),
		stopChan: make(chan struct{}),
	}

	s.startBuiltinJob("daily-warmup", 24*time.Hour, 50, s.dailyWarmup)
	s.startBuiltinJob("hourly-refresh", time.Hour, 70, s.hourlyRefresh)
	s.startBuiltinJob("peak-window-warmup", 6*time.Hour, 90, s.peakWindowWarmup)

	return s
}

// startBuiltinJob launches a ticker-backed goroutine running run every
// interval, skipping the immediate first tick (the process just started
// and has no access history yet to predict from).
func (s *Scheduler) startBuiltinJob(name string, interval time.Duration, priority int, run func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				_ = run(ctx)
				cancel()
			}
		}
	}()
}

// dailyWarmup triggers a predictive warming pass (TriggerPredictive, which
// predicts over the next hour).
func (s *Scheduler) dailyWarmup(ctx context.Context) error {
	_, err := s.service.TriggerPredictive(ctx)
	return err
}

// hourlyRefresh predicts hot parameters for the next hour and warms them
// at medium-high priority.
func (s *Scheduler) hourlyRefresh(ctx context.Context) error {
	hotNames, err := s.service.predictor.PredictHotParameters(ctx, time.Hour, 50)
	if err != nil {
		return err
	}
	if len(hotNames) == 0 {
		return nil
	}
	_, err = s.service.WarmParameter(ctx, &WarmParameterRequest{
		Names:    hotNames,
		Priority: 70,
		Strategy: "priority",
	})
	return err
}

// peakWindowWarmup warms more aggressively ahead of an expected high-read
// window (e.g. an upcoming pass), predicting two hours out and warming
// twice as many names at high priority.
func (s *Scheduler) peakWindowWarmup(ctx context.Context) error {
	hotNames, err := s.service.predictor.PredictHotParameters(ctx, 2*time.Hour, 100)
	if err != nil {
		return err
	}
	if len(hotNames) == 0 {
		return nil
	}
	_, err = s.service.WarmParameter(ctx, &WarmParameterRequest{
		Names:    hotNames,
		Priority: 90,
		Strategy: "priority",
	})
	return err
}

// RegisterJob registers a custom scheduled warming job definition. This
// is bookkeeping only -- ScheduledJob entries created this way are not
// yet wired to a running ticker (see executeJob for the intended manual
// trigger path).
func (s *Scheduler) RegisterJob(job *ScheduledJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

// UnregisterJob removes a scheduled job.
func (s *Scheduler) UnregisterJob(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobID]; !exists {
		return fmt.Errorf("job %s not found", jobID)
	}
	delete(s.jobs, jobID)
	return nil
}

// ListJobs returns all registered custom jobs.
func (s *Scheduler) ListJobs() []*ScheduledJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*ScheduledJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// executeJob runs a registered custom job immediately, predicting hot
// parameters and filtering them by the job's pattern before warming.
func (s *Scheduler) executeJob(ctx context.Context, job *ScheduledJob) error {
	if !job.Enabled {
		return nil
	}

	now := time.Now()
	job.LastRun = &now

	strategy, exists := s.service.strategies[job.Strategy]
	if !exists {
		job.FailCount++
		return fmt.Errorf("unknown strategy: %s", job.Strategy)
	}

	var names []string
	if job.Pattern != "" {
		predicted, err := s.service.predictor.PredictHotParameters(ctx, time.Hour, job.Limit)
		if err != nil {
			job.FailCount++
			return fmt.Errorf("prediction failed: %w", err)
		}
		names = filterByPattern(predicted, job.Pattern)
	}

	if len(names) == 0 {
		return nil
	}

	tasks, err := strategy.Plan(ctx, PlanOptions{
		Names:    names,
		Priority: job.Priority,
		Limit:    job.Limit,
	})
	if err != nil {
		job.FailCount++
		return fmt.Errorf("planning failed: %w", err)
	}

	queued := s.service.workerPool.QueueTasks(tasks)
	if queued > 0 {
		job.RunCount++
		s.service.metrics.JobsTotal.Add(int64(queued))
	}

	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

// filterByPattern filters names that match pattern using simple prefix
// matching (strip a trailing '*').
func filterByPattern(names []string, pattern string) []string {
	if pattern == "*" {
		return names
	}

	prefix := pattern
	if len(pattern) > 0 && pattern[len(pattern)-1] == '*' {
		prefix = pattern[:len(pattern)-1]
	}

	filtered := make([]string, 0)
	for _, name := range names {
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			filtered = append(filtered, name)
		}
	}
	return filtered
}
