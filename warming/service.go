// Package warming provides proactive cache prewarming to prevent cold-miss
// latency on the first read of a parameter under the lazy-subscription
// policy (paramcache.Config.CacheAll == false).
//
// Design Philosophy:
//   - The distributed cache this package is adapted from fetched a value
//     from an origin service and wrote it into a remote cache (OriginFetcher
//     + CacheClient). A ParameterCache has no origin to fetch from -- values
//     arrive on their own from the telemetry processing pipeline via
//     Update -- so "warming" here means enrolling a parameter in the
//     subscribed set (ParameterCache.Subscribe) before the first reader
//     asks for it, so the very first Update after subscription is retained
//     instead of dropped.
//   - Multiple strategies (selective/breadth/priority) decide which
//     parameters to subscribe and in what order, unchanged in spirit from
//     the source system.
//   - A worker pool subscribes concurrently, deduplicating concurrent
//     requests for the same parameter and rate-limiting subscribe
//     throughput so a large watchlist can't monopolize the cache's
//     internal locks at startup.
//
// Trade-offs:
//   - In-memory job queue for simplicity; a persistent queue would survive
//     a process restart mid-warm, but a restart just means rebuilding the
//     subscribed set from scratch, which is cheap.
//   - DefaultPredictor is a simple frequency/growth-rate heuristic (see
//     predictor.go); MLPredictor is an honest placeholder for a model this
//     package does not ship.
package warming

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/groundstation/telemetry-paramcache/paramcache"
	"github.com/groundstation/telemetry-paramcache/pkg/middleware"
	"github.com/groundstation/telemetry-paramcache/pkg/pubsub"
	"github.com/groundstation/telemetry-paramcache/pkg/utils"
)

// Service prewarms a ParameterCache's lazy-subscription set. It owns a
// worker pool, a predictor, a scheduler, and the strategies that decide
// what to subscribe next.
type Service struct {
	cache      *paramcache.ParameterCache
	bus        *pubsub.Bus
	catalog    []string // known parameter names, for pattern-based warming
	config     Config
	strategies map[string]Strategy
	predictor  Predictor
	scheduler  *Scheduler
	workerPool *WorkerPool
	metrics    *Metrics

	rateLimiter   *rate.Limiter
	deduper       singleflight.Group
	emergencyStop atomic.Bool

	mu sync.RWMutex
}

// Config holds runtime configuration for the warming service.
type Config struct {
	MaxSubscribeRPS    int           `json:"max_subscribe_rps"`   // Max Subscribe calls per second
	MaxBatchSize       int           `json:"max_batch_size"`      // Max parameters per warming batch
	ConcurrentWarmers  int           `json:"concurrent_warmers"`  // Number of concurrent worker goroutines
	SubscribeTimeout   time.Duration `json:"subscribe_timeout"`   // Timeout for one Subscribe call
	RetryAttempts      int           `json:"retry_attempts"`      // Number of retry attempts on failure
	BackoffBase        time.Duration `json:"backoff_base"`        // Base duration for exponential backoff
	EmergencyThreshold time.Duration `json:"emergency_threshold"` // Subscribe latency threshold for emergency stop
	DefaultStrategy    string        `json:"default_strategy"`    // Default warming strategy
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		MaxSubscribeRPS:    1000,
		MaxBatchSize:       200,
		ConcurrentWarmers:  10,
		SubscribeTimeout:   5 * time.Second,
		RetryAttempts:      3,
		BackoffBase:        100 * time.Millisecond,
		EmergencyThreshold: 2 * time.Second,
		DefaultStrategy:    "priority",
	}
}

// Metrics tracks warming service performance.
type Metrics struct {
	JobsTotal       atomic.Int64
	SuccessTotal    atomic.Int64
	FailureTotal    atomic.Int64
	SubscribeCalls  atomic.Int64
	RateLimitHits   atomic.Int64
	EmergencyStops  atomic.Int64
	TotalDurationMs atomic.Int64
}

// Request and response types

type WarmParameterRequest struct {
	Names    []string `json:"names"`              // Parameter names to warm
	Priority int      `json:"priority,omitempty"` // Priority level (0-100)
	Strategy string   `json:"strategy,omitempty"` // Optional strategy override
}

type WarmParameterResponse struct {
	Success       bool     `json:"success"`
	Queued        int      `json:"queued"` // Number of tasks queued
	Names         []string `json:"names"`
	JobID         string   `json:"job_id"`
	EstimatedTime int      `json:"estimated_time_ms"`
}

type WarmPatternRequest struct {
	Pattern  string   `json:"pattern"`            // Pattern to match (e.g., "SC001/*")
	Limit    int      `json:"limit,omitempty"`    // Max parameters to warm
	Priority int      `json:"priority,omitempty"` // Priority level
	Strategy string   `json:"strategy,omitempty"` // Optional strategy override
	Names    []string `json:"names,omitempty"`    // Optional: explicit names matching pattern
}

type WarmPatternResponse struct {
	Success       bool     `json:"success"`
	Pattern       string   `json:"pattern"`
	Queued        int      `json:"queued"`
	MatchedNames  []string `json:"matched_names,omitempty"`
	JobID         string   `json:"job_id"`
	EstimatedTime int      `json:"estimated_time_ms"`
}

type StatusResponse struct {
	ActiveJobs    int             `json:"active_jobs"`
	QueuedTasks   int             `json:"queued_tasks"`
	WorkerStatus  []WorkerStatus  `json:"worker_status"`
	EmergencyStop bool            `json:"emergency_stop"`
	Metrics       MetricsSnapshot `json:"metrics"`
}

type WorkerStatus struct {
	ID          int        `json:"id"`
	State       string     `json:"state"` // "idle", "busy", "stopped"
	CurrentName string     `json:"current_name,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
}

type MetricsSnapshot struct {
	JobsTotal      int64   `json:"jobs_total"`
	SuccessTotal   int64   `json:"success_total"`
	FailureTotal   int64   `json:"failure_total"`
	SuccessRate    float64 `json:"success_rate"`
	SubscribeCalls int64   `json:"subscribe_calls"`
	RateLimitHits  int64   `json:"rate_limit_hits"`
	EmergencyStops int64   `json:"emergency_stops"`
	AvgDurationMs  float64 `json:"avg_duration_ms"`
}

type ConfigResponse struct {
	Config Config `json:"config"`
}

type UpdateConfigRequest struct {
	MaxSubscribeRPS   *int   `json:"max_subscribe_rps,omitempty"`
	MaxBatchSize      *int   `json:"max_batch_size,omitempty"`
	ConcurrentWarmers *int   `json:"concurrent_warmers,omitempty"`
	DefaultStrategy   string `json:"default_strategy,omitempty"`
}

// ServiceConfig configures NewService. Cache is required.
type ServiceConfig struct {
	Cache   *paramcache.ParameterCache
	Bus     *pubsub.Bus // defaults to a private Bus if nil
	Catalog []string    // known parameter names, used by WarmPattern
	Config  Config      // zero value is replaced by DefaultConfig()
}

// NewService constructs a Service wired to a live ParameterCache. It
// starts the worker pool and scheduler immediately; call Shutdown to stop
// both.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Cache == nil {
		return nil, errors.New("warming: ServiceConfig.Cache is required")
	}
	if cfg.Bus == nil {
		cfg.Bus = pubsub.NewBus()
	}
	config := cfg.Config
	if config == (Config{}) {
		config = DefaultConfig()
	}

	strategies := map[string]Strategy{
		"selective": NewSelectiveHotKeysStrategy(),
		"breadth":   NewBreadthFirstStrategy(),
		"priority":  NewPriorityBasedStrategy(),
	}

	s := &Service{
		cache:       cfg.Cache,
		bus:         cfg.Bus,
		catalog:     cfg.Catalog,
		config:      config,
		strategies:  strategies,
		predictor:   NewDefaultPredictor(),
		metrics:     &Metrics{},
		rateLimiter: rate.NewLimiter(rate.Limit(config.MaxSubscribeRPS), config.MaxSubscribeRPS),
	}

	s.workerPool = NewWorkerPool(s, config.ConcurrentWarmers)
	s.scheduler = NewScheduler(s)

	return s, nil
}

// WarmParameter enrolls specific parameters for prewarming immediately.
func (s *Service) WarmParameter(ctx context.Context, req *WarmParameterRequest) (*WarmParameterResponse, error) {
	if len(req.Names) == 0 {
		return nil, errors.New("names cannot be empty")
	}
	if s.emergencyStop.Load() {
		return nil, errors.New("warming service in emergency stop mode")
	}

	priority := req.Priority
	if priority == 0 {
		priority = 50 // Medium priority
	}

	tasks := make([]WarmTask, 0, len(req.Names))
	for _, name := range req.Names {
		tasks = append(tasks, WarmTask{
			Name:          name,
			Priority:      priority,
			EstimatedCost: estimateWarmCost(name),
			Strategy:      req.Strategy,
		})
	}

	jobID := middleware.NewCorrelationID()
	queued := s.workerPool.QueueTasks(tasks)
	s.metrics.JobsTotal.Add(int64(queued))

	estimatedTime := (queued * 50) / max1(s.config.ConcurrentWarmers)

	middleware.LogOperation(ctx, "warm_parameter", map[string]any{
		"requested": len(req.Names),
		"queued":    queued,
	})

	return &WarmParameterResponse{
		Success:       true,
		Queued:        queued,
		Names:         req.Names,
		JobID:         jobID,
		EstimatedTime: estimatedTime,
	}, nil
}

// WarmPattern enrolls every parameter whose name matches pattern. Matching
// is evaluated against the explicit Names in req (if provided) or against
// the service's known parameter catalog otherwise.
func (s *Service) WarmPattern(ctx context.Context, req *WarmPatternRequest) (*WarmPatternResponse, error) {
	if req.Pattern == "" {
		return nil, errors.New("pattern cannot be empty")
	}
	if s.emergencyStop.Load() {
		return nil, errors.New("warming service in emergency stop mode")
	}

	candidates := req.Names
	if len(candidates) == 0 {
		s.mu.RLock()
		candidates = s.catalog
		s.mu.RUnlock()
	}

	namesToWarm, err := utils.FilterKeys(req.Pattern, candidates)
	if err != nil {
		return nil, fmt.Errorf("warming: invalid pattern: %w", err)
	}

	if req.Limit > 0 && len(namesToWarm) > req.Limit {
		namesToWarm = namesToWarm[:req.Limit]
	}

	strategyName := req.Strategy
	if strategyName == "" {
		strategyName = s.config.DefaultStrategy
	}
	strategy, exists := s.strategies[strategyName]
	if !exists {
		return nil, fmt.Errorf("unknown strategy: %s", strategyName)
	}

	tasks, err := strategy.Plan(ctx, PlanOptions{
		Names:    namesToWarm,
		Priority: req.Priority,
		Limit:    req.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("strategy planning failed: %w", err)
	}

	jobID := middleware.NewCorrelationID()
	queued := s.workerPool.QueueTasks(tasks)
	s.metrics.JobsTotal.Add(int64(queued))

	estimatedTime := (queued * 50) / max1(s.config.ConcurrentWarmers)

	middleware.LogOperation(ctx, "warm_pattern", map[string]any{
		"pattern": req.Pattern,
		"matched": len(namesToWarm),
		"queued":  queued,
	})

	return &WarmPatternResponse{
		Success:       true,
		Pattern:       req.Pattern,
		Queued:        queued,
		MatchedNames:  namesToWarm,
		JobID:         jobID,
		EstimatedTime: estimatedTime,
	}, nil
}

// GetStatus returns current warming service status and metrics.
func (s *Service) GetStatus(ctx context.Context) (*StatusResponse, error) {
	workerStatus := s.workerPool.GetWorkerStatus()

	jobs := s.metrics.JobsTotal.Load()
	success := s.metrics.SuccessTotal.Load()
	successRate := 0.0
	if jobs > 0 {
		successRate = float64(success) / float64(jobs)
	}

	avgDuration := 0.0
	if success > 0 {
		avgDuration = float64(s.metrics.TotalDurationMs.Load()) / float64(success)
	}

	return &StatusResponse{
		ActiveJobs:    s.workerPool.ActiveCount(),
		QueuedTasks:   s.workerPool.QueueSize(),
		WorkerStatus:  workerStatus,
		EmergencyStop: s.emergencyStop.Load(),
		Metrics: MetricsSnapshot{
			JobsTotal:      jobs,
			SuccessTotal:   success,
			FailureTotal:   s.metrics.FailureTotal.Load(),
			SuccessRate:    successRate,
			SubscribeCalls: s.metrics.SubscribeCalls.Load(),
			RateLimitHits:  s.metrics.RateLimitHits.Load(),
			EmergencyStops: s.metrics.EmergencyStops.Load(),
			AvgDurationMs:  avgDuration,
		},
	}, nil
}

// TriggerPredictive manually triggers a predictive warming run over the
// parameters the predictor expects to be read in the next hour.
func (s *Service) TriggerPredictive(ctx context.Context) (*WarmParameterResponse, error) {
	if s.emergencyStop.Load() {
		return nil, errors.New("warming service in emergency stop mode")
	}

	hotNames, err := s.predictor.PredictHotParameters(ctx, 1*time.Hour, 100)
	if err != nil {
		return nil, fmt.Errorf("prediction failed: %w", err)
	}

	if len(hotNames) == 0 {
		return &WarmParameterResponse{Success: true, Queued: 0, Names: []string{}}, nil
	}

	strategy := s.strategies["priority"]
	tasks, err := strategy.Plan(ctx, PlanOptions{
		Names:    hotNames,
		Priority: 80, // High priority for predicted names
	})
	if err != nil {
		return nil, fmt.Errorf("strategy planning failed: %w", err)
	}

	jobID := middleware.NewCorrelationID()
	queued := s.workerPool.QueueTasks(tasks)
	s.metrics.JobsTotal.Add(int64(queued))

	return &WarmParameterResponse{
		Success:       true,
		Queued:        queued,
		Names:         hotNames,
		JobID:         jobID,
		EstimatedTime: (queued * 50) / max1(s.config.ConcurrentWarmers),
	}, nil
}

// GetConfig returns current service configuration.
func (s *Service) GetConfig(ctx context.Context) (*ConfigResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &ConfigResponse{Config: s.config}, nil
}

// UpdateConfig updates service configuration at runtime.
func (s *Service) UpdateConfig(ctx context.Context, req *UpdateConfigRequest) (*ConfigResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.MaxSubscribeRPS != nil {
		s.config.MaxSubscribeRPS = *req.MaxSubscribeRPS
		s.rateLimiter = rate.NewLimiter(rate.Limit(*req.MaxSubscribeRPS), *req.MaxSubscribeRPS)
	}

	if req.MaxBatchSize != nil {
		s.config.MaxBatchSize = *req.MaxBatchSize
	}

	if req.ConcurrentWarmers != nil {
		s.config.ConcurrentWarmers = *req.ConcurrentWarmers
		// Changing the worker count requires a worker pool restart, which
		// is not implemented: operators should restart the process instead.
	}

	if req.DefaultStrategy != "" {
		if _, exists := s.strategies[req.DefaultStrategy]; !exists {
			return nil, fmt.Errorf("unknown strategy: %s", req.DefaultStrategy)
		}
		s.config.DefaultStrategy = req.DefaultStrategy
	}

	return &ConfigResponse{Config: s.config}, nil
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// ExecuteWarmTask performs the actual prewarm operation for a single task:
// deduplication, rate limiting, and the Subscribe call itself. Called by
// workers.
func (s *Service) ExecuteWarmTask(ctx context.Context, task WarmTask) error {
	startTime := time.Now()

	if s.emergencyStop.Load() {
		return errors.New("emergency stop active")
	}

	// Deduplicate concurrent warming of the same parameter.
	_, err, _ := s.deduper.Do(task.Name, func() (interface{}, error) {
		return nil, s.executeWarmTaskInternal(ctx, task)
	})

	duration := time.Since(startTime)
	s.metrics.TotalDurationMs.Add(duration.Milliseconds())

	if err != nil {
		s.metrics.FailureTotal.Add(1)
		go s.publishWarmCompletion([]string{task.Name}, nil, "failed", duration, err)
		return err
	}

	s.metrics.SuccessTotal.Add(1)
	go s.publishWarmCompletion([]string{task.Name}, nil, "success", duration, nil)

	return nil
}

// executeWarmTaskInternal performs the actual subscribe logic.
func (s *Service) executeWarmTaskInternal(ctx context.Context, task WarmTask) error {
	if err := s.rateLimiter.Wait(ctx); err != nil {
		s.metrics.RateLimitHits.Add(1)
		return fmt.Errorf("rate limit: %w", err)
	}

	subStart := time.Now()
	s.cache.Subscribe(paramcache.ParameterName(task.Name))
	subDuration := time.Since(subStart)
	s.metrics.SubscribeCalls.Add(1)

	if subDuration > s.config.EmergencyThreshold {
		s.emergencyStop.Store(true)
		s.metrics.EmergencyStops.Add(1)
		return errors.New("emergency stop triggered due to high subscribe latency")
	}

	return nil
}

// publishWarmCompletion publishes a WarmCompletedEvent for one prewarm
// task to the event bus, for monitoring to observe.
func (s *Service) publishWarmCompletion(warmed, failed []string, status string, duration time.Duration, cause error) {
	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}
	event := &pubsub.WarmCompletedEvent{
		Version:          pubsub.EventVersion1,
		Service:          "warming",
		Status:           status,
		Duration:         duration,
		ParametersWarmed: len(warmed),
		ParametersFailed: len(failed),
		Error:            errMsg,
		CompletedAt:      time.Now(),
		RequestID:        middleware.NewCorrelationID(),
	}
	s.bus.Publish(pubsub.TopicWarmCompleted, event)
}

// Shutdown gracefully stops the warming service's worker pool and
// scheduler.
func (s *Service) Shutdown() {
	s.workerPool.Shutdown()
	s.scheduler.Stop()
}
