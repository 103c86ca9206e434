// Package monitoring provides observability for a ParameterCache process:
// metrics collection, windowed aggregation, anomaly detection, and
// threshold-based alerting.
//
// Design Philosophy:
//   - Lock-free or minimal-lock metrics collection for high throughput
//   - Sliding window aggregation for real-time statistics
//   - Anomaly detection for proactive alerting
//   - Low memory overhead with bounded buffers
//
// Performance Characteristics:
//   - Metrics ingestion: >1M events/sec per core
//   - Aggregation latency: <1ms for 1-second windows
//   - Memory overhead: ~10MB for 1 hour of metrics at 10K events/sec
//   - GC pressure: latency samples go into a preallocated ring buffer
//
// Architecture:
//   - Cache lifecycle events (write/grow/expiration/subscription) arrive
//     directly via the paramcache.Recorder interface -- MetricsCollector
//     is handed to paramcache.New as its recorder, so there is no
//     network hop between the cache and its own metrics.
//   - Administrative events (reset, warm-completed) arrive over
//     pkg/pubsub.Bus, since they originate in sibling packages
//     (invalidation, warming) rather than the cache itself.
//   - In-memory time-series store with circular buckets
//   - Real-time aggregation with configurable windows
//   - Anomaly detection using statistical methods
//   - Alert engine with threshold-based and dynamic rules
package monitoring

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/groundstation/telemetry-paramcache/pkg/pubsub"
)

// Service ties together metrics collection, aggregation, and alerting for
// one ParameterCache.
type Service struct {
	collector  *MetricsCollector
	aggregator *Aggregator
	alertMgr   *AlertManager
	config     Config
	mu         sync.RWMutex
}

// Config holds monitoring service configuration.
type Config struct {
	MetricsRetention  time.Duration // How long to keep raw metrics
	AggregationWindow time.Duration // Aggregation window size
	AlertEvalInterval time.Duration // How often to evaluate alerts
	MaxMetricsPerSec  int           // Rate limit for metric ingestion
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		MetricsRetention:  1 * time.Hour,
		AggregationWindow: 1 * time.Second,
		AlertEvalInterval: 10 * time.Second,
		MaxMetricsPerSec:  1000000, // 1M events/sec
	}
}

// MetricType represents the type of metric being recorded.
type MetricType string

const (
	MetricWrite         MetricType = "parameter.write"
	MetricDrop          MetricType = "parameter.drop"
	MetricGrow          MetricType = "parameter.grow"
	MetricExpiration    MetricType = "parameter.expiration"
	MetricSubscription  MetricType = "parameter.subscription"
	MetricReset         MetricType = "parameter.reset"
	MetricWarmCompleted MetricType = "parameter.warm_completed"
	MetricError         MetricType = "error"
	MetricLatency       MetricType = "latency"
)

// MetricEvent represents a single metric event from any source.
type MetricEvent struct {
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
	Source    string            `json:"source"` // "paramcache", "warming", "invalidation"
	Labels    map[string]string `json:"labels,omitempty"`
}

// Request and response types

type GetMetricsRequest struct {
	Window time.Duration `json:"window"` // Time window (e.g., 1m, 5m, 1h)
}

type GetMetricsResponse struct {
	Timestamp     time.Time `json:"timestamp"`
	Window        time.Duration `json:"window"`
	TotalWrites   int64     `json:"total_writes"`
	Writes        int64     `json:"writes"`
	Drops         int64     `json:"drops"`
	DropRate      float64   `json:"drop_rate"`
	WPS           float64   `json:"wps"`
	AvgLatency    float64   `json:"avg_latency_ms"`
	P50Latency    float64   `json:"p50_latency_ms"`
	P90Latency    float64   `json:"p90_latency_ms"`
	P95Latency    float64   `json:"p95_latency_ms"`
	P99Latency    float64   `json:"p99_latency_ms"`
	ErrorRate     float64   `json:"error_rate"`
	Resets        int64     `json:"resets"`
	WarmCompleted int64     `json:"warm_completed"`
	Grows         int64     `json:"grows"`
	Expirations   int64     `json:"expirations"`
}

type GetAggregatedRequest struct {
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Interval  time.Duration `json:"interval"` // Aggregation interval
}

type AggregatedDataPoint struct {
	Timestamp  time.Time `json:"timestamp"`
	Writes     int64     `json:"writes"`
	DropRate   float64   `json:"drop_rate"`
	AvgLatency float64   `json:"avg_latency_ms"`
	P95Latency float64   `json:"p95_latency_ms"`
	WPS        float64   `json:"wps"`
	ErrorRate  float64   `json:"error_rate"`
}

type GetAggregatedResponse struct {
	DataPoints []AggregatedDataPoint `json:"data_points"`
	Summary    GetMetricsResponse    `json:"summary"`
}

type GetAlertsResponse struct {
	ActiveAlerts []Alert    `json:"active_alerts"`
	RecentAlerts []Alert    `json:"recent_alerts"` // Last 10 resolved alerts
	AlertStats   AlertStats `json:"alert_stats"`
}

type AlertStats struct {
	TotalTriggered int64   `json:"total_triggered"`
	TotalResolved  int64   `json:"total_resolved"`
	ActiveCount    int     `json:"active_count"`
	AvgDuration    float64 `json:"avg_duration_seconds"`
}

// NewService constructs a monitoring Service, starts its background
// aggregation and alert-evaluation workers, and subscribes to bus for the
// administrative events it does not receive directly through
// paramcache.Recorder (reset, warm-completed). bus may be nil, in which
// case the service simply never receives those two event types --
// Collector() is still usable as a paramcache.Recorder on its own.
func NewService(bus *pubsub.Bus, config Config) *Service {
	collector := NewMetricsCollector(config)
	aggregator := NewAggregator(collector, config)
	alertMgr := NewAlertManager(aggregator, config)

	s := &Service{
		collector:  collector,
		aggregator: aggregator,
		alertMgr:   alertMgr,
		config:     config,
	}

	go aggregator.Run()
	go alertMgr.Run()

	if bus != nil {
		bus.Subscribe(pubsub.TopicParameterReset, s.handleResetEvent)
		bus.Subscribe(pubsub.TopicWarmCompleted, s.handleWarmCompletedEvent)
	}

	return s
}

// Collector returns the underlying MetricsCollector so it can be passed
// as a paramcache.Recorder to paramcache.New.
func (s *Service) Collector() *MetricsCollector {
	return s.collector
}

// GetMetrics returns current metrics snapshot for a time window.
func (s *Service) GetMetrics(ctx context.Context, req *GetMetricsRequest) (*GetMetricsResponse, error) {
	window := req.Window
	if window == 0 {
		window = 1 * time.Minute // Default window
	}

	now := time.Now()
	startTime := now.Add(-window)

	stats := s.aggregator.GetStats(startTime, now)

	return &GetMetricsResponse{
		Timestamp:     now,
		Window:        window,
		TotalWrites:   stats.TotalWrites,
		Writes:        stats.Writes,
		Drops:         stats.Drops,
		DropRate:      stats.DropRate,
		WPS:           stats.WPS,
		AvgLatency:    stats.AvgLatency,
		P50Latency:    stats.P50Latency,
		P90Latency:    stats.P90Latency,
		P95Latency:    stats.P95Latency,
		P99Latency:    stats.P99Latency,
		ErrorRate:     stats.ErrorRate,
		Resets:        stats.Resets,
		WarmCompleted: stats.WarmCompleted,
		Grows:         stats.Grows,
		Expirations:   stats.Expirations,
	}, nil
}

// GetAggregated returns time-series aggregated metrics.
func (s *Service) GetAggregated(ctx context.Context, req *GetAggregatedRequest) (*GetAggregatedResponse, error) {
	if req.EndTime.Before(req.StartTime) {
		return nil, errors.New("end_time must be after start_time")
	}

	interval := req.Interval
	if interval == 0 {
		interval = 1 * time.Minute // Default interval
	}

	dataPoints := make([]AggregatedDataPoint, 0)
	currentTime := req.StartTime

	for currentTime.Before(req.EndTime) {
		nextTime := currentTime.Add(interval)
		if nextTime.After(req.EndTime) {
			nextTime = req.EndTime
		}

		stats := s.aggregator.GetStats(currentTime, nextTime)

		dataPoints = append(dataPoints, AggregatedDataPoint{
			Timestamp:  currentTime,
			Writes:     stats.TotalWrites,
			DropRate:   stats.DropRate,
			AvgLatency: stats.AvgLatency,
			P95Latency: stats.P95Latency,
			WPS:        stats.WPS,
			ErrorRate:  stats.ErrorRate,
		})

		currentTime = nextTime
	}

	overallStats := s.aggregator.GetStats(req.StartTime, req.EndTime)
	summary := &GetMetricsResponse{
		Timestamp:     req.EndTime,
		Window:        req.EndTime.Sub(req.StartTime),
		TotalWrites:   overallStats.TotalWrites,
		Writes:        overallStats.Writes,
		Drops:         overallStats.Drops,
		DropRate:      overallStats.DropRate,
		WPS:           overallStats.WPS,
		AvgLatency:    overallStats.AvgLatency,
		P50Latency:    overallStats.P50Latency,
		P90Latency:    overallStats.P90Latency,
		P95Latency:    overallStats.P95Latency,
		P99Latency:    overallStats.P99Latency,
		ErrorRate:     overallStats.ErrorRate,
		Resets:        overallStats.Resets,
		WarmCompleted: overallStats.WarmCompleted,
		Grows:         overallStats.Grows,
		Expirations:   overallStats.Expirations,
	}

	return &GetAggregatedResponse{
		DataPoints: dataPoints,
		Summary:    *summary,
	}, nil
}

// GetAlerts returns current active alerts and alert statistics.
func (s *Service) GetAlerts(ctx context.Context) (*GetAlertsResponse, error) {
	activeAlerts := s.alertMgr.GetActiveAlerts()
	recentAlerts := s.alertMgr.GetRecentResolvedAlerts(10)
	stats := s.alertMgr.GetStats()

	return &GetAlertsResponse{
		ActiveAlerts: activeAlerts,
		RecentAlerts: recentAlerts,
		AlertStats:   stats,
	}, nil
}

// handleResetEvent records a parameter.reset bus event emitted by the
// invalidation service.
func (s *Service) handleResetEvent(evt any) {
	event, ok := evt.(*pubsub.ResetEvent)
	if !ok {
		return
	}

	affected := len(event.Parameters)
	if event.Pattern != "" && affected == 0 {
		affected = 1 // pattern reset with no per-parameter detail still counts as one reset
	}

	s.collector.RecordMetric(MetricEvent{
		Type:      MetricReset,
		Value:     float64(affected),
		Timestamp: event.TriggeredAt,
		Source:    event.Service,
		Labels:    map[string]string{"pattern": event.Pattern},
	})
}

// handleWarmCompletedEvent records a parameter.warm.completed bus event
// emitted by the warming service.
func (s *Service) handleWarmCompletedEvent(evt any) {
	event, ok := evt.(*pubsub.WarmCompletedEvent)
	if !ok {
		return
	}

	s.collector.RecordMetric(MetricEvent{
		Type:      MetricWarmCompleted,
		Value:     float64(event.ParametersWarmed),
		Timestamp: event.CompletedAt,
		Source:    event.Service,
		Labels:    map[string]string{"status": event.Status},
	})

	s.collector.RecordMetric(MetricEvent{
		Type:      MetricLatency,
		Value:     float64(event.Duration.Milliseconds()),
		Timestamp: event.CompletedAt,
		Source:    event.Service,
		Labels:    map[string]string{"operation": "warm"},
	})

	if event.Status != "success" {
		s.collector.RecordMetric(MetricEvent{
			Type:      MetricError,
			Value:     1,
			Timestamp: event.CompletedAt,
			Source:    event.Service,
		})
	}
}

// Shutdown gracefully stops the monitoring service's background workers.
func (s *Service) Shutdown() {
	s.aggregator.Stop()
	s.alertMgr.Stop()
}
