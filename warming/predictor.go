package warming

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Predictor predicts which parameters are likely to be read in the near
// future. This interface allows plugging in different prediction
// algorithms, from simple heuristics to ML-based models.
type Predictor interface {
	PredictHotParameters(ctx context.Context, window time.Duration, limit int) ([]string, error)
}

// DefaultPredictor implements a lightweight heuristic-based predictor.
// Uses recent read patterns and growth rates to predict future hot
// parameters.
//
// Algorithm:
//  1. Track read counts and timestamps for each parameter
//  2. Calculate read frequency (reads per hour)
//  3. Calculate growth rate (recent vs historical frequency)
//  4. Score = frequency * (1 + growth_rate) * recency_bonus
//  5. Return top N parameters by score
//
// Trade-offs:
//   - Less effective for sudden read spikes on a parameter nobody has
//     read before (e.g. a newly commissioned sensor).
//   - TODO: replace with a trained model for better accuracy.
type DefaultPredictor struct {
	mu          sync.RWMutex
	accessLog   map[string]*AccessHistory
	windowSize  time.Duration
	decayFactor float64
}

// AccessHistory tracks read patterns for a single parameter name.
type AccessHistory struct {
	Name           string
	TotalAccesses  int64
	RecentAccesses int64
	FirstSeen      time.Time
	LastAccessed   time.Time
	AccessTimes    []time.Time
}

// NewDefaultPredictor creates a new default predictor.
func NewDefaultPredictor() *DefaultPredictor {
	return &DefaultPredictor{
		accessLog:   make(map[string]*AccessHistory),
		windowSize:  1 * time.Hour,
		decayFactor: 0.9,
	}
}

// RecordAccess records a read of name for prediction purposes. This
// should be called on every GetLast/GetAll/GetValues call (hit or miss).
func (p *DefaultPredictor) RecordAccess(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()

	history, exists := p.accessLog[name]
	if !exists {
		history = &AccessHistory{
			Name:        name,
			FirstSeen:   now,
			AccessTimes: make([]time.Time, 0, 100),
		}
		p.accessLog[name] = history
	}

	history.TotalAccesses++
	history.RecentAccesses++
	history.LastAccessed = now

	// Keep limited history (last 100 accesses).
	history.AccessTimes = append(history.AccessTimes, now)
	if len(history.AccessTimes) > 100 {
		history.AccessTimes = history.AccessTimes[1:]
	}
}

// PredictHotParameters predicts the top N parameter names likely to be
// read in the next window.
// Complexity: O(n log n) where n = total tracked parameters
func (p *DefaultPredictor) PredictHotParameters(ctx context.Context, window time.Duration, limit int) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	now := time.Now()
	cutoff := now.Add(-window)

	type nameScore struct {
		name  string
		score float64
	}

	scores := make([]nameScore, 0, len(p.accessLog))

	for name, history := range p.accessLog {
		score := p.calculateScore(history, now, cutoff)
		if score > 0 {
			scores = append(scores, nameScore{name: name, score: score})
		}
	}

	sort.Slice(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	if limit > 0 && limit < len(scores) {
		scores = scores[:limit]
	}

	hotNames := make([]string, len(scores))
	for i, ns := range scores {
		hotNames[i] = ns.name
	}

	return hotNames, nil
}

// calculateScore computes a prediction score for a parameter. Higher
// score = more likely to be read soon.
func (p *DefaultPredictor) calculateScore(history *AccessHistory, now, cutoff time.Time) float64 {
	if history.TotalAccesses == 0 {
		return 0
	}

	timeSinceFirst := now.Sub(history.FirstSeen).Hours()
	if timeSinceFirst == 0 {
		timeSinceFirst = 1
	}
	frequency := float64(history.TotalAccesses) / timeSinceFirst

	recentCount := 0
	for _, accessTime := range history.AccessTimes {
		if accessTime.After(cutoff) {
			recentCount++
		}
	}

	recentFrequency := float64(recentCount)
	growthRate := 0.0
	if frequency > 0 {
		growthRate = (recentFrequency - frequency) / frequency
	}

	timeSinceLast := now.Sub(history.LastAccessed).Minutes()
	recencyBonus := 1.0
	if timeSinceLast < 5 {
		recencyBonus = 2.0
	} else if timeSinceLast < 30 {
		recencyBonus = 1.5
	}

	return frequency * (1.0 + growthRate) * recencyBonus
}

// Cleanup removes old access history to prevent unbounded memory growth.
// The Scheduler in periodic.go does not call it.
func (p *DefaultPredictor) Cleanup(maxAge time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-maxAge)
	removed := 0

	for name, history := range p.accessLog {
		if history.LastAccessed.Before(cutoff) {
			delete(p.accessLog, name)
			removed++
		}
	}

	return removed
}

// GetStats returns statistics about the predictor's state.
func (p *DefaultPredictor) GetStats() PredictorStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	totalAccesses := int64(0)
	for _, history := range p.accessLog {
		totalAccesses += history.TotalAccesses
	}

	return PredictorStats{
		TrackedParameters: len(p.accessLog),
		TotalAccesses:     totalAccesses,
	}
}

type PredictorStats struct {
	TrackedParameters int   `json:"tracked_parameters"`
	TotalAccesses     int64 `json:"total_accesses"`
}

// MLPredictor is a placeholder for model-based prediction. No model ships
// with this package; PredictHotParameters always returns an empty slice.
//
// Implementation notes:
//   - Train offline on historical AccessHistory logs.
//   - Features: time of day, orbital phase, recent trend, subsystem.
//   - Load the trained model at startup; run inference in
//     PredictHotParameters.
type MLPredictor struct{}

// NewMLPredictor creates a new model-based predictor.
// TODO: wire an actual model once one exists.
func NewMLPredictor() *MLPredictor {
	return &MLPredictor{}
}

// PredictHotParameters always returns an empty slice; no model is wired.
func (p *MLPredictor) PredictHotParameters(ctx context.Context, window time.Duration, limit int) ([]string, error) {
	return []string{}, nil
}
