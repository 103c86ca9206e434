package warming

import (
	"context"
	"sort"
)

// Strategy defines the interface for cache warming strategies. Different
// strategies determine which parameters to prewarm (subscribe) and in
// what order.
type Strategy interface {
	Name() string
	Plan(ctx context.Context, opts PlanOptions) ([]WarmTask, error)
}

// PlanOptions provides input parameters for warming strategy planning.
type PlanOptions struct {
	Names    []string          // Parameter names to consider for warming
	Priority int               // Base priority level
	Limit    int               // Maximum number of tasks to generate
	Metadata map[string]string // Additional strategy-specific metadata
}

// WarmTask represents a single prewarm (subscribe) task.
type WarmTask struct {
	Name          string                 // Parameter name to subscribe
	Priority      int                    // Task priority (higher = more important)
	EstimatedCost int                    // Estimated cost in milliseconds
	Strategy      string                 // Strategy that created this task
	Metadata      map[string]interface{} // Additional task metadata
}

// SelectiveHotKeysStrategy warms only the hottest parameters based on
// access frequency. Efficient when most reads target a small subset of
// parameters (Pareto principle / 80-20 rule) -- typical of a handful of
// display pages driving most GetLast/GetValues traffic.
type SelectiveHotKeysStrategy struct {
	name string
}

// NewSelectiveHotKeysStrategy creates a new selective hot parameters strategy.
func NewSelectiveHotKeysStrategy() Strategy {
	return &SelectiveHotKeysStrategy{
		name: "selective",
	}
}

func (s *SelectiveHotKeysStrategy) Name() string {
	return s.name
}

// Plan generates warming tasks for the hottest parameters.
// Assumes names are already sorted by hotness (most frequent first).
// Complexity: O(n) where n = min(len(names), limit)
func (s *SelectiveHotKeysStrategy) Plan(ctx context.Context, opts PlanOptions) ([]WarmTask, error) {
	limit := opts.Limit
	if limit <= 0 || limit > len(opts.Names) {
		limit = len(opts.Names)
	}

	// Apply a reasonable cap to prevent runaway warming
	if limit > 1000 {
		limit = 1000
	}

	tasks := make([]WarmTask, 0, limit)

	// Take top N hottest parameters
	for i := 0; i < limit && i < len(opts.Names); i++ {
		name := opts.Names[i]

		// Priority decreases for less hot parameters
		priority := opts.Priority
		if opts.Priority == 0 {
			priority = 100 - (i * 100 / limit) // Linear decrease from 100 to 0
		}

		tasks = append(tasks, WarmTask{
			Name:          name,
			Priority:      priority,
			EstimatedCost: estimateWarmCost(name),
			Strategy:      s.name,
		})
	}

	return tasks, nil
}

// BreadthFirstStrategy warms parameters based on their subsystem
// hierarchy. Parameter names are structured "subsystem/measurement"
// (e.g. "SC001/THERMAL/PANEL_TEMP"), so a shallower name names a whole
// subsystem or measurement group; warming those first means a display
// page showing a subsystem summary has data before any of its individual
// sensor readings arrive.
type BreadthFirstStrategy struct {
	name string
}

// NewBreadthFirstStrategy creates a new breadth-first strategy.
func NewBreadthFirstStrategy() Strategy {
	return &BreadthFirstStrategy{
		name: "breadth",
	}
}

func (s *BreadthFirstStrategy) Name() string {
	return s.name
}

// Plan generates warming tasks in breadth-first order over the
// "subsystem/measurement" hierarchy.
// Complexity: O(n log n) for sorting + O(n) for task generation
func (s *BreadthFirstStrategy) Plan(ctx context.Context, opts PlanOptions) ([]WarmTask, error) {
	if len(opts.Names) == 0 {
		return []WarmTask{}, nil
	}

	// Sort names by depth (fewer separators = higher in hierarchy)
	sortedNames := make([]string, len(opts.Names))
	copy(sortedNames, opts.Names)

	sort.Slice(sortedNames, func(i, j int) bool {
		depthI := nameDepth(sortedNames[i])
		depthJ := nameDepth(sortedNames[j])
		if depthI == depthJ {
			return sortedNames[i] < sortedNames[j] // Alphabetical for same depth
		}
		return depthI < depthJ // Shallower names first
	})

	limit := opts.Limit
	if limit <= 0 || limit > len(sortedNames) {
		limit = len(sortedNames)
	}

	tasks := make([]WarmTask, 0, limit)

	for i := 0; i < limit && i < len(sortedNames); i++ {
		name := sortedNames[i]
		depth := nameDepth(name)

		// Higher priority for shallower (parent) names
		priority := opts.Priority
		if priority == 0 {
			priority = 100 - (depth * 10)
			if priority < 0 {
				priority = 0
			}
		}

		tasks = append(tasks, WarmTask{
			Name:          name,
			Priority:      priority,
			EstimatedCost: estimateWarmCost(name),
			Strategy:      s.name,
			Metadata: map[string]interface{}{
				"depth": depth,
			},
		})
	}

	return tasks, nil
}

// nameDepth calculates the hierarchical depth of a parameter name based
// on separator ('/') count.
func nameDepth(name string) int {
	depth := 0
	for _, ch := range name {
		if ch == '/' {
			depth++
		}
	}
	return depth
}

// PriorityBasedStrategy warms parameters based on a calculated priority
// score. Score = (importance * hotness) / cost. This balances multiple
// factors to optimize warming efficiency.
type PriorityBasedStrategy struct {
	name string
}

// NewPriorityBasedStrategy creates a new priority-based strategy.
func NewPriorityBasedStrategy() Strategy {
	return &PriorityBasedStrategy{
		name: "priority",
	}
}

func (s *PriorityBasedStrategy) Name() string {
	return s.name
}

// Plan generates warming tasks sorted by calculated priority score.
// Complexity: O(n log n) for sorting
func (s *PriorityBasedStrategy) Plan(ctx context.Context, opts PlanOptions) ([]WarmTask, error) {
	if len(opts.Names) == 0 {
		return []WarmTask{}, nil
	}

	tasks := make([]WarmTask, 0, len(opts.Names))

	for i, name := range opts.Names {
		cost := estimateWarmCost(name)

		// Calculate importance (decreases with position in list)
		importance := float64(len(opts.Names)-i) / float64(len(opts.Names))

		// Calculate hotness (assume names are ordered by access frequency)
		hotness := 1.0
		if i < len(opts.Names)/10 {
			hotness = 2.0 // Top 10% get double weight
		}

		// Priority score: higher importance and hotness, lower cost = higher priority
		score := (importance * hotness * 100) / float64(cost)
		priority := int(score)

		if priority > 100 {
			priority = 100
		}
		if priority < 0 {
			priority = 0
		}

		tasks = append(tasks, WarmTask{
			Name:          name,
			Priority:      priority,
			EstimatedCost: cost,
			Strategy:      s.name,
			Metadata: map[string]interface{}{
				"importance": importance,
				"hotness":    hotness,
				"score":      score,
			},
		})
	}

	// Sort by priority (highest first)
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].Priority > tasks[j].Priority
	})

	limit := opts.Limit
	if limit > 0 && limit < len(tasks) {
		tasks = tasks[:limit]
	}

	return tasks, nil
}

// estimateWarmCost estimates the cost (in milliseconds) of subscribing a
// parameter and waiting for its first acquisition from the telemetry
// stream. This is a heuristic based on name patterns and can be refined
// with actual per-parameter acquisition latency metrics.
func estimateWarmCost(name string) int {
	cost := 50

	if len(name) > 50 {
		cost += 20
	}

	// Names with more hierarchy segments often live deeper in a
	// telemetry frame and arrive later in the decode pass.
	depth := nameDepth(name)
	cost += depth * 10

	// Derived/aggregate parameters are computed from raw telemetry, not
	// delivered directly, so they tend to lag their inputs.
	if containsPattern(name, "DERIVED") {
		cost += 100
	}
	if containsPattern(name, "AGGREGATE") {
		cost += 150
	}

	return cost
}

// containsPattern checks if a name contains a specific pattern.
func containsPattern(name, pattern string) bool {
	return len(name) >= len(pattern) && contains(name, pattern)
}

func contains(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
