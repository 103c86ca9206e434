// Package integration exercises paramcache together with its ambient
// packages (monitoring, invalidation, warming) wired the way an embedding
// application would wire them: one ParameterCache, one pubsub.Bus, and
// monitoring's collector installed as the cache's Recorder. There is no
// HTTP surface anywhere in this module (see SPEC_FULL.md's Non-goals), so
// every test here calls service methods directly in-process.
package integration

import (
	"testing"
	"time"

	"github.com/groundstation/telemetry-paramcache/invalidation"
	"github.com/groundstation/telemetry-paramcache/monitoring"
	"github.com/groundstation/telemetry-paramcache/paramcache"
	"github.com/groundstation/telemetry-paramcache/pkg/pubsub"
	"github.com/groundstation/telemetry-paramcache/warming"
)

// testParam is a minimal ParameterId for test fixtures, mirroring
// paramcache's own test helpers.
type testParam string

func (p testParam) Name() string { return string(p) }

// system bundles one ParameterCache with every ambient service wired
// against it through a shared bus, as an embedding application would.
type system struct {
	cache       *paramcache.ParameterCache
	bus         *pubsub.Bus
	monitoring  *monitoring.Service
	invalidation *invalidation.Service
	warming     *warming.Service
}

func newSystem(t *testing.T, catalog []string) *system {
	t.Helper()

	bus := pubsub.NewBus()
	mon := monitoring.NewService(bus, monitoring.DefaultConfig())

	cache := paramcache.New(paramcache.Config{
		CacheAll:          false,
		MaxDurationMillis: 10_000,
		MaxNumEntries:     16,
		Recorder:          mon.Collector(),
	})

	inv, err := invalidation.NewService(invalidation.ServiceConfig{
		Cache: cache,
		Bus:   bus,
	})
	if err != nil {
		t.Fatalf("invalidation.NewService: %v", err)
	}

	warmCfg := warming.DefaultConfig()
	warmCfg.ConcurrentWarmers = 4
	warmCfg.SubscribeTimeout = 200 * time.Millisecond
	warm, err := warming.NewService(warming.ServiceConfig{
		Cache:   cache,
		Bus:     bus,
		Catalog: catalog,
		Config:  warmCfg,
	})
	if err != nil {
		t.Fatalf("warming.NewService: %v", err)
	}

	s := &system{cache: cache, bus: bus, monitoring: mon, invalidation: inv, warming: warm}
	t.Cleanup(func() {
		s.warming.Shutdown()
		s.monitoring.Shutdown()
	})
	return s
}

func (s *system) update(name string, value any, at time.Time) {
	s.cache.Update([]*paramcache.ParameterValue{
		paramcache.NewParameterValue(testParam(name), value, value, paramcache.Acquired, at, at, -1),
	})
}

// eventually polls cond until it returns true or the timeout elapses,
// for observing effects of the bus's async event dispatch.
func eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s", timeout)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
