package warming

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/groundstation/telemetry-paramcache/paramcache"
	"github.com/groundstation/telemetry-paramcache/pkg/pubsub"
)

// testParam is paramcache.ParameterName, the ParameterId type that
// ExecuteWarmTask subscribes, so test updates and reads hit the same
// cache entries the workers enroll.
type testParam = paramcache.ParameterName

func newLazyCache() *paramcache.ParameterCache {
	return paramcache.New(paramcache.Config{
		CacheAll:          false,
		MaxDurationMillis: 10_000,
		MaxNumEntries:     16,
	})
}

// setupTestService creates a test service backed by a real,
// lazy-subscription ParameterCache.
func setupTestService() (*Service, *paramcache.ParameterCache) {
	cache := newLazyCache()

	config := DefaultConfig()
	config.ConcurrentWarmers = 5
	config.MaxSubscribeRPS = 1000
	config.SubscribeTimeout = 100 * time.Millisecond

	svc, err := NewService(ServiceConfig{
		Cache:  cache,
		Bus:    pubsub.NewBus(),
		Config: config,
	})
	if err != nil {
		panic(err)
	}

	return svc, cache
}

func updateOne(cache *paramcache.ParameterCache, name string, val any) {
	cache.Update([]*paramcache.ParameterValue{
		paramcache.NewParameterValue(testParam(name), val, val, paramcache.Acquired, time.Now(), time.Now(), -1),
	})
}

func TestService_WarmParameter_EnablesSubsequentCaching(t *testing.T) {
	svc, cache := setupTestService()
	defer svc.Shutdown()

	ctx := context.Background()
	name := "SC001/THERMAL/PANEL_TEMP"

	// Updates to an un-subscribed parameter are dropped in lazy-subscription
	// mode: Update is checked before GetLast's own auto-subscribe side
	// effect would otherwise mask the point of this test.
	updateOne(cache, name, 1)

	resp, err := svc.WarmParameter(ctx, &WarmParameterRequest{Names: []string{name}, Priority: 50})
	if err != nil {
		t.Fatalf("WarmParameter failed: %v", err)
	}
	if !resp.Success || resp.Queued != 1 {
		t.Fatalf("expected success with 1 queued, got %+v", resp)
	}

	time.Sleep(200 * time.Millisecond)

	updateOne(cache, name, 2)
	pv := cache.GetLast(testParam(name))
	if pv == nil {
		t.Fatal("expected cached value after warming")
	}
	if pv.EngValue.(int) != 2 {
		t.Errorf("expected value 2, got %v", pv.EngValue)
	}
}

func TestService_WarmParameter_Multiple(t *testing.T) {
	svc, cache := setupTestService()
	defer svc.Shutdown()

	ctx := context.Background()

	names := make([]string, 10)
	for i := 0; i < 10; i++ {
		names[i] = fmt.Sprintf("SC001/BUS/CH%d", i)
	}

	resp, err := svc.WarmParameter(ctx, &WarmParameterRequest{Names: names, Priority: 50})
	if err != nil {
		t.Fatalf("WarmParameter failed: %v", err)
	}
	if resp.Queued != 10 {
		t.Errorf("expected 10 queued, got %d", resp.Queued)
	}

	time.Sleep(400 * time.Millisecond)

	for i, name := range names {
		updateOne(cache, name, i)
		pv := cache.GetLast(testParam(name))
		if pv == nil {
			t.Errorf("%s: expected cached value after warming", name)
			continue
		}
		if pv.EngValue.(int) != i {
			t.Errorf("%s: expected value %d, got %v", name, i, pv.EngValue)
		}
	}
}

func TestService_WarmPattern(t *testing.T) {
	svc, cache := setupTestService()
	defer svc.Shutdown()

	ctx := context.Background()

	names := []string{"SC001/THERMAL/T1", "SC001/THERMAL/T2", "SC001/POWER/V1"}

	req := &WarmPatternRequest{
		Pattern:  "SC001/THERMAL/*",
		Names:    names,
		Priority: 70,
		Strategy: "priority",
	}

	resp, err := svc.WarmPattern(ctx, req)
	if err != nil {
		t.Fatalf("WarmPattern failed: %v", err)
	}
	if !resp.Success {
		t.Error("expected success=true")
	}
	if len(resp.MatchedNames) != 2 {
		t.Errorf("expected 2 matched names, got %d", len(resp.MatchedNames))
	}

	time.Sleep(300 * time.Millisecond)

	for _, name := range resp.MatchedNames {
		updateOne(cache, name, "v")
		if cache.GetLast(testParam(name)) == nil {
			t.Errorf("%s: expected cached value after pattern warm", name)
		}
	}
	// The unmatched parameter was never subscribed.
	updateOne(cache, "SC001/POWER/V1", "v")
	if cache.GetLast(testParam("SC001/POWER/V1")) != nil {
		t.Error("unmatched parameter should not have been warmed")
	}
}

func TestService_WarmPattern_UsesCatalogWhenNamesOmitted(t *testing.T) {
	cache := newLazyCache()
	svc, err := NewService(ServiceConfig{
		Cache:   cache,
		Bus:     pubsub.NewBus(),
		Catalog: []string{"SC001/THERMAL/T1", "SC001/THERMAL/T2", "SC002/THERMAL/T1"},
		Config:  DefaultConfig(),
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Shutdown()

	resp, err := svc.WarmPattern(context.Background(), &WarmPatternRequest{Pattern: "SC001/*"})
	if err != nil {
		t.Fatalf("WarmPattern failed: %v", err)
	}
	if len(resp.MatchedNames) != 2 {
		t.Errorf("expected 2 matched names from catalog, got %d", len(resp.MatchedNames))
	}
}

func TestService_RateLimiting(t *testing.T) {
	cache := newLazyCache()
	config := DefaultConfig()
	config.MaxSubscribeRPS = 10 // Low limit for testing
	config.ConcurrentWarmers = 5

	svc, err := NewService(ServiceConfig{Cache: cache, Bus: pubsub.NewBus(), Config: config})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Shutdown()

	ctx := context.Background()

	names := make([]string, 50)
	for i := 0; i < 50; i++ {
		names[i] = fmt.Sprintf("SC001/CH%d", i)
	}

	startTime := time.Now()
	_, err = svc.WarmParameter(ctx, &WarmParameterRequest{Names: names})
	if err != nil {
		t.Fatalf("WarmParameter failed: %v", err)
	}

	for svc.metrics.SubscribeCalls.Load() < 50 && time.Since(startTime) < 10*time.Second {
		time.Sleep(10 * time.Millisecond)
	}
	duration := time.Since(startTime)

	// With a rate limit of 10/sec, 50 names should take at least 4 seconds.
	if duration < 4*time.Second {
		t.Errorf("rate limiting not working: completed in %v (expected >4s)", duration)
	}
}

func TestService_Deduplication(t *testing.T) {
	svc, _ := setupTestService()
	defer svc.Shutdown()

	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.WarmParameter(ctx, &WarmParameterRequest{Names: []string{"SC001/DUPED"}})
		}()
	}
	wg.Wait()

	time.Sleep(300 * time.Millisecond)

	if svc.metrics.SubscribeCalls.Load() > 10 {
		t.Errorf("expected deduplication to bound subscribe calls, got %d", svc.metrics.SubscribeCalls.Load())
	}
}

func TestService_EmergencyStop(t *testing.T) {
	cache := newLazyCache()
	config := DefaultConfig()
	config.ConcurrentWarmers = 2
	config.EmergencyThreshold = 1 * time.Nanosecond // trips on virtually any real subscribe call

	svc, err := NewService(ServiceConfig{Cache: cache, Bus: pubsub.NewBus(), Config: config})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Shutdown()

	ctx := context.Background()
	_, err = svc.WarmParameter(ctx, &WarmParameterRequest{Names: []string{"SC001/SLOW"}})
	if err != nil {
		t.Fatalf("WarmParameter failed: %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	if !svc.emergencyStop.Load() {
		t.Error("emergency stop should be triggered for a threshold of 1ns")
	}

	_, err = svc.WarmParameter(ctx, &WarmParameterRequest{Names: []string{"SC001/ANOTHER"}})
	if err == nil {
		t.Error("expected error when emergency stop is active")
	}
}

func TestService_ExecuteWarmTask_RateLimitContextCanceled(t *testing.T) {
	cache := newLazyCache()
	config := DefaultConfig()
	config.MaxSubscribeRPS = 1

	svc, err := NewService(ServiceConfig{Cache: cache, Bus: pubsub.NewBus(), Config: config})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = svc.ExecuteWarmTask(ctx, WarmTask{Name: "SC001/X", Priority: 50})
	if err == nil {
		t.Error("expected error from canceled context during rate limiter wait")
	}
	if svc.metrics.FailureTotal.Load() != 1 {
		t.Errorf("expected 1 failure recorded, got %d", svc.metrics.FailureTotal.Load())
	}
}

func TestService_GetStatus(t *testing.T) {
	svc, _ := setupTestService()
	defer svc.Shutdown()

	ctx := context.Background()
	svc.WarmParameter(ctx, &WarmParameterRequest{Names: []string{"SC001/X"}})

	time.Sleep(200 * time.Millisecond)

	status, err := svc.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if status.Metrics.JobsTotal != 1 {
		t.Errorf("expected 1 job, got %d", status.Metrics.JobsTotal)
	}
	if len(status.WorkerStatus) != 5 {
		t.Errorf("expected 5 workers, got %d", len(status.WorkerStatus))
	}
}

func TestService_ConfigUpdate(t *testing.T) {
	svc, _ := setupTestService()
	defer svc.Shutdown()

	ctx := context.Background()

	resp, err := svc.GetConfig(ctx)
	if err != nil {
		t.Fatalf("GetConfig failed: %v", err)
	}
	oldRPS := resp.Config.MaxSubscribeRPS

	newRPS := 200
	updateResp, err := svc.UpdateConfig(ctx, &UpdateConfigRequest{MaxSubscribeRPS: &newRPS})
	if err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}
	if updateResp.Config.MaxSubscribeRPS != newRPS {
		t.Errorf("config not updated: got %d, expected %d", updateResp.Config.MaxSubscribeRPS, newRPS)
	}
	if updateResp.Config.MaxSubscribeRPS == oldRPS {
		t.Error("config should have changed")
	}
}

func TestSelectiveStrategy_Plan(t *testing.T) {
	strategy := NewSelectiveHotKeysStrategy()
	ctx := context.Background()

	names := []string{"hot/1", "hot/2", "hot/3", "hot/4", "hot/5"}

	opts := PlanOptions{Names: names, Priority: 80, Limit: 3}

	tasks, err := strategy.Plan(ctx, opts)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(tasks) != 3 {
		t.Errorf("expected 3 tasks, got %d", len(tasks))
	}
	for i := 1; i < len(tasks); i++ {
		if tasks[i].Priority > tasks[i-1].Priority {
			t.Error("priorities should decrease for less hot names")
		}
	}
}

func TestBreadthFirstStrategy_Plan(t *testing.T) {
	strategy := NewBreadthFirstStrategy()
	ctx := context.Background()

	names := []string{
		"SC001/THERMAL/PANEL/T1", // depth 3
		"SC001",                  // depth 0
		"SC001/THERMAL",          // depth 1
		"SC002",                  // depth 0
	}

	tasks, err := strategy.Plan(ctx, PlanOptions{Names: names})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if tasks[0].Name != "SC001" && tasks[0].Name != "SC002" {
		t.Errorf("first task should be depth 0, got %s", tasks[0].Name)
	}

	for i := 1; i < len(tasks); i++ {
		depthI := tasks[i].Metadata["depth"].(int)
		depthPrev := tasks[i-1].Metadata["depth"].(int)
		if depthI < depthPrev {
			t.Error("names should be ordered by depth (shallow first)")
		}
	}
}

func TestPriorityStrategy_Plan(t *testing.T) {
	strategy := NewPriorityBasedStrategy()
	ctx := context.Background()

	names := []string{"p/1", "p/2", "p/3", "p/4", "p/5"}

	tasks, err := strategy.Plan(ctx, PlanOptions{Names: names, Limit: 3})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(tasks) != 3 {
		t.Errorf("expected 3 tasks, got %d", len(tasks))
	}
	for i := 1; i < len(tasks); i++ {
		if tasks[i].Priority > tasks[i-1].Priority {
			t.Error("tasks should be sorted by priority (highest first)")
		}
	}
}

func TestDefaultPredictor_PredictHotParameters(t *testing.T) {
	predictor := NewDefaultPredictor()

	for i := 0; i < 100; i++ {
		predictor.RecordAccess("hot/param")
	}
	for i := 0; i < 50; i++ {
		predictor.RecordAccess("warm/param")
	}
	for i := 0; i < 10; i++ {
		predictor.RecordAccess("cold/param")
	}

	hotNames, err := predictor.PredictHotParameters(context.Background(), 1*time.Hour, 2)
	if err != nil {
		t.Fatalf("PredictHotParameters failed: %v", err)
	}
	if len(hotNames) != 2 {
		t.Errorf("expected 2 hot names, got %d", len(hotNames))
	}
	if hotNames[0] != "hot/param" {
		t.Errorf("expected hot/param first, got %s", hotNames[0])
	}
	if hotNames[1] != "warm/param" {
		t.Errorf("expected warm/param second, got %s", hotNames[1])
	}
}

func TestDefaultPredictor_RecencyBonus(t *testing.T) {
	predictor := NewDefaultPredictor()

	for i := 0; i < 50; i++ {
		predictor.RecordAccess("old/param")
	}
	// Age old/param's last read past the 30-minute tier so it scores
	// without a recency bonus, while recent/param keeps the 2x bonus.
	predictor.accessLog["old/param"].LastAccessed = time.Now().Add(-31 * time.Minute)
	for i := 0; i < 30; i++ {
		predictor.RecordAccess("recent/param")
	}

	hotNames, err := predictor.PredictHotParameters(context.Background(), 1*time.Hour, 2)
	if err != nil {
		t.Fatalf("PredictHotParameters failed: %v", err)
	}
	if hotNames[0] != "recent/param" {
		t.Errorf("recent parameter should rank first, got %s", hotNames[0])
	}
}

func TestDefaultPredictor_Cleanup(t *testing.T) {
	predictor := NewDefaultPredictor()

	predictor.RecordAccess("p/1")
	predictor.RecordAccess("p/2")

	stats := predictor.GetStats()
	if stats.TrackedParameters != 2 {
		t.Errorf("expected 2 tracked parameters, got %d", stats.TrackedParameters)
	}

	removed := predictor.Cleanup(1 * time.Nanosecond)
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}

	stats = predictor.GetStats()
	if stats.TrackedParameters != 0 {
		t.Errorf("expected 0 tracked parameters after cleanup, got %d", stats.TrackedParameters)
	}
}

func TestMLPredictor_ReturnsEmpty(t *testing.T) {
	predictor := NewMLPredictor()

	names, err := predictor.PredictHotParameters(context.Background(), time.Hour, 10)
	if err != nil {
		t.Fatalf("PredictHotParameters failed: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected no predictions from unwired MLPredictor, got %d", len(names))
	}
}

func BenchmarkService_WarmParameter(b *testing.B) {
	svc, _ := setupTestService()
	defer svc.Shutdown()

	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		name := fmt.Sprintf("SC001/CH%d", i%100)
		svc.WarmParameter(ctx, &WarmParameterRequest{Names: []string{name}})
	}
}

func BenchmarkDefaultPredictor_RecordAccess(b *testing.B) {
	predictor := NewDefaultPredictor()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		predictor.RecordAccess(fmt.Sprintf("SC001/CH%d", i%1000))
	}
}

func BenchmarkPriorityStrategy_Plan(b *testing.B) {
	strategy := NewPriorityBasedStrategy()
	ctx := context.Background()

	names := make([]string, 1000)
	for i := 0; i < 1000; i++ {
		names[i] = fmt.Sprintf("SC001/CH%d", i)
	}

	opts := PlanOptions{Names: names, Limit: 100}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		strategy.Plan(ctx, opts)
	}
}
