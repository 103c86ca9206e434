package invalidation

import (
	"context"
	"testing"
	"time"
)

func TestAuditLogger_InsertAndGetRecent(t *testing.T) {
	al, err := NewAuditLogger(10)
	if err != nil {
		t.Fatalf("NewAuditLogger() error = %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := al.Insert(ctx, AuditLog{Pattern: "SC001/*", TriggeredBy: "invalidation"}); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	logs, err := al.GetRecent(ctx, 10, 0, "")
	if err != nil {
		t.Fatalf("GetRecent() error = %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("GetRecent() len = %d, want 3", len(logs))
	}
	// Newest first: last inserted has the highest ID.
	if logs[0].ID <= logs[1].ID {
		t.Errorf("GetRecent() not newest-first: %+v", logs)
	}
}

func TestAuditLogger_RingWraps(t *testing.T) {
	al, _ := NewAuditLogger(2)
	ctx := context.Background()

	al.Insert(ctx, AuditLog{Pattern: "A"})
	al.Insert(ctx, AuditLog{Pattern: "B"})
	al.Insert(ctx, AuditLog{Pattern: "C"})

	logs, _ := al.GetRecent(ctx, 10, 0, "")
	if len(logs) != 2 {
		t.Fatalf("GetRecent() len = %d, want 2 (oldest evicted)", len(logs))
	}
	if logs[0].Pattern != "C" || logs[1].Pattern != "B" {
		t.Errorf("GetRecent() = %+v, want [C, B]", logs)
	}
}

func TestAuditLogger_GetRecent_PatternFilter(t *testing.T) {
	al, _ := NewAuditLogger(10)
	ctx := context.Background()

	al.Insert(ctx, AuditLog{Pattern: "SC001/THERMAL"})
	al.Insert(ctx, AuditLog{Pattern: "SC001/POWER"})
	al.Insert(ctx, AuditLog{Pattern: "SC002/THERMAL"})

	logs, err := al.GetRecent(ctx, 10, 0, "SC001")
	if err != nil {
		t.Fatalf("GetRecent() error = %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("GetRecent() len = %d, want 2", len(logs))
	}
}

func TestAuditLogger_GetCount(t *testing.T) {
	al, _ := NewAuditLogger(10)
	ctx := context.Background()

	al.Insert(ctx, AuditLog{Pattern: "A"})
	al.Insert(ctx, AuditLog{Pattern: "A"})
	al.Insert(ctx, AuditLog{Pattern: "B"})

	if n, _ := al.GetCount(ctx, ""); n != 3 {
		t.Errorf("GetCount(\"\") = %d, want 3", n)
	}
	if n, _ := al.GetCount(ctx, "A"); n != 2 {
		t.Errorf("GetCount(\"A\") = %d, want 2", n)
	}
}

func TestAuditLogger_GetByRequestID(t *testing.T) {
	al, _ := NewAuditLogger(10)
	ctx := context.Background()

	al.Insert(ctx, AuditLog{Pattern: "A", RequestID: "req-1"})
	al.Insert(ctx, AuditLog{Pattern: "B", RequestID: "req-2"})
	al.Insert(ctx, AuditLog{Pattern: "C", RequestID: "req-1"})

	logs, err := al.GetByRequestID(ctx, "req-1")
	if err != nil {
		t.Fatalf("GetByRequestID() error = %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("GetByRequestID() len = %d, want 2", len(logs))
	}
}

func TestAuditLogger_GetByTimeRange(t *testing.T) {
	al, _ := NewAuditLogger(10)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	al.Insert(ctx, AuditLog{Pattern: "A", Timestamp: base})
	al.Insert(ctx, AuditLog{Pattern: "B", Timestamp: base.Add(time.Hour)})
	al.Insert(ctx, AuditLog{Pattern: "C", Timestamp: base.Add(2 * time.Hour)})

	logs, err := al.GetByTimeRange(ctx, base.Add(30*time.Minute), base.Add(90*time.Minute), 10)
	if err != nil {
		t.Fatalf("GetByTimeRange() error = %v", err)
	}
	if len(logs) != 1 || logs[0].Pattern != "B" {
		t.Fatalf("GetByTimeRange() = %+v, want [B]", logs)
	}
}

func TestAuditLogger_GetStats(t *testing.T) {
	al, _ := NewAuditLogger(10)
	ctx := context.Background()

	now := time.Now()
	al.Insert(ctx, AuditLog{Pattern: "A", TriggeredBy: "invalidation", Latency: 10, Timestamp: now})
	al.Insert(ctx, AuditLog{Pattern: "A", TriggeredBy: "invalidation", Latency: 20, Timestamp: now})
	al.Insert(ctx, AuditLog{Pattern: "B", TriggeredBy: "warming", Latency: 30, Timestamp: now})

	stats, err := al.GetStats(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.TotalResets != 3 {
		t.Errorf("TotalResets = %d, want 3", stats.TotalResets)
	}
	if stats.BySource["invalidation"] != 2 {
		t.Errorf("BySource[invalidation] = %d, want 2", stats.BySource["invalidation"])
	}
	if stats.MostFrequentPattern != "A" {
		t.Errorf("MostFrequentPattern = %q, want %q", stats.MostFrequentPattern, "A")
	}
	wantAvg := float64(10+20+30) / 3
	if stats.AvgLatency != wantAvg {
		t.Errorf("AvgLatency = %v, want %v", stats.AvgLatency, wantAvg)
	}
}

func TestNewAuditLogger_RejectsNonPositiveCapacity(t *testing.T) {
	if _, err := NewAuditLogger(0); err == nil {
		t.Error("NewAuditLogger(0) should error")
	}
	if _, err := NewAuditLogger(-1); err == nil {
		t.Error("NewAuditLogger(-1) should error")
	}
}
