package memory

import (
	"context"
	"testing"
)

func seedLearningLogs(t *testing.T, engine *LearningEngine, tenantID string, candidates []PatternCandidate) {
	t.Helper()
	if err := engine.SuggestLearning(context.Background(), candidates, tenantID, "conv-1"); err != nil {
		t.Fatalf("SuggestLearning: %v", err)
	}
}

func TestProcessPending(t *testing.T) {
	db := newTestDB(t)
	behavior := NewBehaviorStore(db, nil)
	engine := NewLearningEngine(db, nil, nil, nil)
	sup := NewApprovalSupervisor(db, behavior, DefaultApproveThreshold, nil)
	ctx := context.Background()

	seedLearningLogs(t, engine, "t1", []PatternCandidate{
		{Name: "Parcelamento 12x", Type: "sales", TriggerCondition: "Cliente pergunta sobre preço", ResponseTemplate: "Ofereça o parcelamento em 12x", ConfidenceScore: 0.92},
		{Name: "Saudação informal", Type: "preference", TriggerCondition: "Cliente cumprimenta", ResponseTemplate: "Responda de forma calorosa", ConfidenceScore: 0.6},
	})

	t.Run("promotes only entries at or above the threshold", func(t *testing.T) {
		promoted, err := sup.ProcessPending(ctx, "t1")
		if err != nil {
			t.Fatalf("ProcessPending: %v", err)
		}
		if promoted != 1 {
			t.Fatalf("promoted = %d, want 1", promoted)
		}

		patterns, err := behavior.GetActivePatterns(ctx, "t1", "")
		if err != nil {
			t.Fatalf("GetActivePatterns: %v", err)
		}
		if len(patterns) != 1 {
			t.Fatalf("got %d active patterns, want 1", len(patterns))
		}
		if patterns[0].Name != "Parcelamento 12x" {
			t.Errorf("promoted pattern = %q, want Parcelamento 12x", patterns[0].Name)
		}
	})

	t.Run("low-confidence entries stay pending", func(t *testing.T) {
		pending, err := engine.PendingLogs(ctx, "t1")
		if err != nil {
			t.Fatalf("PendingLogs: %v", err)
		}
		if len(pending) != 1 {
			t.Fatalf("got %d pending logs, want 1", len(pending))
		}
		if pending[0].Pattern.Name != "Saudação informal" {
			t.Errorf("pending pattern = %q, want Saudação informal", pending[0].Pattern.Name)
		}
		if pending[0].Status != "pending" {
			t.Errorf("status = %q, want pending", pending[0].Status)
		}
	})

	t.Run("second sweep finds nothing to promote", func(t *testing.T) {
		promoted, err := sup.ProcessPending(ctx, "t1")
		if err != nil {
			t.Fatalf("ProcessPending: %v", err)
		}
		if promoted != 0 {
			t.Errorf("promoted = %d, want 0", promoted)
		}
	})
}

func TestApprove(t *testing.T) {
	db := newTestDB(t)
	behavior := NewBehaviorStore(db, nil)
	engine := NewLearningEngine(db, nil, nil, nil)
	sup := NewApprovalSupervisor(db, behavior, DefaultApproveThreshold, nil)
	ctx := context.Background()

	seedLearningLogs(t, engine, "t1", []PatternCandidate{
		{Name: "Garantia estendida", Type: "support", TriggerCondition: "Cliente pergunta sobre garantia", ResponseTemplate: "Explique a cobertura da garantia", ConfidenceScore: 0.5},
	})
	pending, err := engine.PendingLogs(ctx, "t1")
	if err != nil || len(pending) != 1 {
		t.Fatalf("PendingLogs: %v (%d logs)", err, len(pending))
	}
	logID := pending[0].ID

	t.Run("manual approval promotes regardless of confidence", func(t *testing.T) {
		ok, err := sup.Approve(ctx, logID)
		if err != nil {
			t.Fatalf("Approve: %v", err)
		}
		if !ok {
			t.Fatal("Approve returned false for a pending log")
		}
		patterns, err := behavior.GetActivePatterns(ctx, "t1", "")
		if err != nil {
			t.Fatalf("GetActivePatterns: %v", err)
		}
		if len(patterns) != 1 {
			t.Fatalf("got %d active patterns, want 1", len(patterns))
		}
	})

	t.Run("approving twice is a no-op", func(t *testing.T) {
		ok, err := sup.Approve(ctx, logID)
		if err != nil {
			t.Fatalf("Approve: %v", err)
		}
		if ok {
			t.Error("second Approve returned true, want false")
		}
		patterns, _ := behavior.GetActivePatterns(ctx, "t1", "")
		if len(patterns) != 1 {
			t.Errorf("got %d active patterns after double approval, want 1", len(patterns))
		}
	})

	t.Run("unknown log is a no-op", func(t *testing.T) {
		ok, err := sup.Approve(ctx, "no-such-log")
		if err != nil {
			t.Fatalf("Approve: %v", err)
		}
		if ok {
			t.Error("Approve returned true for unknown log")
		}
	})
}
