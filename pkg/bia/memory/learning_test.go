package memory

import (
	"context"
	"fmt"
	"testing"
)

// fakeCompleter returns a canned JSON payload for extraction calls.
type fakeCompleter struct {
	response string
	err      error
	calls    int
}

func (f *fakeCompleter) CompleteJSON(_ context.Context, _ string, _ string) (string, error) {
	f.calls++
	return f.response, f.err
}

// fakeTranscripts serves a fixed transcript for any conversation.
type fakeTranscripts struct {
	entries []TranscriptEntry
}

func (f *fakeTranscripts) Transcript(_ context.Context, _, _ string) ([]TranscriptEntry, error) {
	return f.entries, nil
}

var sampleTranscript = []TranscriptEntry{
	{Role: "user", Content: "O colchão casal parcela em quantas vezes?"},
	{Role: "assistant", Content: "Parcelamos em até 12x sem juros no cartão."},
}

func TestExtractPatterns(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	t.Run("parses candidates", func(t *testing.T) {
		llm := &fakeCompleter{response: `{
			"patterns": [{
				"name": "parcelamento_12x",
				"type": "sales",
				"trigger_condition": "Cliente pergunta sobre parcelamento",
				"response_template": "Oferecer 12x sem juros, sem desconto.",
				"confidence_score": 0.92,
				"reasoning": "Resolveu a dúvida e manteve a política de preço."
			}]
		}`}
		engine := NewLearningEngine(d, llm, &fakeTranscripts{entries: sampleTranscript}, nil)

		candidates, err := engine.ExtractPatterns(ctx, "t1", "conv-1")
		if err != nil {
			t.Fatalf("extract patterns: %v", err)
		}
		if len(candidates) != 1 {
			t.Fatalf("expected 1 candidate, got %d", len(candidates))
		}
		if candidates[0].Name != "parcelamento_12x" {
			t.Errorf("unexpected name %q", candidates[0].Name)
		}
	})

	t.Run("clamps confidence into range", func(t *testing.T) {
		llm := &fakeCompleter{response: `{
			"patterns": [
				{"name": "a", "confidence_score": 1.7},
				{"name": "b", "confidence_score": -0.3}
			]
		}`}
		engine := NewLearningEngine(d, llm, &fakeTranscripts{entries: sampleTranscript}, nil)

		candidates, err := engine.ExtractPatterns(ctx, "t1", "conv-1")
		if err != nil {
			t.Fatalf("extract patterns: %v", err)
		}
		if candidates[0].ConfidenceScore != 1.0 {
			t.Errorf("expected clamp to 1.0, got %f", candidates[0].ConfidenceScore)
		}
		if candidates[1].ConfidenceScore != 0.0 {
			t.Errorf("expected clamp to 0.0, got %f", candidates[1].ConfidenceScore)
		}
	})

	t.Run("empty transcript skips the model", func(t *testing.T) {
		llm := &fakeCompleter{response: `{"patterns": []}`}
		engine := NewLearningEngine(d, llm, &fakeTranscripts{}, nil)

		candidates, err := engine.ExtractPatterns(ctx, "t1", "conv-vazia")
		if err != nil {
			t.Fatalf("extract patterns: %v", err)
		}
		if candidates != nil {
			t.Errorf("expected no candidates, got %v", candidates)
		}
		if llm.calls != 0 {
			t.Errorf("model should not be called for empty transcript")
		}
	})

	t.Run("surfaces extraction failure", func(t *testing.T) {
		llm := &fakeCompleter{err: fmt.Errorf("rate limited")}
		engine := NewLearningEngine(d, llm, &fakeTranscripts{entries: sampleTranscript}, nil)

		if _, err := engine.ExtractPatterns(ctx, "t1", "conv-1"); err == nil {
			t.Error("expected error from failed extraction")
		}
	})
}

func TestSuggestLearning(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	engine := NewLearningEngine(d, &fakeCompleter{}, &fakeTranscripts{}, nil)

	candidates := []PatternCandidate{
		{Name: "alto", ConfidenceScore: 0.9},
		{Name: "baixo", ConfidenceScore: 0.4},
	}
	if err := engine.SuggestLearning(ctx, candidates, "t1", "conv-1"); err != nil {
		t.Fatalf("suggest learning: %v", err)
	}

	logs, err := engine.PendingLogs(ctx, "t1")
	if err != nil {
		t.Fatalf("pending logs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 pending logs, got %d", len(logs))
	}
	for _, l := range logs {
		if l.Status != "pending" {
			t.Errorf("expected pending status, got %q", l.Status)
		}
	}

	t.Run("tenant filter", func(t *testing.T) {
		other, err := engine.PendingLogs(ctx, "t2")
		if err != nil {
			t.Fatalf("pending logs: %v", err)
		}
		if len(other) != 0 {
			t.Errorf("logs leaked to tenant t2")
		}
	})

	t.Run("requires tenant id", func(t *testing.T) {
		if err := engine.SuggestLearning(ctx, candidates, "", "conv-1"); err == nil {
			t.Error("expected error without tenant id")
		}
	})
}
