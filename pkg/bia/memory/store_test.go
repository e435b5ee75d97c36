package memory

import (
	"context"
	"log/slog"
	"strings"
	"testing"
)

// fakeEmbedder maps texts to fixed unit vectors so the vector path is
// deterministic in tests.
type fakeEmbedder struct{}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, 3)
		if strings.Contains(strings.ToLower(t), "colchão") {
			v[0] = 1
		} else {
			v[1] = 1
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }
func (f *fakeEmbedder) Name() string    { return "fake" }
func (f *fakeEmbedder) Model() string   { return "fake" }

func newTestStore(t *testing.T, embedder EmbeddingProvider) *Store {
	t.Helper()
	if embedder == nil {
		embedder = &NullEmbedder{}
	}
	s, err := NewStore(":memory:", embedder, slog.Default())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreChunkValidation(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	t.Run("rejects missing tenant", func(t *testing.T) {
		err := s.StoreChunk(ctx, &Chunk{Content: "algo"})
		if err == nil {
			t.Error("expected error for chunk without tenant")
		}
	})

	t.Run("rejects empty content", func(t *testing.T) {
		err := s.StoreChunk(ctx, &Chunk{TenantID: "t1", Content: "   "})
		if err == nil {
			t.Error("expected error for empty content")
		}
	})

	t.Run("generates id when absent", func(t *testing.T) {
		c := &Chunk{TenantID: "t1", Content: "cliente perguntou sobre garantia"}
		if err := s.StoreChunk(ctx, c); err != nil {
			t.Fatalf("store chunk: %v", err)
		}
		if c.ID == "" {
			t.Error("expected generated chunk id")
		}
	})
}

func TestSearchTenantIsolation(t *testing.T) {
	s := newTestStore(t, &fakeEmbedder{})
	ctx := context.Background()

	chunks := []Chunk{
		{TenantID: "tenant-a", Content: "cliente quer colchão casal"},
		{TenantID: "tenant-a", Content: "cliente perguntou sobre colchão solteiro"},
		{TenantID: "tenant-b", Content: "cliente quer colchão casal"},
	}
	for i := range chunks {
		if err := s.StoreChunk(ctx, &chunks[i]); err != nil {
			t.Fatalf("store chunk: %v", err)
		}
	}

	results, err := s.Search(ctx, "tenant-a", "colchão casal", 10, 0.05)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results for tenant-a")
	}
	for _, c := range results {
		if c.TenantID != "tenant-a" {
			t.Errorf("result leaked from tenant %q", c.TenantID)
		}
	}

	t.Run("requires tenant id", func(t *testing.T) {
		if _, err := s.Search(ctx, "", "colchão", 5, 0.1); err == nil {
			t.Error("expected error for search without tenant")
		}
	})
}

func TestSearchKeywordOnly(t *testing.T) {
	// NullEmbedder disables the vector path; keyword search must still work.
	s := newTestStore(t, nil)
	ctx := context.Background()

	if err := s.StoreChunk(ctx, &Chunk{
		TenantID: "t1",
		Content:  "Usuário: qual a garantia do colchão magnético?\nAssistente: dez anos.",
	}); err != nil {
		t.Fatalf("store chunk: %v", err)
	}

	results, err := s.Search(ctx, "t1", "garantia colchão", 5, 0.05)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}

func TestSearchBoostLandsBeforeClose(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	c := &Chunk{TenantID: "t1", Content: "cliente perguntou sobre frete"}
	if err := s.StoreChunk(ctx, c); err != nil {
		t.Fatalf("store chunk: %v", err)
	}

	if _, err := s.Search(ctx, "t1", "frete", 5, 0.05); err != nil {
		t.Fatalf("search: %v", err)
	}

	// The boost runs on a background goroutine; Flush must guarantee it
	// is visible, with no sleep.
	s.Flush()

	var score float64
	if err := s.db.QueryRow(
		"SELECT relevance_score FROM memory_chunks WHERE id = ?", c.ID).Scan(&score); err != nil {
		t.Fatalf("read score: %v", err)
	}
	if score != relevanceBoost {
		t.Errorf("score = %f, want %f after one retrieval", score, relevanceBoost)
	}
}

func TestBoostRelevanceCap(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	c := &Chunk{TenantID: "t1", Content: "conteúdo frequente", RelevanceScore: 0.97}
	if err := s.StoreChunk(ctx, c); err != nil {
		t.Fatalf("store chunk: %v", err)
	}

	// Boost repeatedly; the stored score must never exceed 1.0.
	for i := 0; i < 5; i++ {
		s.boostRelevance("t1", []string{c.ID})
	}

	var score float64
	if err := s.db.QueryRow(
		"SELECT relevance_score FROM memory_chunks WHERE id = ?", c.ID).Scan(&score); err != nil {
		t.Fatalf("read score: %v", err)
	}
	if score > 1.0 {
		t.Errorf("relevance score exceeded cap: %f", score)
	}
	if score < 0.99 {
		t.Errorf("expected score near 1.0, got %f", score)
	}
}

func TestFuseResults(t *testing.T) {
	mk := func(id string, relevance float64) scoredChunk {
		return scoredChunk{chunk: Chunk{ID: id, RelevanceScore: relevance}, score: 1}
	}

	t.Run("deduplicates across signals", func(t *testing.T) {
		vec := []scoredChunk{mk("a", 0), mk("b", 0)}
		kw := []scoredChunk{mk("a", 0)}
		fused := fuseResults(vec, kw, 0.01, 10)
		if len(fused) != 2 {
			t.Fatalf("expected 2 fused chunks, got %d", len(fused))
		}
		// "a" appears in both lists at rank 1: 0.7 + 0.3 > 0.7/2.
		if fused[0].ID != "a" {
			t.Errorf("expected chunk a first, got %s", fused[0].ID)
		}
	})

	t.Run("threshold filters weak matches", func(t *testing.T) {
		kw := []scoredChunk{mk("a", 0), mk("b", 0), mk("c", 0)}
		fused := fuseResults(nil, kw, 0.2, 10)
		// Only rank 1 (0.3) passes a 0.2 threshold.
		if len(fused) != 1 {
			t.Fatalf("expected 1 chunk above threshold, got %d", len(fused))
		}
	})

	t.Run("relevance score breaks ties", func(t *testing.T) {
		// Same keyword rank: the chunk with accumulated relevance wins.
		kw := []scoredChunk{mk("cold", 0)}
		vec := []scoredChunk{mk("hot", 1.0)}
		// vec rank 1 = 0.7 + 0.1*1.0; kw rank 1 = 0.3.
		fused := fuseResults(vec, kw, 0.01, 10)
		if len(fused) != 2 {
			t.Fatalf("expected 2 chunks, got %d", len(fused))
		}
		if fused[0].ID != "hot" {
			t.Errorf("expected boosted chunk first, got %s", fused[0].ID)
		}
	})

	t.Run("limit caps output", func(t *testing.T) {
		kw := []scoredChunk{mk("a", 1), mk("b", 1), mk("c", 1)}
		fused := fuseResults(nil, kw, 0.01, 2)
		if len(fused) != 2 {
			t.Fatalf("expected 2 chunks, got %d", len(fused))
		}
	})
}

func TestSanitizeFTS5Query(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"plain text", "colchão casal", `"colchão casal"`},
		{"strips fts operators", `preço "casal" (magnético)*`, `"preço  casal   magnético"`},
		{"empty after cleanup", `"()*`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeFTS5Query(tt.query); got != tt.want {
				t.Errorf("sanitizeFTS5Query(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}

func TestExtractKeywords(t *testing.T) {
	got := extractKeywords("Quero saber sobre o colchão magnético, por favor!")
	for _, kw := range got {
		if stopWords[kw] {
			t.Errorf("stop word %q survived extraction", kw)
		}
		if len(kw) < 3 {
			t.Errorf("short token %q survived extraction", kw)
		}
	}
	found := false
	for _, kw := range got {
		if kw == "colchão" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected keyword colchão in %v", got)
	}
}
