package memory

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizeInPlace(t *testing.T) {
	t.Run("scales to unit norm", func(t *testing.T) {
		v := []float32{3, 4}
		normalizeInPlace(v)
		norm := math.Sqrt(float64(v[0]*v[0] + v[1]*v[1]))
		if math.Abs(norm-1.0) > 1e-6 {
			t.Errorf("norm = %v, want 1.0", norm)
		}
	})

	t.Run("zero vector unchanged", func(t *testing.T) {
		v := []float32{0, 0, 0}
		normalizeInPlace(v)
		for _, x := range v {
			if x != 0 {
				t.Errorf("zero vector mutated: %v", v)
			}
		}
	})

	t.Run("empty vector is a no-op", func(t *testing.T) {
		normalizeInPlace(nil)
	})
}

func TestNewEmbeddingProvider(t *testing.T) {
	cases := []struct {
		provider string
		want     string
	}{
		{"local", "local"},
		{"", "local"},
		{"openai", "openai"},
		{"none", "none"},
		{"desconhecido", "none"},
	}
	for _, tc := range cases {
		p := NewEmbeddingProvider(EmbeddingConfig{Provider: tc.provider})
		if p.Name() != tc.want {
			t.Errorf("provider %q resolved to %q, want %q", tc.provider, p.Name(), tc.want)
		}
	}
}

func TestOpenAIEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{"embedding": []float32{3, 4}, "index": i}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(EmbeddingConfig{BaseURL: srv.URL, APIKey: "sk-test"})

	vecs, err := e.Embed(context.Background(), []string{"colchão", "  ", "travesseiro"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vecs))
	}
	if len(vecs[1]) != 0 {
		t.Errorf("blank input should yield an empty vector, got %v", vecs[1])
	}
	for _, i := range []int{0, 2} {
		norm := math.Sqrt(float64(vecs[i][0]*vecs[i][0] + vecs[i][1]*vecs[i][1]))
		if math.Abs(norm-1.0) > 1e-6 {
			t.Errorf("vecs[%d] norm = %v, want unit", i, norm)
		}
	}
}
