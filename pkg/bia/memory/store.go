// Package memory – store.go implements the tenant-scoped long-term memory on
// SQLite with FTS5 (BM25 ranking) and in-process vector search over
// unit-normalized embeddings stored as JSON float32 arrays. Hybrid results
// are fused with Reciprocal Rank Fusion. Every query carries a mandatory
// tenant_id filter; cross-tenant visibility is a correctness violation.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viterin/vek/vek32"

	_ "github.com/mattn/go-sqlite3" // SQLite driver with FTS5 support.
)

// relevanceBoost is the fixed increment applied to a chunk's stored
// relevance score each time it surfaces in a search result.
const relevanceBoost = 0.05

// relevanceWeight controls how much the accumulated relevance score
// contributes to the fused ranking.
const relevanceWeight = 0.1

// Chunk is one fragment of long-term memory.
type Chunk struct {
	ID             string
	TenantID       string
	ConversationID string
	Content        string
	Embedding      []float32
	Metadata       map[string]any
	RelevanceScore float64
	CreatedAt      time.Time
}

// Store provides persistent tenant-isolated memory with hybrid search.
type Store struct {
	db       *sql.DB
	embedder EmbeddingProvider
	logger   *slog.Logger

	// ftsAvailable indicates whether FTS5 is available for full-text search.
	// When false, search falls back to LIKE queries (slower but functional).
	ftsAvailable bool

	// pending tracks background writes so Close can drain them before
	// closing the database.
	pending sync.WaitGroup
}

const memorySchema = `
	CREATE TABLE IF NOT EXISTS memory_chunks (
		id              TEXT PRIMARY KEY,
		tenant_id       TEXT NOT NULL,
		conversation_id TEXT NOT NULL DEFAULT '',
		content         TEXT NOT NULL,
		embedding       TEXT,
		metadata        TEXT NOT NULL DEFAULT '{}',
		relevance_score REAL NOT NULL DEFAULT 0,
		created_at      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memory_chunks_tid ON memory_chunks(tenant_id);

	CREATE TABLE IF NOT EXISTS knowledge_chunks (
		id         TEXT PRIMARY KEY,
		tenant_id  TEXT NOT NULL,
		content    TEXT NOT NULL,
		embedding  TEXT,
		metadata   TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_tid ON knowledge_chunks(tenant_id);
`

const memoryFTSSchema = `
	CREATE VIRTUAL TABLE IF NOT EXISTS memory_fts USING fts5(
		content,
		content='memory_chunks',
		content_rowid='rowid',
		tokenize='porter unicode61'
	);
	CREATE TRIGGER IF NOT EXISTS memory_chunks_ai AFTER INSERT ON memory_chunks BEGIN
		INSERT INTO memory_fts(rowid, content) VALUES (new.rowid, new.content);
	END;
	CREATE TRIGGER IF NOT EXISTS memory_chunks_ad AFTER DELETE ON memory_chunks BEGIN
		INSERT INTO memory_fts(memory_fts, rowid, content) VALUES('delete', old.rowid, old.content);
	END;

	CREATE VIRTUAL TABLE IF NOT EXISTS knowledge_fts USING fts5(
		content,
		content='knowledge_chunks',
		content_rowid='rowid',
		tokenize='porter unicode61'
	);
	CREATE TRIGGER IF NOT EXISTS knowledge_chunks_ai AFTER INSERT ON knowledge_chunks BEGIN
		INSERT INTO knowledge_fts(rowid, content) VALUES (new.rowid, new.content);
	END;
	CREATE TRIGGER IF NOT EXISTS knowledge_chunks_ad AFTER DELETE ON knowledge_chunks BEGIN
		INSERT INTO knowledge_fts(knowledge_fts, rowid, content) VALUES('delete', old.rowid, old.content);
	END;
`

// NewStore opens or creates the memory database at dbPath.
// Pass ":memory:" for an ephemeral store (tests, REPL mode).
func NewStore(dbPath string, embedder EmbeddingProvider, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	if dbPath == ":memory:" {
		// Each sqlite connection gets its own :memory: database; keep
		// the pool at one connection so everyone sees the same data.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, embedder: embedder, logger: logger}
	if _, err := db.Exec(memorySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init memory schema: %w", err)
	}

	// FTS5 is optional. Some SQLite builds don't include it; keyword search
	// then falls back to LIKE queries.
	if _, err := db.Exec(memoryFTSSchema); err != nil {
		s.ftsAvailable = false
		logger.Warn("FTS5 not available, falling back to LIKE search", "error", err.Error())
	} else {
		s.ftsAvailable = true
	}

	return s, nil
}

// Close waits for background writes to land and closes the database.
func (s *Store) Close() error {
	s.pending.Wait()
	return s.db.Close()
}

// Flush blocks until all queued background writes have finished.
func (s *Store) Flush() {
	s.pending.Wait()
}

// background runs fn on a tracked goroutine drained by Close.
func (s *Store) background(fn func()) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		fn()
	}()
}

// StoreChunk embeds (when needed) and persists one memory chunk.
func (s *Store) StoreChunk(ctx context.Context, chunk *Chunk) error {
	if chunk.TenantID == "" {
		return fmt.Errorf("store chunk: tenant id is required")
	}
	if strings.TrimSpace(chunk.Content) == "" {
		return fmt.Errorf("store chunk: empty content")
	}
	if chunk.ID == "" {
		chunk.ID = uuid.NewString()
	}
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now().UTC()
	}

	if len(chunk.Embedding) == 0 {
		vecs, err := s.embedder.Embed(ctx, []string{chunk.Content})
		if err != nil {
			// Index without a vector; keyword search still finds it.
			s.logger.Warn("embedding failed, storing chunk without vector", "error", err)
		} else if len(vecs) == 1 {
			chunk.Embedding = vecs[0]
		}
	}

	var embJSON sql.NullString
	if len(chunk.Embedding) > 0 {
		data, err := json.Marshal(chunk.Embedding)
		if err != nil {
			return fmt.Errorf("marshal embedding: %w", err)
		}
		embJSON = sql.NullString{String: string(data), Valid: true}
	}

	metaJSON := "{}"
	if len(chunk.Metadata) > 0 {
		if data, err := json.Marshal(chunk.Metadata); err == nil {
			metaJSON = string(data)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_chunks (id, tenant_id, conversation_id, content, embedding, metadata, relevance_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		chunk.ID, chunk.TenantID, chunk.ConversationID, chunk.Content,
		embJSON, metaJSON, chunk.RelevanceScore,
		chunk.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert memory chunk: %w", err)
	}
	return nil
}

// Search performs a hybrid vector+keyword search scoped to one tenant and
// returns the fused top results. Every returned chunk receives an
// asynchronous fixed relevance boost (simple reinforcement: frequently
// retrieved memories rank higher over time).
func (s *Store) Search(ctx context.Context, tenantID, query string, limit int, threshold float64) ([]Chunk, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("memory search: tenant id is required")
	}
	if limit <= 0 {
		limit = 5
	}
	if threshold <= 0 {
		threshold = 0.1
	}

	vecResults, vecErr := s.searchVector(ctx, tenantID, query, limit*4)
	kwResults, kwErr := s.searchKeyword(ctx, tenantID, query, limit*4)
	if vecErr != nil && kwErr != nil {
		return nil, fmt.Errorf("memory search: vector: %v; keyword: %w", vecErr, kwErr)
	}

	fused := fuseResults(vecResults, kwResults, threshold, limit)

	// Relevance boost is fire-and-forget; a failed boost never affects the
	// search result.
	ids := make([]string, len(fused))
	for i, c := range fused {
		ids[i] = c.ID
	}
	s.background(func() { s.boostRelevance(tenantID, ids) })

	return fused, nil
}

// scoredChunk pairs a chunk with its per-signal score.
type scoredChunk struct {
	chunk Chunk
	score float64
}

// searchVector scans the tenant's embedded chunks and ranks them by cosine
// similarity. The tenant filter lives in the SQL query itself.
func (s *Store) searchVector(ctx context.Context, tenantID, query string, limit int) ([]scoredChunk, error) {
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, nil
	}
	queryVec := vecs[0]

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, content, embedding, metadata, relevance_score, created_at
		FROM memory_chunks
		WHERE tenant_id = ? AND embedding IS NOT NULL`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query embedded chunks: %w", err)
	}
	defer rows.Close()

	var candidates []scoredChunk
	for rows.Next() {
		chunk, embJSON, err := s.scanChunk(rows, tenantID)
		if err != nil {
			continue
		}
		var emb []float32
		if json.Unmarshal([]byte(embJSON), &emb) != nil || len(emb) != len(queryVec) {
			continue
		}
		// Both vectors are unit-normalized, so the dot product is the
		// cosine similarity.
		sim := float64(vek32.Dot(queryVec, emb))
		if sim > 0 {
			candidates = append(candidates, scoredChunk{chunk: chunk, score: sim})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// searchKeyword performs an FTS5 BM25 search (or LIKE fallback), always
// constrained by tenant_id in the query.
func (s *Store) searchKeyword(ctx context.Context, tenantID, query string, limit int) ([]scoredChunk, error) {
	if !s.ftsAvailable {
		return s.searchLike(ctx, tenantID, query, limit)
	}

	ftsQuery := sanitizeFTS5Query(query)
	if ftsQuery == "" {
		return nil, nil
	}

	results, err := s.ftsQuery(ctx, tenantID, ftsQuery, limit)
	if err == nil && len(results) >= limit/2 {
		return results, nil
	}

	// Expand conversational queries into an OR of keywords.
	if expanded := expandQueryForFTS(extractKeywords(query)); expanded != "" && expanded != ftsQuery {
		more, expErr := s.ftsQuery(ctx, tenantID, expanded, limit)
		if expErr == nil {
			results = mergeScored(results, more, limit)
		}
	}
	return results, err
}

func (s *Store) ftsQuery(ctx context.Context, tenantID, ftsQuery string, limit int) ([]scoredChunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.conversation_id, c.content, COALESCE(c.embedding, ''), c.metadata, c.relevance_score, c.created_at, rank
		FROM memory_fts
		JOIN memory_chunks c ON c.rowid = memory_fts.rowid
		WHERE memory_fts MATCH ? AND c.tenant_id = ?
		ORDER BY rank
		LIMIT ?`, ftsQuery, tenantID, limit)
	if err != nil {
		return s.searchLike(ctx, tenantID, ftsQuery, limit)
	}
	defer rows.Close()

	var results []scoredChunk
	for rows.Next() {
		var (
			c                       Chunk
			embJSON, meta, created  string
			rank                    float64
		)
		if err := rows.Scan(&c.ID, &c.ConversationID, &c.Content, &embJSON, &meta, &c.RelevanceScore, &created, &rank); err != nil {
			continue
		}
		c.TenantID = tenantID
		_ = json.Unmarshal([]byte(meta), &c.Metadata)
		c.CreatedAt, _ = time.Parse(time.RFC3339, created)
		results = append(results, scoredChunk{chunk: c, score: 1.0 / (1.0 + math.Abs(rank))})
	}
	return results, nil
}

// searchLike is the keyword fallback when FTS5 is unavailable.
func (s *Store) searchLike(ctx context.Context, tenantID, query string, limit int) ([]scoredChunk, error) {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return nil, nil
	}

	conditions := make([]string, 0, len(words))
	args := []any{tenantID}
	for _, w := range words {
		conditions = append(conditions, "LOWER(content) LIKE ?")
		args = append(args, "%"+strings.Trim(w, `"`)+"%")
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, conversation_id, content, COALESCE(embedding, ''), metadata, relevance_score, created_at
		FROM memory_chunks
		WHERE tenant_id = ? AND (%s)
		LIMIT ?`, strings.Join(conditions, " OR ")), args...)
	if err != nil {
		return nil, fmt.Errorf("LIKE search: %w", err)
	}
	defer rows.Close()

	var results []scoredChunk
	for rows.Next() {
		chunk, _, err := s.scanChunk(rows, tenantID)
		if err != nil {
			continue
		}
		text := strings.ToLower(chunk.Content)
		matches := 0
		for _, w := range words {
			if strings.Contains(text, strings.Trim(w, `"`)) {
				matches++
			}
		}
		results = append(results, scoredChunk{chunk: chunk, score: float64(matches) / float64(len(words))})
	}
	return results, nil
}

// scanChunk reads one full chunk row (id, conversation_id, content,
// embedding, metadata, relevance_score, created_at).
func (s *Store) scanChunk(rows *sql.Rows, tenantID string) (Chunk, string, error) {
	var (
		c                      Chunk
		embJSON, meta, created string
	)
	if err := rows.Scan(&c.ID, &c.ConversationID, &c.Content, &embJSON, &meta, &c.RelevanceScore, &created); err != nil {
		return Chunk{}, "", err
	}
	c.TenantID = tenantID
	_ = json.Unmarshal([]byte(meta), &c.Metadata)
	c.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return c, embJSON, nil
}

// fuseResults merges the two ranked lists with Reciprocal Rank Fusion and
// folds in the accumulated relevance score of each chunk.
func fuseResults(vec, kw []scoredChunk, threshold float64, limit int) []Chunk {
	scoreMap := make(map[string]*scoredChunk)

	merge := func(results []scoredChunk, weight float64) {
		for i, r := range results {
			contribution := weight * (1.0 / float64(i+1))
			if existing, ok := scoreMap[r.chunk.ID]; ok {
				existing.score += contribution
			} else {
				c := r
				c.score = contribution
				scoreMap[r.chunk.ID] = &c
			}
		}
	}
	merge(vec, 0.7)
	merge(kw, 0.3)

	var fused []scoredChunk
	for _, r := range scoreMap {
		r.score += relevanceWeight * r.chunk.RelevanceScore
		if r.score >= threshold {
			fused = append(fused, *r)
		}
	}
	sort.Slice(fused, func(i, j int) bool {
		return fused[i].score > fused[j].score
	})
	if len(fused) > limit {
		fused = fused[:limit]
	}

	chunks := make([]Chunk, len(fused))
	for i, r := range fused {
		chunks[i] = r.chunk
	}
	return chunks
}

// mergeScored deduplicates and merges two scored result sets.
func mergeScored(a, b []scoredChunk, limit int) []scoredChunk {
	seen := make(map[string]bool)
	var merged []scoredChunk
	for _, r := range append(a, b...) {
		if !seen[r.chunk.ID] {
			seen[r.chunk.ID] = true
			merged = append(merged, r)
		}
	}
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// boostRelevance applies the fixed reinforcement boost to the given chunks.
// Scores are capped at 1.0 so repeated retrieval cannot grow them unbounded.
func (s *Store) boostRelevance(tenantID string, ids []string) {
	for _, id := range ids {
		_, err := s.db.Exec(`
			UPDATE memory_chunks
			SET relevance_score = MIN(1.0, relevance_score + ?)
			WHERE tenant_id = ? AND id = ?`, relevanceBoost, tenantID, id)
		if err != nil {
			s.logger.Warn("relevance boost failed", "chunk", id, "error", err)
		}
	}
}

// ChunkCount returns the number of memory chunks stored for a tenant.
func (s *Store) ChunkCount(tenantID string) int {
	var count int
	_ = s.db.QueryRow("SELECT COUNT(*) FROM memory_chunks WHERE tenant_id = ?", tenantID).Scan(&count)
	return count
}

// ---------- Query Helpers ----------

// sanitizeFTS5Query escapes FTS5 special characters and wraps the query in
// double quotes so it is treated as a phrase literal. This prevents accidental
// FTS5 syntax injection from user input.
func sanitizeFTS5Query(query string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '"', '(', ')', '*', '^', ':', '{', '}':
			return ' '
		default:
			return r
		}
	}, query)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return ""
	}
	return `"` + cleaned + `"`
}

// extractKeywords extracts meaningful keywords from a conversational query
// by removing stop words and short tokens.
func extractKeywords(query string) []string {
	words := strings.Fields(strings.ToLower(query))
	var keywords []string
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?\"'()[]{}*")
		if len(w) < 3 || stopWords[w] {
			continue
		}
		keywords = append(keywords, w)
	}
	return keywords
}

// expandQueryForFTS converts extracted keywords into an FTS5 OR query.
func expandQueryForFTS(keywords []string) string {
	var parts []string
	for _, kw := range keywords {
		if q := sanitizeFTS5Query(kw); q != "" {
			parts = append(parts, q)
		}
	}
	return strings.Join(parts, " OR ")
}

// stopWords are common words filtered out during keyword extraction.
// Both English and Brazilian Portuguese, since conversations are pt-BR.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"was": true, "one": true, "our": true, "out": true, "has": true,
	"that": true, "with": true, "have": true, "this": true, "will": true,
	"your": true, "from": true, "they": true, "been": true, "what": true,
	"about": true, "would": true, "there": true, "when": true, "like": true,
	// Portuguese
	"que": true, "não": true, "nao": true, "com": true, "uma": true,
	"para": true, "por": true, "mais": true, "como": true, "mas": true,
	"dos": true, "das": true, "nos": true, "nas": true, "foi": true,
	"ser": true, "tem": true, "são": true, "sao": true, "seu": true,
	"sua": true, "isso": true, "este": true, "esta": true, "esse": true,
	"essa": true, "aqui": true, "ele": true, "ela": true, "eles": true,
	"elas": true, "nós": true, "você": true, "voce": true, "também": true,
	"tambem": true, "quero": true, "sobre": true, "qual": true, "quanto": true,
}
