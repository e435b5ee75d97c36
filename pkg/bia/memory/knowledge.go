// Package memory – knowledge.go implements the read path over the tenant's
// ingested knowledge base. Document ingestion/chunking happens upstream;
// the agent only needs tenant-scoped similarity search for grounding.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viterin/vek/vek32"
)

// KnowledgeChunk is one grounding fragment from the tenant knowledge base.
type KnowledgeChunk struct {
	ID        string
	TenantID  string
	Content   string
	Metadata  map[string]any
	CreatedAt time.Time
}

// AddKnowledge inserts one knowledge chunk for a tenant, embedding it first.
// The ingestion pipeline proper is upstream; this is its write interface.
func (s *Store) AddKnowledge(ctx context.Context, tenantID, content string, metadata map[string]any) error {
	if tenantID == "" {
		return fmt.Errorf("add knowledge: tenant id is required")
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("add knowledge: empty content")
	}

	var embJSON sql.NullString
	vecs, err := s.embedder.Embed(ctx, []string{content})
	if err != nil {
		s.logger.Warn("embedding failed, storing knowledge without vector", "error", err)
	} else if len(vecs) == 1 && len(vecs[0]) > 0 {
		data, _ := json.Marshal(vecs[0])
		embJSON = sql.NullString{String: string(data), Valid: true}
	}

	metaJSON := "{}"
	if len(metadata) > 0 {
		if data, err := json.Marshal(metadata); err == nil {
			metaJSON = string(data)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO knowledge_chunks (id, tenant_id, content, embedding, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), tenantID, content, embJSON, metaJSON,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert knowledge chunk: %w", err)
	}
	return nil
}

// SearchKnowledge returns the concatenated content of the most relevant
// knowledge chunks for the tenant, or an empty string when nothing matches.
// Errors degrade to an empty context so the agent can still answer or hand off.
func (s *Store) SearchKnowledge(ctx context.Context, tenantID, query string, topK int) string {
	if tenantID == "" || strings.TrimSpace(query) == "" {
		return ""
	}
	if topK <= 0 {
		topK = 3
	}

	results, err := s.searchKnowledgeVector(ctx, tenantID, query, topK)
	if err != nil || len(results) == 0 {
		if err != nil {
			s.logger.Warn("knowledge vector search failed, trying keyword", "error", err)
		}
		results = s.searchKnowledgeKeyword(ctx, tenantID, query, topK)
	}
	if len(results) == 0 {
		return ""
	}

	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Content
	}
	return strings.Join(parts, "\n\n")
}

func (s *Store) searchKnowledgeVector(ctx context.Context, tenantID, query string, topK int) ([]KnowledgeChunk, error) {
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, nil
	}
	queryVec := vecs[0]

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, embedding, metadata, created_at
		FROM knowledge_chunks
		WHERE tenant_id = ? AND embedding IS NOT NULL`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query knowledge chunks: %w", err)
	}
	defer rows.Close()

	type scored struct {
		chunk KnowledgeChunk
		score float64
	}
	var candidates []scored
	for rows.Next() {
		var (
			c                      KnowledgeChunk
			embJSON, meta, created string
		)
		if err := rows.Scan(&c.ID, &c.Content, &embJSON, &meta, &created); err != nil {
			continue
		}
		var emb []float32
		if json.Unmarshal([]byte(embJSON), &emb) != nil || len(emb) != len(queryVec) {
			continue
		}
		c.TenantID = tenantID
		_ = json.Unmarshal([]byte(meta), &c.Metadata)
		c.CreatedAt, _ = time.Parse(time.RFC3339, created)

		// Unit vectors: dot product is cosine similarity.
		if sim := float64(vek32.Dot(queryVec, emb)); sim >= 0.5 {
			candidates = append(candidates, scored{chunk: c, score: sim})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	out := make([]KnowledgeChunk, len(candidates))
	for i, c := range candidates {
		out[i] = c.chunk
	}
	return out, nil
}

// searchKnowledgeKeyword is the FTS5/LIKE path used when no vectors exist.
func (s *Store) searchKnowledgeKeyword(ctx context.Context, tenantID, query string, topK int) []KnowledgeChunk {
	var rows *sql.Rows
	var err error

	if s.ftsAvailable {
		ftsQuery := expandQueryForFTS(extractKeywords(query))
		if ftsQuery == "" {
			ftsQuery = sanitizeFTS5Query(query)
		}
		if ftsQuery == "" {
			return nil
		}
		rows, err = s.db.QueryContext(ctx, `
			SELECT k.id, k.content, k.metadata, k.created_at
			FROM knowledge_fts
			JOIN knowledge_chunks k ON k.rowid = knowledge_fts.rowid
			WHERE knowledge_fts MATCH ? AND k.tenant_id = ?
			ORDER BY rank
			LIMIT ?`, ftsQuery, tenantID, topK)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, content, metadata, created_at
			FROM knowledge_chunks
			WHERE tenant_id = ? AND LOWER(content) LIKE ?
			LIMIT ?`, tenantID, "%"+strings.ToLower(strings.TrimSpace(query))+"%", topK)
	}
	if err != nil {
		s.logger.Warn("knowledge keyword search failed", "error", err)
		return nil
	}
	defer rows.Close()

	var out []KnowledgeChunk
	for rows.Next() {
		var (
			c             KnowledgeChunk
			meta, created string
		)
		if err := rows.Scan(&c.ID, &c.Content, &meta, &created); err != nil {
			continue
		}
		c.TenantID = tenantID
		_ = json.Unmarshal([]byte(meta), &c.Metadata)
		c.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, c)
	}
	return out
}
