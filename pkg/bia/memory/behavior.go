// Package memory – behavior.go manages approved behavioral patterns and
// renders the dynamic few-shot block injected into the system prompt.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Pattern is an approved, reusable trigger/response rule learned from past
// conversations. Only active patterns participate in few-shot assembly.
type Pattern struct {
	ID               string
	TenantID         string
	Name             string
	Type             string
	TriggerCondition string
	ResponseTemplate string
	ConfidenceScore  float64
	IsActive         bool
	Metadata         map[string]any
	CreatedAt        time.Time
}

// BehaviorStore is the tenant-scoped repository of behavior patterns,
// backed by the central database.
type BehaviorStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewBehaviorStore creates a behavior store over the central database.
func NewBehaviorStore(db *sql.DB, logger *slog.Logger) *BehaviorStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &BehaviorStore{db: db, logger: logger}
}

// GetActivePatterns returns the tenant's active patterns for the given query.
// Trigger matching is intentionally coarse: all active patterns are returned
// and the model reads the trigger conditions in the prompt itself.
// TODO: match triggers semantically via the embedding provider once trigger
// texts are embedded at promotion time.
func (b *BehaviorStore) GetActivePatterns(ctx context.Context, tenantID, _ string) ([]Pattern, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("get active patterns: tenant id is required")
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT id, name, type, trigger_condition, response_template, confidence_score, is_active, metadata, created_at
		FROM behavior_patterns
		WHERE tenant_id = ? AND is_active = 1
		ORDER BY confidence_score DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query behavior patterns: %w", err)
	}
	defer rows.Close()

	return b.scanPatterns(rows, tenantID)
}

// List returns all patterns for a tenant, active or not.
func (b *BehaviorStore) List(ctx context.Context, tenantID string) ([]Pattern, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, name, type, trigger_condition, response_template, confidence_score, is_active, metadata, created_at
		FROM behavior_patterns
		WHERE tenant_id = ?
		ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list behavior patterns: %w", err)
	}
	defer rows.Close()

	return b.scanPatterns(rows, tenantID)
}

// Insert persists a new pattern. A missing ID is generated.
func (b *BehaviorStore) Insert(ctx context.Context, p *Pattern) error {
	if p.TenantID == "" {
		return fmt.Errorf("insert pattern: tenant id is required")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Type == "" {
		p.Type = "general"
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	metaJSON := "{}"
	if len(p.Metadata) > 0 {
		if data, err := json.Marshal(p.Metadata); err == nil {
			metaJSON = string(data)
		}
	}

	_, err := b.db.ExecContext(ctx, `
		INSERT INTO behavior_patterns
			(id, tenant_id, name, type, trigger_condition, response_template, confidence_score, is_active, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.TenantID, p.Name, p.Type, p.TriggerCondition, p.ResponseTemplate,
		p.ConfidenceScore, boolToInt(p.IsActive), metaJSON,
		p.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert behavior pattern: %w", err)
	}
	return nil
}

// SetActive toggles a pattern's participation in few-shot assembly.
func (b *BehaviorStore) SetActive(ctx context.Context, tenantID, patternID string, active bool) error {
	res, err := b.db.ExecContext(ctx, `
		UPDATE behavior_patterns SET is_active = ?
		WHERE tenant_id = ? AND id = ?`, boolToInt(active), tenantID, patternID)
	if err != nil {
		return fmt.Errorf("update behavior pattern: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pattern %s not found for tenant", patternID)
	}
	return nil
}

func (b *BehaviorStore) scanPatterns(rows *sql.Rows, tenantID string) ([]Pattern, error) {
	var patterns []Pattern
	for rows.Next() {
		var (
			p             Pattern
			active        int
			meta, created string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Type, &p.TriggerCondition, &p.ResponseTemplate,
			&p.ConfidenceScore, &active, &meta, &created); err != nil {
			return nil, fmt.Errorf("scan behavior pattern: %w", err)
		}
		p.TenantID = tenantID
		p.IsActive = active != 0
		_ = json.Unmarshal([]byte(meta), &p.Metadata)
		p.CreatedAt, _ = time.Parse(time.RFC3339, created)
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// BuildFewShot renders the learned patterns as a prompt block of
// WHEN / SUGGESTED RESPONSE pairs. An empty pattern list yields "".
func BuildFewShot(patterns []Pattern) string {
	if len(patterns) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n### EXEMPLOS DE COMPORTAMENTO APRENDIDO:\n")
	for _, p := range patterns {
		sb.WriteString("- QUANDO: " + p.TriggerCondition + "\n")
		sb.WriteString("  RESPOSTA SUGERIDA: " + p.ResponseTemplate + "\n")
	}
	return sb.String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
