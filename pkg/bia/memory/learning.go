// Package memory – learning.go extracts candidate behavioral patterns from
// finished conversations and queues them as pending learning logs.
// The learning path is fully isolated from the reply path: failures here are
// logged and skipped, never surfaced to a live turn.
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

// Completer is the language-model surface the learning engine needs.
// Implemented by the agent's LLM client.
type Completer interface {
	// CompleteJSON requests a completion constrained to a JSON object.
	CompleteJSON(ctx context.Context, tenantID, prompt string) (string, error)
}

// TranscriptEntry is one turn of a conversation transcript.
type TranscriptEntry struct {
	Role    string
	Content string
}

// TranscriptSource loads the full transcript of a conversation.
// Implemented by the session store.
type TranscriptSource interface {
	Transcript(ctx context.Context, tenantID, conversationID string) ([]TranscriptEntry, error)
}

// PatternCandidate is one extracted behavioral pattern with the model's
// self-reported confidence.
type PatternCandidate struct {
	Name             string  `json:"name"`
	Type             string  `json:"type"`
	TriggerCondition string  `json:"trigger_condition"`
	ResponseTemplate string  `json:"response_template"`
	ConfidenceScore  float64 `json:"confidence_score"`
	Reasoning        string  `json:"reasoning"`
}

// LearningLog is one queued candidate awaiting confidence-based promotion.
type LearningLog struct {
	ID              string
	TenantID        string
	ConversationID  string
	Pattern         PatternCandidate
	ConfidenceScore float64
	Status          string // pending, approved, rejected
	ReviewerNotes   string
	CreatedAt       time.Time
}

// extractionPrompt asks the model to mine reusable behavior from a dialogue.
const extractionPrompt = `Analise o diálogo abaixo entre um Agente e um Cliente e extraia PADRÕES COMPORTAMENTAIS.
Um padrão ocorre quando o Agente resolve um problema, responde uma dúvida complexa ou segue um processo eficaz.

DIÁLOGO:
%s

EXTRATO EM JSON:
{
    "patterns": [
        {
            "name": "Nome curto do padrão",
            "type": "discovery/sales/support/preference",
            "trigger_condition": "O que o cliente disse ou qual a situação?",
            "response_template": "Como o agente deve responder ou agir?",
            "confidence_score": 0.0 a 1.0,
            "reasoning": "Por que este padrão é relevante?"
        }
    ]
}`

// LearningEngine analyzes conversations and suggests new behaviors.
type LearningEngine struct {
	db          *sql.DB
	llm         Completer
	transcripts TranscriptSource
	logger      *slog.Logger
}

// NewLearningEngine creates a learning engine over the central database.
func NewLearningEngine(db *sql.DB, llm Completer, transcripts TranscriptSource, logger *slog.Logger) *LearningEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &LearningEngine{db: db, llm: llm, transcripts: transcripts, logger: logger}
}

// ExtractPatterns loads the conversation transcript and asks the model for
// reusable behavioral patterns. Returns an empty slice when the transcript
// is empty or nothing relevant was found.
func (l *LearningEngine) ExtractPatterns(ctx context.Context, tenantID, conversationID string) ([]PatternCandidate, error) {
	entries, err := l.transcripts.Transcript(ctx, tenantID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(e.Role + ": " + e.Content + "\n")
	}

	raw, err := l.llm.CompleteJSON(ctx, tenantID, fmt.Sprintf(extractionPrompt, sb.String()))
	if err != nil {
		return nil, fmt.Errorf("pattern extraction: %w", err)
	}

	var parsed struct {
		Patterns []PatternCandidate `json:"patterns"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parse extraction output: %w", err)
	}

	// Clamp self-reported confidence into [0, 1].
	for i := range parsed.Patterns {
		if parsed.Patterns[i].ConfidenceScore < 0 {
			parsed.Patterns[i].ConfidenceScore = 0
		}
		if parsed.Patterns[i].ConfidenceScore > 1 {
			parsed.Patterns[i].ConfidenceScore = 1
		}
	}
	return parsed.Patterns, nil
}

// SuggestLearning writes each candidate as a pending learning log.
func (l *LearningEngine) SuggestLearning(ctx context.Context, candidates []PatternCandidate, tenantID, conversationID string) error {
	if len(candidates) == 0 {
		return nil
	}
	if tenantID == "" {
		return fmt.Errorf("suggest learning: tenant id is required")
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, c := range candidates {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal pattern candidate: %w", err)
		}
		if _, err := l.db.ExecContext(ctx, `
			INSERT INTO learning_logs (id, tenant_id, conversation_id, pattern_data, confidence_score, status, created_at)
			VALUES (?, ?, ?, ?, ?, 'pending', ?)`,
			uuid.NewString(), tenantID, conversationID, string(data), c.ConfidenceScore, now,
		); err != nil {
			return fmt.Errorf("insert learning log: %w", err)
		}
	}
	return nil
}

// PendingLogs lists pending learning logs, optionally scoped to one tenant.
func (l *LearningEngine) PendingLogs(ctx context.Context, tenantID string) ([]LearningLog, error) {
	query := `
		SELECT id, tenant_id, COALESCE(conversation_id, ''), pattern_data, confidence_score, status, reviewer_notes, created_at
		FROM learning_logs
		WHERE status = 'pending'`
	args := []any{}
	if tenantID != "" {
		query += " AND tenant_id = ?"
		args = append(args, tenantID)
	}
	query += " ORDER BY created_at ASC"

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query learning logs: %w", err)
	}
	defer rows.Close()

	var logs []LearningLog
	for rows.Next() {
		var (
			log                  LearningLog
			patternData, created string
		)
		if err := rows.Scan(&log.ID, &log.TenantID, &log.ConversationID, &patternData,
			&log.ConfidenceScore, &log.Status, &log.ReviewerNotes, &created); err != nil {
			return nil, fmt.Errorf("scan learning log: %w", err)
		}
		_ = json.Unmarshal([]byte(patternData), &log.Pattern)
		log.CreatedAt, _ = time.Parse(time.RFC3339, created)
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
