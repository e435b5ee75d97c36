// Package memory – engine.go is the facade over the adaptive memory:
// hybrid retrieval, learned behavior examples and the supervised
// learning loop, consumed by the agent pipeline.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Engine bundles semantic search, learned behavior patterns and the
// learning loop behind a single surface consumed by the agent pipeline.
type Engine struct {
	store    *Store
	behavior *BehaviorStore
	learning *LearningEngine
	approval *ApprovalSupervisor
	logger   *slog.Logger

	searchLimit     int
	searchThreshold float64
}

// TurnContext carries the context retrieved for one conversation turn.
// Empty fields mean "no context", never an error.
type TurnContext struct {
	MemoryContext string
	FewShot       string
	Chunks        []Chunk
}

// NewEngine assembles the facade. store is required; behavior, learning
// and approval may be nil when the learning loop is disabled.
func NewEngine(store *Store, behavior *BehaviorStore, learning *LearningEngine, approval *ApprovalSupervisor, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:           store,
		behavior:        behavior,
		learning:        learning,
		approval:        approval,
		logger:          logger,
		searchLimit:     5,
		searchThreshold: 0.3,
	}
}

// PrepareContext retrieves relevant memories and behavior examples for
// the turn. Failures degrade to empty context: the agent answers without
// memory instead of failing the turn.
func (e *Engine) PrepareContext(ctx context.Context, tenantID, message string) TurnContext {
	var tc TurnContext

	chunks, err := e.store.Search(ctx, tenantID, message, e.searchLimit, e.searchThreshold)
	if err != nil {
		e.logger.Warn("memory search failed, continuing without context",
			"tenant", tenantID, "error", err)
	} else if len(chunks) > 0 {
		tc.Chunks = chunks
		tc.MemoryContext = formatMemoryContext(chunks)
	}

	if e.behavior != nil {
		patterns, err := e.behavior.GetActivePatterns(ctx, tenantID, message)
		if err != nil {
			e.logger.Warn("pattern lookup failed, continuing without examples",
				"tenant", tenantID, "error", err)
		} else {
			tc.FewShot = BuildFewShot(patterns)
		}
	}

	return tc
}

// StoreInteraction persists the user/assistant pair as a new chunk.
// The text is embedded when an embedder is configured.
func (e *Engine) StoreInteraction(ctx context.Context, tenantID, conversationID, userMessage, response string) error {
	content := fmt.Sprintf("Usuário: %s\nAssistente: %s", userMessage, response)
	chunk := &Chunk{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		ConversationID: conversationID,
		Content:        content,
		Metadata:       map[string]any{"kind": "interaction"},
		RelevanceScore: 0.5,
		CreatedAt:      time.Now().UTC(),
	}
	return e.store.StoreChunk(ctx, chunk)
}

// StoreInteractionAsync persists the pair on a background goroutine
// tracked by the store, so Close still waits for the write to land.
// Failures are logged, never retried.
func (e *Engine) StoreInteractionAsync(tenantID, conversationID, userMessage, response string) {
	e.store.background(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.StoreInteraction(ctx, tenantID, conversationID, userMessage, response); err != nil {
			e.logger.Warn("background memory write failed",
				"tenant", tenantID, "error", err)
		}
	})
}

// AnalyzeConversation closes the learning loop for one conversation:
// extracts pattern candidates, records the pending suggestions and runs
// the approval supervisor. Returns how many patterns were approved.
func (e *Engine) AnalyzeConversation(ctx context.Context, tenantID, conversationID string) (int, error) {
	if e.learning == nil {
		return 0, nil
	}

	candidates, err := e.learning.ExtractPatterns(ctx, tenantID, conversationID)
	if err != nil {
		return 0, fmt.Errorf("extract patterns: %w", err)
	}
	if len(candidates) == 0 {
		e.logger.Debug("no patterns extracted", "tenant", tenantID, "conversation", conversationID)
		return 0, nil
	}

	if err := e.learning.SuggestLearning(ctx, candidates, tenantID, conversationID); err != nil {
		return 0, fmt.Errorf("record suggestions: %w", err)
	}

	if e.approval == nil {
		return 0, nil
	}
	approved, err := e.approval.ProcessPending(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("process pending learnings: %w", err)
	}
	return approved, nil
}

// Store exposes the underlying storage for the management commands.
func (e *Engine) Store() *Store { return e.store }

// Behavior exposes the pattern repository.
func (e *Engine) Behavior() *BehaviorStore { return e.behavior }

// Close releases the memory storage.
func (e *Engine) Close() error {
	if e.store != nil {
		return e.store.Close()
	}
	return nil
}

func formatMemoryContext(chunks []Chunk) string {
	out := "### CONTEXTO DE CONVERSAS ANTERIORES:\n"
	for _, c := range chunks {
		out += "- " + c.Content + "\n"
	}
	return out
}
