// Package handoff registra transferências para atendimento humano.
// O pipeline registra o pedido; a superfície de operação humana (fora
// deste módulo) consome as linhas pendentes.
package handoff

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Registration é um pedido de transferência registrado.
type Registration struct {
	ID             int64
	ConversationID string
	TenantID       string
	Reason         string
	Status         string
	CreatedAt      time.Time
}

// Notifier recebe o aviso de que uma conversa pediu humano. A
// implementação padrão grava no banco; outras podem avisar canais
// externos.
type Notifier interface {
	Register(ctx context.Context, tenantID, conversationID, reason string) error
}

// Store grava handoffs no banco central. Implementa Notifier.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore creates the handoff registration store.
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Register grava o pedido com status pending. Motivo vazio vira
// "Auto-detected" para a fila de operação nunca ficar sem contexto.
func (s *Store) Register(ctx context.Context, tenantID, conversationID, reason string) error {
	if reason == "" {
		reason = "Auto-detected"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO handoffs (conversation_id, tenant_id, reason, status, created_at)
		 VALUES (?, ?, ?, 'pending', ?)`,
		conversationID, tenantID, reason, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("registrar handoff: %w", err)
	}
	s.logger.Info("handoff registrado", "tenant", tenantID,
		"conversation", conversationID, "reason", reason)
	return nil
}

// Pending lista os handoffs pendentes do tenant, mais antigos primeiro.
func (s *Store) Pending(ctx context.Context, tenantID string) ([]Registration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, tenant_id, reason, status, created_at
		 FROM handoffs WHERE tenant_id = ? AND status = 'pending'
		 ORDER BY id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listar handoffs: %w", err)
	}
	defer rows.Close()

	var out []Registration
	for rows.Next() {
		var r Registration
		var created string
		if err := rows.Scan(&r.ID, &r.ConversationID, &r.TenantID, &r.Reason, &r.Status, &created); err != nil {
			return nil, fmt.Errorf("scan handoff: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Resolve marca um handoff como resolvido.
func (s *Store) Resolve(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE handoffs SET status = 'resolved' WHERE id = ? AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("resolver handoff: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("handoff %d não está pendente", id)
	}
	return nil
}
