// Package memory – approval.go implements the auto-approval supervisor that
// promotes high-confidence learning logs into active behavior patterns.
// A cron sweep runs it periodically; entries below the threshold stay
// pending until a human reviews them.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// DefaultApproveThreshold is the minimum confidence for unattended promotion.
const DefaultApproveThreshold = 0.85

// ApprovalSupervisor scans the learning queue and promotes approved patterns.
type ApprovalSupervisor struct {
	db        *sql.DB
	behavior  *BehaviorStore
	threshold float64
	logger    *slog.Logger

	cron *cron.Cron
}

// NewApprovalSupervisor creates a supervisor with the given threshold.
// A non-positive threshold selects the default (0.85).
func NewApprovalSupervisor(db *sql.DB, behavior *BehaviorStore, threshold float64, logger *slog.Logger) *ApprovalSupervisor {
	if threshold <= 0 {
		threshold = DefaultApproveThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ApprovalSupervisor{db: db, behavior: behavior, threshold: threshold, logger: logger}
}

// ProcessPending scans pending learning logs (optionally scoped to one
// tenant) and promotes every entry at or above the threshold.
// Returns the number of promoted patterns.
func (a *ApprovalSupervisor) ProcessPending(ctx context.Context, tenantID string) (int, error) {
	query := `SELECT id FROM learning_logs WHERE status = 'pending' AND confidence_score >= ?`
	args := []any{a.threshold}
	if tenantID != "" {
		query += " AND tenant_id = ?"
		args = append(args, tenantID)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("scan pending learnings: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err == nil {
			ids = append(ids, id)
		}
	}
	rows.Close()

	promoted := 0
	for _, id := range ids {
		ok, err := a.Approve(ctx, id)
		if err != nil {
			a.logger.Error("auto-approval failed", "log", id, "error", err)
			continue
		}
		if ok {
			promoted++
		}
	}
	if promoted > 0 {
		a.logger.Info("learning patterns auto-approved", "count", promoted, "tenant", tenantID)
	}
	return promoted, nil
}

// Approve promotes one learning log into an active behavior pattern and
// marks the log approved. Approving an already-approved log is a no-op:
// the status guard in the UPDATE ensures exactly one pattern per log.
func (a *ApprovalSupervisor) Approve(ctx context.Context, logID string) (bool, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin approval: %w", err)
	}
	defer tx.Rollback()

	var (
		tenantID, conversationID, patternData string
		score                                 float64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT tenant_id, COALESCE(conversation_id, ''), pattern_data, confidence_score
		FROM learning_logs
		WHERE id = ? AND status = 'pending'`, logID,
	).Scan(&tenantID, &conversationID, &patternData, &score)
	if err == sql.ErrNoRows {
		return false, nil // already approved or unknown — no-op
	}
	if err != nil {
		return false, fmt.Errorf("load learning log: %w", err)
	}

	var candidate PatternCandidate
	if err := json.Unmarshal([]byte(patternData), &candidate); err != nil {
		return false, fmt.Errorf("parse pattern data: %w", err)
	}
	if candidate.Name == "" {
		candidate.Name = "Novo Padrão"
	}
	if candidate.Type == "" {
		candidate.Type = "general"
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE learning_logs
		SET status = 'approved', reviewer_notes = 'Aprovado automaticamente pelo supervisor'
		WHERE id = ? AND status = 'pending'`, logID)
	if err != nil {
		return false, fmt.Errorf("mark log approved: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	metaJSON, _ := json.Marshal(map[string]any{"source_log": logID})
	_, err = tx.ExecContext(ctx, `
		INSERT INTO behavior_patterns
			(id, tenant_id, name, type, trigger_condition, response_template, confidence_score, is_active, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		uuid.NewString(), tenantID, candidate.Name, candidate.Type,
		candidate.TriggerCondition, candidate.ResponseTemplate, score,
		string(metaJSON), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("create behavior pattern: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit approval: %w", err)
	}
	return true, nil
}

// Start schedules periodic ProcessPending sweeps across all tenants.
// schedule accepts cron syntax or shorthands like "@every 10m".
func (a *ApprovalSupervisor) Start(schedule string) error {
	if schedule == "" {
		schedule = "@every 10m"
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := a.ProcessPending(ctx, ""); err != nil {
			a.logger.Error("approval sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule approval sweep: %w", err)
	}
	c.Start()
	a.cron = c
	a.logger.Info("approval supervisor started", "schedule", schedule, "threshold", a.threshold)
	return nil
}

// Stop halts the periodic sweep, waiting for a running sweep to finish.
func (a *ApprovalSupervisor) Stop() {
	if a.cron != nil {
		<-a.cron.Stop().Done()
		a.cron = nil
	}
}
