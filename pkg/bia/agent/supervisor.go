// Package agent – supervisor.go validates the generated reply against
// the recommended products before it leaves the pipeline. Prices must
// match the catalog exactly and no discounts are allowed.
package agent

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Verdict é o resultado da revisão do supervisor.
type Verdict struct {
	Approved bool
	Reason   string
	// Hint orienta a regeneração quando a resposta é reprovada.
	Hint string
}

// ResponseSupervisor valida a resposta final contra os dados reais do
// catálogo via LLM em temperatura zero.
type ResponseSupervisor struct {
	llm    *LLMClient
	logger *slog.Logger
}

// NewResponseSupervisor creates the supervisor over the LLM client.
func NewResponseSupervisor(llm *LLMClient, logger *slog.Logger) *ResponseSupervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResponseSupervisor{llm: llm, logger: logger}
}

type supervisorResult struct {
	IsApproved     bool   `json:"is_approved"`
	Reason         string `json:"reason"`
	CorrectionHint string `json:"correction_hint"`
}

// Review avalia a resposta do turno. Sem resposta ou sem produtos não
// há o que validar; falha do LLM também aprova: o supervisor é um
// estágio de enriquecimento e nunca bloqueia o turno.
func (s *ResponseSupervisor) Review(ctx context.Context, st *TurnState) Verdict {
	if st.FinalResponse == "" || len(st.ProductsRecommended) == 0 {
		return Verdict{Approved: true}
	}

	prompt := buildSupervisorPrompt(st.ProductsRecommended, st.FinalResponse)
	raw, err := s.llm.CompleteJSON(ctx, st.TenantID, prompt)
	if err != nil {
		s.logger.Warn("supervisor falhou, aprovando resposta",
			"tenant", st.TenantID, "error", err)
		return Verdict{Approved: true}
	}

	var result supervisorResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		s.logger.Warn("resposta do supervisor inválida, aprovando",
			"tenant", st.TenantID, "error", err)
		return Verdict{Approved: true}
	}

	if !result.IsApproved {
		s.logger.Warn("supervisor REPROVOU a resposta",
			"tenant", st.TenantID, "reason", result.Reason)
		return Verdict{Approved: false, Reason: result.Reason, Hint: result.CorrectionHint}
	}

	s.logger.Info("supervisor aprovou a resposta", "tenant", st.TenantID)
	return Verdict{Approved: true}
}
