// Package agent – pipeline.go is the turn pipeline: one inbound
// message becomes one validated outbound reply. Stages that only
// enrich the turn (memory, skills, reflection) degrade to no-ops on
// failure; essential stages fall back to safe defaults. The pipeline
// always returns a well-formed result.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/slimquality/bia/pkg/bia/handoff"
	"github.com/slimquality/bia/pkg/bia/memory"
	"github.com/slimquality/bia/pkg/bia/session"
	"github.com/slimquality/bia/pkg/bia/skills"
	"github.com/slimquality/bia/pkg/bia/tenant"
)

// fallbackResponse é a resposta segura quando a geração falha.
const fallbackResponse = "Desculpe, estou com uma dificuldade técnica no momento. Pode tentar novamente em instantes?"

// Agent orquestra os estágios de um turno de conversa.
type Agent struct {
	tenants    *tenant.Store
	sessions   *session.Store
	engine     *memory.Engine
	registry   *skills.Registry
	router     *skills.Router
	llm        *LLMClient
	supervisor *ResponseSupervisor
	handoffs   handoff.Notifier
	logger     *slog.Logger
}

// NewAgent wires the pipeline. engine and handoffs may be nil, which
// disables long-term memory and handoff registration respectively.
func NewAgent(tenants *tenant.Store, sessions *session.Store, engine *memory.Engine,
	registry *skills.Registry, llm *LLMClient, handoffs handoff.Notifier, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		tenants:    tenants,
		sessions:   sessions,
		engine:     engine,
		registry:   registry,
		router:     skills.NewRouter(llm, logger),
		llm:        llm,
		supervisor: NewResponseSupervisor(llm, logger),
		handoffs:   handoffs,
		logger:     logger.With("component", "pipeline"),
	}
}

// HandleTurn processa uma mensagem do usuário até a resposta final.
// Retorna erro apenas quando o tenant é desconhecido; qualquer outra
// falha degrada para um resultado seguro.
func (a *Agent) HandleTurn(ctx context.Context, tenantID, conversationID, message string) (TurnResult, error) {
	t, err := a.tenants.Get(ctx, tenantID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("carregar tenant %s: %w", tenantID, err)
	}

	start := time.Now()
	st := &TurnState{
		ConversationID: conversationID,
		TenantID:       tenantID,
		Message:        message,
		Intent:         IntentOther,
		LeadData:       make(map[string]any),
	}

	// 1. Load context: janela recente da conversa.
	history, err := a.sessions.History(ctx, tenantID, conversationID)
	if err != nil {
		a.logger.Warn("histórico indisponível, seguindo sem contexto",
			"tenant", tenantID, "error", err)
	}
	st.History = history

	// 2. Memory retrieval: memórias relevantes e padrões aprendidos.
	if a.engine != nil {
		tc := a.engine.PrepareContext(ctx, tenantID, message)
		st.MemoryContext = tc.MemoryContext
		st.FewShotContext = tc.FewShot
	}

	// 3. Intent classification.
	st.Intent = a.classifyIntent(ctx, st)

	// 4. Skill routing (conditional branch).
	a.runSkillStage(ctx, st)

	// 5. Generation + Response Supervisor (bounded loop, max one retry).
	a.generateWithSupervision(ctx, t, st)

	// 6. Reflection: revisão da resposta contra os padrões aprendidos.
	a.reflect(ctx, st)

	// 7. Handoff evaluation.
	a.evaluateHandoff(ctx, st)

	// 8. Persist: histórico da sessão e memória de longo prazo.
	a.persistTurn(ctx, st)

	a.logger.Info("turno concluído",
		"tenant", tenantID,
		"conversation", conversationID,
		"intent", st.Intent,
		"handoff", st.ShouldHandoff,
		"duration", time.Since(start))

	return TurnResult{
		Response:      st.FinalResponse,
		Intent:        st.Intent,
		ShouldHandoff: st.ShouldHandoff,
		HandoffReason: st.HandoffReason,
	}, nil
}

// classifyIntent rotula a mensagem. Falha degrada para OTHER.
func (a *Agent) classifyIntent(ctx context.Context, st *TurnState) string {
	answer, err := a.llm.Complete(ctx, st.TenantID, buildIntentPrompt(st.History, st.Message))
	if err != nil {
		a.logger.Warn("classificação de intenção falhou",
			"tenant", st.TenantID, "error", err)
		return IntentOther
	}
	intent := strings.ToUpper(strings.TrimSpace(answer))
	switch intent {
	case IntentGreeting, IntentQuestion, IntentHandoff, IntentOther:
		return intent
	}
	return IntentOther
}

// runSkillStage roteia para uma skill registrada ou, no caminho
// genérico, busca a base de conhecimento quando a intenção é pergunta.
// Misclassificação nunca derruba o turno, só roteia para o genérico.
func (a *Agent) runSkillStage(ctx context.Context, st *TurnState) {
	decision := a.router.Route(ctx, a.registry, st.TenantID, st.Message)

	if !decision.IsGeneric() {
		skill := a.registry.Get(decision.SkillName())
		if skill != nil {
			update, err := skill.Execute(ctx, skills.Request{
				TenantID:       st.TenantID,
				ConversationID: st.ConversationID,
				Message:        st.Message,
				LeadData:       st.LeadData,
			})
			if err != nil {
				a.logger.Warn("skill falhou, seguindo caminho genérico",
					"tenant", st.TenantID, "skill", decision.SkillName(), "error", err)
			} else {
				applyUpdate(st, update)
				return
			}
		}
	}

	// Caminho genérico: RAG sobre a base de conhecimento para perguntas.
	if st.Intent == IntentQuestion && a.engine != nil {
		st.KnowledgeContext = a.engine.Store().SearchKnowledge(ctx, st.TenantID, st.Message, 3)
	}
}

// applyUpdate merges a skill's partial state into the turn. LeadData é
// aditivo: chaves novas entram, as existentes são sobrescritas.
func applyUpdate(st *TurnState, u skills.Update) {
	if u.KnowledgeContext != "" {
		st.KnowledgeContext = u.KnowledgeContext
	}
	if len(u.ProductsRecommended) > 0 {
		st.ProductsRecommended = u.ProductsRecommended
	}
	for k, v := range u.LeadData {
		st.LeadData[k] = v
	}
}

// generateWithSupervision gera a resposta e a submete ao supervisor.
// Reprovação injeta o feedback e regenera exatamente uma vez; depois
// segue com o que houver, para limitar latência e custo.
func (a *Agent) generateWithSupervision(ctx context.Context, t *tenant.Tenant, st *TurnState) {
	if !a.generate(ctx, t, st) {
		return
	}

	verdict := a.supervisor.Review(ctx, st)
	if verdict.Approved {
		return
	}

	st.SupervisorFeedback = verdict.Hint
	if st.SupervisorFeedback == "" {
		st.SupervisorFeedback = verdict.Reason
	}
	a.generate(ctx, t, st)
	// Segunda revisão não re-entra no loop: o veredito final é
	// informativo, o turno segue de qualquer forma.
	a.supervisor.Review(ctx, st)
}

// generate produz a resposta final. Retorna false quando a geração
// falhou e a resposta segura foi usada.
func (a *Agent) generate(ctx context.Context, t *tenant.Tenant, st *TurnState) bool {
	system := buildSystemPrompt(t.AgentName, t.Personality, st)
	response, err := a.llm.CompleteChat(ctx, st.TenantID, system, st.History, st.Message)
	if err != nil {
		a.logger.Error("geração falhou, usando resposta segura",
			"tenant", st.TenantID, "error", err)
		st.FinalResponse = fallbackResponse
		return false
	}
	st.FinalResponse = strings.TrimSpace(response)
	return true
}

// reflect revisa a resposta contra os padrões aprendidos do tenant.
// Sem few-shot não há o que revisar; falha degrada para no-op.
func (a *Agent) reflect(ctx context.Context, st *TurnState) {
	if st.FinalResponse == "" || st.FewShotContext == "" {
		return
	}

	analysis, err := a.llm.Complete(ctx, st.TenantID,
		buildReflectionPrompt(st.FinalResponse, st.FewShotContext))
	if err != nil {
		a.logger.Warn("reflexão falhou", "tenant", st.TenantID, "error", err)
		return
	}

	analysis = strings.TrimSpace(analysis)
	if strings.HasPrefix(analysis, "[CORRIGIDO]") {
		corrected := strings.TrimSpace(strings.TrimPrefix(analysis, "[CORRIGIDO]"))
		if corrected != "" {
			a.logger.Info("resposta corrigida pela reflexão", "tenant", st.TenantID)
			st.FinalResponse = corrected
		}
	}
}

type handoffResult struct {
	ShouldHandoff bool   `json:"should_handoff"`
	Reason        string `json:"reason"`
}

// evaluateHandoff decide se a conversa vai para um humano. Qualquer
// falha resolve para should_handoff=false.
func (a *Agent) evaluateHandoff(ctx context.Context, st *TurnState) {
	raw, err := a.llm.CompleteJSON(ctx, st.TenantID,
		buildHandoffPrompt(st.Message, st.FinalResponse))
	if err != nil {
		a.logger.Warn("avaliação de handoff falhou", "tenant", st.TenantID, "error", err)
		return
	}

	var result handoffResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		a.logger.Warn("resposta de handoff inválida", "tenant", st.TenantID, "error", err)
		return
	}

	st.ShouldHandoff = result.ShouldHandoff
	st.HandoffReason = result.Reason

	if st.ShouldHandoff && a.handoffs != nil {
		if err := a.handoffs.Register(ctx, st.TenantID, st.ConversationID, st.HandoffReason); err != nil {
			a.logger.Error("registro de handoff falhou",
				"tenant", st.TenantID, "error", err)
		}
	}
}

// persistTurn grava o turno no histórico e, em segundo plano, na
// memória de longo prazo.
func (a *Agent) persistTurn(ctx context.Context, st *TurnState) {
	if err := a.sessions.Append(ctx, st.TenantID, st.ConversationID, "user", st.Message); err != nil {
		a.logger.Error("falha ao gravar mensagem do usuário", "error", err)
	}
	if err := a.sessions.Append(ctx, st.TenantID, st.ConversationID, "assistant", st.FinalResponse); err != nil {
		a.logger.Error("falha ao gravar resposta", "error", err)
	}

	if a.engine == nil {
		return
	}
	// Fire-and-forget: a gravação na memória não atrasa a resposta.
	a.engine.StoreInteractionAsync(st.TenantID, st.ConversationID, st.Message, st.FinalResponse)
}

// AnalyzeConversation expõe o fechamento do ciclo de aprendizado para
// os comandos de gestão e o encerramento de conversas.
func (a *Agent) AnalyzeConversation(ctx context.Context, tenantID, conversationID string) (int, error) {
	if a.engine == nil {
		return 0, nil
	}
	return a.engine.AnalyzeConversation(ctx, tenantID, conversationID)
}
