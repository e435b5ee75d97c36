// Package agent – state.go defines the turn state threaded through the
// pipeline stages and the final result returned to callers.
package agent

import (
	"github.com/slimquality/bia/pkg/bia/catalog"
	"github.com/slimquality/bia/pkg/bia/session"
)

// Intent labels produced by the classification stage.
const (
	IntentGreeting = "GREETING"
	IntentQuestion = "QUESTION"
	IntentHandoff  = "HANDOFF"
	IntentOther    = "OTHER"
)

// TurnState acumula o estado de um turno enquanto ele atravessa os
// estágios do pipeline. Contextos vazios significam "nada encontrado",
// nunca nil.
type TurnState struct {
	ConversationID string
	TenantID       string

	// Message é a mensagem do usuário neste turno.
	Message string
	// History é a janela recente da conversa, em ordem cronológica.
	History []session.Message

	// Contextos montados pelos estágios de recuperação.
	KnowledgeContext string
	MemoryContext    string
	FewShotContext   string

	Intent string

	// LeadData acumula dados do lead entre skills. Aditivo, nunca
	// limpo no meio da conversa.
	LeadData map[string]any

	// ProductsRecommended é a verdade que o supervisor valida.
	ProductsRecommended []catalog.Product

	FinalResponse string
	ShouldHandoff bool
	HandoffReason string

	// SupervisorFeedback carrega a dica de correção quando a resposta
	// é reprovada. Vazio significa aprovada.
	SupervisorFeedback string
}

// TurnResult é o resultado entregue ao chamador. O pipeline sempre
// devolve um resultado bem formado, mesmo sob falha parcial.
type TurnResult struct {
	Response      string
	Intent        string
	ShouldHandoff bool
	HandoffReason string
}
