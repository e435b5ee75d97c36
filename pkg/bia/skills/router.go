// Package skills – router.go decide, via LLM, qual skill atende a
// última mensagem do usuário. O despacho é "soft": qualquer resposta
// não reconhecida cai no caminho genérico, nunca em erro.
package skills

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Completer é o contrato mínimo de LLM que o roteador precisa.
type Completer interface {
	Complete(ctx context.Context, tenantID, prompt string) (string, error)
}

// Decision é a decisão do roteador: uma skill registrada ou o caminho
// genérico de geração.
type Decision struct {
	skill string
}

// Generic é a decisão de seguir direto para a geração.
var Generic = Decision{}

// ToSkill builds a decision pointing at a registered skill.
func ToSkill(name string) Decision { return Decision{skill: name} }

// IsGeneric reports whether the decision is the generic path.
func (d Decision) IsGeneric() bool { return d.skill == "" }

// SkillName returns the chosen skill name ("" for generic).
func (d Decision) SkillName() string { return d.skill }

// Router escolhe a skill mais adequada para a mensagem.
type Router struct {
	llm    Completer
	logger *slog.Logger
}

// NewRouter creates a router over the given LLM client.
func NewRouter(llm Completer, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{llm: llm, logger: logger}
}

// Route asks the model to pick one skill from the registry for the
// last user message. Empty registry, LLM failure or an unrecognized
// answer all resolve to Generic.
func (r *Router) Route(ctx context.Context, registry *Registry, tenantID, lastMessage string) Decision {
	if registry == nil || registry.Len() == 0 {
		return Generic
	}

	prompt := buildRouterPrompt(registry.Descriptors(), lastMessage)
	answer, err := r.llm.Complete(ctx, tenantID, prompt)
	if err != nil {
		r.logger.Warn("roteador falhou, seguindo caminho genérico",
			"tenant", tenantID, "error", err)
		return Generic
	}

	decision := strings.ToLower(strings.TrimSpace(answer))
	decision = strings.Trim(decision, `"'.`)
	r.logger.Info("decisão do roteador", "tenant", tenantID, "decision", decision)

	if decision == "general" || decision == "" {
		return Generic
	}
	for _, d := range registry.Descriptors() {
		if strings.EqualFold(d.Name, decision) {
			return ToSkill(d.Name)
		}
	}
	return Generic
}

func buildRouterPrompt(descriptors []Descriptor, lastMessage string) string {
	var list strings.Builder
	for _, d := range descriptors {
		fmt.Fprintf(&list, "- %s: %s\n", d.Name, d.Description)
	}

	return fmt.Sprintf(`Você é um roteador inteligente para um sistema multi-agente.
Com base na última mensagem do usuário, escolha a habilidade MAIS ADEQUADA entre as disponíveis.

### HABILIDADES ATIVAS:
%s- general: Use para conversas genéricas, saudações ou dúvidas que não se encaixam acima.

### MENSAGEM DO USUÁRIO:
"%s"

Responda APENAS com o nome da habilidade (slug) ou 'general'.`, list.String(), lastMessage)
}
