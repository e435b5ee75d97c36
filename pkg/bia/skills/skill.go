// Package skills implementa o catálogo de habilidades plugáveis do
// agente e o roteador que escolhe qual executar em cada turno.
package skills

import (
	"context"
	"log/slog"

	"github.com/slimquality/bia/pkg/bia/catalog"
)

// Request carrega o que uma skill precisa para executar um turno.
// Skills são stateless: tudo vem pelo request, nada sobrevive entre chamadas.
type Request struct {
	TenantID       string
	ConversationID string
	Message        string
	LeadData       map[string]any
}

// Update é o resultado parcial de uma skill, mesclado no estado do
// turno pelo pipeline. Campos zero significam "sem alteração".
type Update struct {
	KnowledgeContext    string
	ProductsRecommended []catalog.Product
	LeadData            map[string]any
}

// Skill é uma habilidade de domínio plugável.
type Skill interface {
	// Name é o slug estável usado pelo roteador.
	Name() string
	// Description orienta o roteador sobre quando usar a skill.
	Description() string
	// Execute roda a skill e devolve a atualização parcial do estado.
	Execute(ctx context.Context, req Request) (Update, error)
}

// Descriptor é o par nome/descrição exposto ao roteador.
type Descriptor struct {
	Name        string
	Description string
}

// Registry é o catálogo de skills, construído no startup e passado por
// referência ao pipeline. Não há registro global.
type Registry struct {
	skills []Skill
	byName map[string]Skill
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{byName: make(map[string]Skill), logger: logger}
}

// Register adds a skill. Registering the same name twice keeps the
// last one and logs a warning.
func (r *Registry) Register(s Skill) {
	name := s.Name()
	if _, dup := r.byName[name]; dup {
		r.logger.Warn("skill registrada em duplicidade, mantendo a última", "skill", name)
		for i, existing := range r.skills {
			if existing.Name() == name {
				r.skills[i] = s
				break
			}
		}
	} else {
		r.skills = append(r.skills, s)
	}
	r.byName[name] = s
}

// Get returns the skill by exact name, or nil.
func (r *Registry) Get(name string) Skill {
	return r.byName[name]
}

// Descriptors lists the registered skills in registration order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.skills))
	for _, s := range r.skills {
		out = append(out, Descriptor{Name: s.Name(), Description: s.Description()})
	}
	return out
}

// Len returns the number of registered skills.
func (r *Registry) Len() int { return len(r.skills) }
