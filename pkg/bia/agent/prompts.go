// Package agent – prompts.go holds the prompt templates used by the
// pipeline stages. All customer-facing text is Brazilian Portuguese.
package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/slimquality/bia/pkg/bia/catalog"
	"github.com/slimquality/bia/pkg/bia/session"
)

const systemPromptTemplate = `Você é %s, assistente virtual da Slim Quality.
%s

Seu objetivo é ajudar clientes com dúvidas sobre colchões terapêuticos magnéticos e saúde.

CONTEXTO DE CONHECIMENTO:
%s

DIRETRIZES:
1. Use as informações do CONTEXTO para responder.
2. Se a informação não estiver no contexto, NÃO invente. Diga que não sabe e sugira falar com um especialista.
3. Seja empático, profissional e objetivo.
4. Responda sempre em Português do Brasil.
`

const intentPromptTemplate = `Analise a última mensagem do usuário e classifique a intenção.

Histórico recente:
%s

Mensagem atual:
%s

Classifique em uma das categorias:
- GREETING: Saudação (oi, olá, bom dia)
- QUESTION: Pergunta sobre produto, saúde, empresa ou dúvida geral.
- HANDOFF: Usuário pede para falar com humano, está irritado ou insatisfeito.
- OTHER: Outros assuntos.

Responda APENAS a categoria.`

const handoffPromptTemplate = `Avalie a resposta gerada pelo assistente e a mensagem do usuário para decidir se é necessário transferir para um humano.

Mensagem Usuário: %s
Resposta Assistente: %s

Critérios para HANDOFF (Sim):
1. O usuário pediu explicitamente para falar com alguém.
2. O usuário demonstrou raiva, frustração ou xingou.
3. O assistente respondeu que "não sabe" ou "não encontrou a informação".
4. O assunto é complexo demais ou sensível (ex: problema médico grave, jurídico).

Responda JSON:
{
    "should_handoff": true/false,
    "reason": "motivo breve"
}`

const reflectionPromptTemplate = `Você é o Revisor de Qualidade. Sua tarefa é avaliar a resposta gerada por um Agente de IA e garantir que ela siga os PADRÕES APRENDIDOS (Few-Shot) do parceiro.

### RESPOSTA DO AGENTE:
%s

### PADRÕES APRENDIDOS (Few-Shot):
%s

### INSTRUÇÕES:
1. Se a resposta do agente viola algum padrão (ex: tom errado, informação conflitante com o aprendizado), corrija-a.
2. Se a resposta estiver correta e seguir os padrões, responda APENAS "OK".
3. Se você fizer uma correção, sua resposta DEVE começar com "[CORRIGIDO]" seguido da nova versão da resposta completa.

EXEMPLO DE CORREÇÃO:
[CORRIGIDO] Olá! Que bom que você se interessou. Nossos colchões terapêuticos...

Sua análise:
`

const supervisorPromptTemplate = `Você é um Supervisor de Qualidade para um Agente de Vendas de Colchões.
Sua tarefa é garantir que as informações dadas pelo agente ao cliente sejam 100%% precisas.

### DADOS REAIS DO SISTEMA (VERDADE):
%s

### RESPOSTA DO AGENTE PARA O CLIENTE:
"%s"

### REGRAS DE VALIDAÇÃO:
1. O preço citado para qualquer produto deve bater EXATAMENTE com o preço nos dados reais.
2. O agente NÃO PODE dar descontos (apenas parcelamento em 12x).
3. O agente deve ser cortês e profissional.

RESPOSTA ESPERADA (JSON):
{
    "is_approved": true/false,
    "reason": "Explicação detalhada caso reprovado",
    "correction_hint": "Dica específica de como o agente deve corrigir a resposta"
}`

// buildSystemPrompt monta o prompt de sistema do turno: persona do
// tenant, conhecimento, memória de longo prazo, few-shot e, quando
// presente, o feedback de reprovação do supervisor.
func buildSystemPrompt(agentName, personality string, st *TurnState) string {
	knowledge := st.KnowledgeContext
	if knowledge == "" {
		knowledge = "Nenhuma informação específica encontrada no banco de conhecimento."
	}
	if personality == "" {
		personality = "um assistente prestativo"
	}

	prompt := fmt.Sprintf(systemPromptTemplate, agentName, personality, knowledge)

	if st.MemoryContext != "" {
		prompt += fmt.Sprintf("\n\n### MEMÓRIA DE CONVERSAS ANTERIORES:\n%s", st.MemoryContext)
	}
	if st.FewShotContext != "" {
		prompt += "\n" + st.FewShotContext
	}
	if st.SupervisorFeedback != "" {
		prompt += fmt.Sprintf("\n\n### ATENÇÃO: SUA RESPOSTA ANTERIOR FOI REPROVADA PELO SUPERVISOR.\nMOTIVO/DICA: %s\nPor favor, gere uma nova resposta corrigindo os pontos acima.", st.SupervisorFeedback)
	}
	return prompt
}

// buildIntentPrompt renders the intent classification prompt. History
// is capped at its tail to bound the context size.
func buildIntentPrompt(history []session.Message, message string) string {
	text := historyText(history)
	if text == "" {
		text = "Sem histórico"
	}
	text = tailRunes(text, 1000)
	return fmt.Sprintf(intentPromptTemplate, text, message)
}

// tailRunes keeps at most max bytes from the end of s without splitting
// a multibyte rune.
func tailRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	start := len(s) - max
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}

func buildHandoffPrompt(userMessage, aiResponse string) string {
	return fmt.Sprintf(handoffPromptTemplate, userMessage, aiResponse)
}

func buildReflectionPrompt(aiResponse, fewShot string) string {
	return fmt.Sprintf(reflectionPromptTemplate, aiResponse, fewShot)
}

func buildSupervisorPrompt(products []catalog.Product, finalResponse string) string {
	type productFacts struct {
		Name          string `json:"name"`
		Price         string `json:"price"`
		WarrantyYears int    `json:"warranty_years,omitempty"`
	}
	facts := make([]productFacts, 0, len(products))
	for _, p := range products {
		facts = append(facts, productFacts{
			Name:          p.Name,
			Price:         p.Price(),
			WarrantyYears: p.WarrantyYears,
		})
	}
	data, _ := json.MarshalIndent(facts, "", "  ")
	return fmt.Sprintf(supervisorPromptTemplate, string(data), finalResponse)
}

func historyText(history []session.Message) string {
	var b strings.Builder
	for _, m := range history {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
