package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newLearnCmd cria o comando `bia learn` que fecha o ciclo de
// aprendizado para uma conversa encerrada.
func newLearnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learn <conversation-id>",
		Short: "Analisa uma conversa e extrai padrões de comportamento",
		Long: `Extrai candidatos a padrão de comportamento da conversa, registra
as sugestões pendentes e roda o supervisor de aprovação. Candidatos
com confiança acima do limiar configurado são promovidos na hora.

Exemplos:
  bia learn --tenant slim-matriz 1b4e28ba-2fa1-11ed-a261-0242ac120002`,
		Args: cobra.ExactArgs(1),
		RunE: runLearn,
	}

	cmd.Flags().StringP("tenant", "t", "", "ID do tenant (obrigatório)")
	return cmd
}

func runLearn(cmd *cobra.Command, args []string) error {
	app, tenantID, err := appWithTenant(cmd)
	if err != nil {
		return err
	}
	defer app.close()

	approved, err := app.engine.AnalyzeConversation(cmd.Context(), tenantID, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Análise concluída: %d padrões aprovados automaticamente.\n", approved)
	fmt.Println("Use `bia patterns pending` para revisar os demais candidatos.")
	return nil
}
