package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newPatternsCmd cria o comando `bia patterns` para gestão dos padrões
// de comportamento aprendidos e da fila de aprovação.
func newPatternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Gerencia os padrões de comportamento aprendidos",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Lista os padrões do tenant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, tenantID, err := appWithTenant(cmd)
			if err != nil {
				return err
			}
			defer app.close()

			patterns, err := app.engine.Behavior().List(cmd.Context(), tenantID)
			if err != nil {
				return err
			}
			if len(patterns) == 0 {
				fmt.Println("Nenhum padrão aprendido.")
				return nil
			}
			for _, p := range patterns {
				status := "ativo"
				if !p.IsActive {
					status = "inativo"
				}
				fmt.Printf("%-36s  %-30s  conf=%.2f  %s\n", p.ID, p.Name, p.ConfidenceScore, status)
				fmt.Printf("    QUANDO: %s\n", p.TriggerCondition)
				fmt.Printf("    RESPOSTA: %s\n", p.ResponseTemplate)
			}
			return nil
		},
	}

	pending := &cobra.Command{
		Use:   "pending",
		Short: "Lista os candidatos pendentes de aprovação",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, tenantID, err := appWithTenant(cmd)
			if err != nil {
				return err
			}
			defer app.close()

			logs, err := app.learning.PendingLogs(cmd.Context(), tenantID)
			if err != nil {
				return err
			}
			if len(logs) == 0 {
				fmt.Println("Nenhum candidato pendente.")
				return nil
			}
			for _, l := range logs {
				fmt.Printf("%-36s  conf=%.2f  conversa=%s\n", l.ID, l.ConfidenceScore, l.ConversationID)
			}
			return nil
		},
	}

	approve := &cobra.Command{
		Use:   "approve <log-id>",
		Short: "Aprova manualmente um candidato pendente",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.close()

			promoted, err := app.approval.Approve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if promoted {
				fmt.Println("Candidato aprovado e promovido a padrão.")
			} else {
				fmt.Println("Candidato já não estava pendente (nada a fazer).")
			}
			return nil
		},
	}

	process := &cobra.Command{
		Use:   "process",
		Short: "Roda o supervisor de aprovação agora para o tenant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, tenantID, err := appWithTenant(cmd)
			if err != nil {
				return err
			}
			defer app.close()

			approved, err := app.approval.ProcessPending(cmd.Context(), tenantID)
			if err != nil {
				return err
			}
			fmt.Printf("%d padrões aprovados automaticamente.\n", approved)
			return nil
		},
	}

	deactivate := &cobra.Command{
		Use:   "deactivate <pattern-id>",
		Short: "Desativa um padrão sem apagá-lo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, tenantID, err := appWithTenant(cmd)
			if err != nil {
				return err
			}
			defer app.close()
			return app.engine.Behavior().SetActive(cmd.Context(), tenantID, args[0], false)
		},
	}

	for _, c := range []*cobra.Command{list, pending, process, deactivate} {
		c.Flags().StringP("tenant", "t", "", "ID do tenant (obrigatório)")
	}

	cmd.AddCommand(list, pending, approve, process, deactivate)
	return cmd
}

// appWithTenant monta o app e exige a flag --tenant.
func appWithTenant(cmd *cobra.Command) (*app, string, error) {
	tenantID, _ := cmd.Flags().GetString("tenant")
	if tenantID == "" {
		return nil, "", fmt.Errorf("informe o tenant com --tenant")
	}
	a, err := newApp(cmd)
	if err != nil {
		return nil, "", err
	}
	return a, tenantID, nil
}
