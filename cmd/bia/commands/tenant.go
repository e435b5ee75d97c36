package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/slimquality/bia/pkg/bia/tenant"
)

// newTenantCmd cria o comando `bia tenant` para gestão de tenants.
func newTenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Gerencia os tenants da plataforma",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Lista todos os tenants",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.close()

			tenants, err := app.tenants.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(tenants) == 0 {
				fmt.Println("Nenhum tenant cadastrado.")
				return nil
			}
			for _, t := range tenants {
				status := "ativo"
				if !t.IsActive {
					status = "inativo"
				}
				fmt.Printf("%-36s  %-24s  agente=%s  %s\n", t.ID, t.Name, t.AgentName, status)
			}
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Cadastra um tenant novo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.close()

			id, _ := cmd.Flags().GetString("id")
			agentName, _ := cmd.Flags().GetString("agent-name")
			personality, _ := cmd.Flags().GetString("personality")
			credRef, _ := cmd.Flags().GetString("credential-ref")

			t := &tenant.Tenant{
				ID:            id,
				Name:          args[0],
				AgentName:     agentName,
				Personality:   personality,
				CredentialRef: credRef,
			}
			if err := app.tenants.Create(cmd.Context(), t); err != nil {
				return err
			}
			fmt.Printf("Tenant criado: %s\n", t.ID)
			return nil
		},
	}
	add.Flags().String("id", "", "ID do tenant (gera UUID se vazio)")
	add.Flags().String("agent-name", "BIA", "nome do agente para este tenant")
	add.Flags().String("personality", "", "personalidade do agente")
	add.Flags().String("credential-ref", "", "nome da entrada do vault/keyring com a chave de API do tenant")

	enable := &cobra.Command{
		Use:   "enable <id>",
		Short: "Reativa um tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setTenantActive(cmd, args[0], true)
		},
	}

	disable := &cobra.Command{
		Use:   "disable <id>",
		Short: "Desativa um tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setTenantActive(cmd, args[0], false)
		},
	}

	cmd.AddCommand(list, add, enable, disable)
	return cmd
}

func setTenantActive(cmd *cobra.Command, id string, active bool) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.close()

	if err := app.tenants.SetActive(cmd.Context(), id, active); err != nil {
		return err
	}
	if active {
		fmt.Printf("Tenant %s reativado.\n", id)
	} else {
		fmt.Printf("Tenant %s desativado.\n", id)
	}
	return nil
}
