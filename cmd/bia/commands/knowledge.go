package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// newKnowledgeCmd cria o comando `bia knowledge` para gestão da base de
// conhecimento por tenant.
func newKnowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Gerencia a base de conhecimento do tenant",
	}

	add := &cobra.Command{
		Use:   "add [text]",
		Short: "Adiciona um trecho à base de conhecimento",
		Long: `Adiciona conteúdo à base de conhecimento do tenant. O texto pode
vir como argumento ou de um arquivo via --file.

Exemplos:
  bia knowledge add --tenant slim-matriz "O colchão casal mede 138x188cm."
  bia knowledge add --tenant slim-matriz --file ./faq.txt`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, tenantID, err := appWithTenant(cmd)
			if err != nil {
				return err
			}
			defer app.close()

			var content string
			if file, _ := cmd.Flags().GetString("file"); file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("ler arquivo: %w", err)
				}
				content = string(data)
			} else if len(args) > 0 {
				content = args[0]
			}
			if strings.TrimSpace(content) == "" {
				return fmt.Errorf("informe o texto ou --file")
			}

			if err := app.engine.Store().AddKnowledge(cmd.Context(), tenantID, content, nil); err != nil {
				return err
			}
			fmt.Println("Conhecimento adicionado.")
			return nil
		},
	}
	add.Flags().String("file", "", "arquivo com o conteúdo")

	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Busca na base de conhecimento",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, tenantID, err := appWithTenant(cmd)
			if err != nil {
				return err
			}
			defer app.close()

			result := app.engine.Store().SearchKnowledge(cmd.Context(), tenantID, args[0], 5)
			if result == "" {
				fmt.Println("Nada encontrado.")
				return nil
			}
			fmt.Println(result)
			return nil
		},
	}

	for _, c := range []*cobra.Command{add, search} {
		c.Flags().StringP("tenant", "t", "", "ID do tenant (obrigatório)")
	}

	cmd.AddCommand(add, search)
	return cmd
}
