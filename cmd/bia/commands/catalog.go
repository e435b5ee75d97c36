package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/slimquality/bia/pkg/bia/catalog"
)

// newCatalogCmd cria o comando `bia catalog` para gestão do catálogo.
func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Gerencia o catálogo de produtos",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Lista os produtos ativos",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.close()

			products, err := app.catalog.Active(cmd.Context())
			if err != nil {
				return err
			}
			if len(products) == 0 {
				fmt.Println("Catálogo vazio.")
				return nil
			}
			for _, p := range products {
				fmt.Printf("%-36s  %-30s  %s\n", p.ID, p.Name, p.Price())
			}
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Adiciona um produto ao catálogo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.close()

			priceCents, _ := cmd.Flags().GetInt64("price-cents")
			description, _ := cmd.Flags().GetString("description")
			sku, _ := cmd.Flags().GetString("sku")
			width, _ := cmd.Flags().GetInt("width-cm")
			length, _ := cmd.Flags().GetInt("length-cm")
			warranty, _ := cmd.Flags().GetInt("warranty-years")

			p := &catalog.Product{
				Name:          args[0],
				Description:   description,
				PriceCents:    priceCents,
				SKU:           sku,
				WidthCM:       width,
				LengthCM:      length,
				WarrantyYears: warranty,
				IsActive:      true,
			}
			if err := app.catalog.Upsert(cmd.Context(), p); err != nil {
				return err
			}
			fmt.Printf("Produto criado: %s (%s)\n", p.ID, p.Price())
			return nil
		},
	}
	add.Flags().Int64("price-cents", 0, "preço em centavos")
	add.Flags().String("description", "", "descrição do produto")
	add.Flags().String("sku", "", "SKU")
	add.Flags().Int("width-cm", 0, "largura em cm")
	add.Flags().Int("length-cm", 0, "comprimento em cm")
	add.Flags().Int("warranty-years", 0, "garantia em anos")

	cmd.AddCommand(list, add)
	return cmd
}
