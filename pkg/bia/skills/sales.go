// Package skills – sales.go é a skill de vendas: consulta o catálogo e
// prepara a recomendação de produtos para a geração.
package skills

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slimquality/bia/pkg/bia/catalog"
)

// salesLimit is how many products a single turn recommends.
const salesLimit = 3

// SalesSkill recomenda produtos do catálogo quando o usuário demonstra
// intenção de compra.
type SalesSkill struct {
	catalog *catalog.Store
	logger  *slog.Logger
}

// NewSalesSkill creates the sales skill over the product catalog.
func NewSalesSkill(store *catalog.Store, logger *slog.Logger) *SalesSkill {
	if logger == nil {
		logger = slog.Default()
	}
	return &SalesSkill{catalog: store, logger: logger}
}

func (s *SalesSkill) Name() string { return "product_sales" }

func (s *SalesSkill) Description() string {
	return "Ideal para quando o usuário demonstra interesse em comprar, pergunta sobre preços ou modelos de colchões."
}

// Execute busca os produtos ativos e injeta o contexto de venda no turno.
func (s *SalesSkill) Execute(ctx context.Context, req Request) (Update, error) {
	s.logger.Info("executando skill de vendas", "tenant", req.TenantID)

	products, err := s.catalog.Active(ctx)
	if err != nil {
		return Update{}, fmt.Errorf("consultar catálogo: %w", err)
	}
	if len(products) > salesLimit {
		products = products[:salesLimit]
	}

	names := make([]string, 0, len(products))
	for _, p := range products {
		names = append(names, p.Name)
	}

	lead := req.LeadData
	if lead == nil {
		lead = make(map[string]any)
	}
	lead["last_products_shown"] = names

	knowledge := fmt.Sprintf("\n\n%s\nDIRETRIZ DE VENDA: Foque no parcelamento em 12x. Não dê descontos no preço de tabela.",
		catalog.FormatForPrompt(products))

	return Update{
		KnowledgeContext:    knowledge,
		ProductsRecommended: products,
		LeadData:            lead,
	}, nil
}
