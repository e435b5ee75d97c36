package skills

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/slimquality/bia/pkg/bia/catalog"
	"github.com/slimquality/bia/pkg/bia/db"
)

func newTestCatalog(t *testing.T) *catalog.Store {
	t.Helper()
	d, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return catalog.NewStore(d, nil)
}

func seedProducts(t *testing.T, store *catalog.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		p := catalog.Product{
			Name:       fmt.Sprintf("Colchão Modelo %d", i+1),
			PriceCents: int64((i + 1) * 100000),
			IsActive:   true,
		}
		if err := store.Upsert(context.Background(), &p); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
}

func TestSalesSkillExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("recommends at most three products", func(t *testing.T) {
		store := newTestCatalog(t)
		seedProducts(t, store, 5)
		skill := NewSalesSkill(store, nil)

		upd, err := skill.Execute(ctx, Request{TenantID: "t1", Message: "quero comprar um colchão"})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if len(upd.ProductsRecommended) != 3 {
			t.Fatalf("got %d products, want 3", len(upd.ProductsRecommended))
		}
		// Cheapest first, so the cap keeps the entry models.
		if upd.ProductsRecommended[0].Name != "Colchão Modelo 1" {
			t.Errorf("first product = %q, want Colchão Modelo 1", upd.ProductsRecommended[0].Name)
		}
	})

	t.Run("records shown products in the lead data", func(t *testing.T) {
		store := newTestCatalog(t)
		seedProducts(t, store, 2)
		skill := NewSalesSkill(store, nil)

		upd, err := skill.Execute(ctx, Request{TenantID: "t1"})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		shown, ok := upd.LeadData["last_products_shown"].([]string)
		if !ok {
			t.Fatalf("last_products_shown = %T, want []string", upd.LeadData["last_products_shown"])
		}
		if len(shown) != 2 || shown[0] != "Colchão Modelo 1" {
			t.Errorf("shown = %v", shown)
		}
	})

	t.Run("preserves existing lead data", func(t *testing.T) {
		store := newTestCatalog(t)
		seedProducts(t, store, 1)
		skill := NewSalesSkill(store, nil)

		upd, err := skill.Execute(ctx, Request{
			TenantID: "t1",
			LeadData: map[string]any{"nome": "Maria"},
		})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if upd.LeadData["nome"] != "Maria" {
			t.Errorf("lead data lost: %v", upd.LeadData)
		}
	})

	t.Run("knowledge context carries the sales guideline", func(t *testing.T) {
		store := newTestCatalog(t)
		seedProducts(t, store, 1)
		skill := NewSalesSkill(store, nil)

		upd, err := skill.Execute(ctx, Request{TenantID: "t1"})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		for _, want := range []string{
			"### PRODUTOS DISPONÍVEIS:",
			"DIRETRIZ DE VENDA: Foque no parcelamento em 12x.",
			"Não dê descontos no preço de tabela.",
		} {
			if !strings.Contains(upd.KnowledgeContext, want) {
				t.Errorf("knowledge context missing %q:\n%s", want, upd.KnowledgeContext)
			}
		}
	})
}
