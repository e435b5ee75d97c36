package catalog

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/slimquality/bia/pkg/bia/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	d, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return NewStore(d, nil)
}

func TestFormatPrice(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{399900, "R$ 3999.00"},
		{129990, "R$ 1299.90"},
		{99, "R$ 0.99"},
		{0, "R$ 0.00"},
	}
	for _, tc := range cases {
		if got := FormatPrice(tc.cents); got != tc.want {
			t.Errorf("FormatPrice(%d) = %q, want %q", tc.cents, got, tc.want)
		}
	}
}

func TestActive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seed := []Product{
		{Name: "Colchão Casal Premium", PriceCents: 499900, IsActive: true},
		{Name: "Colchão Solteiro", PriceCents: 199900, IsActive: true},
		{Name: "Modelo Descontinuado", PriceCents: 99900, IsActive: false},
	}
	for i := range seed {
		if err := store.Upsert(ctx, &seed[i]); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	products, err := store.Active(ctx)
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("got %d products, want 2 (inactive excluded)", len(products))
	}
	if products[0].Name != "Colchão Solteiro" {
		t.Errorf("first product = %q, want cheapest first", products[0].Name)
	}
}

func TestUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("generates id when empty", func(t *testing.T) {
		p := &Product{Name: "Travesseiro Magnético", PriceCents: 29900, IsActive: true}
		if err := store.Upsert(ctx, p); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		if p.ID == "" {
			t.Error("expected generated id")
		}
	})

	t.Run("replaces an existing product", func(t *testing.T) {
		p := &Product{ID: "prod-1", Name: "Colchão", PriceCents: 100000, IsActive: true}
		if err := store.Upsert(ctx, p); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		p.PriceCents = 120000
		if err := store.Upsert(ctx, p); err != nil {
			t.Fatalf("Upsert update: %v", err)
		}

		got, err := store.Get(ctx, "prod-1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.PriceCents != 120000 {
			t.Errorf("PriceCents = %d, want 120000", got.PriceCents)
		}
	})

	t.Run("get unknown product", func(t *testing.T) {
		if _, err := store.Get(ctx, "nao-existe"); !errors.Is(err, sql.ErrNoRows) {
			t.Errorf("err = %v, want sql.ErrNoRows", err)
		}
	})
}

func TestFormatForPrompt(t *testing.T) {
	t.Run("empty catalog yields empty string", func(t *testing.T) {
		if got := FormatForPrompt(nil); got != "" {
			t.Errorf("got %q, want empty", got)
		}
	})

	t.Run("renders the context block", func(t *testing.T) {
		products := []Product{
			{
				Name:          "Colchão Magnético Casal",
				Description:   "Infravermelho longo e magnetoterapia.",
				PriceCents:    399900,
				WidthCM:       138,
				LengthCM:      188,
				HeightCM:      28,
				WarrantyYears: 5,
			},
			{Name: "Travesseiro Cervical", PriceCents: 19900},
		}

		got := FormatForPrompt(products)
		for _, want := range []string{
			"### PRODUTOS DISPONÍVEIS:",
			"- Colchão Magnético Casal: R$ 3999.00 (138x188cm, altura 28cm)",
			"garantia de 5 anos",
			"Infravermelho longo e magnetoterapia.",
			"- Travesseiro Cervical: R$ 199.00\n",
		} {
			if !strings.Contains(got, want) {
				t.Errorf("output missing %q:\n%s", want, got)
			}
		}
	})
}
