// Package catalog expõe o catálogo de produtos consumido pela skill de
// vendas. Preços são armazenados em centavos e formatados em reais
// apenas na borda do prompt.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Product é um item do catálogo.
type Product struct {
	ID            string
	Name          string
	Description   string
	PriceCents    int64
	SKU           string
	Category      string
	WidthCM       int
	LengthCM      int
	HeightCM      int
	WeightKG      float64
	WarrantyYears int
	IsActive      bool
}

// Price formats the price in reais ("R$ 1299.90").
func (p Product) Price() string {
	return FormatPrice(p.PriceCents)
}

// FormatPrice converts cents to the "R$ %.2f" display form.
func FormatPrice(cents int64) string {
	return fmt.Sprintf("R$ %.2f", float64(cents)/100)
}

// Store lê o catálogo no banco central.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore cria o repositório de produtos.
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

const productColumns = `id, name, description, price_cents, sku, category,
	width_cm, length_cm, height_cm, weight_kg, warranty_years, is_active`

// Active returns all active products, cheapest first.
func (s *Store) Active(ctx context.Context) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE is_active = 1 ORDER BY price_cents`)
	if err != nil {
		return nil, fmt.Errorf("listar produtos: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// Get returns one product by ID.
func (s *Store) Get(ctx context.Context, id string) (*Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("buscar produto: %w", err)
	}
	defer rows.Close()

	products, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, sql.ErrNoRows
	}
	return &products[0], nil
}

// Upsert inserts or replaces a product. ID vazio gera um UUID.
func (s *Store) Upsert(ctx context.Context, p *Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO products
		 (id, name, description, price_cents, sku, category, width_cm, length_cm, height_cm, weight_kg, warranty_years, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.PriceCents, p.SKU, p.Category,
		p.WidthCM, p.LengthCM, p.HeightCM, p.WeightKG, p.WarrantyYears,
		boolToInt(p.IsActive))
	if err != nil {
		return fmt.Errorf("gravar produto: %w", err)
	}
	return nil
}

// FormatForPrompt renders the product list as the context block the
// sales skill injects into the prompt. Empty catalog yields "".
func FormatForPrompt(products []Product) string {
	if len(products) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("### PRODUTOS DISPONÍVEIS:\n")
	for _, p := range products {
		fmt.Fprintf(&b, "- %s: %s", p.Name, p.Price())
		if p.WidthCM > 0 && p.LengthCM > 0 {
			fmt.Fprintf(&b, " (%dx%dcm", p.WidthCM, p.LengthCM)
			if p.HeightCM > 0 {
				fmt.Fprintf(&b, ", altura %dcm", p.HeightCM)
			}
			b.WriteString(")")
		}
		if p.WarrantyYears > 0 {
			fmt.Fprintf(&b, " — garantia de %d anos", p.WarrantyYears)
		}
		if p.Description != "" {
			fmt.Fprintf(&b, ". %s", p.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func scanProducts(rows *sql.Rows) ([]Product, error) {
	var out []Product
	for rows.Next() {
		var p Product
		var active int
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents,
			&p.SKU, &p.Category, &p.WidthCM, &p.LengthCM, &p.HeightCM,
			&p.WeightKG, &p.WarrantyYears, &active); err != nil {
			return nil, fmt.Errorf("scan produto: %w", err)
		}
		p.IsActive = active != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
