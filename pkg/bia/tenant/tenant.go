// Package tenant gerencia os tenants da plataforma (parceiros e
// afiliados) e a resolução segura das credenciais de LLM por tenant.
package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indica que o tenant não existe ou está inativo.
var ErrNotFound = errors.New("tenant não encontrado")

// Tenant é um parceiro da plataforma. Cada tenant tem sua própria
// persona de agente e, opcionalmente, sua própria credencial de API.
type Tenant struct {
	ID          string
	Name        string
	AgentName   string
	Personality string
	// CredentialRef nomeia a entrada do vault/keyring com a chave de
	// API do tenant. Vazio significa usar a credencial global.
	CredentialRef string
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Store lê e grava tenants no banco central.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore cria o repositório de tenants.
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Get retorna um tenant ativo pelo ID. Tenants inativos são tratados
// como inexistentes: nenhum turno roda para tenant desativado.
func (s *Store) Get(ctx context.Context, id string) (*Tenant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, agent_name, agent_personality, api_credential, is_active, created_at, updated_at
		 FROM tenants WHERE id = ? AND is_active = 1`, id)
	return scanTenant(row)
}

// List retorna todos os tenants, ativos ou não, para os comandos de gestão.
func (s *Store) List(ctx context.Context) ([]Tenant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, agent_name, agent_personality, api_credential, is_active, created_at, updated_at
		 FROM tenants ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listar tenants: %w", err)
	}
	defer rows.Close()

	var out []Tenant
	for rows.Next() {
		t, err := scanTenantRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// Create insere um tenant novo. ID vazio gera um UUID.
func (s *Store) Create(ctx context.Context, t *Tenant) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.AgentName == "" {
		t.AgentName = "BIA"
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.IsActive = true

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, agent_name, agent_personality, api_credential, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		t.ID, t.Name, t.AgentName, t.Personality, t.CredentialRef,
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("criar tenant: %w", err)
	}
	s.logger.Info("tenant criado", "tenant", t.ID, "name", t.Name)
	return nil
}

// SetActive ativa ou desativa um tenant.
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET is_active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("atualizar tenant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row *sql.Row) (*Tenant, error) {
	t, err := scanTenantRows(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func scanTenantRows(sc rowScanner) (*Tenant, error) {
	var t Tenant
	var active int
	var created, updated string
	err := sc.Scan(&t.ID, &t.Name, &t.AgentName, &t.Personality,
		&t.CredentialRef, &active, &created, &updated)
	if err != nil {
		return nil, err
	}
	t.IsActive = active != 0
	t.CreatedAt, _ = time.Parse(time.RFC3339, created)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
