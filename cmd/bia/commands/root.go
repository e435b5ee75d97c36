// Package commands implementa os comandos CLI da BIA usando cobra.
package commands

import (
	"database/sql"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/slimquality/bia/pkg/bia/agent"
	"github.com/slimquality/bia/pkg/bia/catalog"
	"github.com/slimquality/bia/pkg/bia/db"
	"github.com/slimquality/bia/pkg/bia/handoff"
	"github.com/slimquality/bia/pkg/bia/memory"
	"github.com/slimquality/bia/pkg/bia/session"
	"github.com/slimquality/bia/pkg/bia/skills"
	"github.com/slimquality/bia/pkg/bia/tenant"
)

// NewRootCmd cria o comando raiz do CLI com todos os subcomandos registrados.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bia",
		Short: "BIA - Agente conversacional de vendas Slim Quality",
		Long: `BIA é o agente conversacional multi-tenant da Slim Quality.
Atende clientes sobre colchões terapêuticos, aprende padrões de
comportamento por parceiro e transfere para humanos quando necessário.

Exemplos:
  bia chat --tenant slim-matriz
  bia serve
  bia tenant list
  bia patterns list --tenant slim-matriz`,
		Version: version,
	}

	rootCmd.AddCommand(
		newChatCmd(),
		newServeCmd(),
		newTenantCmd(),
		newPatternsCmd(),
		newLearnCmd(),
		newKnowledgeCmd(),
		newCatalogCmd(),
		newConfigCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "caminho para o arquivo de configuração")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "habilita logs detalhados")

	return rootCmd
}

// app agrupa os componentes montados para um comando.
type app struct {
	cfg      *agent.Config
	logger   *slog.Logger
	db       *sql.DB
	tenants  *tenant.Store
	sessions *session.Store
	catalog  *catalog.Store
	handoffs *handoff.Store
	engine   *memory.Engine
	learning *memory.LearningEngine
	approval *memory.ApprovalSupervisor
	agent    *agent.Agent
}

// newApp carrega a configuração e monta o agente completo.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, logger, err := loadConfigAndLogger(cmd)
	if err != nil {
		return nil, err
	}

	central, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	// Credencial global: vault → keyring → env → config.
	globalKey := cfg.API.APIKey
	var vault *tenant.Vault
	if globalKey == "" {
		globalKey, vault = tenant.ResolveGlobalKey(cfg.Vault, logger)
	}

	tenants := tenant.NewStore(central, logger)
	creds := tenant.NewCredentialResolver(vault, globalKey, logger)
	sessions := session.NewStore(central, cfg.SessionTTL(), cfg.Session.Window, logger)
	products := catalog.NewStore(central, logger)
	handoffs := handoff.NewStore(central, logger)

	llm := agent.NewLLMClient(cfg, tenants, creds, logger)

	// Memória adaptativa: busca híbrida + ciclo de aprendizado.
	embedder := memory.NewEmbeddingProvider(cfg.Embeddings)
	store, err := memory.NewStore(cfg.Database.MemoryPath, embedder, logger)
	if err != nil {
		return nil, err
	}
	behavior := memory.NewBehaviorStore(central, logger)
	learning := memory.NewLearningEngine(central, llm, sessions, logger)
	approval := memory.NewApprovalSupervisor(central, behavior,
		cfg.Learning.ApproveThreshold, logger)
	var engineLearning *memory.LearningEngine
	var engineApproval *memory.ApprovalSupervisor
	if cfg.Learning.Enabled {
		engineLearning = learning
		engineApproval = approval
	}
	engine := memory.NewEngine(store, behavior, engineLearning, engineApproval, logger)

	registry := skills.NewRegistry(logger)
	registry.Register(skills.NewSalesSkill(products, logger))

	ag := agent.NewAgent(tenants, sessions, engine, registry, llm, handoffs, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       central,
		tenants:  tenants,
		sessions: sessions,
		catalog:  products,
		handoffs: handoffs,
		engine:   engine,
		learning: learning,
		approval: approval,
		agent:    ag,
	}, nil
}

func (a *app) close() {
	if a.engine != nil {
		_ = a.engine.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

// loadConfigAndLogger resolve o arquivo de configuração e monta o logger.
func loadConfigAndLogger(cmd *cobra.Command) (*agent.Config, *slog.Logger, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path == "" {
		path = agent.FindConfigFile()
	}

	cfg := agent.DefaultConfig()
	if path != "" {
		var err error
		cfg, err = agent.LoadConfig(path)
		if err != nil {
			return nil, nil, err
		}
	}

	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logLevel := slog.LevelInfo
	if verbose || cfg.Logging.Level == "debug" {
		logLevel = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)

	return cfg, logger, nil
}
