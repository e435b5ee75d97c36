package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

// newServeCmd cria o comando `bia serve` que mantém as rotinas de
// fundo do agente: supervisor de aprovação e expiração de sessões.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Inicia o daemon com as rotinas de fundo",
		Long: `Inicia a BIA como daemon: roda o supervisor de aprovação de
padrões no agendamento configurado e expira sessões antigas.

Exemplos:
  bia serve
  bia serve --config ./config.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.close()

	logger := app.logger

	// Supervisor de aprovação no cron configurado.
	if app.cfg.Learning.Enabled {
		if err := app.approval.Start(app.cfg.Learning.Schedule); err != nil {
			logger.Error("falha ao iniciar supervisor de aprovação", "error", err)
		} else {
			logger.Info("supervisor de aprovação agendado",
				"schedule", app.cfg.Learning.Schedule,
				"threshold", app.cfg.Learning.ApproveThreshold)
		}
	}

	// Expiração de sessões a cada hora.
	maintenance := cron.New()
	_, err = maintenance.AddFunc("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := app.sessions.Purge(ctx); err != nil {
			logger.Warn("expiração de sessões falhou", "error", err)
		}
	})
	if err != nil {
		logger.Error("falha ao agendar expiração de sessões", "error", err)
	}
	maintenance.Start()

	logger.Info("BIA rodando. Ctrl+C para encerrar.",
		"database", app.cfg.Database.Path,
		"model", app.cfg.API.Model)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("sinal de encerramento recebido, parando...")

	stopCtx := maintenance.Stop()
	<-stopCtx.Done()
	app.approval.Stop()

	return nil
}
