package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// newChatCmd cria o comando `bia chat` para conversas interativas.
func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Conversa interativa com a BIA",
		Long: `Inicia uma conversa com o agente. Pode enviar uma mensagem
direta ou entrar no modo interativo (sem argumentos).

Exemplos:
  bia chat --tenant slim-matriz "Quanto custa o colchão casal?"
  bia chat --tenant slim-matriz  # modo interativo`,
		Args: cobra.MaximumNArgs(1),
		RunE: runChat,
	}

	cmd.Flags().StringP("tenant", "t", "", "ID do tenant (obrigatório)")
	cmd.Flags().String("conversation", "", "ID da conversa (gera um novo se vazio)")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	tenantID, _ := cmd.Flags().GetString("tenant")
	if tenantID == "" {
		return fmt.Errorf("informe o tenant com --tenant")
	}
	conversationID, _ := cmd.Flags().GetString("conversation")
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Modo single message.
	if len(args) > 0 {
		result, err := app.agent.HandleTurn(ctx, tenantID, conversationID, args[0])
		if err != nil {
			return err
		}
		fmt.Println(result.Response)
		if result.ShouldHandoff {
			fmt.Printf("(transferência para humano solicitada: %s)\n", result.HandoffReason)
		}
		return nil
	}

	// Modo interativo.
	rl, err := readline.New("você> ")
	if err != nil {
		return fmt.Errorf("iniciar terminal: %w", err)
	}
	defer rl.Close()

	fmt.Printf("Conversa %s (tenant %s). Digite /sair para encerrar.\n", conversationID, tenantID)

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF ou Ctrl+C
			if err == readline.ErrInterrupt || err == io.EOF {
				break
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "/sair" || line == "/exit" {
			break
		}

		result, err := app.agent.HandleTurn(ctx, tenantID, conversationID, line)
		if err != nil {
			fmt.Printf("erro: %v\n", err)
			continue
		}
		fmt.Printf("bia> %s\n", result.Response)
		if result.ShouldHandoff {
			fmt.Printf("(transferência solicitada: %s)\n", result.HandoffReason)
		}
	}

	// Fecha o ciclo de aprendizado da conversa ao sair.
	if approved, err := app.agent.AnalyzeConversation(ctx, tenantID, conversationID); err != nil {
		app.logger.Warn("análise da conversa falhou", "error", err)
	} else if approved > 0 {
		fmt.Printf("(%d padrões de comportamento aprovados a partir desta conversa)\n", approved)
	}
	return nil
}
