package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/slimquality/bia/pkg/bia/tenant"
)

// newConfigCmd cria o comando `bia config` para gestão de credenciais.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Gerencia credenciais e configuração",
	}

	setKey := &cobra.Command{
		Use:   "set-key <api-key>",
		Short: "Guarda a chave de API global no keyring do sistema",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if !tenant.KeyringAvailable() {
				return fmt.Errorf("keyring do sistema indisponível; use o vault (bia config vault-set)")
			}
			if err := tenant.StoreKeyring("api_key", args[0]); err != nil {
				return fmt.Errorf("gravar no keyring: %w", err)
			}
			fmt.Println("Chave de API guardada no keyring do sistema.")
			return nil
		},
	}

	vaultInit := &cobra.Command{
		Use:   "vault-init",
		Short: "Cria o vault criptografado de credenciais",
		RunE: func(_ *cobra.Command, _ []string) error {
			v := tenant.NewVault(tenant.VaultFile)
			if v.Exists() {
				return fmt.Errorf("vault já existe em %s", tenant.VaultFile)
			}
			password, err := tenant.ReadPassword("Nova senha do vault: ")
			if err != nil {
				return err
			}
			confirm, err := tenant.ReadPassword("Confirme a senha: ")
			if err != nil {
				return err
			}
			if password != confirm {
				return fmt.Errorf("as senhas não conferem")
			}
			if err := v.Create(password); err != nil {
				return err
			}
			fmt.Printf("Vault criado em %s.\n", tenant.VaultFile)
			return nil
		},
	}

	vaultSet := &cobra.Command{
		Use:   "vault-set <name>",
		Short: "Guarda um segredo no vault criptografado",
		Long: `Guarda um segredo no vault. O nome é a referência usada pelo
tenant (credential-ref) ou OPENAI_API_KEY para a chave global.

Exemplos:
  bia config vault-set OPENAI_API_KEY
  bia config vault-set TENANT_ACME_API_KEY`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			v := tenant.NewVault(tenant.VaultFile)
			if !v.Exists() {
				return fmt.Errorf("vault não existe; crie com: bia config vault-init")
			}
			password, err := tenant.ReadPassword("Senha do vault: ")
			if err != nil {
				return err
			}
			if err := v.Unlock(password); err != nil {
				return err
			}
			defer v.Lock()

			value, err := tenant.ReadPassword(fmt.Sprintf("Valor de %s: ", args[0]))
			if err != nil {
				return err
			}
			if err := v.Set(args[0], value); err != nil {
				return err
			}
			fmt.Printf("Segredo %s guardado no vault.\n", args[0])
			return nil
		},
	}

	vaultList := &cobra.Command{
		Use:   "vault-list",
		Short: "Lista os nomes dos segredos do vault",
		RunE: func(_ *cobra.Command, _ []string) error {
			v := tenant.NewVault(tenant.VaultFile)
			if !v.Exists() {
				return fmt.Errorf("vault não existe; crie com: bia config vault-init")
			}
			password, err := tenant.ReadPassword("Senha do vault: ")
			if err != nil {
				return err
			}
			if err := v.Unlock(password); err != nil {
				return err
			}
			defer v.Lock()

			keys := v.List()
			if len(keys) == 0 {
				fmt.Println("Vault vazio.")
				return nil
			}
			for _, k := range keys {
				fmt.Println(k)
			}
			return nil
		},
	}

	cmd.AddCommand(setKey, vaultInit, vaultSet, vaultList)
	return cmd
}
