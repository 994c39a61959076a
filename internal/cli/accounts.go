package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/melisync/melisync/internal/config"
	"github.com/melisync/melisync/internal/models"
	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:     "accounts",
	Aliases: []string{"a"},
	Short:   "List configured accounts",
	Long: `List the accounts discovered from the environment and the config file,
in the order cycles visit them. Credentials are masked.`,
	RunE: runAccounts,
}

func init() {
	RootCmd.AddCommand(accountsCmd)
}

// AccountDisplayInfo is the masked view of one account.
type AccountDisplayInfo struct {
	Name         string `json:"name"`
	Empresa      string `json:"empresa"`
	UserID       string `json:"user_id"`
	AppID        string `json:"app_id"`
	SecretKey    string `json:"secret_key"`
	RefreshToken string `json:"refresh_token"`
}

func runAccounts(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	accounts, err := resolveAccounts(cfg, newLogger(cfg.Server, cmd.ErrOrStderr()))
	if err != nil {
		return err
	}

	infos := accountInfos(accounts)
	if globalFlags.JSON {
		return writeJSON(cmd.OutOrStdout(), infos)
	}
	return printAccounts(cmd.OutOrStdout(), infos)
}

func accountInfos(accounts models.AccountList) []AccountDisplayInfo {
	infos := make([]AccountDisplayInfo, 0, len(accounts))
	for _, a := range accounts {
		infos = append(infos, AccountDisplayInfo{
			Name:         a.Name,
			Empresa:      a.Empresa,
			UserID:       a.UserID,
			AppID:        a.AppID,
			SecretKey:    config.MaskSecret(a.SecretKey),
			RefreshToken: config.MaskSecret(a.RefreshToken()),
		})
	}
	return infos
}

func printAccounts(w io.Writer, infos []AccountDisplayInfo) error {
	if len(infos) == 0 {
		fmt.Fprintln(w, "No accounts configured. Set MELI_{NAME}_APP_ID and friends.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tEMPRESA\tUSER ID\tAPP ID\tSECRET\tSEED TOKEN")
	for _, i := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", i.Name, i.Empresa, i.UserID, i.AppID, i.SecretKey, i.RefreshToken)
	}
	return tw.Flush()
}

