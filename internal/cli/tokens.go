package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/melisync/melisync/internal/config"
	"github.com/melisync/melisync/internal/models"
	"github.com/melisync/melisync/internal/store"
	"github.com/spf13/cobra"
)

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Show persisted refresh token state",
	Long: `Show the refresh tokens persisted in the ledger backend, masked, with
the expiry of the access token issued alongside each one.`,
	RunE: runTokens,
}

func init() {
	RootCmd.AddCommand(tokensCmd)
}

// TokenDisplayInfo is the masked view of one persisted token.
type TokenDisplayInfo struct {
	Account        string     `json:"account_name"`
	RefreshToken   string     `json:"refresh_token"`
	AccessExpires  *time.Time `json:"access_token_expires_at,omitempty"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
	AccessValidNow bool       `json:"access_token_valid"`
}

func runTokens(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Ledger, nil, cfg.Sync.RequestTimeout)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Ledger.Backend, err)
	}
	defer st.Close()

	tokens, err := st.ListTokens(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list tokens: %w", err)
	}

	infos := tokenInfos(tokens, time.Now())
	if globalFlags.JSON {
		return writeJSON(cmd.OutOrStdout(), infos)
	}
	return printTokens(cmd.OutOrStdout(), infos)
}

func tokenInfos(tokens []models.PersistedToken, now time.Time) []TokenDisplayInfo {
	infos := make([]TokenDisplayInfo, 0, len(tokens))
	for _, t := range tokens {
		info := TokenDisplayInfo{
			Account:      t.AccountName,
			RefreshToken: config.MaskSecret(t.RefreshToken),
		}
		if !t.AccessTokenExpiresAt.IsZero() {
			exp := t.AccessTokenExpiresAt
			info.AccessExpires = &exp
			info.AccessValidNow = now.Before(exp)
		}
		if !t.UpdatedAt.IsZero() {
			upd := t.UpdatedAt
			info.UpdatedAt = &upd
		}
		infos = append(infos, info)
	}
	return infos
}

func printTokens(w io.Writer, infos []TokenDisplayInfo) error {
	if len(infos) == 0 {
		fmt.Fprintln(w, "No persisted tokens. Seed tokens from the environment are used until the first rotation.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACCOUNT\tREFRESH TOKEN\tACCESS EXPIRES\tUPDATED")
	for _, i := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", i.Account, i.RefreshToken, formatTime(i.AccessExpires), formatTime(i.UpdatedAt))
	}
	return tw.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
