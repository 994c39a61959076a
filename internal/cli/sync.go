package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/melisync/melisync/internal/models"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle and print the results",
	Long: `Run a single sync cycle over every configured account and print one
line per account. Logs go to stderr.

With --strict the command exits non-zero when any account ends in
token_error, upsert_error or error.`,
	RunE: runSync,
}

var syncFlags struct {
	Strict bool
}

func init() {
	syncCmd.Flags().BoolVar(&syncFlags.Strict, "strict", false, "Exit non-zero if any account failed")
	RootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := buildService(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer svc.store.Close()

	ctx := cmd.Context()
	svc.rotator.Restore(ctx, svc.accounts)

	results, err := svc.coordinator.RunCycle(ctx)
	if err != nil {
		return fmt.Errorf("sync cycle failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if globalFlags.JSON {
		if err := writeJSON(out, map[string]interface{}{"results": results}); err != nil {
			return err
		}
	} else if err := printResults(out, results); err != nil {
		return err
	}

	if syncFlags.Strict {
		if failed := countFailed(results); failed > 0 {
			return fmt.Errorf("%d of %d accounts failed", failed, len(results))
		}
	}
	return nil
}

func countFailed(results []models.SyncResult) int {
	n := 0
	for _, r := range results {
		if r.Status != models.StatusSynced && r.Status != models.StatusNoSales {
			n++
		}
	}
	return n
}

func printResults(w io.Writer, results []models.SyncResult) error {
	if len(results) == 0 {
		fmt.Fprintln(w, "No accounts configured.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EMPRESA\tDATE\tSTATUS\tVALOR\tORDERS\tFRAUD\tERROR")
	for _, r := range results {
		valor, orders, fraud := "-", "-", "-"
		if r.Status.HasTotals() {
			valor = fmt.Sprintf("%.2f", r.Value)
			orders = fmt.Sprint(r.OrderCount)
			fraud = fmt.Sprint(r.FraudSkipped)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Empresa, r.Date, r.Status, valor, orders, fraud, r.Error)
	}
	return tw.Flush()
}
