package admin

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mcoot/pongladder/internal/factory"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Replay the stored ledger and report drifted ratings",
		RunE: withApp(func(cmd *cobra.Command, app *factory.App) error {
			drifts, err := app.LedgerService.Verify(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(drifts) == 0 {
				_, err := fmt.Fprintln(out, "Ledger is consistent")
				return err
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "USER\tSTORED\tREPLAYED")
			for _, d := range drifts {
				_, _ = fmt.Fprintf(w, "%s\t%d\t%d\n", d.Username, d.Stored, d.Replayed)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			return fmt.Errorf("ledger has %d drifted rating(s)", len(drifts))
		}),
	}
}
