package admin

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/pongladder/internal/factory"
	"github.com/mcoot/pongladder/internal/services/legacy"
)

func newImportCmd() *cobra.Command {
	var (
		usersPath   string
		matchesPath string
		timezone    string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import users.json and matches.json from the legacy ladder",
		Long: `Import loads the legacy users and matches documents into an empty ledger.

Passwords keep their sha256 digests and are upgraded to bcrypt on each
user's next login. Naive match datetimes are read in --timezone.`,
		RunE: withApp(func(cmd *cobra.Command, app *factory.App) error {
			loc, err := time.LoadLocation(timezone)
			if err != nil {
				return fmt.Errorf("timezone: %w", err)
			}

			users, err := os.Open(usersPath)
			if err != nil {
				return err
			}
			defer func() { _ = users.Close() }()

			var matches io.Reader
			if matchesPath != "" {
				f, err := os.Open(matchesPath)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				matches = f
			}

			importer := legacy.New(app.Storage, app.Clock, app.Logger, legacy.Config{Location: loc})
			summary, err := importer.Import(cmd.Context(), users, matches)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d user(s) and %d match(es)\n", summary.Users, summary.Matches)
			return err
		}),
	}

	cmd.Flags().StringVar(&usersPath, "users", "", "Path to users.json (required)")
	cmd.Flags().StringVar(&matchesPath, "matches", "", "Path to matches.json")
	cmd.Flags().StringVar(&timezone, "timezone", "UTC", "IANA zone the legacy datetimes were recorded in")
	_ = cmd.MarkFlagRequired("users")

	return cmd
}
