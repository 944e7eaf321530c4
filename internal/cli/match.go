package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match ledger commands",
	}

	cmd.AddCommand(newMatchRecordCmd())
	cmd.AddCommand(newMatchUndoCmd())
	cmd.AddCommand(newMatchListCmd())

	return cmd
}

func newMatchRecordCmd() *cobra.Command {
	var playerA, playerB, winner string
	var draw bool

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a finished match",
		Example: `  pongctl match record --a alice --b bob --winner alice
  pongctl match record --a alice --b bob --draw`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]string{
				"player_a": playerA,
				"player_b": playerB,
			}
			if draw {
				req["result"] = "draw"
			} else {
				req["winner"] = winner
			}
			var result Match

			if err := client.Post("/api/v1/matches", req, &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&playerA, "a", "", "First player (required)")
	cmd.Flags().StringVar(&playerB, "b", "", "Second player (required)")
	cmd.Flags().StringVar(&winner, "winner", "", "Winning player")
	cmd.Flags().BoolVar(&draw, "draw", false, "Record the match as a draw")
	_ = cmd.MarkFlagRequired("a")
	_ = cmd.MarkFlagRequired("b")
	cmd.MarkFlagsMutuallyExclusive("winner", "draw")
	cmd.MarkFlagsOneRequired("winner", "draw")

	return cmd
}

func newMatchUndoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undo",
		Short: "Delete the most recent match and restore its players' ratings",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result Match

			if err := client.Delete("/api/v1/matches/last", &result); err != nil {
				return err
			}

			out := output(cmd)
			if cfg.Output == "json" {
				out.Print(result)
				return nil
			}
			out.PrintMessage(fmt.Sprintf("Removed match #%d: %s", result.Sequence, result.describe()))
			return nil
		},
	}
}

func newMatchListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent matches, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result MatchList

			if err := client.Get(withLimit("/api/v1/matches", limit), &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of matches (server default when unset)")

	return cmd
}

func withLimit(path string, limit int) string {
	if limit <= 0 {
		return path
	}
	return fmt.Sprintf("%s?limit=%d", path, limit)
}
