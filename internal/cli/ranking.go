package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

func newRankingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ranking",
		Short: "Show the ladder",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result Ranking

			if err := client.Get("/api/v1/ranking", &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <user>",
		Short: "Show a user's match record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result UserStats

			if err := client.Get("/api/v1/users/"+url.PathEscape(args[0])+"/stats", &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <user>",
		Short: "Show a user's recent rating history, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result RatingHistory

			path := withLimit("/api/v1/users/"+url.PathEscape(args[0])+"/history", limit)
			if err := client.Get(path, &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of points (server default when unset)")

	return cmd
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Replay the ledger and report ratings that disagree with it",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result VerifyResult

			if err := client.Get("/api/v1/ledger/verify", &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			if !result.Consistent {
				return fmt.Errorf("ledger has %d drifted rating(s)", len(result.Drifts))
			}
			return nil
		},
	}
}
