package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/zhfmzl/priceUpdate-BTB/internal/resilience"
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Replay failed (player, grade) pairs from the dead letter queue",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initCampaign(ctx, "retry", envOptionsFromFlags(cmd))
		if err != nil {
			return err
		}
		defer env.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		errType, _ := cmd.Flags().GetString("error-type")

		entries, err := env.Store.DequeueDLQ(ctx, resilience.DLQFilter{ErrorType: errType, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "retry: dequeue")
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "Nothing to retry.")
			return nil
		}

		res, runErr := env.Runner.Retry(ctx, entries)
		if err := finishCampaign(cmd, res); err != nil {
			return err
		}
		if runErr != nil {
			return eris.Wrap(runErr, "retry")
		}
		return nil
	},
}

func init() {
	retryCmd.Flags().Int("limit", 500, "max pairs to replay")
	retryCmd.Flags().String("error-type", "", "only replay this error type (transient, permanent)")
	addCampaignFlags(retryCmd)
	rootCmd.AddCommand(retryCmd)
}
