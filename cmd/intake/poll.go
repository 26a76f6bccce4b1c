package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/squadhq/intake/internal/poller"
)

var pollCmd = &cobra.Command{
	Use:   "poll <request-id>",
	Short: "Wait for the analysis of a submitted request and print its summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runPoll,
}

var pollTimeout time.Duration

func init() {
	pollCmd.Flags().DurationVar(&pollTimeout, "timeout", 0, "Give up after this long (default: poll.deadline)")

	rootCmd.AddCommand(pollCmd)
}

func runPoll(cmd *cobra.Command, args []string) error {
	policy := pollPolicy()
	if pollTimeout > 0 {
		policy.Deadline = pollTimeout
	}

	res, err := poller.New(newCorrelationClient(), policy).Poll(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("poll cancelled: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Outcome: %s (after %d attempts)\n\n", res.Outcome, res.Attempts)
	fmt.Fprintln(out, res.Summary)
	return nil
}
