package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/squadhq/intake/internal/correlation"
)

var statusCmd = &cobra.Command{
	Use:   "status <request-id>",
	Short: "Show whether an analysis has arrived for a request",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var showRecord bool

func init() {
	statusCmd.Flags().BoolVar(&showRecord, "show", false, "Print the full analysis record when it has arrived")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	requestID := args[0]
	client := newCorrelationClient()

	status, err := client.Status(cmd.Context(), requestID)
	if err != nil {
		return fmt.Errorf("failed to fetch status: %w", err)
	}
	if err := printJSON(cmd, status); err != nil {
		return err
	}
	if !showRecord || !status.Ready {
		return nil
	}

	rec, err := client.Get(cmd.Context(), requestID)
	if errors.Is(err, correlation.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to fetch analysis: %w", err)
	}
	return printJSON(cmd, rec)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
