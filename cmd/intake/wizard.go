package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/squadhq/intake/internal/dispatch"
	"github.com/squadhq/intake/internal/poller"
	"github.com/squadhq/intake/internal/tui"
	"github.com/squadhq/intake/internal/wizard"
)

var wizardCmd = &cobra.Command{
	Use:     "wizard",
	Aliases: []string{"start"},
	Short:   "Fill in an automation request interactively",
	RunE:    runWizard,
}

var wizardNoWait bool

func init() {
	wizardCmd.Flags().BoolVar(&wizardNoWait, "no-wait", false, "Skip waiting for the analysis and review a local summary")

	rootCmd.AddCommand(wizardCmd)
}

func runWizard(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var p *poller.Poller
	if !wizardNoWait {
		client := newCorrelationClient()
		if err := client.Health(ctx); err != nil {
			slog.Warn("correlation server not reachable; the review will fall back after the deadline",
				"url", viper.GetString("server"), "error", err)
		}
		p = poller.New(client, pollPolicy())
	}

	session := wizard.NewSession(dispatch.NewDispatcher(viper.GetString("pipeline")), p)
	defer session.Close()

	err := tui.NewDriver(session, tui.NewSurveyPrompter(), cmd.OutOrStdout()).Run(ctx)
	if errors.Is(err, tui.ErrAborted) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Cancelled. Nothing further was sent.")
		return nil
	}
	return err
}
