// Package main implements the intake CLI: the terminal wizard plus commands
// for checking on submitted requests.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/squadhq/intake/internal/correlation"
	"github.com/squadhq/intake/internal/poller"
)

const (
	defaultServerURL   = "http://localhost:3001"
	defaultPipelineURL = "http://localhost:3002/submissions"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "intake",
	Short: "Automation request intake",
	Long:  "intake walks a client through the automation request wizard, sends the request for analysis and shows the resulting summary.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return initConfig()
	},
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default $HOME/.intake.yaml)")
	flags.String("server", defaultServerURL, "correlation server base URL")
	flags.String("pipeline", defaultPipelineURL, "analysis pipeline submission endpoint")
	_ = viper.BindPFlag("server", flags.Lookup("server"))
	_ = viper.BindPFlag("pipeline", flags.Lookup("pipeline"))

	def := poller.DefaultPolicy()
	viper.SetDefault("poll.initial_delay", def.InitialDelay)
	viper.SetDefault("poll.interval", def.Interval)
	viper.SetDefault("poll.deadline", def.Deadline)
	viper.SetDefault("poll.summary_field", def.SummaryField)
	viper.SetDefault("poll.fallback_message", def.FallbackMessage)
}

// initConfig reads the optional config file and INTAKE_* environment
// variables. Flags win over both.
func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".intake")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("INTAKE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

func newCorrelationClient() *correlation.Client {
	return correlation.NewClient(viper.GetString("server"), nil)
}

func pollPolicy() poller.Policy {
	return poller.Policy{
		InitialDelay:    viper.GetDuration("poll.initial_delay"),
		Interval:        viper.GetDuration("poll.interval"),
		Deadline:        viper.GetDuration("poll.deadline"),
		FallbackMessage: viper.GetString("poll.fallback_message"),
		SummaryField:    viper.GetString("poll.summary_field"),
	}
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
