package main

import (
	"os"

	"github.com/adi-253/chatfeed/internal/config"
	"github.com/adi-253/chatfeed/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chatfeed",
	Short: "Terminal client that keeps a chat thread in sync",
	Long: `chatfeed opens a thread on a chat backend, streams new messages as
rendered fragments and sends what you type.`,
	SilenceUsage: true,
}

var (
	flagConfig   string
	flagBaseURL  string
	flagThreadID int64
	flagUserID   int64
	flagLogLevel string
	flagPretty   bool
)

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&flagConfig, "config", "c", "", "YAML config file")
	flags.StringVar(&flagBaseURL, "base-url", "", "chat backend base URL")
	flags.Int64Var(&flagThreadID, "thread", 0, "thread ID to open")
	flags.Int64Var(&flagUserID, "user", 0, "user ID to act as")
	flags.StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVar(&flagPretty, "pretty", true, "human readable logs")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig merges the config file, CHATFEED_* env vars and flags, in
// increasing precedence.
func loadConfig(cmd *cobra.Command) (*config.Client, zerolog.Logger, error) {
	cfg, err := config.LoadClient(flagConfig)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.BaseURL = flagBaseURL
	}
	if flags.Changed("thread") {
		cfg.ThreadID = flagThreadID
	}
	if flags.Changed("user") {
		cfg.UserID = flagUserID
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logging.Setup(cfg.LogLevel, flagPretty), nil
}
