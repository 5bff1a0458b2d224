package cli

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/soyeahso/crmdesk/internal/config"
	"github.com/soyeahso/crmdesk/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	// loaded at init time
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crmdesk",
		Short: "crmdesk routes CRM chat to specialist AI agents",
		Long: "crmdesk serves a chat API that classifies each message, hands the conversation " +
			"to the best-suited agent persona and answers through Gemini, Qwen or OpenAI.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			loadDotEnv(".env", paths.Env)

			level := logLevel
			if level == "" {
				level = os.Getenv("CRMDESK_LOG_LEVEL")
			}
			if level == "" {
				level = "info"
			}
			log = logging.New(nil, level)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.crmdesk/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newGatewayCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newMessageCmd())
	cmd.AddCommand(newAgentCmd())
	cmd.AddCommand(newLogsCmd())

	return cmd
}

// loadDotEnv loads the env files that exist. Variables already set win.
func loadDotEnv(files ...string) {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		_ = godotenv.Load(f)
	}
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
