// Package cli implements botctl, the operator command line for the bot service.
package cli

import (
	"os"

	"meeting-bot/internal/client"

	"github.com/spf13/cobra"
)

type Dependencies struct {
	Client *client.Client
	Out    *Formatter

	// TokenSecret and TokenIssuer let botctl mint API tokens locally.
	TokenSecret string
	TokenIssuer string
}

type rootFlags struct {
	endpoint    string
	apiKey      string
	internalKey string
}

// NewRootCmd wires the commands. deps.Client is rebuilt from the persistent flags before any command runs.
func NewRootCmd(deps *Dependencies) *cobra.Command {
	flags := rootFlags{
		endpoint:    os.Getenv("BOT_URL"),
		apiKey:      os.Getenv("BOT_API_KEY"),
		internalKey: os.Getenv("BOT_INTERNAL_API_KEY"),
	}

	rootCmd := &cobra.Command{
		Use:           "botctl",
		Short:         "Operate the meeting bot service",
		Long:          "botctl creates, inspects and stops meeting bot jobs through the bot service HTTP API.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			internal := flags.internalKey
			if internal == "" {
				internal = flags.apiKey
			}
			deps.Client = client.New(flags.endpoint, flags.apiKey, internal)
			if deps.Out == nil {
				deps.Out = NewFormatter(cmd.OutOrStdout())
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.endpoint, "url", flags.endpoint, "bot service base URL (BOT_URL)")
	rootCmd.PersistentFlags().StringVar(&flags.apiKey, "api-key", flags.apiKey, "shared API key (BOT_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&flags.internalKey, "internal-key", flags.internalKey, "internal API key (BOT_INTERNAL_API_KEY)")

	rootCmd.AddCommand(NewHealthCmd(deps))
	rootCmd.AddCommand(NewCreateCmd(deps))
	rootCmd.AddCommand(NewGetCmd(deps))
	rootCmd.AddCommand(NewListCmd(deps))
	rootCmd.AddCommand(NewStopCmd(deps))
	rootCmd.AddCommand(NewStatusCmd(deps))
	rootCmd.AddCommand(NewWatchCmd(deps))
	rootCmd.AddCommand(NewTokenCmd(deps))

	return rootCmd
}
