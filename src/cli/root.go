// Package cli is the dualauth command line: the API server and its
// maintenance commands.
package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dualauth-server/src/config"
	"dualauth-server/src/util"
)

// NewRootCmd builds the command tree around a fresh viper instance.
func NewRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "dualauth",
		Short:         "Dual-authorization review of flagged bank transactions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			config.SetDefaults(v)
			level, err := util.ParseLogLevel(v.GetString("LOG_LEVEL"))
			if err != nil {
				return err
			}
			util.SetupLogger(level, v.GetString("LOG_FORMAT"))
			return nil
		},
	}

	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "", "log format (text, json)")
	_ = v.BindPFlag("LOG_LEVEL", root.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("LOG_FORMAT", root.PersistentFlags().Lookup("log-format"))

	root.AddCommand(serveCmd(v))
	root.AddCommand(migrateCmd(v))
	root.AddCommand(syncCmd(v))
	return root
}
