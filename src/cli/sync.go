package cli

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dualauth-server/src/config"
)

func syncCmd(v *viper.Viper) *cobra.Command {
	var itemID string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull new transactions for one Plaid item and flag violations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if itemID == "" {
				return errors.New("--item is required")
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.services.Sync.SyncItem(cmd.Context(), itemID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVar(&itemID, "item", "", "Plaid item id")
	return cmd
}
