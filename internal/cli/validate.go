package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newValidateCmd(vp *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "load a config and report conflict-analysis warnings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(vp, vp.GetString("config"))
			if err != nil {
				return err
			}
			if _, err := buildRewriter(cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration OK")
			return nil
		},
	}
}
