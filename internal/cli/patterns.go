package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newPatternsCmd(vp *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "patterns",
		Short: "dump the pattern backing every pattern-kind input",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(vp, vp.GetString("config"))
			if err != nil {
				return err
			}
			r, err := buildRewriter(cfg)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), r.DumpPatterns())
			return nil
		},
	}
}
