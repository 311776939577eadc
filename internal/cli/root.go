package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// New builds the iprewriterctl command tree.
func New() *cobra.Command {
	root := &cobra.Command{
		Use:           "iprewriterctl",
		Short:         "inspect and replay iprewriter configurations",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	vp := viper.New()
	flags := root.PersistentFlags()
	flags.String("config", "", "path to a rewriter config file (yaml/toml/json)")
	flags.Bool("debug", false, "enable debug logging")
	_ = vp.BindPFlags(flags)

	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if vp.GetBool("debug") {
			logrus.SetLevel(logrus.DebugLevel)
		}
	}

	root.AddCommand(
		newValidateCmd(vp),
		newPatternsCmd(vp),
		newMappingsCmd(vp),
		newReplayCmd(vp),
	)
	return root
}
