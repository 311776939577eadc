package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newMappingsCmd(vp *viper.Viper) *cobra.Command {
	var pcapPath string
	var input int

	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "replay a pcap and dump the mapping table it produces",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(vp, vp.GetString("config"))
			if err != nil {
				return err
			}
			r, err := buildRewriter(cfg)
			if err != nil {
				return err
			}
			if _, err := replayPcap(r, pcapPath, "", input); err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), r.DumpMappings())
			return nil
		},
	}

	cmd.Flags().StringVar(&pcapPath, "pcap", "", "path to the pcap file to replay before dumping")
	cmd.Flags().IntVar(&input, "input", 0, "input index to push every packet on")
	_ = cmd.MarkFlagRequired("pcap")
	return cmd
}
