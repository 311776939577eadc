package cli

import (
	"fmt"
	"net/http"
	"os"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/KarpelesLab/iprewriter"
)

func newReplayCmd(vp *viper.Viper) *cobra.Command {
	var pcapPath, outPath string
	var input int

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "decode a pcap file and push every packet through the rewriter",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(vp, vp.GetString("config"))
			if err != nil {
				return err
			}

			var reg prometheus.Registerer
			var metrics *iprewriter.Metrics
			if cfg.MetricsAddr != "" {
				registry := prometheus.NewRegistry()
				reg = registry
				metrics = iprewriter.NewMetrics(reg)
				go serveMetrics(cfg.MetricsAddr, registry)
			}

			opts := []iprewriter.Option{}
			if metrics != nil {
				opts = append(opts, iprewriter.WithMetrics(metrics))
			}
			r, err := buildRewriter(cfg, opts...)
			if err != nil {
				return err
			}

			result, err := replayPcap(r, pcapPath, outPath, input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "packets read: %d, rewritten: %d, dropped: %d\n",
				result.read, result.rewritten, result.dropped)
			return nil
		},
	}

	cmd.Flags().StringVar(&pcapPath, "pcap", "", "path to the pcap file to replay")
	cmd.Flags().StringVar(&outPath, "out", "", "optional path to write rewritten packets to")
	cmd.Flags().IntVar(&input, "input", 0, "input index to push every packet on")
	_ = cmd.MarkFlagRequired("pcap")
	return cmd
}

type replayResult struct {
	read, rewritten, dropped int
}

// replayPcap decodes every packet in pcapPath and pushes it through r
// on the given input, optionally writing the rewritten stream to
// outPath. Packets whose link layer isn't Ethernet or raw IPv4 are
// skipped, since the rewriter only understands IPv4 payloads.
func replayPcap(r *iprewriter.Rewriter, pcapPath, outPath string, input int) (replayResult, error) {
	var result replayResult

	f, err := os.Open(pcapPath)
	if err != nil {
		return result, fmt.Errorf("opening %s: %w", pcapPath, err)
	}
	defer f.Close()

	reader, err := pcapgo.NewReader(f)
	if err != nil {
		return result, fmt.Errorf("reading pcap header: %w", err)
	}

	var writer *pcapgo.Writer
	if outPath != "" {
		outFile, err := os.Create(outPath)
		if err != nil {
			return result, fmt.Errorf("creating %s: %w", outPath, err)
		}
		defer outFile.Close()
		writer = pcapgo.NewWriter(outFile)
		if err := writer.WriteFileHeader(65536, reader.LinkType()); err != nil {
			return result, fmt.Errorf("writing pcap header: %w", err)
		}
	}

	for {
		data, ci, err := reader.ReadPacketData()
		if err != nil {
			break
		}
		ipPayload := stripLinkLayer(data, reader.LinkType())
		if ipPayload == nil {
			continue
		}
		result.read++

		if _, err := r.Push(input, ipPayload); err != nil {
			result.dropped++
			logrus.WithField("component", "iprewriterctl").WithError(err).Debug("replay: dropped packet")
			continue
		}
		result.rewritten++

		if writer != nil {
			if err := writer.WritePacket(ci, data); err != nil {
				return result, fmt.Errorf("writing packet: %w", err)
			}
		}
	}
	return result, nil
}

const ethernetHeaderLen = 14
const ethertypeIPv4 = 0x0800

// stripLinkLayer returns the IPv4 packet bytes of a captured frame, as
// a subslice of data sharing its backing array so Push's in-place
// rewrite is reflected when the frame is re-written by replayPcap. It
// returns nil for anything other than raw IPv4 or untagged Ethernet
// carrying IPv4 -- VLAN-tagged and non-IP frames aren't rewriter
// input.
func stripLinkLayer(data []byte, linkType layers.LinkType) []byte {
	switch linkType {
	case layers.LinkTypeRaw:
		return data
	case layers.LinkTypeEthernet:
		if len(data) < ethernetHeaderLen {
			return nil
		}
		if ethertype := uint16(data[12])<<8 | uint16(data[13]); ethertype != ethertypeIPv4 {
			return nil
		}
		return data[ethernetHeaderLen:]
	default:
		return nil
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logrus.WithField("component", "iprewriterctl").WithError(err).Warn("metrics server exited")
	}
}
