package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jmallory/cloak/pkg/cloak"
)

var capacityCmd = &cobra.Command{
	Use:   "capacity [carrier-path]",
	Short: "Calculate the payload capacity of a carrier",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := args[0]

		wtr := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(wtr, "Bits\tChannels\tCapacity (Bytes)")
		fmt.Fprintln(wtr, "----\t--------\t----------------")

		for _, scenario := range []struct{ bits, channels int }{
			{1, 3}, {2, 3}, {4, 3}, {1, 4},
		} {
			n, err := cloak.Estimate(path, cloak.Options{
				BitsPerChannel: scenario.bits,
				Channels:       scenario.channels,
				BitsPerSample:  scenario.bits,
			})
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to estimate capacity")
			}
			fmt.Fprintf(wtr, "%d\t%d\t%d\n", scenario.bits, scenario.channels, n)
		}

		wtr.Flush()
	},
}

func init() {
	rootCmd.AddCommand(capacityCmd)
}
