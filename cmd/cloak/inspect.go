package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jmallory/cloak/pkg/cloak"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [carrier-path]",
	Short: "Show container metadata without decrypting",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		info, err := cloak.Inspect(args[0])
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to inspect carrier")
		}

		fmt.Printf("Family:       %s\n", info.Family)
		fmt.Printf("Version:      %d\n", info.Version)
		fmt.Printf("Type:         %s\n", info.Type)
		fmt.Printf("Compressed:   %v\n", info.Compressed)
		if info.Filename != "" {
			fmt.Printf("Filename:     %s\n", info.Filename)
		}
		fmt.Printf("Ciphertext:   %d bytes\n", info.CiphertextLen)
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
