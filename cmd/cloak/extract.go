package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jmallory/cloak/pkg/cloak"
)

var (
	extractFlags struct {
		Carrier    string
		Pass       string
		Out        string
		FrameStore string
	}
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract a hidden payload from a stego carrier",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		payload, err := cloak.Extract(ctx, extractFlags.Carrier, cloak.Options{
			Password:   extractFlags.Pass,
			FrameStore: extractFlags.FrameStore,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to extract payload")
		}

		out := extractFlags.Out
		if out == "" && payload.Type == cloak.File && payload.Filename != "" {
			out = payload.Filename
		}
		if out != "" {
			if err := os.WriteFile(out, payload.Data, 0o644); err != nil {
				log.Fatal().Err(err).Msg("Failed to write payload")
			}
			log.Info().Str("output", out).Str("type", payload.Type.String()).Msg("Extracted payload")
			return
		}
		os.Stdout.Write(payload.Data)
		os.Stdout.WriteString("\n")
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVarP(&extractFlags.Carrier, "carrier", "i", "", "Path to stego carrier (required)")
	extractCmd.MarkFlagRequired("carrier")
	extractCmd.Flags().StringVarP(&extractFlags.Pass, "password", "p", "", "Password to decrypt the payload")
	extractCmd.Flags().StringVarP(&extractFlags.Out, "output", "o", "", "Output path for the payload (default: stdout, or embedded filename)")
	extractCmd.Flags().StringVar(&extractFlags.FrameStore, "frame-store", "cloak-frames", "Frame directory store for lossy video")
}
