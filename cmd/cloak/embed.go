package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jmallory/cloak/pkg/cloak"
)

var (
	embedFlags struct {
		Carrier    string
		Out        string
		Pass       string
		Msg        string
		File       string
		Bits       int
		Channels   int
		AudioBits  int
		Compress   bool
		Workers    int
		FPS        int
		FrameStore string
		DryRun     bool
	}
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Embed a message or file in a carrier",
	Run: func(cmd *cobra.Command, args []string) {
		if embedFlags.Msg != "" && embedFlags.File != "" {
			log.Fatal().Msg("message and file flags cannot both be provided")
		}
		if embedFlags.Msg == "" && embedFlags.File == "" {
			log.Fatal().Msg("one of --message or --file is required")
		}
		if embedFlags.Bits < 1 || embedFlags.Bits > 8 {
			log.Fatal().Msg("bits per channel must be 1-8")
		}
		if embedFlags.Channels < 1 || embedFlags.Channels > 4 {
			log.Fatal().Msg("channels must be 1-4")
		}
		if embedFlags.Workers < 0 {
			log.Fatal().Msg("number of workers cannot be negative")
		}

		payload := cloak.Payload{Type: cloak.Text, Data: []byte(embedFlags.Msg)}
		if embedFlags.File != "" {
			data, err := os.ReadFile(embedFlags.File)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to read payload file")
			}
			payload = cloak.Payload{
				Type:     cloak.File,
				Filename: filepath.Base(embedFlags.File),
				Data:     data,
			}
		}

		out := embedFlags.Out
		if out == "" {
			out = embedFlags.Carrier + ".out" + filepath.Ext(embedFlags.Carrier)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		result, err := cloak.Embed(ctx, embedFlags.Carrier, out, payload, cloak.Options{
			Password:       embedFlags.Pass,
			BitsPerChannel: embedFlags.Bits,
			Channels:       embedFlags.Channels,
			BitsPerSample:  embedFlags.AudioBits,
			Compress:       embedFlags.Compress,
			FrameStore:     embedFlags.FrameStore,
			Workers:        embedFlags.Workers,
			FPS:            embedFlags.FPS,
			DryRun:         embedFlags.DryRun,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to embed payload")
		}
		if embedFlags.DryRun {
			log.Info().Int("containerBytes", result.ContainerBytes).Msg("Payload fits; nothing written")
			return
		}
		ev := log.Info().Str("output", out)
		if result.FrameDirectoryKey != "" {
			ev = ev.Str("frameDirectory", result.FrameDirectoryKey)
		}
		ev.Msg("Embedded payload into carrier")
	},
}

func init() {
	rootCmd.AddCommand(embedCmd)

	embedCmd.Flags().StringVarP(&embedFlags.Carrier, "carrier", "i", "", "Path to carrier file (required)")
	embedCmd.MarkFlagRequired("carrier")
	embedCmd.Flags().StringVarP(&embedFlags.Pass, "password", "p", "", "Password to encrypt the payload")
	embedCmd.Flags().StringVarP(&embedFlags.Msg, "message", "m", "", "Text message to embed")
	embedCmd.Flags().StringVarP(&embedFlags.File, "file", "f", "", "Path to file to embed (overrides message)")
	embedCmd.Flags().StringVarP(&embedFlags.Out, "output", "o", "", "Output path for the stego carrier")
	embedCmd.Flags().IntVarP(&embedFlags.Bits, "num-bits", "n", 1, "Bits to use per image channel (1-8)")
	embedCmd.Flags().IntVarP(&embedFlags.Channels, "channels", "c", 3, "Image channels to use (1-4)")
	embedCmd.Flags().IntVar(&embedFlags.AudioBits, "sample-bits", 1, "Bits to use per audio sample (1-4)")
	embedCmd.Flags().BoolVarP(&embedFlags.Compress, "compress", "z", false, "Compress payload before encryption")
	embedCmd.Flags().IntVarP(&embedFlags.Workers, "workers", "w", 0, "Workers for frame processing (default: 1)")
	embedCmd.Flags().IntVar(&embedFlags.FPS, "fps", 0, "Frame rate for recomposed video output (default: 30)")
	embedCmd.Flags().StringVar(&embedFlags.FrameStore, "frame-store", "cloak-frames", "Frame directory store for lossy video")
	embedCmd.Flags().BoolVar(&embedFlags.DryRun, "dry-run", false, "Check if the payload fits without encoding")
}
