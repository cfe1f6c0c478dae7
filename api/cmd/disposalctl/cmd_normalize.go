package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"disposal-bot/api/internal/handle"
	"disposal-bot/api/internal/normalize"
)

func newNormalizeCommand() *cobra.Command {
	var channel, typed string
	cmd := &cobra.Command{
		Use:   "normalize <file|->",
		Short: "Normalize a raw prediction JSON document",
		Long: `Read a raw model prediction (a JSON object) from a file or stdin and print
the normalized prediction, the summary sections and the disposal payload.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			raw, err := normalize.ParseObject(data)
			if err != nil {
				return fmt.Errorf("parsing prediction: %w", err)
			}
			ch := normalize.Channel(strings.ToLower(channel))
			if ch != normalize.ChannelText && ch != normalize.ChannelImage {
				return fmt.Errorf("--channel must be text or image, got %q", channel)
			}
			p := normalize.Normalize(raw, normalize.Input{Channel: ch, TypedName: typed})
			return printJSON(cmd.OutOrStdout(), handle.BuildResult(p, typed, nil))
		},
	}
	cmd.Flags().StringVar(&channel, "channel", string(normalize.ChannelText), "Input channel: text or image")
	cmd.Flags().StringVar(&typed, "name", "", "Medicine name the user typed")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}
