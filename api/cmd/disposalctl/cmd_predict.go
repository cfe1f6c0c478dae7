package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"disposal-bot/api/internal/config"
	"disposal-bot/api/internal/disposal"
	"disposal-bot/api/internal/handle"
	"disposal-bot/api/internal/normalize"
	"disposal-bot/api/internal/predict"
	"disposal-bot/api/internal/predict/registry"
	"disposal-bot/api/internal/util"
)

// rejectedError is a prediction the engine refused, as opposed to a failure to reach it.
type rejectedError struct{ msg string }

func (e *rejectedError) Error() string { return e.msg }

func newPredictCommand() *cobra.Command {
	var engineName string
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Run a prediction through a configured engine",
	}
	cmd.PersistentFlags().StringVar(&engineName, "engine", "", "Engine name (defaults to DEFAULT_ENGINE)")

	text := &cobra.Command{
		Use:   "text <medicine name>",
		Short: "Predict from a medicine name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := pickEngine(engineName)
			if err != nil {
				return err
			}
			name := strings.Join(args, " ")
			raw, err := e.PredictText(cmd.Context(), name)
			if err != nil {
				return predictErr(err)
			}
			p := normalize.Normalize(raw, normalize.Input{Channel: normalize.ChannelText, TypedName: name})
			res := handle.BuildResult(p, name, nil)
			res.Engine, res.Model = e.Name(), e.GetModel()
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	var typed string
	image := &cobra.Command{
		Use:   "image <file>",
		Short: "Predict from a photo of the package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := pickEngine(engineName)
			if err != nil {
				return err
			}
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			mime := util.PickMIME("", "", data)
			raw, err := e.PredictImage(cmd.Context(), data, mime)
			if err != nil {
				return predictErr(err)
			}
			p := normalize.Normalize(raw, normalize.Input{Channel: normalize.ChannelImage, TypedName: typed})
			img := &disposal.ImageFile{Name: filepath.Base(args[0]), MIME: mime, Data: data}
			res := handle.BuildResult(p, typed, img)
			res.Engine, res.Model = e.Name(), e.GetModel()
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	image.Flags().StringVar(&typed, "name", "", "Medicine name typed alongside the photo")

	cmd.AddCommand(text, image)
	return cmd
}

func pickEngine(name string) (predict.Engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	m, err := registry.Build(cfg, nil, slog.Default())
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return m.Default(), nil
	}
	e, ok := m.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown engine %q (available: %s)", name, strings.Join(m.Names(), ", "))
	}
	return e, nil
}

func predictErr(err error) error {
	var fe *predict.FailedError
	if errors.As(err, &fe) {
		return &rejectedError{msg: predict.MessageOf(err, fe.Error())}
	}
	return fmt.Errorf("prediction failed: %w", err)
}
