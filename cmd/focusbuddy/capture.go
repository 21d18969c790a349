package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/code-100-precent/FocusBuddy/pkg/cache"
	"github.com/code-100-precent/FocusBuddy/pkg/capture"
	"github.com/code-100-precent/FocusBuddy/pkg/llm"
	"github.com/code-100-precent/FocusBuddy/pkg/logger"
	"github.com/code-100-precent/FocusBuddy/pkg/vision"
	"github.com/spf13/cobra"
)

func newCaptureCmd() *cobra.Command {
	var instruction string

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Take one screenshot and describe it, to check the capture and vision setup",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dir, err := os.MkdirTemp("", "focusbuddy-capture-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(dir)

			capturer, err := capture.NewCommandCapturer(capture.ScreenConfig{
				Dir:      dir,
				Command:  cfg.Capture.Command,
				MaxWidth: cfg.Capture.MaxWidth,
				Quality:  cfg.Capture.Quality,
				Timeout:  cfg.Capture.Timeout,
			}, logger.Named("capture"))
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			frame, err := capturer.Capture(ctx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "captured %d bytes\n", len(frame.Data))

			provider, err := llm.NewProvider(ctx, cfg.Vision)
			if err != nil {
				return err
			}
			analyzer := vision.NewAnalyzer(provider, cache.NewLRUCache(cache.LocalConfig{}), vision.Options{
				MaxTokens: cfg.Vision.MaxTokens,
				Detail:    cfg.Vision.ImageDetail,
			}, logger.Named("vision"))
			if instruction == "" {
				instruction = cfg.Loop.Instruction
			}
			res, err := analyzer.Analyze(ctx, frame.Data, instruction)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %v  %s %v\n",
				labelStyle.Render("productive"), res.Productive, labelStyle.Render("apps"), res.Apps)
			return nil
		},
	}
	cmd.Flags().StringVar(&instruction, "instruction", "", "override the vision instruction")
	return cmd
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio capture devices for AUDIO_DEVICE",
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices, err := capture.CaptureDevices()
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no capture devices")
				return nil
			}
			for i, d := range devices {
				line := fmt.Sprintf("%2d  %s", i, d.Name)
				if d.Error != "" {
					line += "  (" + d.Error + ")"
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}
