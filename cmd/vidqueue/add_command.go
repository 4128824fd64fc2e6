package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vidqueue/internal/ipc"
)

type addOptions struct {
	watch      bool
	codec      string
	container  string
	outputDir  string
	videoArgs  []string
	audioCodec string
	audioArgs  []string
	trimStart  time.Duration
	trimEnd    time.Duration
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	var opts addOptions

	cmd := &cobra.Command{
		Use:   "add <path>...",
		Short: "Queue files, directories, or watch folders for encoding",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.trimEnd > 0 && opts.trimEnd <= opts.trimStart {
				return fmt.Errorf("--trim-end must be after --trim-start")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				for _, arg := range args {
					req, err := opts.request(arg)
					if err != nil {
						return err
					}
					resp, err := client.Add(req)
					if err != nil {
						return fmt.Errorf("add %s: %w", arg, err)
					}
					snap := resp.Job
					fmt.Fprintf(out, "Queued %s %s (%s) for %s\n", snap.Kind, shortID(snap.ID), orDash(snap.Codec), snap.Input)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Treat the path as a watch folder")
	cmd.Flags().StringVar(&opts.codec, "codec", "", "Target video codec (for example libx264, hevc_nvenc, copy)")
	cmd.Flags().StringVar(&opts.container, "container", "", "Output container extension (for example mkv, mp4)")
	cmd.Flags().StringVarP(&opts.outputDir, "output-dir", "o", "", "Directory for encoded outputs")
	cmd.Flags().StringArrayVar(&opts.videoArgs, "video-arg", nil, "Extra encoder argument (repeatable)")
	cmd.Flags().StringVar(&opts.audioCodec, "audio-codec", "", "Audio codec")
	cmd.Flags().StringArrayVar(&opts.audioArgs, "audio-arg", nil, "Extra audio argument (repeatable)")
	cmd.Flags().DurationVar(&opts.trimStart, "trim-start", 0, "Start offset of the encoded range")
	cmd.Flags().DurationVar(&opts.trimEnd, "trim-end", 0, "End offset of the encoded range")
	return cmd
}

func (o addOptions) request(path string) (ipc.AddRequest, error) {
	abs, err := filepath.Abs(strings.TrimSpace(path))
	if err != nil {
		return ipc.AddRequest{}, fmt.Errorf("resolve %s: %w", path, err)
	}
	outputDir := strings.TrimSpace(o.outputDir)
	if outputDir != "" {
		if outputDir, err = filepath.Abs(outputDir); err != nil {
			return ipc.AddRequest{}, fmt.Errorf("resolve output dir: %w", err)
		}
	}
	return ipc.AddRequest{
		Path:       abs,
		Watch:      o.watch,
		Codec:      strings.TrimSpace(o.codec),
		Container:  strings.TrimPrefix(strings.TrimSpace(o.container), "."),
		OutputDir:  outputDir,
		VideoArgs:  o.videoArgs,
		AudioCodec: strings.TrimSpace(o.audioCodec),
		AudioArgs:  o.audioArgs,
		TrimStart:  o.trimStart,
		TrimEnd:    o.trimEnd,
	}, nil
}
