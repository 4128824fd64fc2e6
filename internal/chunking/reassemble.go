package chunking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"vidqueue/internal/encoding"
	"vidqueue/internal/logging"
	"vidqueue/internal/services"
)

// Reassembler joins chunk outputs with stream copy.
type Reassembler struct {
	Binary            string
	Runner            encoding.Runner
	Logger            *slog.Logger
	KeepIntermediates bool
}

// NewReassembler returns a reassembler invoking binary through runner.
func NewReassembler(binary string, runner encoding.Runner, keepIntermediates bool, logger *slog.Logger) *Reassembler {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &Reassembler{
		Binary:            binary,
		Runner:            runner,
		Logger:            logging.NewComponentLogger(logger, "reassembly"),
		KeepIntermediates: keepIntermediates,
	}
}

// WriteManifest writes the ordered concat list for the video chunks.
func WriteManifest(set Set) error {
	var b strings.Builder
	for _, c := range set.Video {
		name := filepath.Base(c.Output)
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(name, "'", `'\''`))
		b.WriteString("'\n")
	}
	if err := os.MkdirAll(filepath.Dir(set.Manifest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(set.Manifest, []byte(b.String()), 0o644)
}

// ConcatenateVideoChunks writes the manifest and concatenates the video
// chunk outputs into the intermediate video file. Nothing is run unless
// every video chunk completed; a manifest write failure aborts before the
// subprocess is started.
func (r *Reassembler) ConcatenateVideoChunks(ctx context.Context, set Set) error {
	if !set.VideoComplete() {
		return services.Wrap(services.ErrValidation, "reassembly", "concatenate", "Video chunks are not all complete", nil)
	}
	logger := r.logger(ctx, set)
	if err := WriteManifest(set); err != nil {
		logging.ErrorWithContext(logger, "concat manifest write failed", "manifest_write_failed",
			logging.Error(err),
			logging.String("manifest", set.Manifest),
			logging.String(logging.FieldErrorHint, "check free space and permissions on paths.temp_dir"),
		)
		return services.Wrap(services.ErrTransient, "reassembly", "write manifest", "Unable to write concat manifest", err)
	}
	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-f", "concat", "-safe", "0",
		"-i", set.Manifest,
		"-c", "copy",
		set.Concatenated,
	}
	if err := r.run(ctx, set, "concatenate", args); err != nil {
		return err
	}
	logger.Info("video chunks concatenated",
		logging.String(logging.FieldEventType, "chunks_concatenated"),
		logging.Int("chunks", len(set.Video)),
	)
	return nil
}

// MuxChunks stream-copies the concatenated video and the audio chunk output
// into the parent's output path.
func (r *Reassembler) MuxChunks(ctx context.Context, set Set) error {
	if !set.Complete() {
		return services.Wrap(services.ErrValidation, "reassembly", "mux", "Chunks are not all complete", nil)
	}
	if err := os.MkdirAll(filepath.Dir(set.Parent.Output), 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "reassembly", "mux", "Unable to create output directory", err)
	}
	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", set.Concatenated,
		"-i", set.Audio.Output,
		"-map", "0:v", "-map", "1:a?",
		"-c", "copy",
		set.Parent.Output,
	}
	if err := r.run(ctx, set, "mux", args); err != nil {
		return err
	}
	r.logger(ctx, set).Info("chunks muxed",
		logging.String(logging.FieldEventType, "chunks_muxed"),
		logging.String("output", set.Parent.Output),
	)
	return nil
}

// Cleanup removes the chunk outputs, manifest, and concatenated video unless
// intermediates are kept.
func (r *Reassembler) Cleanup(set Set) {
	if r.KeepIntermediates {
		return
	}
	paths := []string{set.Manifest, set.Concatenated}
	for _, c := range set.Chunks() {
		paths = append(paths, c.Output)
	}
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.WarnWithContext(r.Logger, "intermediate cleanup failed", "chunk_cleanup_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "temporary file remains in temp_dir"),
			)
		}
	}
}

func (r *Reassembler) run(ctx context.Context, set Set, op string, args []string) error {
	result, err := r.Runner.Run(ctx, encoding.Invocation{
		JobID:  set.Parent.ID + "/" + op,
		Binary: r.Binary,
		Args:   args,
		Dir:    filepath.Dir(set.Manifest),
	})
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "reassembly", op, "Unable to run ffmpeg", err)
	}
	if result.ExitCode != 0 {
		var cause error
		if n := len(result.Tail); n > 0 {
			cause = errors.New(result.Tail[n-1])
		}
		return services.Wrap(services.ErrExternalTool, "reassembly", op,
			fmt.Sprintf("ffmpeg exited with status %d", result.ExitCode), cause)
	}
	return nil
}

func (r *Reassembler) logger(ctx context.Context, set Set) *slog.Logger {
	return logging.WithContext(services.WithJobID(ctx, set.Parent.ID), r.Logger)
}
