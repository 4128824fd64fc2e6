package deps

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"slices"
	"strings"

	"vidqueue/internal/config"
)

// encoderLister runs "ffmpeg -encoders". Tests replace it.
var encoderLister = func(ctx context.Context, binary string) ([]byte, error) {
	return exec.CommandContext(ctx, binary, "-hide_banner", "-encoders").Output() //nolint:gosec
}

// DetectHardwareEncoders returns the configured hardware encoders the ffmpeg
// build actually provides. An empty result means the hardware family must
// not be created.
func DetectHardwareEncoders(ctx context.Context, cfg *config.Config) ([]string, error) {
	if cfg == nil || !cfg.Hardware.Enabled || len(cfg.Hardware.Encoders) == 0 {
		return nil, nil
	}
	out, err := encoderLister(ctx, cfg.FFmpegBinary())
	if err != nil {
		return nil, fmt.Errorf("list ffmpeg encoders: %w", err)
	}
	available := ParseEncoders(string(out))
	var supported []string
	for _, name := range cfg.Hardware.Encoders {
		if slices.Contains(available, name) {
			supported = append(supported, name)
		}
	}
	return supported, nil
}

// ParseEncoders extracts encoder names from "ffmpeg -encoders" output.
func ParseEncoders(output string) []string {
	var names []string
	started := false
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !started {
			started = strings.HasPrefix(line, "------")
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields[0]) != 6 {
			continue
		}
		names = append(names, fields[1])
	}
	return names
}

// SetEncoderListerForTests overrides the encoder listing during tests.
func SetEncoderListerForTests(fn func(context.Context, string) ([]byte, error)) func() {
	previous := encoderLister
	encoderLister = fn
	return func() {
		encoderLister = previous
	}
}
