package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"vidqueue/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Watch polling is shortened so folder tests run quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.TempDir = filepath.Join(base, "tmp")
	cfgVal.Paths.OutputDir = filepath.Join(base, "out")
	cfgVal.Watch.PollIntervalSeconds = 0
	cfgVal.Watch.SettleSeconds = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithParallel switches the config to parallel mode.
func WithParallel() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.Mode = config.ModeParallel
	}
}

// WithChunking enables chunked encodes with the given chunk count and
// minimum chunk length.
func WithChunking(chunks, minChunkSeconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.Mode = config.ModeParallel
		b.cfg.Queue.Chunking = true
		b.cfg.Queue.ChunkConcurrency = chunks
		b.cfg.Queue.MinChunkSeconds = minChunkSeconds
	}
}

// WithCodecs replaces the codec families.
func WithCodecs(families ...config.CodecFamily) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Codecs = append([]config.CodecFamily(nil), families...)
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
