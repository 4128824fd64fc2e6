package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Execution modes for non watch-folder jobs.
const (
	ModeSerial   = "serial"
	ModeParallel = "parallel"
)

// PassthroughFamily names the stream-copy codec family that always exists.
const PassthroughFamily = "copy"

// Paths contains directory configuration.
type Paths struct {
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
	TempDir   string `toml:"temp_dir"`
	OutputDir string `toml:"output_dir"`
}

// Encoder contains settings for the external encoding tool.
type Encoder struct {
	FFmpegBinary     string `toml:"ffmpeg_binary"`
	FFprobeBinary    string `toml:"ffprobe_binary"`
	KillGraceSeconds int    `toml:"kill_grace_seconds"`
	OutputTailLines  int    `toml:"output_tail_lines"`
}

// Queue contains dispatch settings shared by the serial and parallel queues.
type Queue struct {
	Mode               string `toml:"mode"`
	Chunking           bool   `toml:"chunking"`
	ChunkConcurrency   int    `toml:"chunk_concurrency"`
	MinChunkSeconds    int    `toml:"min_chunk_seconds"`
	KeepIntermediates  bool   `toml:"keep_intermediates"`
	WorkerRestartLimit int    `toml:"worker_restart_limit"`
}

// CodecFamily describes one software codec family and its worker pool.
type CodecFamily struct {
	Name     string   `toml:"name"`
	Encoders []string `toml:"encoders"`
	Workers  int      `toml:"workers"`
}

// Hardware describes the optional hardware-accelerated codec family.
type Hardware struct {
	Enabled bool   `toml:"enabled"`
	Name    string `toml:"name"`
	// Encoders lists the ffmpeg encoder names routed to the hardware pool.
	Encoders []string `toml:"encoders"`
	Workers  int      `toml:"workers"`
	// Concurrent lets hardware jobs bypass the fairness gate and run alongside
	// other codec families.
	Concurrent bool `toml:"concurrent"`
}

// Watch contains configuration for the folder-watch queue.
type Watch struct {
	PollIntervalSeconds int      `toml:"poll_interval_seconds"`
	SettleSeconds       int      `toml:"settle_seconds"`
	WaitForAllTasks     bool     `toml:"wait_for_all_tasks"`
	SerializeFolders    bool     `toml:"serialize_folders"`
	MoveToDone          bool     `toml:"move_to_done"`
	DoneDirName         string   `toml:"done_dir_name"`
	ProcessExisting     bool     `toml:"process_existing"`
	Extensions          []string `toml:"extensions"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// API contains settings for the optional read-only HTTP status API.
type API struct {
	// Bind is the listen address; empty disables the API.
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Notifications configures push notifications for finished jobs.
type Notifications struct {
	// NtfyTopic is the full ntfy topic URL; empty disables notifications.
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	NotifySuccess         bool   `toml:"notify_success"`
	NotifyFailure         bool   `toml:"notify_failure"`
}

// Config encapsulates all configuration values for vidqueue.
//
// Configuration sections by subsystem:
//   - Paths: state (database, lock, socket), logs, chunk temp files, default output
//   - Encoder: ffmpeg/ffprobe binaries and subprocess handling
//   - Queue: execution mode, chunking, worker supervision
//   - Codecs: software codec families and their worker pools
//   - Hardware: the shared hardware encoder family
//   - Watch: folder-watch polling and post-processing
//   - Logging: log format, level, and retention
//   - API: optional HTTP status endpoint
//   - Notifications: ntfy alerts for finished jobs
type Config struct {
	Paths    Paths         `toml:"paths"`
	Encoder  Encoder       `toml:"encoder"`
	Queue    Queue         `toml:"queue"`
	Codecs   []CodecFamily `toml:"codecs"`
	Hardware Hardware      `toml:"hardware"`
	Watch    Watch         `toml:"watch"`
	Logging  Logging       `toml:"logging"`
	API      API           `toml:"api"`

	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vidqueue/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		// An explicit [[codecs]] table replaces the default families.
		cfg.Codecs = nil
		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
		if len(cfg.Codecs) == 0 {
			cfg.Codecs = defaultCodecFamilies()
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vidqueue.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// OutputDir is created on a best-effort basis so the daemon can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.OutputDir) != "" {
		_ = os.MkdirAll(c.Paths.OutputDir, 0o755)
	}
	return nil
}

// DatabasePath returns the job history database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "jobs.db")
}

// PIDPath returns the file holding the running daemon's process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "vidqueue.pid")
}

// LockPath returns the daemon single-instance lock location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "vidqueue.lock")
}

// SocketPath returns the IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "vidqueue.sock")
}

// FFmpegBinary returns the encoder executable name.
func (c *Config) FFmpegBinary() string {
	if bin := strings.TrimSpace(c.Encoder.FFmpegBinary); bin != "" {
		return bin
	}
	return defaultFFmpegBinary
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	if bin := strings.TrimSpace(c.Encoder.FFprobeBinary); bin != "" {
		return bin
	}
	return defaultFFprobeBinary
}

// IsParallel reports whether standard jobs are dispatched to the parallel queue.
func (c *Config) IsParallel() bool {
	return c.Queue.Mode == ModeParallel
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
