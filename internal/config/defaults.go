package config

const (
	defaultStateDir             = "~/.local/share/vidqueue"
	defaultLogDir               = "~/.local/share/vidqueue/logs"
	defaultTempDir              = "~/.cache/vidqueue/chunks"
	defaultOutputDir            = "~/Videos/vidqueue"
	defaultFFmpegBinary         = "ffmpeg"
	defaultFFprobeBinary        = "ffprobe"
	defaultKillGraceSeconds     = 5
	defaultOutputTailLines      = 40
	defaultChunkConcurrency     = 4
	defaultMinChunkSeconds      = 10
	defaultWorkerRestartLimit   = 3
	defaultHardwareName         = "hardware"
	defaultHardwareWorkers      = 2
	defaultWatchPollInterval    = 5
	defaultWatchSettleSeconds   = 3
	defaultDoneDirName          = "done"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
	defaultNotifyTimeoutSeconds = 10
)

var defaultWatchExtensions = []string{".mkv", ".mp4", ".mov", ".avi", ".m4v", ".webm", ".ts"}

var defaultHardwareEncoders = []string{
	"h264_nvenc", "hevc_nvenc", "av1_nvenc",
	"h264_qsv", "hevc_qsv", "av1_qsv",
	"h264_vaapi", "hevc_vaapi", "av1_vaapi",
}

func defaultCodecFamilies() []CodecFamily {
	return []CodecFamily{
		{Name: "x264", Encoders: []string{"libx264"}, Workers: 2},
		{Name: "x265", Encoders: []string{"libx265"}, Workers: 1},
		{Name: "av1", Encoders: []string{"libsvtav1", "libaom-av1", "librav1e"}, Workers: 1},
		{Name: "vpx", Encoders: []string{"libvpx", "libvpx-vp9"}, Workers: 2},
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
			TempDir:   defaultTempDir,
			OutputDir: defaultOutputDir,
		},
		Encoder: Encoder{
			FFmpegBinary:     defaultFFmpegBinary,
			FFprobeBinary:    defaultFFprobeBinary,
			KillGraceSeconds: defaultKillGraceSeconds,
			OutputTailLines:  defaultOutputTailLines,
		},
		Queue: Queue{
			Mode:               ModeSerial,
			ChunkConcurrency:   defaultChunkConcurrency,
			MinChunkSeconds:    defaultMinChunkSeconds,
			WorkerRestartLimit: defaultWorkerRestartLimit,
		},
		Codecs: defaultCodecFamilies(),
		Hardware: Hardware{
			Name:     defaultHardwareName,
			Encoders: append([]string(nil), defaultHardwareEncoders...),
			Workers:  defaultHardwareWorkers,
		},
		Watch: Watch{
			PollIntervalSeconds: defaultWatchPollInterval,
			SettleSeconds:       defaultWatchSettleSeconds,
			WaitForAllTasks:     true,
			SerializeFolders:    true,
			DoneDirName:         defaultDoneDirName,
			Extensions:          append([]string(nil), defaultWatchExtensions...),
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNotifyTimeoutSeconds,
			NotifySuccess:         true,
			NotifyFailure:         true,
		},
	}
}
