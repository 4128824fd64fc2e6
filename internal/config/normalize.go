package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeQueue()
	c.normalizeCodecs()
	c.normalizeHardware()
	c.normalizeWatch()
	c.normalizeLogging()
	c.normalizeAPI()
	c.normalizeNotifications()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		c.Paths.TempDir = defaultTempDir
	}
	if c.Paths.TempDir, err = expandPath(c.Paths.TempDir); err != nil {
		return fmt.Errorf("paths.temp_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(strings.TrimSpace(c.Paths.OutputDir)); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	c.Encoder.FFmpegBinary = strings.TrimSpace(c.Encoder.FFmpegBinary)
	c.Encoder.FFprobeBinary = strings.TrimSpace(c.Encoder.FFprobeBinary)
	return nil
}

func (c *Config) normalizeQueue() {
	c.Queue.Mode = strings.ToLower(strings.TrimSpace(c.Queue.Mode))
	if c.Queue.Mode == "" {
		c.Queue.Mode = ModeSerial
	}
	if c.Queue.ChunkConcurrency == 0 {
		c.Queue.ChunkConcurrency = defaultChunkConcurrency
	}
	if c.Queue.MinChunkSeconds == 0 {
		c.Queue.MinChunkSeconds = defaultMinChunkSeconds
	}
}

func (c *Config) normalizeCodecs() {
	filtered := c.Codecs[:0]
	for _, family := range c.Codecs {
		family.Name = strings.ToLower(strings.TrimSpace(family.Name))
		family.Encoders = normalizeList(family.Encoders, false)
		if family.Name == "" {
			continue
		}
		filtered = append(filtered, family)
	}
	c.Codecs = filtered
}

func (c *Config) normalizeHardware() {
	c.Hardware.Name = strings.ToLower(strings.TrimSpace(c.Hardware.Name))
	if c.Hardware.Name == "" {
		c.Hardware.Name = defaultHardwareName
	}
	c.Hardware.Encoders = normalizeList(c.Hardware.Encoders, false)
	if c.Hardware.Workers == 0 {
		c.Hardware.Workers = defaultHardwareWorkers
	}
}

func (c *Config) normalizeWatch() {
	if c.Watch.PollIntervalSeconds == 0 {
		c.Watch.PollIntervalSeconds = defaultWatchPollInterval
	}
	c.Watch.DoneDirName = strings.TrimSpace(c.Watch.DoneDirName)
	if c.Watch.DoneDirName == "" {
		c.Watch.DoneDirName = defaultDoneDirName
	}
	c.Watch.Extensions = normalizeList(c.Watch.Extensions, true)
	if len(c.Watch.Extensions) == 0 {
		c.Watch.Extensions = append([]string(nil), defaultWatchExtensions...)
	}
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	c.API.Token = strings.TrimSpace(c.API.Token)
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNotifyTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func normalizeList(values []string, extensions bool) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			continue
		}
		if extensions && !strings.HasPrefix(value, ".") {
			value = "." + value
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
