package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateCodecs(); err != nil {
		return err
	}
	if err := c.validateHardware(); err != nil {
		return err
	}
	if err := c.validateWatch(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	return c.validateNotifications()
}

func (c *Config) validatePaths() error {
	temp := strings.TrimSpace(c.Paths.TempDir)
	output := strings.TrimSpace(c.Paths.OutputDir)
	if temp != "" && output != "" && filepath.Clean(temp) == filepath.Clean(output) {
		return errors.New("paths.temp_dir must not be the same directory as paths.output_dir")
	}
	return nil
}

func (c *Config) validateQueue() error {
	switch c.Queue.Mode {
	case ModeSerial, ModeParallel:
	default:
		return fmt.Errorf("queue.mode must be %q or %q, got %q", ModeSerial, ModeParallel, c.Queue.Mode)
	}
	if c.Queue.ChunkConcurrency < 2 {
		return errors.New("queue.chunk_concurrency must be at least 2")
	}
	if c.Queue.MinChunkSeconds < 1 {
		return errors.New("queue.min_chunk_seconds must be positive")
	}
	if c.Queue.WorkerRestartLimit < 0 {
		return errors.New("queue.worker_restart_limit must be >= 0")
	}
	if c.Encoder.KillGraceSeconds < 0 {
		return errors.New("encoder.kill_grace_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateCodecs() error {
	seenFamilies := map[string]struct{}{PassthroughFamily: {}}
	seenEncoders := make(map[string]string)
	for _, family := range c.Codecs {
		if family.Name == PassthroughFamily {
			return fmt.Errorf("codecs: %q is reserved for stream copy", PassthroughFamily)
		}
		if _, ok := seenFamilies[family.Name]; ok {
			return fmt.Errorf("codecs: duplicate family %q", family.Name)
		}
		seenFamilies[family.Name] = struct{}{}
		if family.Workers < 1 {
			return fmt.Errorf("codecs.%s.workers must be at least 1", family.Name)
		}
		if len(family.Encoders) == 0 {
			return fmt.Errorf("codecs.%s.encoders must list at least one encoder", family.Name)
		}
		for _, encoder := range family.Encoders {
			if owner, ok := seenEncoders[encoder]; ok {
				return fmt.Errorf("codecs: encoder %q claimed by both %q and %q", encoder, owner, family.Name)
			}
			seenEncoders[encoder] = family.Name
		}
	}
	return nil
}

func (c *Config) validateHardware() error {
	if !c.Hardware.Enabled {
		return nil
	}
	if c.Hardware.Name == PassthroughFamily {
		return fmt.Errorf("hardware.name must not be %q", PassthroughFamily)
	}
	for _, family := range c.Codecs {
		if family.Name == c.Hardware.Name {
			return fmt.Errorf("hardware.name %q collides with a software codec family", c.Hardware.Name)
		}
	}
	if c.Hardware.Workers < 1 {
		return errors.New("hardware.workers must be at least 1")
	}
	if len(c.Hardware.Encoders) == 0 {
		return errors.New("hardware.encoders must list at least one encoder when hardware.enabled is true")
	}
	return nil
}

func (c *Config) validateWatch() error {
	if c.Watch.PollIntervalSeconds < 1 {
		return errors.New("watch.poll_interval_seconds must be positive")
	}
	if c.Watch.SettleSeconds < 0 {
		return errors.New("watch.settle_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.Bind == "" {
		if c.API.Token != "" {
			return errors.New("api.token requires api.bind")
		}
		return nil
	}
	if _, _, err := net.SplitHostPort(c.API.Bind); err != nil {
		return fmt.Errorf("api.bind must be host:port, got %q: %w", c.API.Bind, err)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	parsed, err := url.Parse(topic)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("notifications.ntfy_topic must be an http(s) URL, got %q", topic)
	}
	return nil
}
